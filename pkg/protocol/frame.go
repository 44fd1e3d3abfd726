package protocol

import (
	"encoding/json"
	"errors"
)

const (
	// MaxFrameSize is the maximum allowed frame size (256 KB). Payloads are
	// opaque encrypted blobs, so anything larger is almost certainly abuse.
	MaxFrameSize = 256 * 1024
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size (256 KB)")
	ErrMissingType   = errors.New("frame has no type field")
)

// Inbound frame types. One JSON object per frame, discriminated by "type".
const (
	TypeValidateAuth         = "validate_auth"
	TypeIdentify             = "identify"
	TypeMessage              = "message"
	TypeBroadcastPresence    = "broadcast_presence"
	TypeGetChatHistory       = "get_chat_history"
	TypeMessageDelivered     = "message_delivered"
	TypeMessageRead          = "message_read"
	TypeSendFriendRequest    = "send_friend_request"
	TypeGetFriendRequests    = "get_friend_requests"
	TypeAcceptFriendRequest  = "accept_friend_request"
	TypeDeclineFriendRequest = "decline_friend_request"
	TypeGetFriendsList       = "get_friends_list"
	TypeGetSentFriendReqs    = "get_sent_friend_requests"
	TypeUpdateUsername       = "update_username"
	TypeUpdateProfilePicture = "update_profile_picture"
	TypeUserLogout           = "user_logout"
	TypePong                 = "pong"
)

// Outbound frame types.
const (
	TypeAuthValidation        = "auth_validation"
	TypeRegistered            = "registered"
	TypeInvalidSession        = "invalid_session"
	TypeSignupSuccess         = "signup_success"
	TypeSignupFailed          = "signup_failed"
	TypeUserConnected         = "user_connected"
	TypeUserList              = "user_list"
	TypeDeliveryConfirmation  = "message_delivery_confirmation"
	TypeMessageQueued         = "message_queued"
	TypeReadConfirmation      = "message_read_confirmation"
	TypeChatHistory           = "chat_history"
	TypeChatHistoryError      = "chat_history_error"
	TypeFriendRequestSent     = "friend_request_sent"
	TypeFriendRequestReceived = "friend_request_received"
	TypeFriendRequestAccepted = "friend_request_accepted"
	TypeFriendRequestDeclined = "friend_request_declined"
	TypeFriendRequestError    = "friend_request_error"
	TypeFriendsList           = "friends_list"
	TypeFriendRequestsList    = "friend_requests_list"
	TypeSentFriendReqsList    = "sent_friend_requests_list"
	TypeUsernameUpdated       = "username_updated"
	TypePictureUpdated        = "profile_picture_updated"
	TypePictureUpdateError    = "profile_picture_update_error"
	TypePing                  = "ping"
)

// Frame is one parsed inbound frame. The raw bytes are retained so the
// handler can decode into the concrete message type for the discriminator.
type Frame struct {
	Type string

	payload json.RawMessage
}

// DecodeFrame parses the frame envelope and extracts the type discriminator.
// The payload is not validated beyond being well-formed JSON with a non-empty
// string "type" field.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	// Keep our own copy; the transport may reuse its read buffer.
	payload := make(json.RawMessage, len(data))
	copy(payload, data)

	return &Frame{Type: env.Type, payload: payload}, nil
}

// Decode unmarshals the frame payload into the given message struct.
func (f *Frame) Decode(v interface{}) error {
	return json.Unmarshal(f.payload, v)
}

// Payload returns the raw frame bytes.
func (f *Frame) Payload() []byte {
	return f.payload
}

// EncodeFrame marshals an outbound message to wire bytes. The message struct
// must carry its own "type" field.
func EncodeFrame(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return data, nil
}
