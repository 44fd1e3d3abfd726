package protocol

import "encoding/json"

// PresenceInfo carries the display fields a client reports about itself.
// It is echoed into the roster but is not authoritative over the stored
// display name unless explicitly pushed.
type PresenceInfo struct {
	Username       string  `json:"username"`
	DisplayName    string  `json:"displayName"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
}

// RosterEntry is one user in the presence roster.
type RosterEntry struct {
	UserID         string  `json:"userId"`
	Username       string  `json:"username"`
	DisplayName    string  `json:"displayName"`
	ProfilePicture *string `json:"profilePicture,omitempty"`
	Status         string  `json:"status"` // "online" or "offline"
	LastSeen       int64   `json:"lastSeen"`
}

// FriendEntry is one counterpart in a friends or friend-request listing.
type FriendEntry struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// HistoryMessage is one stored message in a chat history reply.
type HistoryMessage struct {
	MessageID   string          `json:"messageId"`
	SenderID    string          `json:"senderId"`
	RecipientID string          `json:"recipientId"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   int64           `json:"timestamp"`
	Delivered   bool            `json:"delivered"`
	Read        bool            `json:"read"`
}

// ---------------------------------------------------------------------------
// Inbound messages
// ---------------------------------------------------------------------------

// Auth validation modes.
const (
	AuthModeSignup = "signup"
	AuthModeLogin  = "login"
)

// ValidateAuthMessage requests a pre-flight credential check before identify.
type ValidateAuthMessage struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Mode     string `json:"mode"` // "signup" or "login"
}

// IdentifyMessage binds a transport to an identity.
type IdentifyMessage struct {
	UserID    string       `json:"userId"`
	SessionID string       `json:"sessionId"`
	PublicKey string       `json:"publicKey"`
	Info      PresenceInfo `json:"info"`
	Password  *string      `json:"password,omitempty"`
}

// SendMessage routes an opaque encrypted payload to a target identity.
type SendMessage struct {
	TargetID string          `json:"targetId"`
	Payload  json.RawMessage `json:"payload"`
}

// BroadcastPresenceMessage asks for a roster rebroadcast with fresh info.
type BroadcastPresenceMessage struct {
	Info PresenceInfo `json:"info"`
}

// GetChatHistoryMessage requests the stored conversation with one peer.
type GetChatHistoryMessage struct {
	WithUserID string `json:"withUserId"`
}

// MessageDeliveredMessage acknowledges delivery of a message.
type MessageDeliveredMessage struct {
	MessageID string `json:"messageId"`
}

// MessageReadMessage acknowledges that a message has been read.
type MessageReadMessage struct {
	MessageID string `json:"messageId"`
}

// SendFriendRequestMessage opens (or re-opens) a friend request by username.
type SendFriendRequestMessage struct {
	Username string `json:"username"`
}

// AcceptFriendRequestMessage accepts a pending request from senderId.
type AcceptFriendRequestMessage struct {
	SenderID string `json:"senderId"`
}

// DeclineFriendRequestMessage declines a pending request from senderId.
type DeclineFriendRequestMessage struct {
	SenderID string `json:"senderId"`
}

// UpdateUsernameMessage changes the caller's unique username.
type UpdateUsernameMessage struct {
	Username string `json:"username"`
}

// UpdateProfilePictureMessage stores a new profile picture reference.
type UpdateProfilePictureMessage struct {
	ProfilePicture string `json:"profilePicture"`
}

// ---------------------------------------------------------------------------
// Outbound messages
// ---------------------------------------------------------------------------

// AuthValidationMessage is the reply to validate_auth.
type AuthValidationMessage struct {
	Type    string `json:"type"`
	Mode    string `json:"mode"`
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RegisteredMessage acknowledges a successful identify.
type RegisteredMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// InvalidSessionMessage tells a client its cached identity is stale.
type InvalidSessionMessage struct {
	Type string `json:"type"`
}

// SignupSuccessMessage reports first-time account creation during identify.
type SignupSuccessMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// SignupFailedMessage reports a failed account creation during identify.
type SignupFailedMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// UserConnectedMessage notifies other clients that an identity joined.
type UserConnectedMessage struct {
	Type        string `json:"type"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// UserListMessage is the full presence roster broadcast.
type UserListMessage struct {
	Type  string        `json:"type"`
	Users []RosterEntry `json:"users"`
}

// RelayedMessage is a routed message pushed to its recipient. Queued is set
// when the message was held in the offline queue and delivered on identify.
type RelayedMessage struct {
	Type      string          `json:"type"`
	MessageID string          `json:"messageId"`
	SenderID  string          `json:"senderId"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	Queued    bool            `json:"queued,omitempty"`
}

// DeliveryConfirmationMessage tells a sender its message reached the target.
type DeliveryConfirmationMessage struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	TargetID  string `json:"targetId"`
}

// MessageQueuedMessage tells a sender its message was durably queued.
type MessageQueuedMessage struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	TargetID  string `json:"targetId"`
}

// ReadConfirmationMessage forwards a read receipt to the original sender.
type ReadConfirmationMessage struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

// ChatHistoryMessage is the reply to get_chat_history.
type ChatHistoryMessage struct {
	Type       string           `json:"type"`
	WithUserID string           `json:"withUserId"`
	Messages   []HistoryMessage `json:"messages"`
}

// ChatHistoryErrorMessage reports a storage failure on the history path.
type ChatHistoryErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// FriendRequestSentMessage acknowledges send_friend_request to the sender.
type FriendRequestSentMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// FriendRequestReceivedMessage notifies the receiver of a new request.
type FriendRequestReceivedMessage struct {
	Type        string `json:"type"`
	SenderID    string `json:"senderId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// FriendRequestAcceptedMessage carries the updated friend-ID list to a party
// of a freshly accepted request.
type FriendRequestAcceptedMessage struct {
	Type      string   `json:"type"`
	FriendIDs []string `json:"friendIds"`
}

// FriendRequestDeclinedMessage notifies both parties of a decline.
type FriendRequestDeclinedMessage struct {
	Type       string `json:"type"`
	SenderID   string `json:"senderId"`
	DeclinerID string `json:"declinerId"`
}

// FriendRequestErrorMessage is the typed failure reply for friend operations.
type FriendRequestErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// FriendsListMessage is the reply to get_friends_list.
type FriendsListMessage struct {
	Type    string        `json:"type"`
	Friends []FriendEntry `json:"friends"`
}

// FriendRequestsListMessage is the reply to get_friend_requests.
type FriendRequestsListMessage struct {
	Type     string        `json:"type"`
	Requests []FriendEntry `json:"requests"`
}

// SentFriendRequestsListMessage is the reply to get_sent_friend_requests.
type SentFriendRequestsListMessage struct {
	Type     string        `json:"type"`
	Requests []FriendEntry `json:"requests"`
}

// UsernameUpdatedMessage is the reply to update_username.
type UsernameUpdatedMessage struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// PictureUpdatedMessage doubles as the ack to the caller (Success set) and
// the narrow single-field broadcast to everyone else (UserID set). A
// picture-only change never triggers a full roster rebuild.
type PictureUpdatedMessage struct {
	Type           string `json:"type"`
	Success        bool   `json:"success,omitempty"`
	UserID         string `json:"userId,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// PictureUpdateErrorMessage reports a failed profile picture update.
type PictureUpdateErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// PingMessage is the liveness probe sent by the sweep loop.
type PingMessage struct {
	Type string `json:"type"`
}
