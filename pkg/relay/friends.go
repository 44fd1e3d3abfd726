package relay

import (
	"errors"

	"github.com/couriernet/courier/pkg/protocol"
	"github.com/couriernet/courier/pkg/store"
)

func (s *Server) sendFriendError(c *Client, reason string) {
	s.send(c, protocol.TypeFriendRequestError, &protocol.FriendRequestErrorMessage{
		Type:  protocol.TypeFriendRequestError,
		Error: reason,
	})
}

// handleSendFriendRequest opens (or re-opens) a request to the named user.
// A pair that was declined earlier goes back to pending.
func (s *Server) handleSendFriendRequest(c *Client, frame *protocol.Frame) {
	var msg protocol.SendFriendRequestMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}

	senderID := c.UserID()
	if senderID == "" || msg.Username == "" {
		return
	}

	receiver, err := s.store.GetUserByUsername(msg.Username)
	if errors.Is(err, store.ErrUserNotFound) {
		s.sendFriendError(c, "User not found")
		return
	}
	if err != nil {
		errorLog.Printf("Client %d: friend request lookup failed: %v", c.ID, err)
		s.sendFriendError(c, "Failed to send friend request")
		return
	}

	if err := s.store.UpsertFriendRequest(senderID, receiver.UserID); err != nil {
		errorLog.Printf("Client %d: friend request upsert failed: %v", c.ID, err)
		s.sendFriendError(c, "Failed to send friend request")
		return
	}

	s.send(c, protocol.TypeFriendRequestSent, &protocol.FriendRequestSentMessage{
		Type:     protocol.TypeFriendRequestSent,
		Username: receiver.Username,
	})

	if !s.registry.IsReachable(receiver.UserID) {
		return
	}

	// The notice carries the sender's stored name, not whatever the client
	// claims about itself.
	sender, err := s.store.GetUser(senderID)
	if err != nil {
		errorLog.Printf("Client %d: sender lookup for friend notice failed: %v", c.ID, err)
		return
	}
	s.sendToUser(receiver.UserID, protocol.TypeFriendRequestReceived, &protocol.FriendRequestReceivedMessage{
		Type:        protocol.TypeFriendRequestReceived,
		SenderID:    senderID,
		Username:    sender.Username,
		DisplayName: sender.DisplayName,
	})
}

// handleAcceptFriendRequest transitions a pending request to accepted,
// records the friendship in both directions, and pushes each party its
// updated friend-ID list.
func (s *Server) handleAcceptFriendRequest(c *Client, frame *protocol.Frame) {
	var msg protocol.AcceptFriendRequestMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}

	accepterID := c.UserID()
	if accepterID == "" || msg.SenderID == "" {
		return
	}

	err := s.store.ResolveFriendRequest(msg.SenderID, accepterID, store.RequestAccepted)
	if errors.Is(err, store.ErrRequestNotFound) {
		s.sendFriendError(c, "Friend request not found")
		return
	}
	if err != nil {
		errorLog.Printf("Client %d: friend request accept failed: %v", c.ID, err)
		s.sendFriendError(c, "Failed to accept friend request")
		return
	}

	if err := s.store.CreateFriendship(accepterID, msg.SenderID); err != nil {
		errorLog.Printf("Client %d: friendship insert failed: %v", c.ID, err)
		s.sendFriendError(c, "Failed to accept friend request")
		return
	}

	s.pushFriendIDs(c, accepterID)
	if sender, ok := s.registry.Get(msg.SenderID); ok {
		s.pushFriendIDs(sender, msg.SenderID)
	}
}

func (s *Server) pushFriendIDs(c *Client, userID string) {
	ids, err := s.store.ListFriendIDs(userID)
	if err != nil {
		errorLog.Printf("Client %d: friend list load for %s failed: %v", c.ID, userID, err)
		return
	}
	s.send(c, protocol.TypeFriendRequestAccepted, &protocol.FriendRequestAcceptedMessage{
		Type:      protocol.TypeFriendRequestAccepted,
		FriendIDs: ids,
	})
}

// handleDeclineFriendRequest transitions a pending request to declined and
// notifies both parties. No friendship rows are created; the sender may
// re-request later.
func (s *Server) handleDeclineFriendRequest(c *Client, frame *protocol.Frame) {
	var msg protocol.DeclineFriendRequestMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}

	declinerID := c.UserID()
	if declinerID == "" || msg.SenderID == "" {
		return
	}

	err := s.store.ResolveFriendRequest(msg.SenderID, declinerID, store.RequestDeclined)
	if errors.Is(err, store.ErrRequestNotFound) {
		s.sendFriendError(c, "Friend request not found")
		return
	}
	if err != nil {
		errorLog.Printf("Client %d: friend request decline failed: %v", c.ID, err)
		s.sendFriendError(c, "Failed to decline friend request")
		return
	}

	notice := &protocol.FriendRequestDeclinedMessage{
		Type:       protocol.TypeFriendRequestDeclined,
		SenderID:   msg.SenderID,
		DeclinerID: declinerID,
	}
	s.send(c, protocol.TypeFriendRequestDeclined, notice)
	s.sendToUser(msg.SenderID, protocol.TypeFriendRequestDeclined, notice)
}

func (s *Server) handleGetFriendsList(c *Client) {
	userID := c.UserID()
	if userID == "" {
		return
	}

	friends, err := s.store.ListFriends(userID)
	if err != nil {
		errorLog.Printf("Client %d: friends list load failed: %v", c.ID, err)
		return
	}
	s.send(c, protocol.TypeFriendsList, &protocol.FriendsListMessage{
		Type:    protocol.TypeFriendsList,
		Friends: toFriendEntries(friends),
	})
}

func (s *Server) handleGetFriendRequests(c *Client) {
	userID := c.UserID()
	if userID == "" {
		return
	}

	senders, err := s.store.PendingReceived(userID)
	if err != nil {
		errorLog.Printf("Client %d: pending requests load failed: %v", c.ID, err)
		return
	}
	s.send(c, protocol.TypeFriendRequestsList, &protocol.FriendRequestsListMessage{
		Type:     protocol.TypeFriendRequestsList,
		Requests: toFriendEntries(senders),
	})
}

func (s *Server) handleGetSentFriendRequests(c *Client) {
	userID := c.UserID()
	if userID == "" {
		return
	}

	receivers, err := s.store.PendingSent(userID)
	if err != nil {
		errorLog.Printf("Client %d: sent requests load failed: %v", c.ID, err)
		return
	}
	s.send(c, protocol.TypeSentFriendReqsList, &protocol.SentFriendRequestsListMessage{
		Type:     protocol.TypeSentFriendReqsList,
		Requests: toFriendEntries(receivers),
	})
}

func toFriendEntries(users []*store.User) []protocol.FriendEntry {
	entries := make([]protocol.FriendEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, protocol.FriendEntry{
			UserID:      u.UserID,
			Username:    u.Username,
			DisplayName: u.DisplayName,
		})
	}
	return entries
}
