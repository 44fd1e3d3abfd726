package relay

import (
	"encoding/json"
	"errors"

	"github.com/couriernet/courier/pkg/protocol"
	"github.com/couriernet/courier/pkg/store"
)

// handleGetChatHistory returns the stored conversation with one peer, both
// directions, oldest first.
func (s *Server) handleGetChatHistory(c *Client, frame *protocol.Frame) {
	var msg protocol.GetChatHistoryMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}

	userID := c.UserID()
	if userID == "" || msg.WithUserID == "" {
		return
	}

	messages, err := s.store.History(userID, msg.WithUserID)
	if err != nil {
		errorLog.Printf("Client %d: history load with %s failed: %v", c.ID, msg.WithUserID, err)
		s.send(c, protocol.TypeChatHistoryError, &protocol.ChatHistoryErrorMessage{
			Type:  protocol.TypeChatHistoryError,
			Error: "Failed to load chat history",
		})
		return
	}

	history := make([]protocol.HistoryMessage, 0, len(messages))
	for _, m := range messages {
		history = append(history, protocol.HistoryMessage{
			MessageID:   m.MessageID,
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			Payload:     json.RawMessage(m.Payload),
			Timestamp:   m.Timestamp,
			Delivered:   m.Delivered,
			Read:        m.Read,
		})
	}

	s.send(c, protocol.TypeChatHistory, &protocol.ChatHistoryMessage{
		Type:       protocol.TypeChatHistory,
		WithUserID: msg.WithUserID,
		Messages:   history,
	})
}

// handleUpdateUsername changes the caller's unique username. Failures get a
// typed reply and never trigger a roster broadcast.
func (s *Server) handleUpdateUsername(c *Client, frame *protocol.Frame) {
	var msg protocol.UpdateUsernameMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}

	fail := func(reason string) {
		s.send(c, protocol.TypeUsernameUpdated, &protocol.UsernameUpdatedMessage{
			Type:   protocol.TypeUsernameUpdated,
			Reason: reason,
		})
	}

	if !usernameRegex.MatchString(msg.Username) {
		fail("Invalid username")
		return
	}

	userID := c.UserID()
	if userID == "" {
		fail("User not found")
		return
	}

	err := s.store.UpdateUsername(userID, msg.Username)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		fail("User not found")
		return
	case errors.Is(err, store.ErrUsernameTaken):
		fail("Username is already taken")
		return
	case err != nil:
		errorLog.Printf("Client %d: username update failed: %v", c.ID, err)
		fail("Failed to update username")
		return
	}

	info := c.Info()
	info.Username = msg.Username
	c.setInfo(info)

	s.send(c, protocol.TypeUsernameUpdated, &protocol.UsernameUpdatedMessage{
		Type:     protocol.TypeUsernameUpdated,
		Success:  true,
		Username: msg.Username,
	})
	s.broadcastRoster()
}

// handleUpdateProfilePicture stores a new picture reference, acknowledges
// the caller, and announces just the changed field to everyone else. A
// picture change never rebuilds the full roster.
func (s *Server) handleUpdateProfilePicture(c *Client, frame *protocol.Frame) {
	var msg protocol.UpdateProfilePictureMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}

	userID := c.UserID()
	if userID == "" || msg.ProfilePicture == "" {
		return
	}

	if err := s.store.UpdateProfilePicture(userID, msg.ProfilePicture); err != nil {
		errorLog.Printf("Client %d: profile picture update failed: %v", c.ID, err)
		s.send(c, protocol.TypePictureUpdateError, &protocol.PictureUpdateErrorMessage{
			Type:  protocol.TypePictureUpdateError,
			Error: "Failed to update profile picture",
		})
		return
	}

	picture := msg.ProfilePicture
	info := c.Info()
	info.ProfilePicture = &picture
	c.setInfo(info)

	s.send(c, protocol.TypePictureUpdated, &protocol.PictureUpdatedMessage{
		Type:           protocol.TypePictureUpdated,
		Success:        true,
		ProfilePicture: picture,
	})

	s.broadcastIdentified(c, protocol.TypePictureUpdated, &protocol.PictureUpdatedMessage{
		Type:           protocol.TypePictureUpdated,
		UserID:         userID,
		ProfilePicture: picture,
	})
}

// handleUserLogout releases the identity binding but keeps the transport
// open; the client drops back to its login screen.
func (s *Server) handleUserLogout(c *Client) {
	userID := c.UserID()
	if userID == "" {
		return
	}

	s.registry.Remove(userID, c)
	if err := s.store.UpdateLastSeen(userID); err != nil {
		errorLog.Printf("Client %d: failed to stamp last seen for %s: %v", c.ID, userID, err)
	}
	c.clearIdentity()

	debugLog.Printf("Client %d: %s logged out", c.ID, userID)
	s.broadcastRoster()
}
