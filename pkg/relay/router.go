package relay

import (
	"time"

	"github.com/couriernet/courier/pkg/protocol"
	"github.com/couriernet/courier/pkg/store"
)

// handleSendMessage routes an opaque payload to its target: immediate
// delivery when the target is reachable, durable queueing when not. The
// sender always hears back which path was taken. Friendship is not checked
// here; any identity may message any other.
func (s *Server) handleSendMessage(c *Client, frame *protocol.Frame) {
	var msg protocol.SendMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}
	if msg.TargetID == "" || len(msg.Payload) == 0 {
		debugLog.Printf("Client %d: message without target or payload, ignoring", c.ID)
		return
	}

	senderID := c.UserID()
	if senderID == "" {
		debugLog.Printf("Client %d: message before identify, ignoring", c.ID)
		return
	}

	now := time.Now().UnixMilli()
	messageID := protocol.NewMessageID(senderID, msg.TargetID, now)

	record := &store.Message{
		MessageID:   messageID,
		SenderID:    senderID,
		RecipientID: msg.TargetID,
		Payload:     msg.Payload,
		Timestamp:   now,
	}

	target, reachable := s.registry.Get(msg.TargetID)
	if reachable {
		s.send(target, protocol.TypeMessage, &protocol.RelayedMessage{
			Type:      protocol.TypeMessage,
			MessageID: messageID,
			SenderID:  senderID,
			Payload:   msg.Payload,
			Timestamp: now,
		})

		record.Delivered = true
		if err := s.store.InsertMessage(record); err != nil {
			errorLog.Printf("Client %d: failed to persist message %s: %v", c.ID, messageID, err)
		}

		s.send(c, protocol.TypeDeliveryConfirmation, &protocol.DeliveryConfirmationMessage{
			Type:      protocol.TypeDeliveryConfirmation,
			MessageID: messageID,
			TargetID:  msg.TargetID,
		})
		s.metrics.RecordMessageRouted("delivered")
		return
	}

	if err := s.store.InsertMessage(record); err != nil {
		errorLog.Printf("Client %d: failed to queue message %s: %v", c.ID, messageID, err)
		return
	}

	s.send(c, protocol.TypeMessageQueued, &protocol.MessageQueuedMessage{
		Type:      protocol.TypeMessageQueued,
		MessageID: messageID,
		TargetID:  msg.TargetID,
	})
	s.metrics.RecordMessageRouted("queued")
}

// handleMessageDelivered records a delivery acknowledgment. Idempotent.
func (s *Server) handleMessageDelivered(c *Client, frame *protocol.Frame) {
	var msg protocol.MessageDeliveredMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}
	if msg.MessageID == "" {
		return
	}

	if err := s.store.MarkDelivered(msg.MessageID); err != nil {
		errorLog.Printf("Client %d: failed to mark %s delivered: %v", c.ID, msg.MessageID, err)
	}
}

// handleMessageRead records a read acknowledgment and forwards a read
// confirmation to the original sender if reachable. The sender is parsed
// back out of the message id rather than looked up in storage; clients
// depend on the id's literal layout.
func (s *Server) handleMessageRead(c *Client, frame *protocol.Frame) {
	var msg protocol.MessageReadMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}
	if msg.MessageID == "" {
		return
	}

	if err := s.store.MarkRead(msg.MessageID); err != nil {
		errorLog.Printf("Client %d: failed to mark %s read: %v", c.ID, msg.MessageID, err)
	}

	senderID := protocol.SenderFromMessageID(msg.MessageID)
	if senderID == "" {
		return
	}
	s.sendToUser(senderID, protocol.TypeReadConfirmation, &protocol.ReadConfirmationMessage{
		Type:      protocol.TypeReadConfirmation,
		MessageID: msg.MessageID,
	})
}

// flushQueued drains the offline queue for a freshly identified client:
// each held message is pushed tagged queued=true, the original sender gets
// its delivery confirmation if still reachable, and the whole batch is
// marked delivered in one transaction.
func (s *Server) flushQueued(c *Client, userID string) {
	pending, err := s.store.UndeliveredFor(userID)
	if err != nil {
		errorLog.Printf("Client %d: failed to load offline queue for %s: %v", c.ID, userID, err)
		return
	}
	if len(pending) == 0 {
		return
	}

	flushed := make([]string, 0, len(pending))
	for _, m := range pending {
		s.send(c, protocol.TypeMessage, &protocol.RelayedMessage{
			Type:      protocol.TypeMessage,
			MessageID: m.MessageID,
			SenderID:  m.SenderID,
			Payload:   m.Payload,
			Timestamp: m.Timestamp,
			Queued:    true,
		})

		s.sendToUser(m.SenderID, protocol.TypeDeliveryConfirmation, &protocol.DeliveryConfirmationMessage{
			Type:      protocol.TypeDeliveryConfirmation,
			MessageID: m.MessageID,
			TargetID:  userID,
		})

		flushed = append(flushed, m.MessageID)
	}

	if err := s.store.MarkDeliveredBatch(flushed); err != nil {
		errorLog.Printf("Client %d: failed to mark flushed batch delivered for %s: %v", c.ID, userID, err)
		return
	}

	s.metrics.RecordQueueFlushed(len(flushed))
	debugLog.Printf("Client %d: flushed %d queued messages to %s", c.ID, len(flushed), userID)
}
