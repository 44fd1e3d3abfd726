package protocol

import (
	"fmt"
	"strings"
)

// Message identifiers are "<senderId>-<targetId>-<millis>". The sender
// segment is parsed back out for read-receipt routing, so the format is
// load-bearing: clients display and deduplicate on these exact strings.
// Collisions within one sender/target/millisecond are an accepted non-goal.

// NewMessageID builds the identifier for a routed message.
func NewMessageID(senderID, targetID string, timestamp int64) string {
	return fmt.Sprintf("%s-%s-%d", senderID, targetID, timestamp)
}

// SenderFromMessageID extracts the sender segment of a message identifier.
// Returns "" if the identifier has no separator at all. Sender IDs containing
// the separator will be truncated at the first one; see NewMessageID.
func SenderFromMessageID(messageID string) string {
	idx := strings.Index(messageID, "-")
	if idx <= 0 {
		return ""
	}
	return messageID[:idx]
}
