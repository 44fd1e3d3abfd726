package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// idSegment generates identity tokens that do not contain the message-ID
// separator. Identifiers containing '-' are the documented fragile case and
// are pinned separately in TestSenderFromMessageIDSeparatorInSender.
func idSegment() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-zA-Z0-9_.]{1,32}`)
}

// TestMessageIDRoundTrip checks that the sender parsed back out of a message
// identifier is the sender it was built from, for any separator-free IDs.
func TestMessageIDRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sender := idSegment().Draw(t, "sender")
		target := idSegment().Draw(t, "target")
		ts := rapid.Int64Range(0, 1<<52).Draw(t, "ts")

		id := NewMessageID(sender, target, ts)

		if got := SenderFromMessageID(id); got != sender {
			t.Fatalf("sender mismatch: got %q, want %q (id=%q)", got, sender, id)
		}
		if !strings.HasSuffix(id, "-"+strconv.FormatInt(ts, 10)) {
			t.Fatalf("timestamp suffix missing from %q", id)
		}
	})
}

// TestFrameRoundTripRapid checks that any routed message survives an
// encode/decode cycle through the frame envelope.
func TestFrameRoundTripRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload, err := json.Marshal(rapid.String().Draw(t, "payload"))
		if err != nil {
			t.Fatalf("payload marshal failed: %v", err)
		}
		msg := &RelayedMessage{
			Type:      TypeMessage,
			MessageID: idSegment().Draw(t, "messageId"),
			SenderID:  idSegment().Draw(t, "senderId"),
			Payload:   payload,
			Timestamp: rapid.Int64Range(0, 1<<52).Draw(t, "timestamp"),
			Queued:    rapid.Bool().Draw(t, "queued"),
		}

		data, err := EncodeFrame(msg)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if frame.Type != TypeMessage {
			t.Fatalf("type mismatch: got %q", frame.Type)
		}

		var decoded RelayedMessage
		if err := frame.Decode(&decoded); err != nil {
			t.Fatalf("payload decode failed: %v", err)
		}
		if decoded.MessageID != msg.MessageID || decoded.SenderID != msg.SenderID ||
			decoded.Timestamp != msg.Timestamp || decoded.Queued != msg.Queued {
			t.Fatalf("round-trip mismatch: got %+v, want %+v", decoded, *msg)
		}
	})
}
