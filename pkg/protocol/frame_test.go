package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantType string
		wantErr  bool
	}{
		{
			name:     "valid identify frame",
			data:     `{"type":"identify","userId":"u1","sessionId":"s1","publicKey":"pk"}`,
			wantType: TypeIdentify,
		},
		{
			name:     "valid message frame with nested payload",
			data:     `{"type":"message","targetId":"b1","payload":{"ct":"xyz"}}`,
			wantType: TypeMessage,
		},
		{
			name:    "missing type field",
			data:    `{"userId":"u1"}`,
			wantErr: true,
		},
		{
			name:    "empty type field",
			data:    `{"type":""}`,
			wantErr: true,
		},
		{
			name:    "not JSON",
			data:    `garbage`,
			wantErr: true,
		},
		{
			name:    "JSON array instead of object",
			data:    `["message"]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeFrame([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, frame.Type)
		})
	}
}

func TestDecodeFrameTooLarge(t *testing.T) {
	data := `{"type":"message","payload":"` + strings.Repeat("x", MaxFrameSize) + `"}`
	_, err := DecodeFrame([]byte(data))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrameDecodePayload(t *testing.T) {
	data := `{"type":"message","targetId":"b1","payload":{"ct":"xyz"}}`
	frame, err := DecodeFrame([]byte(data))
	require.NoError(t, err)

	var msg SendMessage
	require.NoError(t, frame.Decode(&msg))
	assert.Equal(t, "b1", msg.TargetID)
	assert.JSONEq(t, `{"ct":"xyz"}`, string(msg.Payload))
}

func TestDecodeFrameCopiesBuffer(t *testing.T) {
	buf := []byte(`{"type":"message","targetId":"b1","payload":{"ct":"xyz"}}`)
	frame, err := DecodeFrame(buf)
	require.NoError(t, err)

	// The transport may reuse its read buffer for the next frame.
	for i := range buf {
		buf[i] = 'z'
	}

	var msg SendMessage
	require.NoError(t, frame.Decode(&msg))
	assert.Equal(t, "b1", msg.TargetID)
}

func TestEncodeFrame(t *testing.T) {
	msg := &MessageQueuedMessage{
		Type:      TypeMessageQueued,
		MessageID: "a1-b1-1700000000000",
		TargetID:  "b1",
	}

	data, err := EncodeFrame(msg)
	require.NoError(t, err)

	// An encoded outbound frame must itself be a decodable inbound envelope.
	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, TypeMessageQueued, frame.Type)

	var decoded MessageQueuedMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *msg, decoded)
}

func TestEncodeFrameTooLarge(t *testing.T) {
	msg := &RelayedMessage{
		Type:      TypeMessage,
		MessageID: "a1-b1-1",
		SenderID:  "a1",
		Payload:   json.RawMessage(`"` + strings.Repeat("x", MaxFrameSize) + `"`),
	}
	_, err := EncodeFrame(msg)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}
