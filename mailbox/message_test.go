package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := newMessage("alice", "bob", map[string]any{"n": float64(1), "s": "x"}, "command", "fixed-id")

	fields := msg.encode()
	for _, key := range []string{"message_id", "sender", "recipient", "payload", "message_type", "timestamp"} {
		_, ok := fields[key]
		require.True(t, ok, "missing canonical field %s", key)
	}

	decoded := decodeMailboxMessage(fields)
	assert.Equal(t, msg.MessageID, decoded.MessageID)
	assert.Equal(t, msg.Sender, decoded.Sender)
	assert.Equal(t, msg.Recipient, decoded.Recipient)
	assert.Equal(t, msg.MessageType, decoded.MessageType)
	assert.Equal(t, msg.Payload, decoded.Payload)
	assert.InDelta(t, msg.Timestamp, decoded.Timestamp, 1e-9)
}

func TestDecodeDefaultsOnMissingFields(t *testing.T) {
	decoded := decodeMailboxMessage(map[string]string{})

	assert.NotEmpty(t, decoded.MessageID)
	assert.Equal(t, "unknown", decoded.Sender)
	assert.Equal(t, "unknown", decoded.Recipient)
	assert.Equal(t, defaultMessageType, decoded.MessageType)
	assert.Equal(t, map[string]any{}, decoded.Payload)
	assert.Equal(t, 0.0, decoded.Timestamp)
}

func TestDecodeMalformedPayloadFallsBackToEmptyMap(t *testing.T) {
	decoded := decodeMailboxMessage(map[string]string{
		"payload":   "not-json",
		"timestamp": "not-a-number",
	})

	assert.Equal(t, map[string]any{}, decoded.Payload)
	assert.Equal(t, 0.0, decoded.Timestamp)
}

func TestNewMessageDefaults(t *testing.T) {
	msg := newMessage("alice", "bob", nil, "", "")

	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, defaultMessageType, msg.MessageType)
	assert.Equal(t, map[string]any{}, msg.Payload)
	assert.Greater(t, msg.Timestamp, 0.0)
}
