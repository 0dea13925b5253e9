package mailbox

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// MailboxMessage is the value record exchanged between agents.
type MailboxMessage struct {
	MessageID   string
	Sender      string
	Recipient   string
	Payload     map[string]any
	MessageType string
	Timestamp   float64
}

const defaultMessageType = "direct_message"

// newMessage builds a MailboxMessage for a send, applying the documented
// defaults for an omitted id/type and stamping the current wall-clock time
// as fractional Unix seconds (not a monotonic clock reading).
func newMessage(sender, recipient string, payload map[string]any, messageType, messageID string) MailboxMessage {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	if messageType == "" {
		messageType = defaultMessageType
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return MailboxMessage{
		MessageID:   messageID,
		Sender:      sender,
		Recipient:   recipient,
		Payload:     payload,
		MessageType: messageType,
		Timestamp:   nowSeconds(),
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// encode serializes a MailboxMessage into the flat string field map the
// stream entry carries, per invariant I1: every write carries all six
// canonical fields.
func (m MailboxMessage) encode() map[string]string {
	payloadJSON, err := json.Marshal(m.Payload)
	if err != nil {
		payloadJSON = []byte("{}")
	}
	return map[string]string{
		"message_id":   m.MessageID,
		"sender":       m.Sender,
		"recipient":    m.Recipient,
		"payload":      string(payloadJSON),
		"message_type": m.MessageType,
		"timestamp":    strconv.FormatFloat(m.Timestamp, 'f', -1, 64),
	}
}

// decodeMailboxMessage is the exact inverse of encode. Missing or malformed
// fields are reconstructed with documented defaults; decoding never errors.
func decodeMailboxMessage(fields map[string]string) MailboxMessage {
	msg := MailboxMessage{
		MessageID:   fields["message_id"],
		Sender:      fields["sender"],
		Recipient:   fields["recipient"],
		MessageType: fields["message_type"],
	}

	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Sender == "" {
		msg.Sender = "unknown"
	}
	if msg.Recipient == "" {
		msg.Recipient = "unknown"
	}
	if msg.MessageType == "" {
		msg.MessageType = defaultMessageType
	}

	msg.Payload = map[string]any{}
	if raw, ok := fields["payload"]; ok && raw != "" {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil && decoded != nil {
			msg.Payload = decoded
		}
	}

	msg.Timestamp = 0.0
	if raw, ok := fields["timestamp"]; ok && raw != "" {
		if ts, err := strconv.ParseFloat(raw, 64); err == nil {
			msg.Timestamp = ts
		}
	}

	return msg
}
