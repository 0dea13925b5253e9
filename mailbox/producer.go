package mailbox

import "context"

// sendOptions collects the optional arguments to SendMessage.
type sendOptions struct {
	messageType string
	messageID   string
}

// SendOption configures a single SendMessage call.
type SendOption func(*sendOptions)

// WithMessageType overrides the default "direct_message" classification.
func WithMessageType(t string) SendOption {
	return func(o *sendOptions) { o.messageType = t }
}

// WithMessageID supplies a caller-chosen message id instead of a random one.
func WithMessageID(id string) SendOption {
	return func(o *sendOptions) { o.messageID = id }
}

// SendMessage appends a message to recipient's inbox stream with approximate
// trimming to MaxStreamLength, and returns the id of the appended entry.
//
// SendMessage does not require Start: senders are identified only by the
// agent id this service was constructed with, never create the recipient's
// consumer group, and never need a consume loop of their own (O3).
func (s *MailboxService) SendMessage(ctx context.Context, recipient string, payload map[string]any, opts ...SendOption) (string, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return "", err
	}

	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	msg := newMessage(s.agentID, recipient, payload, o.messageType, o.messageID)
	stream := s.config.StreamPrefix + ":" + recipient + ":in"

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if _, err := client.XAdd(ctx, stream, s.config.MaxStreamLength, msg.encode()); err != nil {
		return "", err
	}

	s.instrumentation.recordSent(ctx)
	s.logger.Debug("sent message", "message_id", msg.MessageID, "stream", stream)
	return msg.MessageID, nil
}
