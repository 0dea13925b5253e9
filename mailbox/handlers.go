package mailbox

import (
	"context"
	"log/slog"
)

// EchoHandler returns a Handler that logs every received message at info
// level, matching the CLI's --echo mode in the original mailbox tooling.
func EchoHandler(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(_ context.Context, msg MailboxMessage) error {
		logger.Info("mailbox message received",
			"recipient", msg.Recipient,
			"sender", msg.Sender,
			"message_type", msg.MessageType,
			"payload", msg.Payload,
		)
		return nil
	}
}
