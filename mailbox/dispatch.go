package mailbox

import (
	"context"
	"fmt"
	"time"
)

// dispatch awaits every registered handler on msg, in registration order.
// A handler's returned error or panic is logged and suppressed so later
// handlers still run; dispatch itself never returns an error (invariant I2:
// a message is ACKed once every handler has been invoked, regardless of
// outcome).
func (s *MailboxService) dispatch(ctx context.Context, msg MailboxMessage) {
	handlers := s.handlerSnapshot()
	if len(handlers) == 0 {
		s.logger.Info("mailbox message received with no handlers registered",
			"message_id", msg.MessageID, "sender", msg.Sender)
		return
	}

	for i, h := range handlers {
		start := time.Now()
		err := s.invokeHandler(ctx, h, msg)
		failed := err != nil
		s.instrumentation.recordHandler(ctx, time.Since(start), failed)
		if failed {
			s.logger.Error("mailbox handler failed",
				"handler_index", i, "message_id", msg.MessageID, "error", err)
		}
	}
}

// invokeHandler runs h, converting a panic into an error so a single
// misbehaving handler can never take down the consumer goroutine - the Go
// analogue of the source catching every handler exception.
func (s *MailboxService) invokeHandler(ctx context.Context, h Handler, msg MailboxMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, msg)
}
