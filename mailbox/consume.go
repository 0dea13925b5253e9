package mailbox

import (
	"context"
	"time"
)

const consumeBatchSize = 10

// consumeLoop is the steady-state background loop launched by Start. Each
// iteration reads up to consumeBatchSize new entries, dispatches them, and
// acknowledges them. It runs until ctx is cancelled (by Stop).
func (s *MailboxService) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		client := s.client
		s.mu.Unlock()
		if client == nil {
			return
		}

		entries, err := client.XReadGroup(ctx, s.inboxStream, s.consumerGroup, s.consumerName,
			consumeBatchSize, s.config.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("error in mailbox consume loop", "error", err)
			if !sleepOrDone(ctx, s.config.PollInterval) {
				return
			}
			continue
		}

		if len(entries) == 0 {
			continue
		}

		s.instrumentation.recordReceived(ctx, int64(len(entries)))
		for _, entry := range entries {
			msg := decodeMailboxMessage(entry.Fields)
			s.dispatch(ctx, msg)
			if err := client.XAck(ctx, s.inboxStream, s.consumerGroup, entry.ID); err != nil {
				s.logger.Warn("failed to ack message", "message_id", entry.ID, "error", err)
			}
		}
	}
}

// sleepOrDone waits for d or ctx cancellation, whichever comes first. It
// reports whether the wait completed normally (false means ctx was done).
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
