package mailbox

import (
	"context"
	"time"
)

// recover runs the pending-message recovery engine exactly once, before
// the consumer loop is launched. It claims entries left pending by a prior
// incarnation of this agent's consumer group (possibly under a different
// consumer name) via XAUTOCLAIM, dispatches each through the handler
// fan-out, and acknowledges it.
func (s *MailboxService) recover(ctx context.Context) RecoveryMetrics {
	metrics := RecoveryMetrics{StartTime: time.Now()}

	if len(s.handlerSnapshot()) == 0 {
		s.logger.Warn("no handlers registered for recovery - pending messages will not be processed")
		metrics.EndTime = time.Now()
		s.invokeRecoveryCallback(ctx, metrics)
		return metrics
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	pending, err := client.XPendingCount(ctx, s.inboxStream, s.consumerGroup)
	if err != nil {
		if isNoGroup(err) {
			s.logger.Debug("consumer group does not exist yet - skipping recovery")
		} else {
			s.logger.Warn("failed to check pending messages", "error", err)
		}
		metrics.EndTime = time.Now()
		s.invokeRecoveryCallback(ctx, metrics)
		return metrics
	}
	if pending == 0 {
		s.logger.Info("no pending messages to recover")
		metrics.EndTime = time.Now()
		s.invokeRecoveryCallback(ctx, metrics)
		return metrics
	}

	s.logger.Info("starting pending message recovery")
	cursor := "0-0"

	for {
		minIdle := s.config.RecoveryMinIdleTime
		result, err := client.XAutoClaim(ctx, s.inboxStream, s.consumerGroup, s.consumerName,
			minIdle, cursor, s.config.RecoveryBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Debug("recovery cancelled")
			} else {
				s.logger.Error("error during recovery", "error", err)
			}
			break
		}

		if len(result.Entries) == 0 {
			if result.Cursor == "0-0" {
				break
			}
			cursor = result.Cursor
			continue
		}

		for _, entry := range result.Entries {
			msg := decodeMailboxMessage(entry.Fields)
			s.logger.Debug("recovering message", "message_id", entry.ID, "sender", msg.Sender)
			s.dispatch(ctx, msg)
			if err := client.XAck(ctx, s.inboxStream, s.consumerGroup, entry.ID); err != nil {
				s.logger.Warn("failed to ack recovered message", "message_id", entry.ID, "error", err)
			}
			metrics.TotalRecovered++
		}

		metrics.BatchesProcessed++
		cursor = result.Cursor
	}

	metrics.EndTime = time.Now()
	s.logger.Info("recovery complete",
		"total_recovered", metrics.TotalRecovered,
		"batches_processed", metrics.BatchesProcessed,
		"elapsed", metrics.Elapsed())

	s.instrumentation.recordRecovered(ctx, metrics.TotalRecovered)
	s.instrumentation.recordRecoveryDuration(ctx, metrics.Elapsed())

	s.invokeRecoveryCallback(ctx, metrics)
	return metrics
}
