package mailbox

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RecoveryMetrics is captured for each recovery run and passed to the
// optional recovery callback.
type RecoveryMetrics struct {
	TotalRecovered   int64
	BatchesProcessed int64
	StartTime        time.Time
	EndTime          time.Time
}

// Elapsed returns the wall-clock duration of the recovery run.
func (m RecoveryMetrics) Elapsed() time.Duration {
	if m.StartTime.IsZero() || m.EndTime.IsZero() {
		return 0
	}
	return m.EndTime.Sub(m.StartTime)
}

// Instrumentation is an optional set of OpenTelemetry instruments a
// MailboxService reports through. A nil *Instrumentation is safe to use:
// every method is a no-op when the receiver is nil. A non-nil value must come
// from NewInstrumentation; the methods do not check individual instruments
// for nil.
//
// Modeled on framework/metrics.Metrics from the teacher framework: one
// metric.Meter, a handful of named counters/histograms, built once and
// reused for the service's lifetime.
type Instrumentation struct {
	messagesSent      metric.Int64Counter
	messagesReceived  metric.Int64Counter
	messagesRecovered metric.Int64Counter
	recoveryDuration  metric.Float64Histogram
	handlerDuration   metric.Float64Histogram
	handlerErrors     metric.Int64Counter
}

// NewInstrumentation builds an Instrumentation from the given meter. It
// returns an error only if the underlying SDK rejects an instrument name.
func NewInstrumentation(meter metric.Meter) (*Instrumentation, error) {
	if meter == nil {
		return nil, nil
	}

	messagesSent, err := meter.Int64Counter("mailbox_messages_sent_total",
		metric.WithDescription("Messages appended to a recipient inbox stream"))
	if err != nil {
		return nil, err
	}
	messagesReceived, err := meter.Int64Counter("mailbox_messages_received_total",
		metric.WithDescription("Messages dispatched from the steady-state consume loop"))
	if err != nil {
		return nil, err
	}
	messagesRecovered, err := meter.Int64Counter("mailbox_messages_recovered_total",
		metric.WithDescription("Messages dispatched by the startup recovery engine"))
	if err != nil {
		return nil, err
	}
	recoveryDuration, err := meter.Float64Histogram("mailbox_recovery_duration_seconds",
		metric.WithDescription("Wall-clock duration of a recovery run"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	handlerDuration, err := meter.Float64Histogram("mailbox_handler_duration_seconds",
		metric.WithDescription("Duration of a single handler invocation"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	handlerErrors, err := meter.Int64Counter("mailbox_handler_errors_total",
		metric.WithDescription("Handler invocations that returned an error or panicked"))
	if err != nil {
		return nil, err
	}

	return &Instrumentation{
		messagesSent:      messagesSent,
		messagesReceived:  messagesReceived,
		messagesRecovered: messagesRecovered,
		recoveryDuration:  recoveryDuration,
		handlerDuration:   handlerDuration,
		handlerErrors:     handlerErrors,
	}, nil
}

func (i *Instrumentation) recordSent(ctx context.Context) {
	if i == nil {
		return
	}
	i.messagesSent.Add(ctx, 1)
}

func (i *Instrumentation) recordReceived(ctx context.Context, n int64) {
	if i == nil {
		return
	}
	i.messagesReceived.Add(ctx, n)
}

func (i *Instrumentation) recordRecovered(ctx context.Context, n int64) {
	if i == nil {
		return
	}
	i.messagesRecovered.Add(ctx, n)
}

func (i *Instrumentation) recordRecoveryDuration(ctx context.Context, d time.Duration) {
	if i == nil {
		return
	}
	i.recoveryDuration.Record(ctx, d.Seconds())
}

func (i *Instrumentation) recordHandler(ctx context.Context, d time.Duration, failed bool) {
	if i == nil {
		return
	}
	i.handlerDuration.Record(ctx, d.Seconds())
	if failed {
		i.handlerErrors.Add(ctx, 1)
	}
}
