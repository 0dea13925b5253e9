package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// findSum returns the accumulated value of the first int64 sum datapoint for
// the named metric, so assertions read like the counter they're checking.
func findSum(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			require.Len(t, sum.DataPoints, 1)
			return sum.DataPoints[0].Value
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestInstrumentationRecordsThroughRealMeterProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	inst, err := NewInstrumentation(provider.Meter("beast-mailbox-test"))
	require.NoError(t, err)
	require.NotNil(t, inst)

	ctx := context.Background()
	inst.recordSent(ctx)
	inst.recordSent(ctx)
	inst.recordReceived(ctx, 3)
	inst.recordRecovered(ctx, 2)
	inst.recordRecoveryDuration(ctx, 500*time.Millisecond)
	inst.recordHandler(ctx, 10*time.Millisecond, false)
	inst.recordHandler(ctx, 10*time.Millisecond, true)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), findSum(t, rm, "mailbox_messages_sent_total"))
	assert.Equal(t, int64(3), findSum(t, rm, "mailbox_messages_received_total"))
	assert.Equal(t, int64(2), findSum(t, rm, "mailbox_messages_recovered_total"))
	assert.Equal(t, int64(1), findSum(t, rm, "mailbox_handler_errors_total"))
}

func TestNilInstrumentationIsANoOp(t *testing.T) {
	var inst *Instrumentation
	ctx := context.Background()
	inst.recordSent(ctx)
	inst.recordReceived(ctx, 1)
	inst.recordRecovered(ctx, 1)
	inst.recordRecoveryDuration(ctx, time.Second)
	inst.recordHandler(ctx, time.Second, true)
}

func TestNewInstrumentationWithNilMeterIsDisabled(t *testing.T) {
	inst, err := NewInstrumentation(nil)
	require.NoError(t, err)
	assert.Nil(t, inst)
}
