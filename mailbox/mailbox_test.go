package mailbox

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, mr *miniredis.Miniredis) MailboxConfig {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := DefaultMailboxConfig()
	cfg.Host = mr.Host()
	cfg.Port = port
	cfg.PollInterval = 50 * time.Millisecond
	cfg.RecoveryMinIdleTime = 0
	return cfg
}

func TestBasicSendReceive(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	ctx := context.Background()

	bob := NewMailboxService("bob", cfg)
	received := make(chan MailboxMessage, 1)
	bob.RegisterHandler(func(_ context.Context, msg MailboxMessage) error {
		received <- msg
		return nil
	})
	require.NoError(t, bob.Start(ctx))
	defer bob.Stop(ctx)

	alice := NewMailboxService("alice", cfg)
	defer alice.Stop(ctx)

	id, err := alice.SendMessage(ctx, "bob", map[string]any{"hello": "world"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case msg := <-received:
		assert.Equal(t, "alice", msg.Sender)
		assert.Equal(t, "bob", msg.Recipient)
		assert.Equal(t, map[string]any{"hello": "world"}, msg.Payload)
		assert.Equal(t, defaultMessageType, msg.MessageType)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestSendMessageDoesNotRequireStart(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	ctx := context.Background()

	sender := NewMailboxService("erin", cfg)
	defer sender.Stop(ctx)

	id, err := sender.SendMessage(ctx, "frank", map[string]any{"x": 1.0}, WithMessageType("command"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestHandlerPanicDoesNotBlockOtherHandlersOrAck(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	ctx := context.Background()

	svc := NewMailboxService("bob", cfg)
	var secondCalled int32
	svc.RegisterHandler(func(_ context.Context, _ MailboxMessage) error {
		panic("handler boom")
	})
	svc.RegisterHandler(func(_ context.Context, _ MailboxMessage) error {
		atomic.AddInt32(&secondCalled, 1)
		return nil
	})
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	sender := NewMailboxService("alice", cfg)
	defer sender.Stop(ctx)
	_, err := sender.SendMessage(ctx, "bob", map[string]any{"k": "v"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&secondCalled) == 1
	}, 2*time.Second, 20*time.Millisecond, "second handler was never invoked")

	require.Eventually(t, func() bool {
		client := newRedisStreamClient(cfg)
		defer client.Close()
		pending, err := client.XPendingCount(ctx, svc.InboxStream(), svc.ConsumerGroup())
		return err == nil && pending == 0
	}, 2*time.Second, 20*time.Millisecond, "crashed handler's message was never acked")
}

func TestSecondServiceForSameAgentToleratesExistingGroup(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	ctx := context.Background()

	svc1 := NewMailboxService("carol", cfg)
	svc1.RegisterHandler(func(_ context.Context, _ MailboxMessage) error { return nil })
	require.NoError(t, svc1.Start(ctx))
	svc1.Stop(ctx)

	svc2 := NewMailboxService("carol", cfg)
	svc2.RegisterHandler(func(_ context.Context, _ MailboxMessage) error { return nil })
	require.NoError(t, svc2.Start(ctx))
	defer svc2.Stop(ctx)
}

func TestDisabledRecoveryStillInvokesCallback(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	cfg.EnableRecovery = false
	ctx := context.Background()

	var called int32
	svc := NewMailboxService("dave", cfg, WithRecoveryCallback(func(_ context.Context, m RecoveryMetrics) {
		atomic.AddInt32(&called, 1)
		assert.Zero(t, m.TotalRecovered)
	}))
	svc.RegisterHandler(func(_ context.Context, _ MailboxMessage) error { return nil })
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	assert.EqualValues(t, 1, atomic.LoadInt32(&called))
}

func TestStopIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	ctx := context.Background()

	svc := NewMailboxService("gina", cfg)
	svc.RegisterHandler(func(_ context.Context, _ MailboxMessage) error { return nil })
	require.NoError(t, svc.Start(ctx))
	svc.Stop(ctx)
	assert.NotPanics(t, func() { svc.Stop(ctx) })
}
