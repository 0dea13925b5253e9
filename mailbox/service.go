package mailbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
)

// Handler consumes one MailboxMessage. A returned error (or panic) is
// logged and does not prevent the message from being acknowledged, and
// does not prevent subsequent handlers from running (invariant I2).
type Handler func(ctx context.Context, msg MailboxMessage) error

// RecoveryCallback is invoked exactly once per Start, with the metrics of
// that start's recovery run (possibly empty, never nil semantics omitted -
// it is invoked even when recovery was skipped or disabled).
type RecoveryCallback func(ctx context.Context, metrics RecoveryMetrics)

type mailboxState int

const (
	stateNew mailboxState = iota
	stateRunning
	stateStopped
)

// MailboxService is the per-agent mailbox runtime: connection management,
// the producer, the consumer loop, and the startup recovery engine.
//
// A MailboxService is safe for concurrent use: SendMessage may be called
// from any goroutine at any time (senders never need to Start); the
// recovery engine runs to completion inside Start before the consumer loop
// is launched on its single internal goroutine, so handler invocations for
// a given service are never concurrent with one another.
type MailboxService struct {
	agentID string
	config  MailboxConfig

	logger          *slog.Logger
	instrumentation *Instrumentation
	recoveryCB      RecoveryCallback

	consumerGroup string
	consumerName  string
	inboxStream   string

	mu       sync.Mutex
	state    mailboxState
	client   streamClient
	handlers []Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a MailboxService at construction time.
type Option func(*MailboxService)

// WithLogger overrides the default slog.Logger. The logger is enriched
// with an "agent_id" attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MailboxService) {
		if logger != nil {
			s.logger = logger.With("agent_id", s.agentID)
		}
	}
}

// WithInstrumentation attaches OpenTelemetry instruments. A nil
// Instrumentation (the zero value of the option) leaves metrics disabled.
func WithInstrumentation(inst *Instrumentation) Option {
	return func(s *MailboxService) { s.instrumentation = inst }
}

// WithRecoveryCallback registers the optional recovery heartbeat observer.
func WithRecoveryCallback(cb RecoveryCallback) Option {
	return func(s *MailboxService) { s.recoveryCB = cb }
}

// withClient injects a streamClient, bypassing the lazy Redis connection.
// Unexported: production callers always go through NewMailboxService, which
// builds a real redisStreamClient; tests in this package use it to run the
// service against a fake or a miniredis-backed client.
func withClient(c streamClient) Option {
	return func(s *MailboxService) { s.client = c }
}

// NewMailboxService constructs a mailbox runtime for agentID. It does not
// connect to Redis or start consuming; call Start for that.
func NewMailboxService(agentID string, config MailboxConfig, opts ...Option) *MailboxService {
	suffix := make([]byte, 3)
	_, _ = rand.Read(suffix)

	s := &MailboxService{
		agentID:       agentID,
		config:        config,
		consumerGroup: agentID + ":group",
		consumerName:  agentID + ":" + hex.EncodeToString(suffix),
		inboxStream:   config.StreamPrefix + ":" + agentID + ":in",
		state:         stateNew,
	}
	s.logger = slog.Default().With("component", "mailbox", "agent_id", agentID)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AgentID returns the agent this service was constructed for.
func (s *MailboxService) AgentID() string { return s.agentID }

// InboxStream returns the fully qualified stream name for this agent's
// inbox: "{prefix}:{agent_id}:in".
func (s *MailboxService) InboxStream() string { return s.inboxStream }

// ConsumerGroup returns this agent's consumer group name: "{agent_id}:group".
func (s *MailboxService) ConsumerGroup() string { return s.consumerGroup }

// RegisterHandler appends an asynchronous handler to the ordered handler
// list. Handlers are invoked in registration order and must not themselves
// call RegisterHandler.
func (s *MailboxService) RegisterHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// handlerSnapshot returns a copy of the handler list safe to iterate
// without holding the lock for the duration of dispatch.
func (s *MailboxService) handlerSnapshot() []Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handler, len(s.handlers))
	copy(out, s.handlers)
	return out
}

// ensureConnected lazily opens and pings the Redis client. Subsequent calls
// are no-ops. Re-invoking after Stop legally reopens the connection.
func (s *MailboxService) ensureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureConnectedLocked(ctx)
}

func (s *MailboxService) ensureConnectedLocked(ctx context.Context) error {
	if s.client != nil {
		return nil
	}
	client := newRedisStreamClient(s.config)
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		if isAuthError(err) {
			return newError(KindAuth, fmt.Sprintf("authenticate to redis at %s", s.config.Addr()), err)
		}
		return newError(KindConnect, fmt.Sprintf("connect to redis at %s", s.config.Addr()), err)
	}
	s.client = client
	return nil
}

// Start ensures the connection, creates the consumer group (tolerating
// BUSYGROUP), runs the recovery engine if enabled, and launches the
// consumer loop as a background goroutine.
func (s *MailboxService) Start(ctx context.Context) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if err := client.XGroupCreateMkStream(ctx, s.inboxStream, s.consumerGroup, "0"); err != nil {
		if !isBusyGroup(err) {
			return newError(KindConnect, "create consumer group", err)
		}
		s.logger.Debug("consumer group already exists", "group", s.consumerGroup)
	} else {
		s.logger.Info("created consumer group", "group", s.consumerGroup, "stream", s.inboxStream)
	}

	if s.config.EnableRecovery {
		s.recover(ctx)
	} else {
		s.logger.Info("pending message recovery is disabled")
		metrics := RecoveryMetrics{}
		s.invokeRecoveryCallback(ctx, metrics)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.state = stateRunning
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consumeLoop(loopCtx)
	}()

	return nil
}

// Stop marks the service stopped, cancels and awaits the consumer-loop
// goroutine, and closes the connection. Stop is idempotent and safe to
// call multiple times; it never returns an error because it is itself the
// cleanup handler.
func (s *MailboxService) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state == stateStopped {
		s.mu.Unlock()
		return
	}
	s.state = stateStopped
	cancel := s.cancel
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if client != nil {
		_ = client.Close()
	}
}

func (s *MailboxService) invokeRecoveryCallback(ctx context.Context, metrics RecoveryMetrics) {
	if s.recoveryCB == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovery callback panicked", "panic", r)
		}
	}()
	s.recoveryCB(ctx, metrics)
}
