// Package gateway bridges a single agent's MailboxService onto external
// transports (NATS, Kafka) so that traffic addressed to or emitted by the
// mailbox can be observed, mirrored, or injected from outside the Redis
// cluster the mailbox itself runs against.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nkllon/beast-mailbox/mailbox"
)

// NATSBridgeConfig configures the NATS side of a bridge.
type NATSBridgeConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	SubjectPrefix string
}

// DefaultNATSBridgeConfig returns sane defaults for connecting to a local
// NATS server.
func DefaultNATSBridgeConfig() NATSBridgeConfig {
	return NATSBridgeConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		SubjectPrefix: "mailbox",
	}
}

// sendRequest is the wire shape accepted on an agent's outbound subject.
type sendRequest struct {
	Recipient   string         `json:"recipient"`
	Payload     map[string]any `json:"payload"`
	MessageType string         `json:"message_type,omitempty"`
}

// NATSBridge mirrors one MailboxService's deliveries onto a NATS subject and
// accepts NATS publishes on a second subject as SendMessage calls, so peers
// that only speak NATS can participate in the mailbox without running Redis
// client code of their own.
type NATSBridge struct {
	cfg    NATSBridgeConfig
	svc    *mailbox.MailboxService
	logger *slog.Logger

	conn *nats.Conn
	sub  *nats.Subscription
}

// NewNATSBridge constructs a bridge for svc. Start connects and wires it up;
// the bridge does nothing until Start is called.
func NewNATSBridge(svc *mailbox.MailboxService, cfg NATSBridgeConfig, logger *slog.Logger) *NATSBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBridge{
		cfg:    cfg,
		svc:    svc,
		logger: logger.With("component", "nats-bridge", "agent_id", svc.AgentID()),
	}
}

func (b *NATSBridge) inboundSubject() string {
	return fmt.Sprintf("%s.%s.in", b.cfg.SubjectPrefix, b.svc.AgentID())
}

func (b *NATSBridge) outboundSubject() string {
	return fmt.Sprintf("%s.%s.out", b.cfg.SubjectPrefix, b.svc.AgentID())
}

// Start connects to NATS, registers a mailbox handler that republishes every
// local delivery onto the inbound subject, and subscribes to the outbound
// subject to relay external publishes into SendMessage. Call before
// svc.Start so the republishing handler runs for the service's full
// lifetime, including recovered messages.
func (b *NATSBridge) Start(ctx context.Context) error {
	conn, err := nats.Connect(b.cfg.URL,
		nats.MaxReconnects(b.cfg.MaxReconnects),
		nats.ReconnectWait(b.cfg.ReconnectWait),
	)
	if err != nil {
		return fmt.Errorf("nats bridge: connect: %w", err)
	}
	b.conn = conn

	b.svc.RegisterHandler(func(_ context.Context, msg mailbox.MailboxMessage) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("nats bridge: marshal delivery: %w", err)
		}
		return conn.Publish(b.inboundSubject(), data)
	})

	sub, err := conn.Subscribe(b.outboundSubject(), func(m *nats.Msg) {
		var req sendRequest
		if err := json.Unmarshal(m.Data, &req); err != nil {
			b.logger.Warn("malformed nats bridge request", "error", err)
			return
		}

		var opts []mailbox.SendOption
		if req.MessageType != "" {
			opts = append(opts, mailbox.WithMessageType(req.MessageType))
		}
		if _, err := b.svc.SendMessage(ctx, req.Recipient, req.Payload, opts...); err != nil {
			b.logger.Warn("nats bridge send failed", "recipient", req.Recipient, "error", err)
		}
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("nats bridge: subscribe: %w", err)
	}
	b.sub = sub
	return nil
}

// Stop unsubscribes and drains the NATS connection. Safe to call on a bridge
// that was never started.
func (b *NATSBridge) Stop() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.conn != nil {
		_ = b.conn.Drain()
	}
}
