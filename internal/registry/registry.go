// Package registry records, in Postgres, which agents have ever started a
// MailboxService and the recovery metrics of each of their startups. It is
// independent of the mailbox's own Redis cluster: the registry survives a
// full Redis wipe and lets an operator answer "has this agent ever run" and
// "how much pending work did its last few recoveries reclaim" without
// scraping logs.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkllon/beast-mailbox/mailbox"
)

// AgentRecord is the registry's view of one agent.
type AgentRecord struct {
	AgentID      string
	FirstStarted time.Time
	LastStarted  time.Time
	StartCount   int64
}

// AgentRegistry is a pgx-backed directory of agents and their recovery
// history.
type AgentRegistry struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAgentRegistry connects to Postgres at dsn. Callers should run
// registry/migrations.Run(dsn) once before constructing a registry against a
// fresh database.
func NewAgentRegistry(ctx context.Context, dsn string, logger *slog.Logger) (*AgentRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}

	return &AgentRegistry{pool: pool, logger: logger.With("component", "agent-registry")}, nil
}

// Close releases the underlying connection pool.
func (r *AgentRegistry) Close() {
	r.pool.Close()
}

// Touch records that agentID has started, creating its row on first call and
// incrementing the start count on every subsequent one. Call from
// MailboxService.Start (or a RecoveryCallback) so the registry reflects
// every incarnation, not just the first.
func (r *AgentRegistry) Touch(ctx context.Context, agentID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mailbox_agents (agent_id, first_started, last_started, start_count)
		VALUES ($1, now(), now(), 1)
		ON CONFLICT (agent_id)
		DO UPDATE SET last_started = now(), start_count = mailbox_agents.start_count + 1
	`, agentID)
	if err != nil {
		return fmt.Errorf("registry: touch %s: %w", agentID, err)
	}
	return nil
}

// Lookup returns the recorded state for agentID. ok is false if the agent
// has never called Touch.
func (r *AgentRegistry) Lookup(ctx context.Context, agentID string) (rec AgentRecord, ok bool, err error) {
	rec.AgentID = agentID
	row := r.pool.QueryRow(ctx, `
		SELECT first_started, last_started, start_count
		FROM mailbox_agents
		WHERE agent_id = $1
	`, agentID)

	if err := row.Scan(&rec.FirstStarted, &rec.LastStarted, &rec.StartCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgentRecord{}, false, nil
		}
		return AgentRecord{}, false, fmt.Errorf("registry: lookup %s: %w", agentID, err)
	}
	return rec, true, nil
}

// RecordRecovery persists one agent startup's recovery metrics. Wire it as a
// mailbox.RecoveryCallback to capture every recovery run automatically:
//
//	mailbox.WithRecoveryCallback(func(ctx context.Context, m mailbox.RecoveryMetrics) {
//	    if err := reg.RecordRecovery(ctx, agentID, m); err != nil {
//	        logger.Warn("failed to record recovery metrics", "error", err)
//	    }
//	})
func (r *AgentRegistry) RecordRecovery(ctx context.Context, agentID string, metrics mailbox.RecoveryMetrics) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mailbox_recovery_runs
			(agent_id, total_recovered, batches_processed, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5)
	`, agentID, metrics.TotalRecovered, metrics.BatchesProcessed, metrics.StartTime, metrics.EndTime)
	if err != nil {
		return fmt.Errorf("registry: record recovery for %s: %w", agentID, err)
	}
	return nil
}
