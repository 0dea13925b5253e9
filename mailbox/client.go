package mailbox

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimedEntry is one (id, fields) pair returned by a read or claim.
type claimedEntry struct {
	ID     string
	Fields map[string]string
}

// autoClaimResult mirrors the triple XAUTOCLAIM returns: the next cursor,
// the claimed entries, and ids that were deleted from the stream entirely.
type autoClaimResult struct {
	Cursor     string
	Entries    []claimedEntry
	DeletedIDs []string
}

// streamClient abstracts the subset of the Redis-streams-compatible API the
// mailbox core needs, so the recovery/consume/producer logic can be tested
// against a fake without a real Redis server. The production implementation
// is redisStreamClient, backed by *redis.Client.
type streamClient interface {
	Ping(ctx context.Context) error
	Close() error

	XAdd(ctx context.Context, stream string, maxLen int64, fields map[string]string) (string, error)
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) error
	XReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]claimedEntry, error)
	XAck(ctx context.Context, stream, group, id string) error
	XPendingCount(ctx context.Context, stream, group string) (int64, error)
	XAutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, start string, count int64) (autoClaimResult, error)
}

// redisStreamClient implements streamClient over github.com/redis/go-redis/v9.
type redisStreamClient struct {
	client *redis.Client
}

func newRedisStreamClient(cfg MailboxConfig) *redisStreamClient {
	return &redisStreamClient{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *redisStreamClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisStreamClient) Close() error {
	return c.client.Close()
}

func (c *redisStreamClient) XAdd(ctx context.Context, stream string, maxLen int64, fields map[string]string) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return c.client.XAdd(ctx, args).Result()
}

func (c *redisStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) error {
	return c.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
}

func (c *redisStreamClient) XReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]claimedEntry, error) {
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return flattenStreams(res), nil
}

func (c *redisStreamClient) XAck(ctx context.Context, stream, group, id string) error {
	return c.client.XAck(ctx, stream, group, id).Err()
}

func (c *redisStreamClient) XPendingCount(ctx context.Context, stream, group string) (int64, error) {
	entries, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  1,
	}).Result()
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

func (c *redisStreamClient) XAutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, start string, count int64) (autoClaimResult, error) {
	messages, cursor, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    start,
		Count:    count,
	}).Result()
	if err != nil {
		return autoClaimResult{}, err
	}
	entries := make([]claimedEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, claimedEntry{ID: m.ID, Fields: stringify(m.Values)})
	}
	return autoClaimResult{Cursor: cursor, Entries: entries}, nil
}

func flattenStreams(streams []redis.XStream) []claimedEntry {
	var out []claimedEntry
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, claimedEntry{ID: m.ID, Fields: stringify(m.Values)})
		}
	}
	return out
}

func stringify(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = ""
	}
	return out
}
