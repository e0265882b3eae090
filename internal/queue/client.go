package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// connectTimeout bounds the initial PING used to verify a connection.
const connectTimeout = 5 * time.Second

// Client owns the connection to the queue store. The connection is
// established lazily on first use and reused; concurrent callers share a
// single connection attempt. The client does not retry failed operations
// itself; retry policy belongs to the caller.
type Client struct {
	rdb *redis.Client

	// mu serializes connection verification so only one PING is in
	// flight; callers arriving during a connect attempt wait for it.
	mu    sync.Mutex
	ready bool
}

// NewClient creates a queue client for the given store address. No
// connection is made until the first operation.
func NewClient(addr, password string, db int) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Client{rdb: rdb}
}

// Enqueue serializes nothing itself; it pushes the already-serialized
// payload to the tail of the named queue.
func (c *Client) Enqueue(ctx context.Context, queue string, payload []byte) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	if err := c.rdb.RPush(ctx, queue, payload).Err(); err != nil {
		c.markDisconnected(err)
		return fmt.Errorf("enqueue to %s: %w", queue, err)
	}
	return nil
}

// Dequeue blocks up to timeout waiting for an entry at the head of the
// named queue. A timeout is not an error: it returns (nil, nil).
func (c *Client) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	res, err := c.rdb.BLPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		c.markDisconnected(err)
		return nil, fmt.Errorf("dequeue from %s: %w", queue, err)
	}
	// BLPop returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("dequeue from %s: unexpected reply of %d elements", queue, len(res))
	}
	return []byte(res[1]), nil
}

// EnqueueDLQ pushes a payload to the tail of the dead-letter queue.
func (c *Client) EnqueueDLQ(ctx context.Context, dlq string, payload []byte) error {
	return c.Enqueue(ctx, dlq, payload)
}

// PeekDLQ returns up to n entries from the head of the dead-letter queue
// without removing them. Used by the dlq inspection command.
func (c *Client) PeekDLQ(ctx context.Context, dlq string, n int64) ([][]byte, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	res, err := c.rdb.LRange(ctx, dlq, 0, n-1).Result()
	if err != nil {
		c.markDisconnected(err)
		return nil, fmt.Errorf("peek %s: %w", dlq, err)
	}
	out := make([][]byte, 0, len(res))
	for _, s := range res {
		out = append(out, []byte(s))
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ensure verifies the store is reachable before the first operation and
// after a detected disconnect. The mutex guarantees a single in-flight
// verification; concurrent callers block on it and observe the result.
func (c *Client) ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := c.rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("queue store unreachable: %w", err)
	}

	c.ready = true
	slog.Info("connected to queue store", "addr", c.rdb.Options().Addr)
	return nil
}

// markDisconnected flags the connection for re-verification after a
// transport-class failure. Context cancellation is not a disconnect.
func (c *Client) markDisconnected(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		c.ready = false
		slog.Warn("queue store connection lost, reconnecting on next use", "error", err)
	}
}
