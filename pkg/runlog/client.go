package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client provides run-scoped Redis operations for the run log mirror.
// All keys and channels are namespaced with the run name.
// The client is safe for concurrent use.
type Client struct {
	rdb     *redis.Client
	runName string
}

// NewClient creates a new mirror client for the named run.
// Returns an error if runName is empty.
func NewClient(redisOpts *redis.Options, runName string) (*Client, error) {
	if runName == "" {
		return nil, fmt.Errorf("run name cannot be empty")
	}

	return &Client{
		rdb:     redis.NewClient(redisOpts),
		runName: runName,
	}, nil
}

// RunName returns the namespace this client writes to.
func (c *Client) RunName() string {
	return c.runName
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish appends the rendered entry to the lines list and then publishes the
// JSON-encoded entry on the line events channel.
func (c *Client) Publish(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	if err := c.rdb.RPush(ctx, LinesKey(c.runName), e.Line()).Err(); err != nil {
		return fmt.Errorf("failed to append line to Redis: %w", err)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry for event: %w", err)
	}

	if err := c.rdb.Publish(ctx, LineEventsChannel(c.runName), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish line event: %w", err)
	}

	return nil
}

// Entries returns every stored entry in append order.
// Returns an empty slice (not an error) when nothing has been written yet.
func (c *Client) Entries(ctx context.Context) ([]Entry, error) {
	lines, err := c.rdb.LRange(ctx, LinesKey(c.runName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read lines from Redis: %w", err)
	}

	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		e, err := ParseLine(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SetInfo writes the run info hash (full replacement of the known fields).
func (c *Client) SetInfo(ctx context.Context, info *RunInfo) error {
	if err := info.Validate(); err != nil {
		return fmt.Errorf("invalid run info: %w", err)
	}

	if err := c.rdb.HSet(ctx, InfoKey(c.runName), RunInfoToHash(info)).Err(); err != nil {
		return fmt.Errorf("failed to write run info to Redis: %w", err)
	}
	return nil
}

// GetInfo reads the run info hash.
// Returns (nil, redis.Nil) if the run is unknown. Use IsNotFound to check.
func (c *Client) GetInfo(ctx context.Context) (*RunInfo, error) {
	hash, err := c.rdb.HGetAll(ctx, InfoKey(c.runName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run info from Redis: %w", err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}

	info, err := HashToRunInfo(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize run info: %w", err)
	}
	return info, nil
}

// Subscription represents an active Pub/Sub subscription to line events.
// Caller must call Close() when done.
type Subscription struct {
	events <-chan Entry
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of entries. It is closed when the subscription
// is closed or its context is cancelled.
func (s *Subscription) Events() <-chan Entry {
	return s.events
}

// Errors returns the channel of non-fatal decode errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe subscribes to line events for this run.
//
// The subscription is confirmed with Redis before Subscribe returns, so any
// entry published afterwards is delivered. Delivery is at-most-once: callers
// that need a complete view combine Subscribe with Entries.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, LineEventsChannel(c.runName))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to line events: %w", err)
	}

	eventsChan := make(chan Entry, 64)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var e Entry
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal line event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- e:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
