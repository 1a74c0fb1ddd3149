package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxUpdateRetries bounds optimistic-lock retries in UpdateRecord.
const maxUpdateRetries = 10

// subscribeTimeout bounds the wait for Redis to confirm a subscription.
const subscribeTimeout = 5 * time.Second

// Client provides instance-scoped Redis operations for the blackboard.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

var _ Store = (*Client)(nil)

// NewClient creates a new blackboard client for the specified instance.
// The client automatically namespaces all keys and channels with the instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: copse instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// InstanceName returns the namespace this client writes under.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
// Returns an error if Redis is not reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetRecord retrieves a coordinator record by logical key.
// Returns (nil, ErrNotFound) if the record doesn't exist.
func (c *Client) GetRecord(ctx context.Context, key string) (*Record, error) {
	hashData, err := c.rdb.HGetAll(ctx, RecordKey(c.instanceName, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read record from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, ErrNotFound
	}

	record, err := HashToRecord(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w: %w", ErrMalformed, err)
	}

	return record, nil
}

// PutRecord replaces a record with new data (full replacement).
// Validates the record before writing. Stale hash fields from an earlier
// record are removed in the same transaction.
func (c *Client) PutRecord(ctx context.Context, key string, r *Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	hash, err := RecordToHash(r)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	redisKey := RecordKey(c.instanceName, key)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey)
		pipe.HSet(ctx, redisKey, hash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write record to Redis: %w", err)
	}

	return nil
}

// UpdateRecord applies fn to the current record under a WATCH on its key and
// writes the result in a MULTI/EXEC transaction. If another writer changes
// the key in between, the whole read-modify-write is retried.
func (c *Client) UpdateRecord(ctx context.Context, key string, fn UpdateFunc) error {
	redisKey := RecordKey(c.instanceName, key)

	txf := func(tx *redis.Tx) error {
		hashData, err := tx.HGetAll(ctx, redisKey).Result()
		if err != nil {
			return fmt.Errorf("failed to read record from Redis: %w", err)
		}

		var current *Record
		if len(hashData) > 0 {
			current, err = HashToRecord(hashData)
			if err != nil {
				// Malformed records are handed to fn as absent
				current = nil
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if err := next.Validate(); err != nil {
			return fmt.Errorf("invalid record: %w", err)
		}

		hash, err := RecordToHash(next)
		if err != nil {
			return fmt.Errorf("failed to serialize record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, redisKey)
			pipe.HSet(ctx, redisKey, hash)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := c.rdb.Watch(ctx, txf, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update record %s: %w", key, err)
		}
		return nil
	}

	return fmt.Errorf("failed to update record %s: too much contention after %d attempts", key, maxUpdateRetries)
}

// GetSignal reads a child signal.
// Returns ("", ErrNotFound) if the signal has never been written and an error
// if the stored value is not a known status.
func (c *Client) GetSignal(ctx context.Context, key string) (Status, error) {
	raw, err := c.rdb.Get(ctx, SignalKey(c.instanceName, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read signal from Redis: %w", err)
	}

	status, err := ParseStatus(raw)
	if err != nil {
		return "", fmt.Errorf("malformed signal %s: %w: %w", key, ErrMalformed, err)
	}
	return status, nil
}

// PutSignal writes a child signal.
func (c *Client) PutSignal(ctx context.Context, key string, s Status) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid signal: %w", err)
	}
	if err := c.rdb.Set(ctx, SignalKey(c.instanceName, key), string(s), 0).Err(); err != nil {
		return fmt.Errorf("failed to write signal to Redis: %w", err)
	}
	return nil
}

// GetValue reads a free-form value.
// Returns ("", ErrNotFound) if the value doesn't exist.
func (c *Client) GetValue(ctx context.Context, key string) (string, error) {
	raw, err := c.rdb.Get(ctx, ValueKey(c.instanceName, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read value from Redis: %w", err)
	}
	return raw, nil
}

// PutValue writes a free-form value.
func (c *Client) PutValue(ctx context.Context, key string, value string) error {
	if err := c.rdb.Set(ctx, ValueKey(c.instanceName, key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write value to Redis: %w", err)
	}
	return nil
}

// Wake publishes the logical key on the instance wake channel.
func (c *Client) Wake(ctx context.Context, key string) error {
	if err := c.rdb.Publish(ctx, WakeEventsChannel(c.instanceName), key).Err(); err != nil {
		return fmt.Errorf("failed to publish wake event: %w", err)
	}
	return nil
}

// SubscribeWakes subscribes to wake events for this instance.
// Caller must call subscription.Close() when done.
//
// Events are delivered on a buffered channel (size 10). A slow subscriber may
// miss wakes; coordinators fall back to their poll interval in that case.
func (c *Client) SubscribeWakes(ctx context.Context) (*WakeSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, WakeEventsChannel(c.instanceName))

	// Wait for the subscription to be confirmed so no wake published after
	// this call returns is lost
	if err := confirmSubscription(ctx, pubsub); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to wake events: %w", err)
	}

	eventsChan := make(chan string, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
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
				select {
				case eventsChan <- msg.Payload:
				default:
					// Dropped; the poll interval covers it
				}
			}
		}
	}()

	return &WakeSubscription{events: eventsChan, cancel: cancelFunc}, nil
}

// TriggerEvent asks a served coordinator to start a run.
type TriggerEvent struct {
	Coordinator   string `json:"coordinator"`
	Payload       string `json:"payload,omitempty"`
	RequestedAtMs int64  `json:"requested_at_ms"`
}

// PublishTrigger publishes a trigger request for a coordinator served by this instance.
func (c *Client) PublishTrigger(ctx context.Context, ev *TriggerEvent) error {
	if ev.Coordinator == "" {
		return fmt.Errorf("trigger event requires a coordinator name")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger event: %w", err)
	}

	if err := c.rdb.Publish(ctx, TriggerEventsChannel(c.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish trigger event: %w", err)
	}
	return nil
}

// TriggerSubscription represents an active Pub/Sub subscription to trigger events.
// Caller must call Close() when done to clean up resources.
type TriggerSubscription struct {
	events <-chan *TriggerEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of trigger events.
func (s *TriggerSubscription) Events() <-chan *TriggerEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures. The subscription continues after errors.
func (s *TriggerSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
func (s *TriggerSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeTriggers subscribes to trigger events for this instance.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
func (c *Client) SubscribeTriggers(ctx context.Context) (*TriggerSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, TriggerEventsChannel(c.instanceName))
	if err := confirmSubscription(ctx, pubsub); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to trigger events: %w", err)
	}

	eventsChan := make(chan *TriggerEvent, 10)
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

				var ev TriggerEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal trigger event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &TriggerSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

func confirmSubscription(ctx context.Context, pubsub *redis.PubSub) error {
	ctx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	_, err := pubsub.Receive(ctx)
	return err
}
