package blackboard

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("blackboard: key not found")

// ErrRunFinished is returned when a child reports into a record whose run has
// already reached a terminal status, or which now belongs to a newer run.
// The report is dropped; late results are never observed by a coordinator.
var ErrRunFinished = errors.New("blackboard: run already finished or replaced")

// ErrAlreadyReported is returned when the reply address already holds a
// Success or Failure for this child. The first outcome stands.
var ErrAlreadyReported = errors.New("blackboard: outcome already reported")

// ErrMalformed is returned when a stored record or signal cannot be decoded.
// Coordinators treat it like a missing entry.
var ErrMalformed = errors.New("blackboard: malformed entry")

// UpdateFunc receives the current record (nil if absent) and returns the
// record to store. Returning a nil record with a nil error leaves the key
// untouched.
type UpdateFunc func(current *Record) (*Record, error)

// Store is the shared key/value surface used by coordinators and children.
// Keys are logical names; implementations may namespace them.
//
// All access is last-writer-wins except UpdateRecord, which applies fn
// atomically with respect to other UpdateRecord calls on the same key.
type Store interface {
	GetRecord(ctx context.Context, key string) (*Record, error)
	PutRecord(ctx context.Context, key string, r *Record) error
	UpdateRecord(ctx context.Context, key string, fn UpdateFunc) error

	GetSignal(ctx context.Context, key string) (Status, error)
	PutSignal(ctx context.Context, key string, s Status) error

	GetValue(ctx context.Context, key string) (string, error)
	PutValue(ctx context.Context, key string, value string) error

	// Wake announces that key was just written by a child.
	Wake(ctx context.Context, key string) error
	// SubscribeWakes delivers every key passed to Wake until the subscription is closed.
	SubscribeWakes(ctx context.Context) (*WakeSubscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// WakeSubscription represents an active subscription to wake events.
// Caller must call Close() when done to clean up resources.
type WakeSubscription struct {
	events <-chan string
	cancel func()
	once   sync.Once
}

// Events returns the channel of woken keys.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *WakeSubscription) Events() <-chan string {
	return s.events
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *WakeSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// IsNotFound returns true if the error means the key does not exist.
// Both ErrNotFound and the raw Redis "key not found" error (redis.Nil) match.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, redis.Nil)
}
