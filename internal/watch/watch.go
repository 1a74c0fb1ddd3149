// Package watch follows a coordinator record on the blackboard until its run
// finishes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/dyluth/copse/internal/errors"
	"github.com/dyluth/copse/pkg/blackboard"
)

// DefaultInterval is how often PollForCompletion re-reads the record.
const DefaultInterval = 200 * time.Millisecond

// Options tunes PollForCompletion.
type Options struct {
	// RunID pins the watch to one run. Empty follows whichever run the
	// record belongs to.
	RunID string

	// Skip ignores records of this run, usually the one present before a trigger.
	Skip string

	Interval time.Duration
	Timeout  time.Duration // zero waits until ctx is done

	// OnChange is called for every record that differs from the last one seen.
	OnChange func(*blackboard.Record)
}

// PollForCompletion re-reads the record at key until it carries a terminal
// status. Wake events shorten the wait when the store delivers them.
func PollForCompletion(ctx context.Context, store blackboard.Store, key string, opts Options) (*blackboard.Record, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var wakes <-chan string
	if sub, err := store.SubscribeWakes(ctx); err == nil {
		defer sub.Close()
		wakes = sub.Events()
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var lastSeen int64 = -1
	var lastStatus blackboard.Status
	for {
		rec, err := store.GetRecord(ctx, key)
		switch {
		case err == nil:
			if (opts.RunID == "" || rec.RunID == opts.RunID) && (opts.Skip == "" || rec.RunID != opts.Skip) {
				if opts.OnChange != nil && (rec.UpdatedAtMs != lastSeen || rec.Status != lastStatus) {
					opts.OnChange(rec)
				}
				lastSeen, lastStatus = rec.UpdatedAtMs, rec.Status
				if rec.Finished() {
					return rec, nil
				}
			}
		case blackboard.IsNotFound(err), errors.Is(err, blackboard.ErrMalformed):
		case ctx.Err() != nil:
		default:
			return nil, fmt.Errorf("failed to read record %s: %w", key, err)
		}

		if err := wait(ctx, ticker.C, &wakes, key); err != nil {
			if opts.Timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
				return nil, apperrors.TimeoutError{Operation: "watch " + key, Limit: opts.Timeout}
			}
			return nil, err
		}
	}
}

// wait returns after the next tick or a wake naming key.
func wait(ctx context.Context, tick <-chan time.Time, wakes *<-chan string, key string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			return nil
		case woken, ok := <-*wakes:
			if !ok {
				*wakes = nil
				continue
			}
			if woken == key {
				return nil
			}
		}
	}
}
