package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/copse/internal/coordinator"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/rs/zerolog"
)

// reportTimeout bounds the blackboard write after a child finishes.
const reportTimeout = 10 * time.Second

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatch: closed")

// Option configures a Local dispatcher.
type Option func(*Local)

// WithLogger installs a structured logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Local) { d.logger = l }
}

// Local runs children in-process. Output i of the owning coordinator is
// served by children[i].
type Local struct {
	store    blackboard.Store
	children []Child
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var _ coordinator.Dispatcher = (*Local)(nil)

// NewLocal creates a dispatcher that reports child outcomes to store.
func NewLocal(store blackboard.Store, children []Child, opts ...Option) *Local {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Local{
		store:    store,
		children: children,
		logger:   zerolog.Nop(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("component", "dispatch").Logger()
	return d
}

// Dispatch starts one goroutine per non-nil output and returns immediately.
func (d *Local) Dispatch(_ context.Context, outputs []*coordinator.WorkItem) error {
	if len(outputs) > len(d.children) {
		return fmt.Errorf("%d outputs but only %d children", len(outputs), len(d.children))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	for i, item := range outputs {
		if item == nil {
			continue
		}
		d.wg.Add(1)
		go d.run(d.children[i], item)
	}
	return nil
}

func (d *Local) run(child Child, item *coordinator.WorkItem) {
	defer d.wg.Done()

	logger := d.logger.With().
		Str("coordinator", item.Coordinator).
		Str("run_id", item.RunID).
		Int("slot", item.SlotIndex).
		Logger()

	start := time.Now()
	status, err := child.Run(d.ctx, item)
	if errors.Is(err, ErrSelfReported) {
		logger.Debug().Dur("duration", time.Since(start)).Msg("child reported its own outcome")
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("child failed")
		status = blackboard.StatusFailure
	} else if !status.Terminal() {
		logger.Warn().Str("status", string(status)).Msg("child returned a non-terminal status, reporting failure")
		status = blackboard.StatusFailure
	}

	if d.ctx.Err() != nil {
		logger.Debug().Str("status", string(status)).Msg("dispatcher closed, dropping report")
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, reportTimeout)
	defer cancel()

	if err := blackboard.Report(ctx, d.store, item.Reply, status); err != nil {
		if errors.Is(err, blackboard.ErrRunFinished) {
			logger.Debug().Str("status", string(status)).Msg("run already finished, report dropped")
			return
		}
		if errors.Is(err, blackboard.ErrAlreadyReported) {
			logger.Debug().Str("status", string(status)).Msg("outcome already on the blackboard, report dropped")
			return
		}
		logger.Error().Err(err).Msg("failed to report child outcome")
		return
	}

	logger.Info().
		Str("event_type", "child_reported").
		Str("status", string(status)).
		Dur("duration", time.Since(start)).
		Msg("child reported")
}

// Close cancels running children and waits for their goroutines. Idempotent.
func (d *Local) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	return nil
}
