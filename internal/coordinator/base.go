package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/dyluth/copse/internal/errors"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dyluth/copse/internal/coordinator"

// Option configures a coordinator at construction time.
type Option func(*base)

// WithLogger installs a structured logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(b *base) { b.logger = l }
}

// WithStatusSink installs the sink that receives status indicators.
func WithStatusSink(s StatusSink) Option {
	return func(b *base) {
		if s != nil {
			b.sink = s
		}
	}
}

// WithMetrics records run, tick and dispatch metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(b *base) { b.metrics = m }
}

// WithManualTicks disables the background poller. The caller drives the
// coordinator with Tick, one call per poll interval.
func WithManualTicks() Option {
	return func(b *base) { b.manual = true }
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// behavior is the kind-specific part of a coordinator. All methods are called
// with base.mu held.
type behavior interface {
	// start resets kind state on rs and performs the first dispatch.
	start(ctx context.Context, rs *runState) error
	// step polls the blackboard once and reports whether anything moved.
	step(ctx context.Context, rs *runState) (bool, error)
	// record renders the blackboard record for rs.
	record(rs *runState) *blackboard.Record
}

// runState is everything that belongs to one run. Nothing here outlives it.
type runState struct {
	id        string
	payload   string
	startedAt time.Time
	handle    *Run

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span
	stop   chan struct{}
	wakes  *blackboard.WakeSubscription

	status    blackboard.Status
	summary   string
	idleTicks int

	slots *Slots

	// Sequence
	current int

	// Repeat
	count, total   int
	latest         blackboard.Status
	successRecords []int
	failureRecords []int
}

// base carries the trigger, polling and completion machinery shared by all
// coordinator kinds.
type base struct {
	cfg        Config
	kind       blackboard.Kind
	store      blackboard.Store
	dispatcher Dispatcher
	self       behavior

	logger  zerolog.Logger
	sink    StatusSink
	metrics *Metrics
	tracer  trace.Tracer
	manual  bool
	now     func() time.Time

	mu     sync.Mutex
	active *runState
	last   *Result
	closed bool
	wg     sync.WaitGroup
}

func newBase(kind blackboard.Kind, cfg Config, store blackboard.Store, d Dispatcher, opts []Option) (*base, error) {
	cfg = cfg.WithDefaults(kind)
	if err := cfg.validate(kind); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("coordinator %s: blackboard store is required", cfg.Name)
	}
	if d == nil {
		return nil, fmt.Errorf("coordinator %s: dispatcher is required", cfg.Name)
	}

	b := &base{
		cfg:        cfg,
		kind:       kind,
		store:      store,
		dispatcher: d,
		logger:     zerolog.Nop(),
		sink:       nopSink{},
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().
		Str("component", "coordinator").
		Str("coordinator", cfg.Name).
		Str("kind", string(kind)).
		Logger()

	b.sink.Report(b.indicator(FillGrey, ShapeRing, "idle"))
	return b, nil
}

func (b *base) Name() string          { return b.cfg.Name }
func (b *base) Kind() blackboard.Kind { return b.kind }
func (b *base) Config() Config        { return b.cfg }

func (b *base) Active() *Run {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return nil
	}
	return b.active.handle
}

func (b *base) Last() *Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Trigger starts a new run.
func (b *base) Trigger(ctx context.Context, payload string) (*Run, error) {
	// Subscribing can be a network round trip; do it before taking the lock
	wakes := b.subscribeWakes(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		closeWakes(wakes)
		return nil, ErrClosed
	}
	if rs := b.active; rs != nil {
		if b.cfg.Reentry == ReentryReject {
			closeWakes(wakes)
			b.warn(fmt.Sprintf("trigger ignored: run %s still active", rs.id))
			return nil, fmt.Errorf("%s: %w", b.cfg.Name, ErrRunActive)
		}
		b.abortLocked(rs, "restarted by a new trigger")
	}

	rs := b.newRunState(ctx, payload)
	rs.wakes = wakes
	b.active = rs
	b.metrics.runStarted(b.kind)
	b.logger.Info().
		Str("event_type", "run_started").
		Str("run_id", rs.id).
		Msg("run started")
	b.sink.Report(b.indicator(FillBlue, ShapeDot, "started"))

	if !b.manual {
		b.wg.Add(1)
		go b.poll(rs)
	}

	if err := b.self.start(rs.ctx, rs); err != nil {
		if b.active == rs {
			b.failLocked(rs.ctx, rs, err)
		}
		return rs.handle, err
	}
	return rs.handle, nil
}

// subscribeWakes opens the wake subscription for a run. The subscription
// lives until the run's poller closes it; a failed subscribe leaves the run
// on interval polling alone.
func (b *base) subscribeWakes(ctx context.Context) *blackboard.WakeSubscription {
	if b.manual {
		return nil
	}
	wakes, err := b.store.SubscribeWakes(context.WithoutCancel(ctx))
	if err != nil {
		b.logger.Warn().Err(err).Msg("wake subscription failed")
		return nil
	}
	return wakes
}

func closeWakes(w *blackboard.WakeSubscription) {
	if w != nil {
		w.Close()
	}
}

func (b *base) newRunState(ctx context.Context, payload string) *runState {
	id := uuid.New().String()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx, span := b.tracer.Start(runCtx, fmt.Sprintf("copse.%s.run", b.kind),
		trace.WithAttributes(
			attribute.String("copse.coordinator", b.cfg.Name),
			attribute.String("copse.run_id", id),
		))

	return &runState{
		id:        id,
		payload:   payload,
		startedAt: b.now(),
		handle:    newRun(id),
		ctx:       runCtx,
		cancel:    cancel,
		span:      span,
		stop:      make(chan struct{}),
		status:    blackboard.StatusRunning,
		current:   -1,
	}
}

// poll is the per-run runner: it ticks on the interval and early whenever a
// child wakes one of the keys this coordinator reads.
func (b *base) poll(rs *runState) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	var wakes <-chan string
	if rs.wakes != nil {
		defer rs.wakes.Close()
		wakes = rs.wakes.Events()
	}

	for {
		select {
		case <-rs.stop:
			return
		case <-ticker.C:
			b.tickRun(rs, true)
		case key, ok := <-wakes:
			if !ok {
				wakes = nil
				continue
			}
			if key == b.cfg.RecordKey || key == b.cfg.SignalKey {
				b.tickRun(rs, false)
			}
		}
	}
}

func (b *base) tickRun(rs *runState, timed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active != rs {
		return
	}
	if _, err := b.tickLocked(rs.ctx, rs, timed); err != nil {
		b.logger.Warn().Err(err).Str("run_id", rs.id).Msg("tick failed, retrying next interval")
	}
}

// Tick polls once on behalf of the active run. It counts as an interval tick
// for max_wait_ticks.
func (b *base) Tick(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rs := b.active
	if rs == nil {
		return true, nil
	}
	return b.tickLocked(ctx, rs, true)
}

func (b *base) tickLocked(ctx context.Context, rs *runState, timed bool) (bool, error) {
	b.metrics.ticked(b.kind)

	progressed, err := b.self.step(ctx, rs)
	if b.active != rs {
		return true, err
	}

	if progressed {
		rs.idleTicks = 0
		return false, err
	}
	if timed {
		rs.idleTicks++
		if b.cfg.MaxWaitTicks > 0 && rs.idleTicks >= b.cfg.MaxWaitTicks {
			limit := time.Duration(b.cfg.MaxWaitTicks) * b.cfg.PollInterval
			b.finishLocked(ctx, rs, blackboard.StatusFailure,
				apperrors.TimeoutError{Operation: b.cfg.Name, Limit: limit}.Error())
			return true, err
		}
	}
	return false, err
}

// finishLocked writes the final record and completes rs.
func (b *base) finishLocked(ctx context.Context, rs *runState, status blackboard.Status, summary string) {
	rs.status = status
	rs.summary = summary

	rec := b.self.record(rs)
	if err := b.writeRecord(ctx, rec); err != nil {
		b.logger.Error().Err(err).Str("run_id", rs.id).Msg("failed to write final record")
	}

	// Repeat's signal key belongs to its child
	if b.cfg.SignalKey != "" && b.kind != blackboard.KindRepeat {
		if err := b.store.PutSignal(ctx, b.cfg.SignalKey, status); err != nil {
			b.logger.Error().Err(err).Str("run_id", rs.id).Msg("failed to write completion signal")
		} else {
			_ = b.store.Wake(ctx, b.cfg.SignalKey)
		}
	}

	finished := b.now()
	b.metrics.runCompleted(b.kind, status, finished.Sub(rs.startedAt))

	rs.span.SetAttributes(attribute.String("copse.status", string(status)))
	if status == blackboard.StatusSuccess {
		rs.span.SetStatus(codes.Ok, "")
	} else {
		rs.span.SetStatus(codes.Error, summary)
	}

	fill := FillGreen
	if status != blackboard.StatusSuccess {
		fill = FillRed
	}
	b.sink.Report(b.indicator(fill, ShapeDot, summary))

	b.logger.Info().
		Str("event_type", "run_completed").
		Str("run_id", rs.id).
		Str("status", string(status)).
		Dur("elapsed", finished.Sub(rs.startedAt)).
		Msg(summary)

	b.complete(rs, &Result{
		RunID:      rs.id,
		Status:     status,
		Summary:    summary,
		Record:     rec,
		StartedAt:  rs.startedAt,
		FinishedAt: finished,
	})
}

// failLocked finishes rs as Failure because of err.
func (b *base) failLocked(ctx context.Context, rs *runState, err error) {
	b.finishLocked(ctx, rs, blackboard.StatusFailure, err.Error())
}

// abortLocked ends rs without touching the blackboard. Children that are
// still running are not told; whatever they report later is never read.
func (b *base) abortLocked(rs *runState, reason string) {
	rs.span.SetStatus(codes.Error, "aborted")
	b.sink.Report(b.indicator(FillGrey, ShapeRing, reason))
	b.logger.Info().
		Str("event_type", "run_aborted").
		Str("run_id", rs.id).
		Msg(reason)

	b.complete(rs, &Result{
		RunID:      rs.id,
		Status:     blackboard.StatusFailure,
		Summary:    "aborted: " + reason,
		Aborted:    true,
		StartedAt:  rs.startedAt,
		FinishedAt: b.now(),
	})
}

func (b *base) complete(rs *runState, res *Result) {
	close(rs.stop)
	rs.span.End()
	rs.cancel()

	rs.handle.result = res
	close(rs.handle.done)

	b.last = res
	if b.active == rs {
		b.active = nil
	}
}

// Close aborts the active run and stops its poller. Safe to call repeatedly.
func (b *base) Close() error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		if rs := b.active; rs != nil {
			b.abortLocked(rs, "coordinator closed")
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// writeRecord stores rec through an atomic update so a concurrent child
// report is never overwritten by a stale coordinator view.
func (b *base) writeRecord(ctx context.Context, rec *blackboard.Record) error {
	return b.store.UpdateRecord(ctx, b.cfg.RecordKey, func(cur *blackboard.Record) (*blackboard.Record, error) {
		return mergeRecord(cur, rec), nil
	})
}

// dispatch hands outputs to the dispatcher. Children outlive the run context
// on purpose: finishing or aborting a run never cancels them.
func (b *base) dispatch(ctx context.Context, outputs []*WorkItem) error {
	n := 0
	for _, item := range outputs {
		if item != nil {
			n++
		}
	}

	err := b.dispatcher.Dispatch(context.WithoutCancel(ctx), outputs)
	if err != nil {
		slot := -1
		for i, item := range outputs {
			if item != nil {
				slot = i
				break
			}
		}
		return apperrors.DispatchError{Coordinator: b.cfg.Name, Slot: slot, Cause: err}
	}

	b.metrics.dispatched(b.kind, n)
	return nil
}

// workItem builds the item routed to slot of rs.
func (b *base) workItem(rs *runState, slot int, reply blackboard.Reply) *WorkItem {
	reply.RunID = rs.id
	return &WorkItem{
		Coordinator: b.cfg.Name,
		RunID:       rs.id,
		Payload:     rs.payload,
		SlotIndex:   slot,
		Reply:       reply,
	}
}

// baseRecord fills the fields every kind shares.
func (b *base) baseRecord(rs *runState) *blackboard.Record {
	rec := &blackboard.Record{
		RunID:          rs.id,
		Kind:           b.kind,
		Name:           b.cfg.Name,
		Status:         rs.status,
		Summary:        rs.summary,
		UpdatedAtMs:    b.now().UnixMilli(),
		CurrentIndex:   -1,
		SuccessIndices: []int{},
		FailureIndices: []int{},
		SuccessRecords: []int{},
		FailureRecords: []int{},
	}
	if rs.slots != nil {
		rec.ChildStatuses = rs.slots.Snapshot()
	}
	return rec
}

// readRecord loads this coordinator's record for rs. A missing, malformed or
// foreign record is reported as nil so the caller keeps waiting.
func (b *base) readRecord(ctx context.Context, rs *runState) (*blackboard.Record, error) {
	rec, err := b.store.GetRecord(ctx, b.cfg.RecordKey)
	if err != nil {
		if blackboard.IsNotFound(err) || !isTransport(err) {
			b.logger.Debug().Err(err).Str("run_id", rs.id).Msg("record unreadable, treating as running")
			return nil, nil
		}
		return nil, err
	}
	if rec.RunID != rs.id {
		b.logger.Debug().Str("run_id", rs.id).Str("found_run_id", rec.RunID).Msg("record belongs to another run")
		return nil, nil
	}
	return rec, nil
}

// isTransport separates store outages, which are worth a warning, from
// malformed data, which is just another "still running".
func isTransport(err error) bool {
	return !errors.Is(err, blackboard.ErrMalformed)
}

func (b *base) indicator(fill Fill, shape Shape, text string) Indicator {
	return Indicator{Coordinator: b.cfg.Name, Fill: fill, Shape: shape, Text: text}
}

// warn surfaces an advisory condition to both the log and the status sink.
func (b *base) warn(msg string) {
	b.logger.Warn().Str("event_type", "warning").Msg(msg)
	b.sink.Report(b.indicator(FillYellow, ShapeRing, msg))
}
