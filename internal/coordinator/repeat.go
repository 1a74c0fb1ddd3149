package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dyluth/copse/pkg/blackboard"
)

// Repeat dispatches its single child again and again until its termination
// condition says stop. The child reports each outcome on the signal key.
type Repeat struct {
	*base
}

var _ Coordinator = (*Repeat)(nil)

// NewRepeat creates a Repeat coordinator.
func NewRepeat(cfg Config, store blackboard.Store, d Dispatcher, opts ...Option) (*Repeat, error) {
	b, err := newBase(blackboard.KindRepeat, cfg, store, d, opts)
	if err != nil {
		return nil, err
	}
	r := &Repeat{base: b}
	b.self = r
	return r, nil
}

func (r *Repeat) start(ctx context.Context, rs *runState) error {
	rs.slots = NewSlots(1)
	rs.total = r.resolveCount(ctx)
	rs.count = 0
	rs.latest = blackboard.StatusWaiting
	rs.successRecords = []int{}
	rs.failureRecords = []int{}

	if rs.total == 0 {
		r.finishLocked(ctx, rs, blackboard.StatusSuccess, "repeat count is 0, nothing to do")
		return nil
	}

	if err := r.store.PutRecord(ctx, r.cfg.RecordKey, r.record(rs)); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return r.dispatchNext(ctx, rs)
}

// resolveCount returns the iteration count for a new run. A usable override
// under CountKey wins over the configured count.
func (r *Repeat) resolveCount(ctx context.Context) int {
	if r.cfg.CountKey == "" {
		return r.cfg.Count
	}

	raw, err := r.store.GetValue(ctx, r.cfg.CountKey)
	if err != nil {
		if !blackboard.IsNotFound(err) {
			r.warn(fmt.Sprintf("could not read repeat count override %s: %v", r.cfg.CountKey, err))
		}
		return r.cfg.Count
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		r.warn(fmt.Sprintf("ignoring repeat count override %q, using %d", raw, r.cfg.Count))
		return r.cfg.Count
	}
	return n
}

// dispatchNext starts the next iteration.
func (r *Repeat) dispatchNext(ctx context.Context, rs *runState) error {
	rs.count++
	rs.latest = blackboard.StatusRunning
	rs.slots = NewSlots(1)
	rs.slots.Start(0)
	rs.summary = r.progress(rs)

	// Clear the previous outcome before the child can write the next one
	if err := r.store.PutSignal(ctx, r.cfg.SignalKey, blackboard.StatusRunning); err != nil {
		return fmt.Errorf("failed to reset signal: %w", err)
	}
	if err := r.writeRecord(ctx, r.record(rs)); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	item := r.workItem(rs, 0, blackboard.Reply{
		Mode:      blackboard.ReplySignal,
		SignalKey: r.cfg.SignalKey,
		RecordKey: r.cfg.RecordKey,
		Index:     rs.count,
	})
	item.IterationCount = rs.count
	if err := r.dispatch(ctx, []*WorkItem{item}); err != nil {
		return err
	}

	r.sink.Report(r.indicator(FillBlue, ShapeDot, rs.summary))
	return nil
}

func (r *Repeat) step(ctx context.Context, rs *runState) (bool, error) {
	st, err := r.store.GetSignal(ctx, r.cfg.SignalKey)
	if err != nil {
		if blackboard.IsNotFound(err) || !isTransport(err) {
			r.logger.Debug().Err(err).Str("run_id", rs.id).Msg("signal unreadable, treating as running")
			return false, nil
		}
		return false, err
	}
	if !st.Terminal() {
		return false, nil
	}

	rs.latest = st
	rs.slots.Observe(0, st)
	if st == blackboard.StatusSuccess {
		rs.successRecords = append(rs.successRecords, rs.count)
	} else {
		rs.failureRecords = append(rs.failureRecords, rs.count)
	}

	if shouldContinue(r.cfg.Condition, st, rs.count, rs.total) {
		if err := r.dispatchNext(ctx, rs); err != nil {
			r.failLocked(ctx, rs, err)
		}
		return true, nil
	}

	final := finalRepeatStatus(r.cfg.Condition, st, len(rs.successRecords))
	r.finishLocked(ctx, rs, final, r.summary(rs))
	return true, nil
}

func (r *Repeat) record(rs *runState) *blackboard.Record {
	rec := r.baseRecord(rs)
	rec.Condition = string(r.cfg.Condition)
	rec.CurrentCount = rs.count
	rec.TotalCount = rs.total
	rec.SuccessCount = len(rs.successRecords)
	rec.FailureCount = len(rs.failureRecords)
	rec.SuccessRecords = append([]int{}, rs.successRecords...)
	rec.FailureRecords = append([]int{}, rs.failureRecords...)
	return rec
}

func (r *Repeat) progress(rs *runState) string {
	if r.cfg.Condition == ConditionUntilSuccess {
		return fmt.Sprintf("iteration %d", rs.count)
	}
	return fmt.Sprintf("iteration %d of %d", rs.count, rs.total)
}

func (r *Repeat) summary(rs *runState) string {
	return fmt.Sprintf("%s: %d of %d iterations succeeded (success %v, failure %v)",
		r.cfg.Condition, len(rs.successRecords), rs.count, rs.successRecords, rs.failureRecords)
}
