package coordinator

import (
	"context"
	"fmt"

	"github.com/dyluth/copse/pkg/blackboard"
)

// Parallel dispatches every child at once and aggregates their outcomes with
// a completion policy. Each child reports into its own entry of the record's
// ChildStatuses.
type Parallel struct {
	*base
}

var _ Coordinator = (*Parallel)(nil)

// NewParallel creates a Parallel coordinator.
func NewParallel(cfg Config, store blackboard.Store, d Dispatcher, opts ...Option) (*Parallel, error) {
	b, err := newBase(blackboard.KindParallel, cfg, store, d, opts)
	if err != nil {
		return nil, err
	}
	p := &Parallel{base: b}
	b.self = p
	return p, nil
}

func (p *Parallel) start(ctx context.Context, rs *runState) error {
	n := p.cfg.Outputs
	rs.slots = NewSlots(n)

	outputs := make([]*WorkItem, n)
	for i := 0; i < n; i++ {
		rs.slots.Start(i)
		outputs[i] = p.workItem(rs, i, blackboard.Reply{
			Mode:      blackboard.ReplySlot,
			RecordKey: p.cfg.RecordKey,
			Index:     i,
		})
	}

	// Wholesale replace so nothing from a previous run survives
	if err := p.store.PutRecord(ctx, p.cfg.RecordKey, p.record(rs)); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if p.cfg.SignalKey != "" {
		if err := p.store.PutSignal(ctx, p.cfg.SignalKey, blackboard.StatusRunning); err != nil {
			return fmt.Errorf("failed to reset signal: %w", err)
		}
	}

	return p.dispatch(ctx, outputs)
}

func (p *Parallel) step(ctx context.Context, rs *runState) (bool, error) {
	rec, err := p.readRecord(ctx, rs)
	if err != nil || rec == nil {
		return false, err
	}

	progressed := false
	for i, st := range rec.ChildStatuses {
		if rs.slots.Observe(i, st) {
			progressed = true
		}
	}

	if done, status := EvaluateCompletion(p.cfg.Completion, rs.slots.Snapshot()); done {
		p.finishLocked(ctx, rs, status, p.summary(rs))
		return true, nil
	}

	if progressed {
		rs.summary = p.summary(rs)
		if err := p.writeRecord(ctx, p.record(rs)); err != nil {
			return true, err
		}
		p.sink.Report(p.indicator(FillBlue, ShapeDot,
			fmt.Sprintf("%d/%d complete", rs.slots.Completed(), rs.slots.Len())))
	}
	return progressed, nil
}

func (p *Parallel) record(rs *runState) *blackboard.Record {
	rec := p.baseRecord(rs)
	rec.CompletionType = string(p.cfg.Completion)
	rec.SuccessIndices, rec.FailureIndices = rs.slots.Partition()
	rec.TotalChildren = rs.slots.Len()
	rec.CompletedChildren = rs.slots.Completed()
	return rec
}

func (p *Parallel) summary(rs *runState) string {
	succeeded, failed := rs.slots.Partition()
	return fmt.Sprintf("%s: succeeded %v, failed %v of %d", p.cfg.Completion, succeeded, failed, rs.slots.Len())
}
