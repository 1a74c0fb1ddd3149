package coordinator

import (
	"context"
	"fmt"

	"github.com/dyluth/copse/pkg/blackboard"
)

// Sequence dispatches children one at a time, in slot order, and stops at the
// first failure. The active child reports into the record's CurrentStatus.
type Sequence struct {
	*base
}

var _ Coordinator = (*Sequence)(nil)

// NewSequence creates a Sequence coordinator.
func NewSequence(cfg Config, store blackboard.Store, d Dispatcher, opts ...Option) (*Sequence, error) {
	b, err := newBase(blackboard.KindSequence, cfg, store, d, opts)
	if err != nil {
		return nil, err
	}
	s := &Sequence{base: b}
	b.self = s
	return s, nil
}

func (s *Sequence) start(ctx context.Context, rs *runState) error {
	rs.slots = NewSlots(s.cfg.Outputs)
	rs.current = -1

	if err := s.store.PutRecord(ctx, s.cfg.RecordKey, s.record(rs)); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if s.cfg.SignalKey != "" {
		if err := s.store.PutSignal(ctx, s.cfg.SignalKey, blackboard.StatusRunning); err != nil {
			return fmt.Errorf("failed to reset signal: %w", err)
		}
	}

	return s.advance(ctx, rs)
}

// advance moves to the next slot and dispatches it, or finishes the run as
// Success when every slot has succeeded.
func (s *Sequence) advance(ctx context.Context, rs *runState) error {
	rs.current++
	if rs.current >= rs.slots.Len() {
		s.finishLocked(ctx, rs, blackboard.StatusSuccess, s.summary(rs))
		return nil
	}

	rs.slots.Start(rs.current)
	rs.summary = fmt.Sprintf("running child %d of %d", rs.current+1, rs.slots.Len())

	// The record must point at the new slot before its child can report
	if err := s.writeRecord(ctx, s.record(rs)); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	outputs := make([]*WorkItem, rs.slots.Len())
	outputs[rs.current] = s.workItem(rs, rs.current, blackboard.Reply{
		Mode:      blackboard.ReplyCurrent,
		RecordKey: s.cfg.RecordKey,
		Index:     rs.current,
	})
	if err := s.dispatch(ctx, outputs); err != nil {
		return err
	}

	s.sink.Report(s.indicator(FillBlue, ShapeDot, rs.summary))
	return nil
}

func (s *Sequence) step(ctx context.Context, rs *runState) (bool, error) {
	rec, err := s.readRecord(ctx, rs)
	if err != nil || rec == nil {
		return false, err
	}
	if rec.CurrentIndex != rs.current {
		return false, nil
	}

	switch rec.CurrentStatus {
	case blackboard.StatusSuccess:
		rs.slots.Observe(rs.current, blackboard.StatusSuccess)
		if err := s.advance(ctx, rs); err != nil {
			s.failLocked(ctx, rs, err)
		}
		return true, nil

	case blackboard.StatusFailure:
		rs.slots.Observe(rs.current, blackboard.StatusFailure)
		s.finishLocked(ctx, rs, blackboard.StatusFailure, s.summary(rs))
		return true, nil

	default:
		return false, nil
	}
}

func (s *Sequence) record(rs *runState) *blackboard.Record {
	rec := s.baseRecord(rs)
	rec.CurrentIndex = rs.current
	rec.CurrentStatus = rs.slots.Status(rs.current)
	if rs.current < 0 || rs.current >= rs.slots.Len() {
		rec.CurrentStatus = ""
	}
	rec.TotalChildren = rs.slots.Len()
	rec.CompletedChildren = rs.slots.Completed()
	rec.SuccessIndices, rec.FailureIndices = rs.slots.Partition()
	return rec
}

func (s *Sequence) summary(rs *runState) string {
	_, failed := rs.slots.Partition()
	if len(failed) > 0 {
		return fmt.Sprintf("child %d failed after %d of %d succeeded", failed[0], failed[0], rs.slots.Len())
	}
	return fmt.Sprintf("all %d children succeeded", rs.slots.Len())
}
