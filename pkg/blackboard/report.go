package blackboard

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Report writes a child's outcome to the address in reply and wakes any
// coordinator watching that key. This is the child side of the protocol.
//
//   - ReplySlot sets ChildStatuses[reply.Index] on the coordinator record.
//   - ReplyCurrent sets CurrentStatus while the record still points at reply.Index.
//   - ReplySignal sets the shared signal key. When the reply names a record,
//     the report only lands while that record is running the same run and
//     iteration (CurrentCount == reply.Index).
//
// Reports are dropped with ErrRunFinished if the record has already finished
// or now belongs to a different run or iteration, and with ErrAlreadyReported
// if the address already holds a terminal status.
func Report(ctx context.Context, s Store, reply Reply, status Status) error {
	if err := reply.Validate(); err != nil {
		return fmt.Errorf("invalid reply: %w", err)
	}
	if err := status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	var wakeKey string
	switch reply.Mode {
	case ReplySignal:
		if err := checkSignal(ctx, s, reply); err != nil {
			return err
		}
		if err := s.PutSignal(ctx, reply.SignalKey, status); err != nil {
			return err
		}
		wakeKey = reply.SignalKey

	case ReplySlot, ReplyCurrent:
		err := s.UpdateRecord(ctx, reply.RecordKey, func(current *Record) (*Record, error) {
			if current == nil {
				return nil, fmt.Errorf("record %s: %w", reply.RecordKey, ErrNotFound)
			}
			if current.Finished() || (reply.RunID != "" && current.RunID != reply.RunID) {
				return nil, ErrRunFinished
			}

			if reply.Mode == ReplySlot {
				if reply.Index >= len(current.ChildStatuses) {
					return nil, fmt.Errorf("slot %d out of range for record %s", reply.Index, reply.RecordKey)
				}
				if current.ChildStatuses[reply.Index].Terminal() {
					return nil, ErrAlreadyReported
				}
				current.ChildStatuses[reply.Index] = status
			} else {
				if current.CurrentIndex != reply.Index {
					return nil, ErrRunFinished
				}
				if current.CurrentStatus.Terminal() {
					return nil, ErrAlreadyReported
				}
				current.CurrentStatus = status
			}
			current.UpdatedAtMs = time.Now().UnixMilli()
			return current, nil
		})
		if err != nil {
			return err
		}
		wakeKey = reply.RecordKey
	}

	// Best-effort; a lost wake only delays observation until the next poll
	_ = s.Wake(ctx, wakeKey)
	return nil
}

// checkSignal rejects a signal report that belongs to an earlier run or
// iteration, or that would replace an outcome the coordinator has not reset.
// The check and the following write are not atomic; a Repeat resets the
// signal only after it has read the previous outcome.
func checkSignal(ctx context.Context, s Store, reply Reply) error {
	if reply.RecordKey != "" {
		rec, err := s.GetRecord(ctx, reply.RecordKey)
		if err != nil {
			if IsNotFound(err) {
				return fmt.Errorf("record %s: %w", reply.RecordKey, ErrRunFinished)
			}
			return err
		}
		if rec.Finished() || (reply.RunID != "" && rec.RunID != reply.RunID) {
			return ErrRunFinished
		}
		if reply.Index > 0 && rec.CurrentCount != reply.Index {
			return ErrRunFinished
		}
	}

	current, err := s.GetSignal(ctx, reply.SignalKey)
	switch {
	case err == nil:
		if current.Terminal() {
			return ErrAlreadyReported
		}
	case IsNotFound(err), errors.Is(err, ErrMalformed):
	default:
		return err
	}
	return nil
}
