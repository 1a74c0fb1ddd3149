// Package blackboard provides the typed shared state used by copse coordinators
// and their children. The blackboard is the only channel between a coordinator
// and the children it dispatches: coordinators write their records here and
// children report outcomes here.
//
// All Redis keys and channels are namespaced by instance name so that several
// independent trees can share one Redis server.
package blackboard

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a child slot, a child signal or a
// coordinator record.
type Status string

const (
	// StatusWaiting marks a slot that has not been dispatched in the current run
	StatusWaiting Status = "waiting"

	// StatusRunning marks dispatched work that has not reported yet
	StatusRunning Status = "running"

	// StatusSuccess marks work that completed successfully
	StatusSuccess Status = "success"

	// StatusFailure marks work that completed unsuccessfully
	StatusFailure Status = "failure"
)

// Kind identifies which composition policy produced a record.
type Kind string

const (
	KindSequence Kind = "sequence"
	KindParallel Kind = "parallel"
	KindRepeat   Kind = "repeat"
)

// Record is the blackboard entry owned by one coordinator instance.
// It is written wholesale by its coordinator on trigger, on dispatch and on
// every tick that changes state. Children only ever touch the fields that
// carry their own outcome (one ChildStatuses entry, or CurrentStatus).
type Record struct {
	RunID         string   `json:"run_id"`         // UUID of the run that produced this record
	Kind          Kind     `json:"kind"`           // Composition policy family
	Name          string   `json:"name"`           // Coordinator name from copse.yml
	Status        Status   `json:"status"`         // running, success or failure
	ChildStatuses []Status `json:"child_statuses"` // One entry per child slot, in slot order
	Summary       string   `json:"summary"`        // Human-readable outcome description
	UpdatedAtMs   int64    `json:"updated_at_ms"`  // Unix milliseconds of the last write

	// Parallel
	CompletionType string `json:"completion_type,omitempty"`

	// Sequence and Parallel partition of finished slots
	SuccessIndices []int `json:"success_indices"`
	FailureIndices []int `json:"failure_indices"`

	// Sequence
	CurrentIndex      int    `json:"current_index"`            // -1 before the first dispatch
	CurrentStatus     Status `json:"current_status,omitempty"` // Written by the active child
	TotalChildren     int    `json:"total_children"`
	CompletedChildren int    `json:"completed_children"`

	// Repeat
	Condition      string `json:"condition,omitempty"`
	CurrentCount   int    `json:"current_count"`
	TotalCount     int    `json:"total_count"`
	SuccessCount   int    `json:"success_count"`
	FailureCount   int    `json:"failure_count"`
	SuccessRecords []int  `json:"success_records"` // 1-based iteration numbers
	FailureRecords []int  `json:"failure_records"`
}

// ReplyMode tells a child which part of the blackboard carries its outcome.
type ReplyMode string

const (
	// ReplySlot writes ChildStatuses[Index] of the coordinator record (Parallel)
	ReplySlot ReplyMode = "slot"

	// ReplyCurrent writes CurrentStatus of the coordinator record while
	// CurrentIndex still equals Index (Sequence)
	ReplyCurrent ReplyMode = "current"

	// ReplySignal writes the shared child signal key (Repeat)
	ReplySignal ReplyMode = "signal"
)

// Reply is the blackboard address attached to every dispatched work item.
type Reply struct {
	Mode      ReplyMode `json:"mode"`
	RecordKey string    `json:"record_key,omitempty"`
	SignalKey string    `json:"signal_key,omitempty"`
	Index     int       `json:"index"`
	RunID     string    `json:"run_id,omitempty"`
}

// ParseStatus converts user or child supplied text into a Status.
// Matching is case-insensitive so "Success" and "success" are equivalent.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if err := st.Validate(); err != nil {
		return "", err
	}
	return st, nil
}

// Validate checks if the Status is a valid enum value.
func (s Status) Validate() error {
	switch s {
	case StatusWaiting, StatusRunning, StatusSuccess, StatusFailure:
		return nil
	default:
		return fmt.Errorf("unknown status: %q", s)
	}
}

// Terminal reports whether the status is Success or Failure.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Rank orders statuses along the monotonic slot lifecycle.
func (s Status) Rank() int {
	switch s {
	case StatusRunning:
		return 1
	case StatusSuccess, StatusFailure:
		return 2
	default:
		return 0
	}
}

// Validate checks if the Kind is a valid enum value.
func (k Kind) Validate() error {
	switch k {
	case KindSequence, KindParallel, KindRepeat:
		return nil
	default:
		return fmt.Errorf("unknown coordinator kind: %q", k)
	}
}

// Validate checks if the Reply can be delivered.
func (r Reply) Validate() error {
	switch r.Mode {
	case ReplySlot, ReplyCurrent:
		if r.RecordKey == "" {
			return fmt.Errorf("reply mode %s requires a record key", r.Mode)
		}
		if r.Index < 0 {
			return fmt.Errorf("invalid reply index: %d", r.Index)
		}
	case ReplySignal:
		if r.SignalKey == "" {
			return fmt.Errorf("reply mode signal requires a signal key")
		}
	default:
		return fmt.Errorf("unknown reply mode: %q", r.Mode)
	}
	return nil
}

// Validate checks if the Record has valid field values.
func (r *Record) Validate() error {
	if !isValidUUID(r.RunID) {
		return fmt.Errorf("invalid run ID: not a valid UUID")
	}

	if err := r.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid kind: %w", err)
	}

	if r.Status != StatusRunning && !r.Status.Terminal() {
		return fmt.Errorf("invalid record status: %q", r.Status)
	}

	for i, st := range r.ChildStatuses {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("invalid child status at index %d: %w", i, err)
		}
	}

	if r.CurrentStatus != "" {
		if err := r.CurrentStatus.Validate(); err != nil {
			return fmt.Errorf("invalid current status: %w", err)
		}
	}

	return nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.ChildStatuses = append([]Status(nil), r.ChildStatuses...)
	out.SuccessIndices = append([]int(nil), r.SuccessIndices...)
	out.FailureIndices = append([]int(nil), r.FailureIndices...)
	out.SuccessRecords = append([]int(nil), r.SuccessRecords...)
	out.FailureRecords = append([]int(nil), r.FailureRecords...)
	return &out
}

// Finished reports whether the record carries a terminal status.
func (r *Record) Finished() bool {
	return r != nil && r.Status.Terminal()
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
