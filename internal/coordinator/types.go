package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/dyluth/copse/internal/errors"
	"github.com/dyluth/copse/pkg/blackboard"
)

// DefaultPollInterval is used when a coordinator is configured without one.
const DefaultPollInterval = 500 * time.Millisecond

var (
	// ErrRunActive is returned by Trigger when the re-entry policy is reject
	// and a run is still in progress.
	ErrRunActive = errors.New("coordinator: run already active")

	// ErrClosed is returned by Trigger after Close.
	ErrClosed = errors.New("coordinator: closed")
)

// CompletionType is the Parallel completion policy.
type CompletionType string

const (
	AllSuccess  CompletionType = "all_success"
	AnySuccess  CompletionType = "any_success"
	AllComplete CompletionType = "all_complete"
)

// Validate checks if the CompletionType is a valid enum value.
func (c CompletionType) Validate() error {
	switch c {
	case AllSuccess, AnySuccess, AllComplete:
		return nil
	default:
		return fmt.Errorf("unknown completion type: %q", c)
	}
}

// Condition is the Repeat termination condition.
type Condition string

const (
	ConditionFixed         Condition = "fixed"
	ConditionUntilSuccess  Condition = "untilSuccess"
	ConditionExitOnFailure Condition = "exitOnFailure"
)

// Validate checks if the Condition is a valid enum value.
func (c Condition) Validate() error {
	switch c {
	case ConditionFixed, ConditionUntilSuccess, ConditionExitOnFailure:
		return nil
	default:
		return fmt.Errorf("unknown repeat condition: %q", c)
	}
}

// ReentryPolicy decides what a trigger does while a run is active.
type ReentryPolicy string

const (
	// ReentryReject ignores the trigger and reports a warning
	ReentryReject ReentryPolicy = "reject"

	// ReentryRestart aborts the active run locally and starts a fresh one
	ReentryRestart ReentryPolicy = "restart"
)

// Validate checks if the ReentryPolicy is a valid enum value.
func (p ReentryPolicy) Validate() error {
	switch p {
	case ReentryReject, ReentryRestart:
		return nil
	default:
		return fmt.Errorf("unknown re-entry policy: %q", p)
	}
}

// Config is the immutable per-instance configuration of a coordinator.
type Config struct {
	Name         string
	Outputs      int
	RecordKey    string
	SignalKey    string
	PollInterval time.Duration

	// MaxWaitTicks fails a run after that many interval ticks without
	// observed progress. Zero waits forever.
	MaxWaitTicks int

	// Reentry defaults to reject for Repeat and restart otherwise.
	Reentry ReentryPolicy

	Completion CompletionType // Parallel

	Condition Condition // Repeat
	Count     int       // Repeat default iteration count
	CountKey  string    // Repeat: blackboard value overriding Count at trigger time
}

// Validate reports whether c, once defaults are applied, is usable for kind.
func (c Config) Validate(kind blackboard.Kind) error {
	return c.WithDefaults(kind).validate(kind)
}

// WithDefaults returns a copy of c with unset fields filled for kind.
func (c Config) WithDefaults(kind blackboard.Kind) Config {
	if c.RecordKey == "" {
		c.RecordKey = c.Name
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Reentry == "" {
		if kind == blackboard.KindRepeat {
			c.Reentry = ReentryReject
		} else {
			c.Reentry = ReentryRestart
		}
	}
	switch kind {
	case blackboard.KindParallel:
		if c.Completion == "" {
			c.Completion = AllSuccess
		}
	case blackboard.KindRepeat:
		if c.Condition == "" {
			c.Condition = ConditionFixed
		}
		if c.Outputs == 0 {
			c.Outputs = 1
		}
	}
	return c
}

// validate checks a defaulted config for kind.
func (c Config) validate(kind blackboard.Kind) error {
	if err := kind.Validate(); err != nil {
		return apperrors.ValidationError{Field: "kind", Message: err.Error()}
	}
	if c.Name == "" {
		return apperrors.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if c.Outputs < 0 {
		return apperrors.ValidationError{Field: "outputs", Message: "must not be negative"}
	}
	if c.MaxWaitTicks < 0 {
		return apperrors.ValidationError{Field: "max_wait_ticks", Message: "must not be negative"}
	}
	if err := c.Reentry.Validate(); err != nil {
		return apperrors.ValidationError{Field: "reentry", Message: err.Error()}
	}

	switch kind {
	case blackboard.KindParallel:
		if c.Outputs < 1 {
			return apperrors.ValidationError{Field: "outputs", Message: "parallel needs at least one output"}
		}
		if err := c.Completion.Validate(); err != nil {
			return apperrors.ValidationError{Field: "completion", Message: err.Error()}
		}
	case blackboard.KindRepeat:
		if c.Outputs != 1 {
			return apperrors.ValidationError{Field: "outputs", Message: "repeat drives exactly one child"}
		}
		if c.SignalKey == "" {
			return apperrors.ValidationError{Field: "signal_key", Message: "repeat needs a signal key"}
		}
		if c.Count < 0 {
			return apperrors.ValidationError{Field: "count", Message: "must not be negative"}
		}
		if err := c.Condition.Validate(); err != nil {
			return apperrors.ValidationError{Field: "condition", Message: err.Error()}
		}
	}
	return nil
}

// WorkItem is the message forwarded to one child output.
type WorkItem struct {
	Coordinator string
	RunID       string
	Payload     string

	// Routing tag: SlotIndex for Sequence and Parallel, IterationCount for Repeat
	SlotIndex      int
	IterationCount int

	// Where on the blackboard the child reports its outcome
	Reply blackboard.Reply
}

// Result is the outcome of one finished run.
type Result struct {
	RunID      string
	Status     blackboard.Status
	Summary    string
	Record     *blackboard.Record // nil for aborted runs
	Aborted    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Run is a handle on one triggered run.
type Run struct {
	ID     string
	done   chan struct{}
	result *Result
}

func newRun(id string) *Run {
	return &Run{ID: id, done: make(chan struct{})}
}

// Done is closed once the run has finished or been aborted.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome, or nil while the run is still active.
func (r *Run) Result() *Result {
	select {
	case <-r.done:
		return r.result
	default:
		return nil
	}
}

// Wait blocks until the run finishes or ctx is cancelled.
func (r *Run) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Coordinator is a composite behavior-tree node.
type Coordinator interface {
	Name() string
	Kind() blackboard.Kind
	Config() Config

	// Trigger starts a run with payload. What happens to an active run
	// depends on the re-entry policy.
	Trigger(ctx context.Context, payload string) (*Run, error)

	// Tick performs one poll of the blackboard for the active run and
	// reports whether the coordinator is now idle.
	Tick(ctx context.Context) (bool, error)

	// Active returns the run in progress, or nil.
	Active() *Run
	// Last returns the result of the most recent finished run, or nil.
	Last() *Result

	// Close stops polling and aborts any active run. Idempotent.
	Close() error
}
