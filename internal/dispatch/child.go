package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/dyluth/copse/internal/coordinator"
	"github.com/dyluth/copse/pkg/blackboard"
)

// maxOutputSize caps the stdout/stderr kept from a command child (1MB).
const maxOutputSize = 1024 * 1024

// Environment variables handed to command children.
const (
	EnvPayload     = "COPSE_PAYLOAD"
	EnvCoordinator = "COPSE_COORDINATOR"
	EnvRunID       = "COPSE_RUN_ID"
	EnvSlot        = "COPSE_SLOT"
	EnvIteration   = "COPSE_ITERATION"
	EnvReply       = "COPSE_REPLY"
)

// ErrSelfReported is returned by a child that wrote its own outcome to the
// blackboard. The dispatcher does not report on its behalf.
var ErrSelfReported = errors.New("child reported its own outcome")

// Child performs the work behind one coordinator output. The returned status
// must be terminal; an error is reported as Failure.
type Child interface {
	Run(ctx context.Context, item *coordinator.WorkItem) (blackboard.Status, error)
}

// ChildFunc adapts a function to Child.
type ChildFunc func(ctx context.Context, item *coordinator.WorkItem) (blackboard.Status, error)

func (f ChildFunc) Run(ctx context.Context, item *coordinator.WorkItem) (blackboard.Status, error) {
	return f(ctx, item)
}

// Command runs an external process per work item. Exit code 0 is Success,
// anything else is Failure.
//
// With SelfReport the process gets its reply address in COPSE_REPLY and is
// expected to run `copse report` itself; a clean exit then reports nothing,
// while a non-zero exit still reports Failure unless an outcome is already
// on the blackboard.
type Command struct {
	Args        []string
	Dir         string
	Environment []string
	SelfReport  bool
}

func (c *Command) Run(ctx context.Context, item *coordinator.WorkItem) (blackboard.Status, error) {
	if len(c.Args) == 0 {
		return blackboard.StatusFailure, fmt.Errorf("command array is empty")
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Environment...)
	cmd.Env = append(cmd.Env, itemEnv(item)...)
	if c.SelfReport {
		cmd.Env = append(cmd.Env, EnvReply+"="+blackboard.EncodeReply(item.Reply))
	}

	var stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &bytes.Buffer{}, limit: maxOutputSize}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxOutputSize}

	err := cmd.Run()
	if err == nil {
		if c.SelfReport {
			return blackboard.StatusSuccess, ErrSelfReported
		}
		return blackboard.StatusSuccess, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return blackboard.StatusFailure, &ExitError{Code: exitErr.ExitCode(), Stderr: truncate(stderr.String(), 200)}
	}
	return blackboard.StatusFailure, fmt.Errorf("failed to run %s: %w", c.Args[0], err)
}

// ExitError describes a command child that exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("process exited with code %d", e.Code)
	}
	return fmt.Sprintf("process exited with code %d: %s", e.Code, e.Stderr)
}

func itemEnv(item *coordinator.WorkItem) []string {
	return []string{
		EnvPayload + "=" + item.Payload,
		EnvCoordinator + "=" + item.Coordinator,
		EnvRunID + "=" + item.RunID,
		EnvSlot + "=" + strconv.Itoa(item.SlotIndex),
		EnvIteration + "=" + strconv.Itoa(item.IterationCount),
	}
}

// Script replays a fixed list of outcomes, one per call, and repeats the
// last outcome once the list is used up.
type Script struct {
	Outcomes []blackboard.Status
	Delay    time.Duration

	mu    sync.Mutex
	calls int
}

// NewScript parses outcomes such as "success" or "Failure".
func NewScript(outcomes []string, delay time.Duration) (*Script, error) {
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("script needs at least one outcome")
	}
	s := &Script{Delay: delay, Outcomes: make([]blackboard.Status, 0, len(outcomes))}
	for _, raw := range outcomes {
		st, err := blackboard.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		if !st.Terminal() {
			return nil, fmt.Errorf("script outcome must be success or failure, got %s", st)
		}
		s.Outcomes = append(s.Outcomes, st)
	}
	return s, nil
}

func (s *Script) Run(ctx context.Context, _ *coordinator.WorkItem) (blackboard.Status, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return blackboard.StatusFailure, ctx.Err()
		}
	}

	if i >= len(s.Outcomes) {
		i = len(s.Outcomes) - 1
	}
	return s.Outcomes[i], nil
}

// Calls returns how many times the script has run.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Nested triggers another coordinator with the item's payload and reports
// that coordinator's final status.
type Nested struct {
	Target coordinator.Coordinator
}

func (n *Nested) Run(ctx context.Context, item *coordinator.WorkItem) (blackboard.Status, error) {
	run, err := n.Target.Trigger(ctx, item.Payload)
	if err != nil {
		return blackboard.StatusFailure, fmt.Errorf("failed to trigger %s: %w", n.Target.Name(), err)
	}
	res, err := run.Wait(ctx)
	if err != nil {
		return blackboard.StatusFailure, err
	}
	if res.Aborted {
		return blackboard.StatusFailure, fmt.Errorf("%s run %s was aborted", n.Target.Name(), res.RunID)
	}
	return res.Status, nil
}

// limitedWriter discards writes once limit bytes have been kept.
type limitedWriter struct {
	w       *bytes.Buffer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if remaining := lw.limit - lw.written; remaining > 0 {
		keep := p
		if len(keep) > remaining {
			keep = keep[:remaining]
		}
		n, err := lw.w.Write(keep)
		lw.written += n
		if err != nil {
			return n, err
		}
	}
	return len(p), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
