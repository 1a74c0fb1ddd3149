// Package tree wires the coordinators declared in copse.yml into a running
// behavior tree: one coordinator per entry, each with an in-process
// dispatcher whose children are commands, scripts or nested coordinators.
package tree

import (
	"context"
	"fmt"

	"github.com/dyluth/copse/internal/config"
	"github.com/dyluth/copse/internal/coordinator"
	"github.com/dyluth/copse/internal/dispatch"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/rs/zerolog"
)

// Options carries the shared dependencies handed to every node.
type Options struct {
	Logger  zerolog.Logger
	Sink    coordinator.StatusSink
	Metrics *coordinator.Metrics

	// ManualTicks builds coordinators without background pollers
	ManualTicks bool
}

// Tree is a built set of coordinators sharing one blackboard.
type Tree struct {
	Root         string
	coordinators map[string]coordinator.Coordinator
	dispatchers  []*dispatch.Local
	order        []string
}

// Build creates every coordinator in cfg. Nested coordinators are built
// before the coordinators that reference them, so cfg must be validated.
func Build(cfg *config.CopseConfig, store blackboard.Store, opts Options) (*Tree, error) {
	t := &Tree{
		Root:         cfg.Root,
		coordinators: make(map[string]coordinator.Coordinator, len(cfg.Coordinators)),
	}

	var build func(name string) (coordinator.Coordinator, error)
	build = func(name string) (coordinator.Coordinator, error) {
		if c, ok := t.coordinators[name]; ok {
			return c, nil
		}
		def, ok := cfg.Coordinators[name]
		if !ok {
			return nil, fmt.Errorf("unknown coordinator '%s'", name)
		}

		children := make([]dispatch.Child, 0, len(def.Children))
		for i, ch := range def.Children {
			child, err := newChild(ch, build)
			if err != nil {
				return nil, fmt.Errorf("coordinator '%s' child %d: %w", name, i, err)
			}
			children = append(children, child)
		}

		d := dispatch.NewLocal(store, children, dispatch.WithLogger(opts.Logger))
		t.dispatchers = append(t.dispatchers, d)

		copts := []coordinator.Option{
			coordinator.WithLogger(opts.Logger),
			coordinator.WithStatusSink(opts.Sink),
			coordinator.WithMetrics(opts.Metrics),
		}
		if opts.ManualTicks {
			copts = append(copts, coordinator.WithManualTicks())
		}

		c, err := coordinator.New(blackboard.Kind(def.Kind), cfg.CoordinatorConfig(name), store, d, copts...)
		if err != nil {
			return nil, fmt.Errorf("coordinator '%s': %w", name, err)
		}
		t.coordinators[name] = c
		t.order = append(t.order, name)
		return c, nil
	}

	for _, name := range cfg.Names() {
		if _, err := build(name); err != nil {
			t.Close()
			return nil, err
		}
	}
	return t, nil
}

func newChild(ch config.Child, build func(string) (coordinator.Coordinator, error)) (dispatch.Child, error) {
	switch {
	case len(ch.Command) > 0:
		return &dispatch.Command{Args: ch.Command, Dir: ch.Dir, Environment: ch.Environment, SelfReport: ch.SelfReport}, nil
	case len(ch.Script) > 0:
		return dispatch.NewScript(ch.Script, ch.Delay)
	case ch.Coordinator != "":
		target, err := build(ch.Coordinator)
		if err != nil {
			return nil, err
		}
		return &dispatch.Nested{Target: target}, nil
	default:
		return nil, fmt.Errorf("child has no command, coordinator or script")
	}
}

// Get returns the named coordinator.
func (t *Tree) Get(name string) (coordinator.Coordinator, error) {
	c, ok := t.coordinators[name]
	if !ok {
		return nil, fmt.Errorf("unknown coordinator '%s'", name)
	}
	return c, nil
}

// Names lists coordinators in build order, nested ones first.
func (t *Tree) Names() []string {
	return append([]string(nil), t.order...)
}

// Trigger starts a run of the named coordinator, or of the root when name is
// empty.
func (t *Tree) Trigger(ctx context.Context, name, payload string) (*coordinator.Run, error) {
	if name == "" {
		if t.Root == "" {
			return nil, fmt.Errorf("no root coordinator configured; name one explicitly")
		}
		name = t.Root
	}
	c, err := t.Get(name)
	if err != nil {
		return nil, err
	}
	return c.Trigger(ctx, payload)
}

// Close aborts active runs, then cancels any children still running.
func (t *Tree) Close() error {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.coordinators[t.order[i]].Close()
	}
	for _, d := range t.dispatchers {
		d.Close()
	}
	return nil
}
