// Package orchestrator runs a built coordinator tree as a long-lived daemon:
// it serves health and metrics endpoints and starts runs in response to
// trigger events published on the blackboard.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/dyluth/copse/internal/coordinator"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TriggerSource delivers trigger requests. *blackboard.Client implements it.
type TriggerSource interface {
	SubscribeTriggers(ctx context.Context) (*blackboard.TriggerSubscription, error)
}

// Trees resolve a coordinator by name and start runs. *tree.Tree implements it.
type Trees interface {
	Trigger(ctx context.Context, name, payload string) (*coordinator.Run, error)
	Close() error
}

// Engine connects trigger events to coordinators.
type Engine struct {
	triggers     TriggerSource
	tree         Trees
	health       *HealthServer
	instanceName string
	logger       zerolog.Logger
}

// NewEngine creates an engine. health may be nil to skip the HTTP endpoints.
func NewEngine(instanceName string, triggers TriggerSource, tree Trees, health *HealthServer, logger zerolog.Logger) *Engine {
	return &Engine{
		triggers:     triggers,
		tree:         tree,
		health:       health,
		instanceName: instanceName,
		logger: logger.With().
			Str("component", "orchestrator").
			Str("instance", instanceName).
			Logger(),
	}
}

// Run blocks until ctx is cancelled or a component fails. The tree is closed
// on the way out.
func (e *Engine) Run(ctx context.Context) error {
	defer e.tree.Close()

	subscription, err := e.triggers.SubscribeTriggers(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to trigger events: %w", err)
	}
	defer subscription.Close()

	e.logger.Info().Str("event_type", "engine_started").Msg("serving trigger events")

	g, gctx := errgroup.WithContext(ctx)
	if e.health != nil {
		g.Go(func() error {
			if err := e.health.Serve(gctx); err != nil {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return e.consume(gctx, subscription)
	})

	err = g.Wait()
	e.logger.Info().Str("event_type", "engine_stopped").Msg("shutting down")
	return err
}

func (e *Engine) consume(ctx context.Context, sub *blackboard.TriggerSubscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-sub.Events():
			if !ok {
				e.logger.Info().Msg("trigger subscription closed")
				return nil
			}
			e.handleTrigger(ctx, ev)

		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			// Non-fatal; the subscription keeps delivering
			e.logger.Warn().Err(err).Msg("trigger subscription error")
		}
	}
}

func (e *Engine) handleTrigger(ctx context.Context, ev *blackboard.TriggerEvent) {
	e.logger.Info().
		Str("event_type", "trigger_received").
		Str("coordinator", ev.Coordinator).
		Int64("requested_at_ms", ev.RequestedAtMs).
		Msg("trigger received")

	run, err := e.tree.Trigger(ctx, ev.Coordinator, ev.Payload)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("event_type", "trigger_rejected").
			Str("coordinator", ev.Coordinator).
			Msg("trigger rejected")
		return
	}

	e.logger.Debug().Str("coordinator", ev.Coordinator).Str("run_id", run.ID).Msg("run started")
}
