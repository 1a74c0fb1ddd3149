// Package coordinator implements the composite behavior-tree nodes of copse:
// Sequence, Parallel and Repeat.
//
// A coordinator never waits on a child directly. On Trigger it starts a run,
// writes its record to the blackboard and hands work items to a Dispatcher.
// Children report on the blackboard (see blackboard.Report), and the
// coordinator observes them by polling: on every PollInterval, and early when
// a child publishes a wake for one of the coordinator's keys. Each poll
// updates the run's slot statuses and evaluates the kind's completion policy.
// When it is satisfied the final record is written and the run's handle is
// released.
//
// Every run has its own identifier and its own state. Triggering while a run
// is active either rejects the trigger or aborts the active run, depending on
// Config.Reentry. Aborting, and Close, never signal children.
//
// Tests and embedders that need determinism use WithManualTicks and call Tick
// themselves.
package coordinator
