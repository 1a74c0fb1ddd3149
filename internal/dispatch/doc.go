// Package dispatch runs the children of a coordinator inside the copse
// process and reports their outcomes back onto the blackboard.
//
// A Local dispatcher owns one Child per coordinator output. Each dispatched
// work item runs its child in a goroutine; when the child returns, the
// outcome is written to the reply address carried by the item, exactly as an
// out-of-process child would do with `copse report`. A Command child marked
// SelfReport runs `copse report` itself and the dispatcher stays silent on a
// clean exit, so every work item is reported once.
package dispatch
