// Package blackboard provides type-safe Go definitions and storage for the
// shared state of copse behavior trees.
//
// # Overview
//
// A coordinator (Sequence, Parallel or Repeat) never receives a call back from
// the children it dispatches. Instead both sides meet on the blackboard: the
// coordinator owns a Record that it rewrites as its run progresses, and each
// child reports its outcome to the address (Reply) attached to its work item.
// The coordinator discovers outcomes by reading the blackboard on a fixed
// interval, or early when a Wake event names a key it watches.
//
// # Core Concepts
//
// Records are owned by exactly one coordinator instance. They carry the run
// identifier, the aggregate status and one status per child slot, plus fields
// specific to the coordinator kind.
//
// Signals are single status values. A Repeat coordinator's child reports on
// the signal key; Parallel and Sequence coordinators write their own final
// status to their signal key so a parent can observe them.
//
// Values are free-form strings, used for example to override a repeat count at
// trigger time.
//
// # Stores
//
// Client stores everything in Redis, namespaced by instance name. Memory keeps
// everything in process. Both implement Store.
//
// # Usage Example
//
//	store := blackboard.NewMemory()
//
//	// Child side: report success for slot 2 of the "checks" coordinator
//	reply := blackboard.Reply{Mode: blackboard.ReplySlot, RecordKey: "checks", Index: 2}
//	if err := blackboard.Report(ctx, store, reply, blackboard.StatusSuccess); err != nil {
//		log.Fatal(err)
//	}
//
// # Redis Schema
//
// Records: copse:{instance_name}:record:{name} (hash, slices JSON-encoded)
// Signals: copse:{instance_name}:signal:{name} (string)
// Values: copse:{instance_name}:value:{name} (string)
//
// Pub/Sub channels: copse:{instance_name}:wake_events, copse:{instance_name}:trigger_events
//
// # Concurrency
//
// Writes are last-writer-wins. UpdateRecord is the one atomic
// read-modify-write, used by coordinators and by Report so that a child's slot
// write is never lost under a concurrent coordinator update. Two coordinators
// configured with the same record or signal key still overwrite each other;
// keys must be unique per independent coordinator.
package blackboard
