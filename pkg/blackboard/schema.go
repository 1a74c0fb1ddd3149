package blackboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// independent trees can share one Redis server. Within an instance the
// operator still has to give sibling coordinators distinct record and signal
// names; the namespace does not protect two coordinators configured with the
// same key.
//
// Key pattern: copse:{instance_name}:{entity}:{name}
// Channel pattern: copse:{instance_name}:{event_type}_events

// RecordKey returns the Redis key for a coordinator record hash.
// Pattern: copse:{instance_name}:record:{name}
func RecordKey(instanceName, name string) string {
	return fmt.Sprintf("copse:%s:record:%s", instanceName, name)
}

// SignalKey returns the Redis key for a child signal string.
// Pattern: copse:{instance_name}:signal:{name}
func SignalKey(instanceName, name string) string {
	return fmt.Sprintf("copse:%s:signal:%s", instanceName, name)
}

// ValueKey returns the Redis key for a free-form value such as a repeat count override.
// Pattern: copse:{instance_name}:value:{name}
func ValueKey(instanceName, name string) string {
	return fmt.Sprintf("copse:%s:value:%s", instanceName, name)
}

// WakeEventsChannel returns the Pub/Sub channel carrying blackboard keys that
// a child has just written. Coordinators use it to tick early.
// Pattern: copse:{instance_name}:wake_events
func WakeEventsChannel(instanceName string) string {
	return fmt.Sprintf("copse:%s:wake_events", instanceName)
}

// TriggerEventsChannel returns the Pub/Sub channel carrying trigger requests
// for the coordinators served by `copse serve`.
// Pattern: copse:{instance_name}:trigger_events
func TriggerEventsChannel(instanceName string) string {
	return fmt.Sprintf("copse:%s:trigger_events", instanceName)
}
