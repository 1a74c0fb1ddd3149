package blackboard

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Slice fields are
// JSON-encoded into single hash fields so a record is always written and read
// as one unit.

// RecordToHash converts a Record struct to a Redis hash format.
// Slice fields (child_statuses, success/failure partitions) are JSON-encoded.
func RecordToHash(r *Record) (map[string]interface{}, error) {
	childStatusesJSON, err := json.Marshal(nonNilStatuses(r.ChildStatuses))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal child_statuses: %w", err)
	}

	hash := map[string]interface{}{
		"run_id":             r.RunID,
		"kind":               string(r.Kind),
		"name":               r.Name,
		"status":             string(r.Status),
		"child_statuses":     string(childStatusesJSON),
		"summary":            r.Summary,
		"updated_at_ms":      r.UpdatedAtMs,
		"completion_type":    r.CompletionType,
		"current_index":      r.CurrentIndex,
		"current_status":     string(r.CurrentStatus),
		"total_children":     r.TotalChildren,
		"completed_children": r.CompletedChildren,
		"condition":          r.Condition,
		"current_count":      r.CurrentCount,
		"total_count":        r.TotalCount,
		"success_count":      r.SuccessCount,
		"failure_count":      r.FailureCount,
	}

	intLists := map[string][]int{
		"success_indices": r.SuccessIndices,
		"failure_indices": r.FailureIndices,
		"success_records": r.SuccessRecords,
		"failure_records": r.FailureRecords,
	}
	for field, list := range intLists {
		encoded, err := json.Marshal(nonNilInts(list))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", field, err)
		}
		hash[field] = string(encoded)
	}

	return hash, nil
}

// HashToRecord converts a Redis hash to a Record struct.
// JSON fields are decoded back to Go types. Missing numeric fields decode as zero.
func HashToRecord(hash map[string]string) (*Record, error) {
	var childStatuses []Status
	if raw := hash["child_statuses"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &childStatuses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal child_statuses: %w", err)
		}
	}

	lists := make(map[string][]int, 4)
	for _, field := range []string{"success_indices", "failure_indices", "success_records", "failure_records"} {
		var list []int
		if raw := hash[field]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &list); err != nil {
				return nil, fmt.Errorf("failed to unmarshal %s: %w", field, err)
			}
		}
		lists[field] = nonNilInts(list)
	}

	currentIndex, err := strconv.Atoi(hash["current_index"])
	if err != nil {
		return nil, fmt.Errorf("invalid current_index field: %w", err)
	}

	record := &Record{
		RunID:             hash["run_id"],
		Kind:              Kind(hash["kind"]),
		Name:              hash["name"],
		Status:            Status(hash["status"]),
		ChildStatuses:     nonNilStatuses(childStatuses),
		Summary:           hash["summary"],
		UpdatedAtMs:       parseInt64(hash["updated_at_ms"]),
		CompletionType:    hash["completion_type"],
		SuccessIndices:    lists["success_indices"],
		FailureIndices:    lists["failure_indices"],
		CurrentIndex:      currentIndex,
		CurrentStatus:     Status(hash["current_status"]),
		TotalChildren:     parseInt(hash["total_children"]),
		CompletedChildren: parseInt(hash["completed_children"]),
		Condition:         hash["condition"],
		CurrentCount:      parseInt(hash["current_count"]),
		TotalCount:        parseInt(hash["total_count"]),
		SuccessCount:      parseInt(hash["success_count"]),
		FailureCount:      parseInt(hash["failure_count"]),
		SuccessRecords:    lists["success_records"],
		FailureRecords:    lists["failure_records"],
	}

	return record, nil
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// nonNilInts keeps empty lists encoded as [] rather than null.
func nonNilInts(list []int) []int {
	if list == nil {
		return []int{}
	}
	return list
}

func nonNilStatuses(list []Status) []Status {
	if list == nil {
		return []Status{}
	}
	return list
}

// EncodeReply renders r as the compact JSON handed to out-of-process children.
func EncodeReply(r Reply) string {
	// Reply only holds strings and ints, so Marshal cannot fail
	data, _ := json.Marshal(r)
	return string(data)
}

// DecodeReply parses and validates a reply produced by EncodeReply.
func DecodeReply(s string) (Reply, error) {
	var r Reply
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Reply{}, fmt.Errorf("failed to parse reply: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Reply{}, err
	}
	return r, nil
}
