package coordinator

import "github.com/dyluth/copse/pkg/blackboard"

// EvaluateCompletion applies a Parallel completion policy to the current slot
// statuses. It returns done=false with StatusRunning while the run must keep
// waiting.
func EvaluateCompletion(ct CompletionType, statuses []blackboard.Status) (bool, blackboard.Status) {
	var successes, failures int
	for _, st := range statuses {
		switch st {
		case blackboard.StatusSuccess:
			successes++
		case blackboard.StatusFailure:
			failures++
		}
	}
	total := len(statuses)

	switch ct {
	case AllSuccess:
		if failures > 0 {
			return true, blackboard.StatusFailure
		}
		if successes == total {
			return true, blackboard.StatusSuccess
		}
	case AnySuccess:
		if successes > 0 {
			return true, blackboard.StatusSuccess
		}
		if failures == total {
			return true, blackboard.StatusFailure
		}
	case AllComplete:
		if successes+failures == total {
			if successes > 0 {
				return true, blackboard.StatusSuccess
			}
			return true, blackboard.StatusFailure
		}
	}
	return false, blackboard.StatusRunning
}

// shouldContinue reports whether a Repeat run dispatches another iteration
// after iteration count (1-based) finished with outcome.
func shouldContinue(cond Condition, outcome blackboard.Status, count, total int) bool {
	switch cond {
	case ConditionUntilSuccess:
		return outcome != blackboard.StatusSuccess
	case ConditionExitOnFailure:
		return outcome == blackboard.StatusSuccess && count < total
	default:
		return count < total
	}
}

// finalRepeatStatus is the aggregate status of a finished Repeat run.
func finalRepeatStatus(cond Condition, last blackboard.Status, successes int) blackboard.Status {
	if cond == ConditionExitOnFailure {
		return last
	}
	if successes > 0 {
		return blackboard.StatusSuccess
	}
	return blackboard.StatusFailure
}

// mergeRecord decides what to store when a coordinator writes next over cur.
// While a run is in progress, child-owned fields that a child has already
// advanced are kept so a slot report is never rolled back by the coordinator.
// A final record is stored as the coordinator saw it. A record that is
// already final for the same run is never rewritten.
func mergeRecord(cur, next *blackboard.Record) *blackboard.Record {
	if cur == nil || cur.RunID != next.RunID {
		return next
	}
	if cur.Finished() {
		return nil
	}
	if next.Finished() {
		return next
	}

	merged := next.Clone()
	for i := range merged.ChildStatuses {
		if i < len(cur.ChildStatuses) && cur.ChildStatuses[i].Rank() > merged.ChildStatuses[i].Rank() {
			merged.ChildStatuses[i] = cur.ChildStatuses[i]
		}
	}
	if cur.CurrentIndex == merged.CurrentIndex && cur.CurrentStatus.Rank() > merged.CurrentStatus.Rank() {
		merged.CurrentStatus = cur.CurrentStatus
	}
	return merged
}
