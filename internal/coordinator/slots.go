package coordinator

import "github.com/dyluth/copse/pkg/blackboard"

// Slots tracks the status of each child slot for one run.
// Statuses only move forward: Waiting, then Running, then Success or Failure.
type Slots struct {
	statuses []blackboard.Status
}

// NewSlots returns n slots, all Waiting.
func NewSlots(n int) *Slots {
	s := &Slots{statuses: make([]blackboard.Status, n)}
	for i := range s.statuses {
		s.statuses[i] = blackboard.StatusWaiting
	}
	return s
}

func (s *Slots) Len() int { return len(s.statuses) }

// Status returns the status of slot i, or Waiting when i is out of range.
func (s *Slots) Status(i int) blackboard.Status {
	if i < 0 || i >= len(s.statuses) {
		return blackboard.StatusWaiting
	}
	return s.statuses[i]
}

// Start marks slot i as Running.
func (s *Slots) Start(i int) {
	s.Observe(i, blackboard.StatusRunning)
}

// Observe applies st to slot i if it moves the slot forward, and reports
// whether anything changed.
func (s *Slots) Observe(i int, st blackboard.Status) bool {
	if i < 0 || i >= len(s.statuses) || st.Validate() != nil {
		return false
	}
	if st.Rank() <= s.statuses[i].Rank() {
		return false
	}
	s.statuses[i] = st
	return true
}

// Snapshot returns a copy of all slot statuses in slot order.
func (s *Slots) Snapshot() []blackboard.Status {
	return append([]blackboard.Status(nil), s.statuses...)
}

// Partition returns the indices of succeeded and failed slots, ascending.
func (s *Slots) Partition() (succeeded, failed []int) {
	succeeded, failed = []int{}, []int{}
	for i, st := range s.statuses {
		switch st {
		case blackboard.StatusSuccess:
			succeeded = append(succeeded, i)
		case blackboard.StatusFailure:
			failed = append(failed, i)
		}
	}
	return succeeded, failed
}

// Completed returns the number of slots in a terminal status.
func (s *Slots) Completed() int {
	n := 0
	for _, st := range s.statuses {
		if st.Terminal() {
			n++
		}
	}
	return n
}
