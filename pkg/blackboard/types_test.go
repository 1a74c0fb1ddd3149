package blackboard

import (
	"testing"

	"github.com/google/uuid"
)

// TestRecordValidate_Valid tests that a freshly started record passes validation
func TestRecordValidate_Valid(t *testing.T) {
	record := &Record{
		RunID:         uuid.New().String(),
		Kind:          KindParallel,
		Name:          "checks",
		Status:        StatusRunning,
		ChildStatuses: []Status{StatusRunning, StatusSuccess},
		CurrentIndex:  -1,
	}

	if err := record.Validate(); err != nil {
		t.Errorf("valid record failed validation: %v", err)
	}
}

// TestRecordValidate_InvalidRunID tests that a non-UUID run ID is rejected
func TestRecordValidate_InvalidRunID(t *testing.T) {
	record := &Record{RunID: "run-1", Kind: KindSequence, Status: StatusRunning}

	if err := record.Validate(); err == nil {
		t.Error("expected validation error for invalid run ID")
	}
}

// TestRecordValidate_WaitingStatus tests that a record can never be waiting
func TestRecordValidate_WaitingStatus(t *testing.T) {
	record := &Record{RunID: uuid.New().String(), Kind: KindRepeat, Status: StatusWaiting}

	if err := record.Validate(); err == nil {
		t.Error("expected validation error for waiting record status")
	}
}

// TestRecordValidate_InvalidChildStatus tests that every slot is checked
func TestRecordValidate_InvalidChildStatus(t *testing.T) {
	record := &Record{
		RunID:         uuid.New().String(),
		Kind:          KindParallel,
		Status:        StatusRunning,
		ChildStatuses: []Status{StatusSuccess, "exploded"},
	}

	if err := record.Validate(); err == nil {
		t.Error("expected validation error for unknown child status")
	}
}

// TestRecordValidate_InvalidKind tests that unknown kinds are rejected
func TestRecordValidate_InvalidKind(t *testing.T) {
	record := &Record{RunID: uuid.New().String(), Kind: "selector", Status: StatusRunning}

	if err := record.Validate(); err == nil {
		t.Error("expected validation error for unknown kind")
	}
}

// TestRecordClone tests that a clone shares no slices with the original
func TestRecordClone(t *testing.T) {
	original := &Record{
		RunID:          uuid.New().String(),
		ChildStatuses:  []Status{StatusRunning},
		SuccessRecords: []int{1},
	}

	clone := original.Clone()
	clone.ChildStatuses[0] = StatusFailure
	clone.SuccessRecords[0] = 9

	if original.ChildStatuses[0] != StatusRunning {
		t.Error("clone mutated original child statuses")
	}
	if original.SuccessRecords[0] != 1 {
		t.Error("clone mutated original success records")
	}

	var nilRecord *Record
	if nilRecord.Clone() != nil {
		t.Error("clone of nil record should be nil")
	}
}

// TestStatusTerminal tests terminal classification
func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusWaiting, false},
		{StatusRunning, false},
		{StatusSuccess, true},
		{StatusFailure, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, expected %v", tt.status, got, tt.terminal)
		}
	}
}

// TestKindValidate_AllValid tests that all defined kinds pass validation
func TestKindValidate_AllValid(t *testing.T) {
	for _, k := range []Kind{KindSequence, KindParallel, KindRepeat} {
		if err := k.Validate(); err != nil {
			t.Errorf("kind %q failed validation: %v", k, err)
		}
	}
}

// TestReplyValidate tests reply address validation
func TestReplyValidate(t *testing.T) {
	tests := []struct {
		name    string
		reply   Reply
		wantErr bool
	}{
		{"slot", Reply{Mode: ReplySlot, RecordKey: "par", Index: 2}, false},
		{"current", Reply{Mode: ReplyCurrent, RecordKey: "seq"}, false},
		{"signal", Reply{Mode: ReplySignal, SignalKey: "sig"}, false},
		{"negative index", Reply{Mode: ReplySlot, RecordKey: "par", Index: -1}, true},
		{"current without record", Reply{Mode: ReplyCurrent}, true},
		{"empty mode", Reply{}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reply.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestIsValidUUID tests UUID validation helper
func TestIsValidUUID(t *testing.T) {
	if !isValidUUID(uuid.New().String()) {
		t.Error("generated UUID should be valid")
	}
	if isValidUUID("") || isValidUUID("not-a-uuid") {
		t.Error("invalid strings should not be valid UUIDs")
	}
}
