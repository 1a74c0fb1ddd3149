// Package inspect reads coordinator records and signals back off the
// blackboard for display.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dyluth/copse/internal/config"
	"github.com/dyluth/copse/pkg/blackboard"
)

// Entry is what the blackboard currently holds for one configured coordinator.
type Entry struct {
	Name      string             `json:"name"`
	Kind      string             `json:"kind"`
	RecordKey string             `json:"record_key"`
	SignalKey string             `json:"signal_key,omitempty"`
	Signal    blackboard.Status  `json:"signal,omitempty"`
	Record    *blackboard.Record `json:"record"`
}

// Collect reads the record and signal of every coordinator in cfg, in name
// order. Missing or malformed entries are left empty.
func Collect(ctx context.Context, store blackboard.Store, cfg *config.CopseConfig) ([]Entry, error) {
	entries := make([]Entry, 0, len(cfg.Coordinators))
	for _, name := range cfg.Names() {
		cc := cfg.CoordinatorConfig(name)
		e := Entry{
			Name:      name,
			Kind:      cfg.Coordinators[name].Kind,
			RecordKey: cc.RecordKey,
			SignalKey: cc.SignalKey,
		}

		rec, err := store.GetRecord(ctx, cc.RecordKey)
		switch {
		case err == nil:
			e.Record = rec
		case blackboard.IsNotFound(err), isMalformed(err):
		default:
			return nil, fmt.Errorf("failed to read record %s: %w", cc.RecordKey, err)
		}

		if cc.SignalKey != "" {
			sig, err := store.GetSignal(ctx, cc.SignalKey)
			switch {
			case err == nil:
				e.Signal = sig
			case blackboard.IsNotFound(err), isMalformed(err):
			default:
				return nil, fmt.Errorf("failed to read signal %s: %w", cc.SignalKey, err)
			}
		}

		entries = append(entries, e)
	}
	return entries, nil
}

// GetRecord writes the record stored under key as pretty-printed JSON.
func GetRecord(ctx context.Context, store blackboard.Store, key string, w io.Writer) error {
	rec, err := store.GetRecord(ctx, key)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return &RecordNotFoundError{Key: key}
		}
		return fmt.Errorf("failed to fetch record: %w", err)
	}

	if err := FormatSingleJSON(w, rec); err != nil {
		return fmt.Errorf("failed to format record: %w", err)
	}
	return nil
}

// RecordNotFoundError means no coordinator has written key yet.
type RecordNotFoundError struct {
	Key string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("no record stored under '%s'", e.Key)
}

// IsNotFound returns true if the error is a RecordNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*RecordNotFoundError)
	return ok
}

func isMalformed(err error) bool {
	return errors.Is(err, blackboard.ErrMalformed)
}
