package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/copse/pkg/blackboard"
)

// FormatTable writes entries as a formatted table to the provided writer.
// The table includes columns: NAME, KIND, STATUS, RUN, PROGRESS, AGE and SUMMARY (truncated).
// Returns the number of entries that have a record.
func FormatTable(w io.Writer, entries []Entry, instanceName string) int {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No coordinators configured for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Coordinators for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-18s %-9s %-8s %-9s %-9s %-8s %s\n",
		"NAME", "KIND", "STATUS", "RUN", "PROGRESS", "AGE", "SUMMARY")
	fmt.Fprintf(w, "%-18s %-9s %-8s %-9s %-9s %-8s %s\n",
		"------------------", "---------", "--------", "---------", "---------", "--------", "----------------------------------------")

	found := 0
	for _, e := range entries {
		if e.Record == nil {
			fmt.Fprintf(w, "%-18s %-9s %-8s %-9s %-9s %-8s %s\n",
				formatName(e.Name), e.Kind, "-", "-", "-", "-", "never run")
			continue
		}
		found++
		fmt.Fprintf(w, "%-18s %-9s %-8s %-9s %-9s %-8s %s\n",
			formatName(e.Name),
			e.Kind,
			e.Record.Status,
			formatRunID(e.Record.RunID),
			formatProgress(e.Record),
			formatTimestamp(e.Record.UpdatedAtMs),
			formatSummary(e.Record.Summary),
		)
	}

	noun := "record"
	if found != 1 {
		noun = "records"
	}
	fmt.Fprintf(w, "\n%d %s found\n", found, noun)

	return found
}

// FormatJSONL writes entries as line-delimited JSON, one coordinator per line.
func FormatJSONL(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one record as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, record *blackboard.Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

func formatName(name string) string {
	if len(name) > 18 {
		return name[:15] + "..."
	}
	return name
}

// formatRunID truncates the run ID to its first 8 characters.
func formatRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatProgress shows finished/total children, or iterations for repeat.
func formatProgress(r *blackboard.Record) string {
	if r.Kind == blackboard.KindRepeat {
		return fmt.Sprintf("%d/%d", r.CurrentCount, r.TotalCount)
	}
	return fmt.Sprintf("%d/%d", r.CompletedChildren, r.TotalChildren)
}

// formatSummary keeps the first non-empty line, at most 40 characters.
func formatSummary(summary string) string {
	for _, line := range strings.Split(summary, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if len(trimmed) > 40 {
			return trimmed[:37] + "..."
		}
		return trimmed
	}
	return "-"
}

// formatTimestamp renders Unix milliseconds as a relative age like "2m ago".
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
