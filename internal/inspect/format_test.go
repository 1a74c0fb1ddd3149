package inspect

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSummary(t *testing.T) {
	tests := []struct {
		name     string
		summary  string
		expected string
	}{
		{name: "empty", summary: "", expected: "-"},
		{name: "short", summary: "all 3 children succeeded", expected: "all 3 children succeeded"},
		{name: "exactly 40 chars", summary: strings.Repeat("a", 40), expected: strings.Repeat("a", 40)},
		{name: "41 chars truncates", summary: strings.Repeat("a", 41), expected: strings.Repeat("a", 37) + "..."},
		{name: "first non-empty line", summary: "\n  first  \nsecond", expected: "first"},
		{name: "whitespace only", summary: "  \n ", expected: "-"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatSummary(tt.summary))
		})
	}
}

func TestFormatRunIDAndName(t *testing.T) {
	assert.Equal(t, "5b0f1c1e", formatRunID("5b0f1c1e-8d5e-4c43-9d6a-2f6f5a9d7c11"))
	assert.Equal(t, "short", formatRunID("short"))
	assert.Equal(t, strings.Repeat("n", 15)+"...", formatName(strings.Repeat("n", 30)))
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "2/3", formatProgress(&blackboard.Record{Kind: blackboard.KindParallel, CompletedChildren: 2, TotalChildren: 3}))
	assert.Equal(t, "4/5", formatProgress(&blackboard.Record{Kind: blackboard.KindRepeat, CurrentCount: 4, TotalCount: 5}))
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		ts       int64
		expected string
	}{
		{name: "zero", ts: 0, expected: "-"},
		{name: "seconds", ts: now.Add(-5 * time.Second).UnixMilli(), expected: "5s ago"},
		{name: "minutes", ts: now.Add(-3 * time.Minute).UnixMilli(), expected: "3m ago"},
		{name: "hours", ts: now.Add(-2 * time.Hour).UnixMilli(), expected: "2h ago"},
		{name: "days", ts: now.Add(-50 * time.Hour).UnixMilli(), expected: "2d ago"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTimestamp(tt.ts))
		})
	}
}

func TestFormatTable(t *testing.T) {
	t.Run("no coordinators", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Equal(t, 0, FormatTable(&buf, nil, "ci"))
		assert.Contains(t, buf.String(), "No coordinators configured for instance 'ci'")
	})

	t.Run("mixed entries", func(t *testing.T) {
		entries := []Entry{
			{Name: "build", Kind: "sequence", Record: &blackboard.Record{
				RunID:             "5b0f1c1e-8d5e-4c43-9d6a-2f6f5a9d7c11",
				Kind:              blackboard.KindSequence,
				Status:            blackboard.StatusSuccess,
				Summary:           "all 2 children succeeded",
				CompletedChildren: 2,
				TotalChildren:     2,
				UpdatedAtMs:       time.Now().UnixMilli(),
			}},
			{Name: "deploy", Kind: "parallel"},
		}

		var buf bytes.Buffer
		assert.Equal(t, 1, FormatTable(&buf, entries, "ci"))

		out := buf.String()
		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "5b0f1c1e")
		assert.Contains(t, out, "2/2")
		assert.Contains(t, out, "never run")
		assert.Contains(t, out, "1 record found")
	})
}

func TestFormatJSONL(t *testing.T) {
	entries := []Entry{
		{Name: "a", Kind: "sequence", RecordKey: "a"},
		{Name: "b", Kind: "repeat", RecordKey: "b", SignalKey: "sig", Signal: blackboard.StatusRunning},
	}

	var buf bytes.Buffer
	require.NoError(t, FormatJSONL(&buf, entries))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var decoded Entry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
	assert.Equal(t, entries[1], decoded)
}

func TestFormatSingleJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatSingleJSON(&buf, &blackboard.Record{Name: "x", Status: blackboard.StatusRunning}))
	assert.Contains(t, buf.String(), "\n  \"name\": \"x\"")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}
