package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/copse/internal/inspect"
	"github.com/dyluth/copse/internal/printer"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	inspectOutputFormat string
	inspectSince        string
	inspectUntil        string
	inspectName         string
	inspectKind         string
	inspectStatus       string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [COORDINATOR]",
	Short: "Show coordinator records on the blackboard",
	Long: `Show what the Redis blackboard holds for the configured coordinators.

List Mode (no COORDINATOR):
  One line per coordinator with status, run, progress and summary.

Get Mode (with COORDINATOR):
  The complete record as pretty-printed JSON.

Filters (list mode only):
  --since/--until take a duration ("1h") or an RFC3339 timestamp and
  match on when the record was last updated.
  --status waiting selects coordinators that have never run.

Output Formats (list mode only):
  default - Human-readable table
  jsonl   - Line-delimited JSON, one coordinator per line

Examples:
  # Overview
  copse inspect

  # Failed sequences in the last hour
  copse inspect --kind sequence --status failure --since 1h

  # Pipe to jq
  copse inspect -o jsonl | jq 'select(.record.status=="failure") | .name'

  # Full record
  copse inspect build`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectOutputFormat, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")
	inspectCmd.Flags().StringVar(&inspectSince, "since", "", "Only records updated after this time (duration or RFC3339)")
	inspectCmd.Flags().StringVar(&inspectUntil, "until", "", "Only records updated before this time (duration or RFC3339)")
	inspectCmd.Flags().StringVar(&inspectName, "name", "", "Glob on coordinator name (e.g. 'build-*')")
	inspectCmd.Flags().StringVar(&inspectKind, "kind", "", "Only coordinators of this kind (sequence, parallel, repeat)")
	inspectCmd.Flags().StringVar(&inspectStatus, "status", "", "Only records with this status")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 0 && inspectOutputFormat != "default" && inspectOutputFormat != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", inspectOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	criteria, err := inspectCriteria()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) > 0 {
		name := args[0]
		if _, ok := cfg.Coordinators[name]; !ok {
			return printer.Error(
				fmt.Sprintf("unknown coordinator '%s'", name),
				fmt.Sprintf("%s does not define it.", configPath),
				[]string{"List coordinators with: copse inspect"},
			)
		}
		err := inspect.GetRecord(ctx, client, cfg.CoordinatorConfig(name).RecordKey, printer.Stdout)
		if inspect.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("%s has no record", name),
				err.Error(),
				[]string{fmt.Sprintf("Start it with: copse trigger %s", name)},
			)
		}
		if err != nil {
			return printer.ErrorFrom(err, "failed to read record", "", nil)
		}
		return nil
	}

	entries, err := inspect.Collect(ctx, client, cfg)
	if err != nil {
		return printer.ErrorFrom(err, "failed to read blackboard", "", nil)
	}
	filtered := criteria.Filter(entries)
	if len(filtered) == 0 && len(entries) > 0 {
		if inspectOutputFormat == "default" {
			printer.Info("No coordinators match the filters\n")
		}
		return nil
	}
	entries = filtered

	if inspectOutputFormat == "jsonl" {
		return inspect.FormatJSONL(printer.Stdout, entries)
	}
	inspect.FormatTable(printer.Stdout, entries, cfg.Instance)
	return nil
}

func inspectCriteria() (*inspect.Criteria, error) {
	since, until, err := inspect.ParseRange(inspectSince, inspectUntil, time.Now())
	if err != nil {
		return nil, printer.Error("invalid time filter", err.Error(), nil)
	}

	c := &inspect.Criteria{SinceMs: since, UntilMs: until, NameGlob: inspectName, Kind: inspectKind}
	if inspectStatus != "" {
		status := blackboard.Status(inspectStatus)
		if status.Validate() != nil {
			return nil, printer.Error(
				"invalid status filter",
				fmt.Sprintf("Unknown status: %s", inspectStatus),
				[]string{"Valid statuses: waiting, running, success, failure"},
			)
		}
		c.Status = status
	}
	return c, nil
}
