package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/copse/internal/printer"
	"github.com/dyluth/copse/internal/watch"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	triggerPayload string
	triggerWait    bool
	triggerTimeout time.Duration
)

var triggerCmd = &cobra.Command{
	Use:   "trigger COORDINATOR",
	Short: "Ask a running 'copse serve' to start a coordinator",
	Long: `Publish a trigger for COORDINATOR on the Redis blackboard. A 'copse
serve' process for the same instance picks it up.

With --wait, follow the coordinator record until the run finishes and exit
with its result.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrigger,
}

func init() {
	triggerCmd.Flags().StringVarP(&triggerPayload, "payload", "p", "", "Payload forwarded to every child")
	triggerCmd.Flags().BoolVarP(&triggerWait, "wait", "w", false, "Wait for the triggered run to finish")
	triggerCmd.Flags().DurationVar(&triggerTimeout, "timeout", 0, "Give up waiting after this long (0 waits forever)")
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.Coordinators[name]; !ok {
		return printer.Error(
			fmt.Sprintf("unknown coordinator '%s'", name),
			fmt.Sprintf("%s does not define it.", configPath),
			[]string{"List coordinators with: copse validate"},
		)
	}

	client, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	// Remember the current run so --wait does not stop on its old result
	recordKey := cfg.CoordinatorConfig(name).RecordKey
	var previous string
	if rec, err := client.GetRecord(ctx, recordKey); err == nil {
		previous = rec.RunID
	}

	if err := client.PublishTrigger(ctx, &blackboard.TriggerEvent{
		Coordinator:   name,
		Payload:       triggerPayload,
		RequestedAtMs: time.Now().UnixMilli(),
	}); err != nil {
		return printer.ErrorFrom(err, "failed to publish trigger", "", nil)
	}
	printer.Success("Triggered %s\n", name)

	if !triggerWait {
		return nil
	}

	rec, err := watch.PollForCompletion(ctx, client, recordKey, watch.Options{
		Timeout: triggerTimeout,
		Skip:    previous,
	})
	if err != nil {
		return printer.ErrorFrom(err, fmt.Sprintf("%s did not finish", name), "", nil)
	}

	printer.Printf("%s %s: %s\n", name, printer.Status(rec.Status), rec.Summary)
	if rec.Status != blackboard.StatusSuccess {
		return errRunFailed
	}
	return nil
}
