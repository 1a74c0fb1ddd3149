package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/copse/internal/printer"
	"github.com/dyluth/copse/internal/watch"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	watchTimeout  time.Duration
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch COORDINATOR",
	Short: "Follow a coordinator record until its run finishes",
	Long: `Print every change to COORDINATOR's record on the Redis blackboard
until the run reaches success or failure. Exits with the run's result.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 0, "Give up after this long (0 waits forever)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", watch.DefaultInterval, "Poll interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.Coordinators[name]; !ok {
		return printer.Error(
			fmt.Sprintf("unknown coordinator '%s'", name),
			fmt.Sprintf("%s does not define it.", configPath),
			nil,
		)
	}

	client, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	rec, err := watch.PollForCompletion(ctx, client, cfg.CoordinatorConfig(name).RecordKey, watch.Options{
		Interval: watchInterval,
		Timeout:  watchTimeout,
		OnChange: func(r *blackboard.Record) {
			printer.Printf("[%s] %s %s\n", time.UnixMilli(r.UpdatedAtMs).Format(time.TimeOnly), printer.Status(r.Status), r.Summary)
		},
	})
	if err != nil {
		return printer.ErrorFrom(err, fmt.Sprintf("stopped watching %s", name), "", nil)
	}
	if rec.Status != blackboard.StatusSuccess {
		return errRunFailed
	}
	return nil
}
