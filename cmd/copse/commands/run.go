package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/copse/internal/coordinator"
	apperrors "github.com/dyluth/copse/internal/errors"
	"github.com/dyluth/copse/internal/printer"
	"github.com/dyluth/copse/internal/tree"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/spf13/cobra"
)

// errRunFailed is returned when a run finishes with Failure.
var errRunFailed = errors.New("run failed")

var (
	runPayload string
	runTimeout time.Duration
	runQuiet   bool
)

var runCmd = &cobra.Command{
	Use:   "run [COORDINATOR]",
	Short: "Trigger a coordinator in this process and wait for its result",
	Long: `Build the tree from copse.yml, trigger one coordinator (the root when
none is named) and wait until it finishes.

Children run in this process. Without redis_url the blackboard lives in
memory and disappears when the command exits.

Exit status is 0 when the run succeeds and 1 when it fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runPayload, "payload", "p", "", "Payload forwarded to every child")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Give up after this long (0 waits forever)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print the final result")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := stderrLogger()
	if err != nil {
		return printer.ErrorFrom(apperrors.NewConfigError("%v", err), "invalid logging flags", "", nil)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := tree.Options{Logger: logger}
	if !runQuiet {
		opts.Sink = printer.NewSink(nil)
	}
	tr, err := tree.Build(cfg, store, opts)
	if err != nil {
		return printer.ErrorFrom(err, "failed to build coordinator tree", "", nil)
	}
	defer tr.Close()

	name := cfg.Root
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		return printer.ErrorFrom(
			apperrors.NewConfigError("no root coordinator"),
			"no coordinator to run",
			"copse.yml has more than one top-level coordinator and no root.",
			[]string{"Name one: copse run <coordinator>", "Set root: in copse.yml"},
		)
	}

	run, err := tr.Trigger(ctx, name, runPayload)
	if err != nil {
		return printer.ErrorFrom(err, fmt.Sprintf("failed to start %s", name), "", nil)
	}

	waitCtx := ctx
	if runTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	res, err := run.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.TimeoutError{Operation: "run " + name, Limit: runTimeout}
		}
		return printer.ErrorFrom(err, fmt.Sprintf("%s did not finish", name), "", nil)
	}

	return reportResult(name, res)
}

// reportResult prints a finished run and maps Failure to errRunFailed.
func reportResult(name string, res *coordinator.Result) error {
	printer.Printf("%s %s in %s: %s\n",
		name,
		printer.Status(res.Status),
		res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond),
		res.Summary,
	)
	if res.Status != blackboard.StatusSuccess {
		return errRunFailed
	}
	return nil
}
