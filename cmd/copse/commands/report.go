package commands

import (
	"context"
	"errors"
	"os"

	"github.com/dyluth/copse/internal/dispatch"
	apperrors "github.com/dyluth/copse/internal/errors"
	"github.com/dyluth/copse/internal/printer"
	"github.com/dyluth/copse/pkg/blackboard"
	"github.com/spf13/cobra"
)

var reportReply string

var reportCmd = &cobra.Command{
	Use:   "report STATUS",
	Short: "Report a child outcome onto the blackboard",
	Long: `Write STATUS (success or failure) to the blackboard address a
coordinator handed to a child. Command children configured with
self_report: true find that address in $COPSE_REPLY.

A report for a run that has already finished, or for a child whose outcome
is already recorded, is dropped and is not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportReply, "reply", "", "Reply address (default $COPSE_REPLY)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	status, err := blackboard.ParseStatus(args[0])
	if err == nil && !status.Terminal() {
		err = errors.New("only success or failure can be reported")
	}
	if err != nil {
		return printer.ErrorFrom(apperrors.ValidationError{Field: "status", Message: err.Error()},
			"invalid status", "", []string{"Report either success or failure"})
	}

	raw := reportReply
	if raw == "" {
		raw = os.Getenv(dispatch.EnvReply)
	}
	if raw == "" {
		return printer.ErrorFrom(apperrors.NewConfigError("no reply address"),
			"no reply address",
			"Neither --reply nor $COPSE_REPLY is set.",
			[]string{"Run this from a command child with self_report: true, or pass --reply"})
	}
	reply, err := blackboard.DecodeReply(raw)
	if err != nil {
		return printer.ErrorFrom(apperrors.ValidationError{Field: "reply", Message: err.Error()},
			"invalid reply address", "", nil)
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

	if err := blackboard.Report(ctx, client, reply, status); err != nil {
		if errors.Is(err, blackboard.ErrRunFinished) {
			printer.Warning("run already finished, report dropped\n")
			return nil
		}
		if errors.Is(err, blackboard.ErrAlreadyReported) {
			printer.Warning("outcome already reported, report dropped\n")
			return nil
		}
		return printer.ErrorFrom(err, "failed to report", "", nil)
	}
	printer.Success("reported %s\n", status)
	return nil
}
