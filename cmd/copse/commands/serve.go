package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/copse/internal/coordinator"
	apperrors "github.com/dyluth/copse/internal/errors"
	"github.com/dyluth/copse/internal/orchestrator"
	"github.com/dyluth/copse/internal/printer"
	"github.com/dyluth/copse/internal/tree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator tree as a daemon",
	Long: `Build the tree from copse.yml against the Redis blackboard and start a
run whenever a trigger is published with 'copse trigger'.

Serves GET /healthz and GET /metrics on health_addr (default :8080).
Stops on SIGINT or SIGTERM, aborting any active runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	client, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := coordinator.NewMetrics(reg)
	if err != nil {
		return printer.ErrorFrom(err, "failed to register metrics", "", nil)
	}

	tr, err := tree.Build(cfg, client, tree.Options{Logger: logger, Metrics: metrics})
	if err != nil {
		return printer.ErrorFrom(err, "failed to build coordinator tree", "", nil)
	}

	health := orchestrator.NewHealthServer(cfg.HealthAddr, client, reg)
	engine := orchestrator.NewEngine(cfg.Instance, client, tr, health, logger)

	printer.Step("Serving %d coordinators for instance '%s' (health on %s)\n", len(cfg.Coordinators), cfg.Instance, cfg.HealthAddr)
	if err := engine.Run(ctx); err != nil {
		return printer.ErrorFrom(err, "copse serve stopped", "", nil)
	}
	printer.Success("stopped\n")
	return nil
}
