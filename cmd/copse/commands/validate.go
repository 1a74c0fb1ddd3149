package commands

import (
	"github.com/dyluth/copse/internal/printer"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check copse.yml without running anything",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	printer.Success("%s is valid\n", configPath)
	printer.Info("  instance: %s\n", cfg.Instance)
	if cfg.Root != "" {
		printer.Info("  root:     %s\n", cfg.Root)
	}
	for _, name := range cfg.Names() {
		c := cfg.Coordinators[name]
		printer.Info("  %-18s %-9s %d children\n", name, c.Kind, len(c.Children))
	}
	return nil
}
