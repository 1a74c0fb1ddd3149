package commands

import (
	"context"

	"github.com/dyluth/copse/internal/printer"
	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Write a free-form value to the blackboard",
	Long: `Write VALUE under KEY on the Redis blackboard. Repeat coordinators with
count_key read their iteration count from such a value when triggered.

Example:
  copse set retry-count 5`,
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.PutValue(ctx, args[0], args[1]); err != nil {
		return printer.ErrorFrom(err, "failed to write value", "", nil)
	}
	printer.Success("%s = %s\n", args[0], args[1])
	return nil
}
