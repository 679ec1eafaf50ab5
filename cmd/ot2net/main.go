// Command ot2net runs the OT2Net API and its maintenance tasks.
//
// Subcommands:
//
//	serve         HTTP API with the async audit writer
//	migrate       apply pending database migrations and exit
//	matrix check  validate the permission matrix against the known roles
//	matrix show   print each role's grants
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ot2net",
		Short:         "OT2Net compliance platform API",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("config", "config.yaml", "path to an optional YAML config file")

	root.AddCommand(
		serveCmd(),
		migrateCmd(),
		matrixCmd(),
	)
	return root
}
