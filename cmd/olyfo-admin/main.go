package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/cli"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/config"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap((*config.Config).Validate)
	root := newRootCmd(cfg, logger.WithComponent(log.ComponentAdmin))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config, logger *log.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "olyfo-admin",
		Short:         "Administrative tasks for the olyfo funding portal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newCreateUserCmd(cfg, logger),
		newMigrateCmd(cfg, logger),
		newStatsCmd(cfg, logger),
	)
	return root
}
