package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/backend"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/cli"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/config"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/services"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store/postgres"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store/sqlite"
)

var errHostedUsers = errors.New("the hosted backend manages its own users; create them in its dashboard")

func newCreateUserCmd(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user on a self-hosted backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			be := cli.OpenBackend(ctx, logger, cfg)
			defer be.Close()
			return createUser(ctx, cmd.OutOrStdout(), be, email, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func createUser(ctx context.Context, out io.Writer, be *backend.BackendResult, email, password string) error {
	if be.Admin == nil {
		return errHostedUsers
	}
	u, err := be.Admin.CreateUser(ctx, email, password)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	_, err = fmt.Fprintf(out, "created user %s (%s)\n", u.Email, u.ID)
	return err
}

func newMigrateCmd(cfg *config.Config, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations for the configured backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			switch backend.BackendType(cfg.DataBackend) {
			case backend.SQLiteBackend:
				if err := sqlite.RunMigrations(cfg.SQLiteDBPath); err != nil {
					return err
				}
			case backend.PostgresBackend:
				repo, err := postgres.Open(ctx, cfg.PostgresDSN, false)
				if err != nil {
					return err
				}
				defer repo.Close()
				if err := repo.Migrate(ctx); err != nil {
					return err
				}
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "backend %s has no schema to migrate\n", cfg.DataBackend)
				return nil
			}
			logger.Info("Migrations applied", log.FieldBackend, cfg.DataBackend)
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newStatsCmd(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the dashboard aggregates for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			be := cli.OpenBackend(ctx, logger, cfg)
			defer be.Close()
			records := services.NewRecordService(be.Backend, nil, cfg.BackendTimeout, logger)
			return printStats(ctx, cmd.OutOrStdout(), records, userID, time.Now())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner id of the records")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printStats(ctx context.Context, out io.Writer, records *services.RecordService, userID string, now time.Time) error {
	caller := store.Caller{User: store.User{ID: userID}}
	d := records.LoadDashboard(ctx, caller, now)
	if d.Err != nil {
		return fmt.Errorf("load records: %w", d.Err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total operations\t%d\n", d.Summary.TotalOperations)
	fmt.Fprintf(tw, "Total amount\t%s\n", core.FormatAmount(d.Summary.TotalAmount))
	fmt.Fprintf(tw, "Pending tasks\t%d\n", d.Summary.PendingTasks)
	fmt.Fprintf(tw, "Documents\t%d\n", d.Summary.TotalDocuments)
	for _, m := range d.Monthly {
		fmt.Fprintf(tw, "%s %d\t%d\n", m.Label(), m.Year, m.Count)
	}
	return tw.Flush()
}
