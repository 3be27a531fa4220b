package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"rolegate/authbot/internal/app"
	"rolegate/authbot/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "authbot",
		Short: "Discord role-granting authentication bot and dashboard API",
		Long: `authbot grants a configured set of roles to guild members who complete
an authentication prompt, a panel click, or join with auto-auth enabled.

Configuration is read from the environment (DISCORD_TOKEN, DISCORD_APP_ID,
DATABASE_URL, REDIS_URL, DASHBOARD_ADMIN_TOKEN, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRegisterCommandsCmd(), newWaitPostgresCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and serve the dashboard API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("create app: %w", err)
			}
			if err := a.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run app: %w", err)
			}
			return nil
		},
	}
}

func newRegisterCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register-commands",
		Short: "Publish the slash commands (guild scoped when DISCORD_GUILD_ID is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return app.RegisterCommands(cmd.Context(), cfg)
		},
	}
}

func newWaitPostgresCmd() *cobra.Command {
	var (
		dsn     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "wait-postgres",
		Short: "Block until Postgres accepts connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return fmt.Errorf("--dsn or DATABASE_URL is required")
			}
			if timeout <= 0 {
				return fmt.Errorf("--timeout must be > 0")
			}
			if err := waitForPostgres(cmd.Context(), dsn, timeout, 2*time.Second); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "postgres ready")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "postgres connection string")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "how long to keep retrying")
	return cmd
}

func waitForPostgres(ctx context.Context, dsn string, timeout, interval time.Duration) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	deadline := time.Now().Add(timeout)
	for {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("postgres not ready within %s: %w", timeout, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
