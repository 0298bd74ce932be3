package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/campuslms/chatcore/internal/app"
	"github.com/campuslms/chatcore/internal/auth"
	"github.com/campuslms/chatcore/internal/config"
	"github.com/campuslms/chatcore/internal/log"
	"github.com/campuslms/chatcore/internal/store"
	"github.com/campuslms/chatcore/internal/store/sqlite"
)

type rootOptions struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "campuschat",
		Short:         "Real-time chat server for the campus LMS",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	flags.StringVar(&opts.overrides.Addr, "addr", "", "HTTP listen address")
	flags.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.overrides.LogFormat, "log-format", "", "log format (console, json)")
	flags.StringVar(&opts.overrides.DatabasePath, "db", "", "SQLite database path")
	flags.DurationVar(&opts.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")

	serve := newServeCmd(opts)
	root.AddCommand(serve, newMigrateCmd(opts), newTokenCmd(opts))
	root.RunE = serve.RunE

	return root
}

// load resolves configuration and builds the logger.
func (o *rootOptions) load() (*config.Config, *zerolog.Logger, error) {
	bootstrap := log.New("info", log.FormatConsole)
	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.UpdateFrom(o.overrides)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return &cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting campus chat server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer st.Close()

			logger.Info().Str("db_path", cfg.DatabasePath).Msg("migrations applied")
			return nil
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		userID int64
		name   string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an identity token for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			if userID == 0 {
				if name == "" {
					return fmt.Errorf("either --user-id or --name is required")
				}
				user, err := st.CreateUser(ctx, name, store.UserRole(role))
				if err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				userID = user.ID
			}

			token, err := auth.NewService(st, app.JWTConfig(cfg)).IssueToken(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "existing user to issue the token for")
	cmd.Flags().StringVar(&name, "name", "", "create a user with this name when --user-id is not set")
	cmd.Flags().StringVar(&role, "role", string(store.UserRoleStudent), "role for a created user (student, instructor, admin)")
	return cmd
}
