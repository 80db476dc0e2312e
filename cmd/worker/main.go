package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"uho/internal/app"
	"uho/internal/config"
	"uho/internal/logging"
)

var (
	cfg    config.Config
	logger *zap.Logger
	deps   *app.Deps
)

var rootCmd = &cobra.Command{
	Use:           "uho-worker",
	Short:         "Process and manage queued jobs",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if deps != nil {
			return nil
		}
		cfg = loadConfig()
		l, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		logger = l
		if cmd.Flags().Changed("queue") {
			cfg.QueueBackend, _ = cmd.Flags().GetString("queue")
		}
		d, err := app.Open(cmd.Context(), cfg, cmd.Name() == "migrate")
		if err != nil {
			return err
		}
		deps = d
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if deps != nil {
			deps.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("queue", "", "queue backend: postgres or redis (default $QUEUE_BACKEND)")
}

func loadConfig() config.Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return config.Load()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
