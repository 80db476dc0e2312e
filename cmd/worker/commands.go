package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"uho/internal/app"
	"uho/internal/auth"
	"uho/internal/telemetry"
	"uho/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process waiting jobs until the queue is empty or the budget is spent",
	RunE: func(cmd *cobra.Command, args []string) error {
		budget, _ := cmd.Flags().GetDuration("budget")
		if budget <= 0 {
			budget = cfg.WorkerBudget
		}
		if serve, _ := cmd.Flags().GetBool("metrics"); serve {
			go func() {
				if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
					logger.Warn("metrics server stopped", zap.Error(err))
				}
			}()
		}

		w := worker.New(deps.Queue, logger)
		w.Register(worker.ActionImageResize, worker.NewImageHandler(cfg, app.NewUploads(cmd.Context(), cfg, logger), logger))
		w.Register(worker.ActionCachePurge, worker.CachePurgeHandler(deps.Cache))

		processed, err := w.RunFor(cmd.Context(), budget)
		logger.Info("worker finished",
			zap.Int("processed", processed),
			zap.Duration("elapsed", w.Elapsed()),
			zap.Duration("budget", budget),
		)
		return err
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <type> [json-payload]",
	Short: "Queue an action; with --raw the argument is stored as given",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := args[0]
		if raw, _ := cmd.Flags().GetBool("raw"); !raw {
			payload := map[string]any{}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
					return fmt.Errorf("payload: %w", err)
				}
			}
			var err error
			if action, err = worker.Action(args[0], payload); err != nil {
				return err
			}
		}
		jobs, err := deps.Queue.Enqueue(cmd.Context(), action)
		if err != nil {
			return err
		}
		telemetry.JobsEnqueued.Inc()
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued job %d\n", jobs[0].ID)
		return nil
	},
}

var repeatCmd = &cobra.Command{
	Use:   "repeat <id>",
	Short: "Queue a new job with the action of an existing one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}
		job, err := deps.Queue.Repeat(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %d repeated as %d\n", id, job.ID)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print waiting and completed-today counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		waiting, err := deps.Queue.CountWaiting(cmd.Context())
		if err != nil {
			return err
		}
		today, err := deps.Queue.CountCompletedToday(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "waiting=%d completed_today=%d\n", waiting, today)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply Postgres migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := deps.Store.RunMigrations(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint an API bearer token signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	// Needs no backends.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		c := loadConfig()
		tok, err := auth.NewVerifier(c.JWTSecret).Sign(args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	runCmd.Flags().Duration("budget", 0, "stop claiming new jobs after this long (default $WORKER_BUDGET)")
	runCmd.Flags().Bool("metrics", false, "serve Prometheus metrics on $METRICS_ADDR while running")
	enqueueCmd.Flags().Bool("raw", false, "store the first argument as the action verbatim")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(runCmd, enqueueCmd, repeatCmd, statsCmd, migrateCmd, tokenCmd)
}
