// Package main is the entry point for the mail worker: the queue
// consumer that decodes, classifies, and delivers inbound messages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atomine-elektrine/elektrine-haraka/internal/config"
	"github.com/atomine-elektrine/elektrine-haraka/internal/delivery"
	"github.com/atomine-elektrine/elektrine-haraka/internal/directory"
	"github.com/atomine-elektrine/elektrine-haraka/internal/metrics"
	"github.com/atomine-elektrine/elektrine-haraka/internal/mimedec"
	"github.com/atomine-elektrine/elektrine-haraka/internal/queue"
	"github.com/atomine-elektrine/elektrine-haraka/internal/worker"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mailworker",
	Short:         "elektrine inbound mail queue consumer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume the inbound queue and deliver messages downstream",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		setupLogger(cfg.Logging.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		qc := queue.NewClient(cfg.Queue.Addr, cfg.Queue.Password, cfg.Queue.DB)
		dec := mimedec.New()
		del := delivery.New(delivery.Config{
			WebhookURL: cfg.Delivery.WebhookURL,
			APIKey:     cfg.Delivery.APIKey,
			MaxRetries: cfg.Delivery.MaxRetries,
			BaseDelay:  secondsDuration(cfg.Delivery.BaseDelay),
			Timeout:    secondsDuration(cfg.Delivery.Timeout),
		})

		var domains *directory.Cache
		if cfg.Directory.URL != "" {
			domains = directory.New(cfg.Directory.URL, secondsDuration(cfg.Directory.Refresh))
			go domains.Run(ctx)
		}

		w := worker.New(cfg, qc, dec, del, domains)

		if cfg.Admin.Listen != "" {
			go func() {
				if err := metrics.ServeAdmin(ctx, cfg.Admin.Listen, w.Counters); err != nil {
					slog.Error("admin server error", "error", err)
				}
			}()
		}

		return w.Run(ctx)
	},
}

var dlqPeekCount int64

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead-letter queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		setupLogger(cfg.Logging.Level)

		qc := queue.NewClient(cfg.Queue.Addr, cfg.Queue.Password, cfg.Queue.DB)
		defer qc.Close()

		entries, err := qc.PeekDLQ(cmd.Context(), cfg.Queue.DLQName, dlqPeekCount)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("dead-letter queue is empty")
			return nil
		}
		for _, data := range entries {
			dle, err := queue.UnmarshalDeadLetter(data)
			if err != nil {
				fmt.Printf("unreadable entry (%d bytes): %v\n", len(data), err)
				continue
			}
			fmt.Printf("%s  message=%s  status=%d  failed_at=%s  error=%s\n",
				dle.ID, dle.Entry.MessageID, dle.StatusCode,
				dle.FailedAt.Format("2006-01-02T15:04:05Z07:00"), dle.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file (optional)")
	dlqCmd.Flags().Int64Var(&dlqPeekCount, "count", 20, "number of entries to show from the head")
	rootCmd.AddCommand(runCmd, dlqCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("mailworker failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from the --config path (YAML + env
// override) or from environment variables only if no path is given.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func secondsDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
