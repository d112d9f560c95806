// Command payments-engine processes a CSV of client transactions and
// reports the final balance of every account.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aidin1998/payments_engine/internal/config"
	"github.com/Aidin1998/payments_engine/internal/engine"
	"github.com/Aidin1998/payments_engine/internal/ingest"
	"github.com/Aidin1998/payments_engine/internal/report"
	"github.com/Aidin1998/payments_engine/internal/server"
	"github.com/Aidin1998/payments_engine/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		logLevel    string
		output      string
		format      string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:           "payments-engine <transactions.csv>",
		Short:         "Apply a transaction stream and report final account balances",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			// Flags win over file and environment.
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("output") {
				cfg.Output = output
			}
			if cmd.Flags().Changed("format") {
				cfg.Format = format
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}

			return run(cmd.Context(), cfg, args[0])
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "report destination, - for stdout")
	cmd.Flags().StringVar(&format, "format", "csv", "report format (csv|table)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "prometheus listen address, empty to disable")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, input string) error {
	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer zapLogger.Sync()

	if cfg.MetricsAddr != "" {
		srv := server.NewServer(cfg.MetricsAddr, zapLogger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				zapLogger.Warn("metrics listener shutdown", zap.Error(err))
			}
		}()
	}

	reader, err := ingest.Open(input)
	if err != nil {
		return err
	}
	defer reader.Close()

	eng := engine.NewEngine(zapLogger)

	start := time.Now()
	summary, err := eng.Run(ctx, reader)
	if err != nil {
		return fmt.Errorf("process %s: %w", input, err)
	}

	if err := render(cfg, eng); err != nil {
		return err
	}

	zapLogger.Info("run complete",
		zap.String("input", input),
		zap.Int("processed", summary.Processed),
		zap.Int("ignored", summary.Ignored),
		zap.Int("accounts", summary.Accounts),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func render(cfg *config.Config, eng *engine.Engine) error {
	stmts := eng.Statements()

	if cfg.Format == "table" {
		return report.RenderTable(stmts)
	}

	var w io.Writer = os.Stdout
	if cfg.Output != "-" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	return report.WriteCSV(w, stmts)
}
