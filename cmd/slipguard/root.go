package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platinummonkey/slipguard/internal/config"
	"github.com/platinummonkey/slipguard/internal/logger"
)

var (
	cfgFile string

	// populated by the root PersistentPreRunE for every subcommand
	appConfig *config.Config
	appLogger *logger.Logger
)

// flagKeys maps CLI flag names to configuration keys
var flagKeys = map[string]string{
	"log-level":     "log-level",
	"log-format":    "log-format",
	"log-file":      "log-file",
	"keywords-file": "keywords-file",
	"risk-file":     "risk-file",
	"engine":        "engine.provider",
	"model":         "engine.model",
	"endpoint":      "engine.endpoint",
	"languages":     "engine.languages",
	"max-variants":  "pipeline.max-variants",
	"redis-url":     "cache.redis-url",
	"history-dsn":   "history.dsn",
	"state-file":    "batch.state-file",
	"addr":          "server.addr",
	"pid-file":      "server.pid-file",
	"watch-dir":     "batch.watch-dir",
	"interval":      "batch.interval",
	"notify":        "batch.notify",
	"queue-url":     "queue.redis-url",
	"concurrency":   "queue.concurrency",
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "slipguard",
	Short: "Read Thai payment slips and flag scam signals",
	Long: `slipguard reads payment-slip screenshots with OCR and pulls out the bank,
account numbers and account holder names, and scores chat text for scam signals.

Features:
  - Several preprocessing variants per image, keeping the best reading
  - Bank, account number and name extraction with per-entity confidence
  - PaddleOCR, Tesseract and vision LLM recognition engines
  - Directory batch scans that skip unchanged files
  - HTTP API for the browser extension, with optional periodic batches

Configuration precedence: flags > SLIPGUARD_* environment > $HOME/.slipguard.yaml > defaults.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.slipguard.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")
	pf.String("log-file", "", "also write logs to this file")
	pf.String("keywords-file", "", "yaml file overriding bank, name and slip keywords")
	pf.String("risk-file", "", "yaml file overriding text risk categories")
	pf.String("engine", "paddle", "recognition engine (paddle, tesseract, ollama, openai, anthropic, google)")
	pf.String("model", "", "vision model for LLM engines (default depends on engine)")
	pf.String("endpoint", "", "HTTP endpoint for the paddle and ollama engines")
	pf.StringSlice("languages", []string{"tha", "eng"}, "tesseract languages")
	pf.String("redis-url", "", "Redis URL for the scan cache (default in-memory)")
	pf.String("history-dsn", "", "postgres DSN for scan history (default disabled)")
}

// initConfig loads configuration, binds the flags the user set and initializes logging
func initConfig(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}

	cfg := config.FromViper(v)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := &logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogFile,
	}
	if err := logger.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appConfig = cfg
	appLogger = logger.Get()

	if used := v.ConfigFileUsed(); used != "" {
		appLogger.WithFields("file", used).Debug("Using config file")
	}
	return nil
}

// bindFlags binds only flags the user changed so that defaults do not shadow the
// config file or environment
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}

	// negated, so it cannot be bound directly
	if f := cmd.Flags().Lookup("no-qr"); f != nil && f.Changed {
		skip, _ := cmd.Flags().GetBool("no-qr")
		v.Set("pipeline.decode-qr", !skip)
	}
	return nil
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
