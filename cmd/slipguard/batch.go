package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/slipguard/internal/batch"
	"github.com/platinummonkey/slipguard/internal/state"
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Scan every image in a directory",
	Long: `Scan every image under a directory and print a summary.

A state file records the content hash and outcome of each image, so files
that have not changed since the last run are skipped. Images that failed are
retried up to three times. Interrupting the batch (Ctrl-C) keeps the progress
made so far.

Examples:
  # Scan new and changed screenshots
  slipguard batch ~/Pictures/slips

  # Rescan everything, ignoring the state file
  slipguard batch --force ~/Pictures/slips`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Bool("force", false, "rescan all images (ignore state)")
	batchCmd.Flags().String("state-file", "", "batch state file (default $HOME/.slipguard-state.json)")
	batchCmd.Flags().Int("max-variants", 3, "maximum preprocessing variants per image")
}

func runBatch(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, appConfig, appLogger)
	if err != nil {
		return err
	}
	defer p.Close()

	stateStore, err := state.LoadOrCreate(appConfig.Batch.StateFile)
	if err != nil {
		return fmt.Errorf("failed to initialize state: %w", err)
	}

	runner, err := batch.New(&batch.Config{
		Logger:     appLogger,
		Scanner:    p.orchestrator,
		StateStore: stateStore,
	})
	if err != nil {
		return fmt.Errorf("failed to create batch runner: %w", err)
	}

	result, err := runner.Run(ctx, args[0], force)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprint(cmd.OutOrStdout(), result.Summary())

	if result.HasFailures() {
		return fmt.Errorf("batch completed with %d failures", result.FailureCount)
	}
	return nil
}
