package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/slipguard/internal/scan"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <image>...",
	Short: "Scan payment slip images",
	Long: `Scan one or more payment-slip images and print what was found.

For each image the pipeline normalizes the picture, tries up to --max-variants
preprocessing variants, keeps the best OCR reading and extracts banks, account
numbers and account holder names.

Examples:
  # Print the full JSON result
  slipguard scan slip.png

  # Human-readable summary for several images
  slipguard scan --format summary slips/*.jpg

  # Use Tesseract instead of the PaddleOCR server
  slipguard scan --engine tesseract slip.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("format", "json", "output format (json, summary)")
	scanCmd.Flags().Int("max-variants", 3, "maximum preprocessing variants per image")
	scanCmd.Flags().Bool("no-qr", false, "skip slip QR code decoding")
}

func runScan(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "json" && format != "summary" {
		return fmt.Errorf("invalid --format %q, must be json or summary", format)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, appConfig, appLogger)
	if err != nil {
		return err
	}
	defer p.Close()

	failed := 0
	for _, path := range args {
		result, err := p.orchestrator.ScanFile(ctx, path)
		if err != nil {
			appLogger.WithFields("path", path, "error", err).Error("Scan failed")
			result = scan.NewErrorResult(err)
		}
		if result.Status == scan.StatusError {
			failed++
		}

		if err := printResult(cmd, path, result, format, len(args) > 1); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(args))
	}
	return nil
}

func printResult(cmd *cobra.Command, path string, result *scan.Result, format string, multi bool) error {
	out := cmd.OutOrStdout()

	if format == "summary" {
		if multi {
			statusColor(result.Status).Fprintf(out, "== %s ==\n", path)
		}
		fmt.Fprintln(out, result.Summary())
		return nil
	}

	var v interface{} = result
	if multi {
		v = struct {
			Path string `json:"path"`
			*scan.Result
		}{path, result}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
