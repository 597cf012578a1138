package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Score text or a chat transcript for scam signals",
	Long: `Score a message for scam signals such as urgency, impersonation, OTP
requests, links and account numbers.

The text comes from the argument, --file, or standard input. With --chat the
input is treated as a pasted chat transcript: dates, timestamps and sender
labels are removed and each message is scored separately.

Examples:
  slipguard analyze "ด่วน! บัญชีของคุณถูกระงับ กรุณายืนยันตัวตนที่ https://bit.ly/x"
  slipguard analyze --chat --file chat.txt
  slipguard analyze --format summary "โอนเงินด่วนภายใน 30 นาที"
  pbpaste | slipguard analyze --chat`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().Bool("chat", false, "treat input as a chat transcript")
	analyzeCmd.Flags().String("file", "", "read text from a file")
	analyzeCmd.Flags().String("format", "json", "output format (json, summary)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	chat, _ := cmd.Flags().GetBool("chat")
	file, _ := cmd.Flags().GetString("file")
	format, _ := cmd.Flags().GetString("format")
	if format != "json" && format != "summary" {
		return fmt.Errorf("invalid --format %q, must be json or summary", format)
	}

	text, err := readText(cmd.InOrStdin(), args, file)
	if err != nil {
		return err
	}

	analyzer, err := newAnalyzer(appConfig, appLogger)
	if err != nil {
		return err
	}

	var report interface{}
	if chat {
		r := analyzer.AnalyzeChat(text)
		if format == "summary" {
			printChatReport(cmd.OutOrStdout(), r)
			return nil
		}
		report = r
	} else {
		r := analyzer.Analyze(text)
		if format == "summary" {
			printReport(cmd.OutOrStdout(), r)
			return nil
		}
		report = r
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func readText(stdin io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", fmt.Errorf("pass text as an argument or with --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read standard input: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("no text to analyze")
	}
	return string(data), nil
}
