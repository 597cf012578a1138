package integration

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildCLI compiles the slipguard binary into a temp dir
func buildCLI(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping CLI test in short mode")
	}

	binaryPath := filepath.Join(t.TempDir(), "slipguard-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../cmd/slipguard")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build CLI: %v\nOutput: %s", err, output)
	}
	return binaryPath
}

// cliEnv isolates the binary from the developer's home config and .env
func cliEnv(t *testing.T) (dir string, env []string) {
	dir = t.TempDir()
	env = append(os.Environ(), "HOME="+dir)
	return dir, env
}

func TestCLIVersion(t *testing.T) {
	binaryPath := buildCLI(t)

	output, err := exec.Command(binaryPath, "version").CombinedOutput()
	if err != nil {
		t.Fatalf("Version command failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(string(output), "slipguard version") {
		t.Errorf("Version output should contain 'slipguard version'\nOutput: %s", output)
	}
}

func TestCLIHelp(t *testing.T) {
	binaryPath := buildCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{"help command", []string{"help"}},
		{"help flag", []string{"--help"}},
		{"scan help", []string{"scan", "--help"}},
		{"batch help", []string{"batch", "--help"}},
		{"serve help", []string{"serve", "--help"}},
		{"analyze help", []string{"analyze", "--help"}},
		{"worker help", []string{"worker", "--help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, _ := exec.Command(binaryPath, tt.args...).CombinedOutput()
			outputStr := string(output)
			if !strings.Contains(outputStr, "Usage:") && !strings.Contains(outputStr, "Available Commands") {
				t.Errorf("Help output should contain usage information\nOutput: %s", outputStr)
			}
		})
	}
}

func TestCLIAnalyze(t *testing.T) {
	binaryPath := buildCLI(t)
	dir, env := cliEnv(t)

	cmd := exec.Command(binaryPath, "analyze", "ด่วน! บัญชีของคุณถูกระงับ กรุณาแจ้งรหัส OTP ที่ https://bit.ly/x")
	cmd.Dir = dir
	cmd.Env = env
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("analyze failed: %v\nOutput: %s", err, output)
	}

	var report map[string]interface{}
	if err := json.Unmarshal(output, &report); err != nil {
		t.Fatalf("analyze output is not JSON: %v\nOutput: %s", err, output)
	}
	if score, _ := report["risk_score"].(float64); score <= 0 {
		t.Errorf("risk_score = %v, want > 0", report["risk_score"])
	}
}

func TestCLIAnalyzeChatFromStdin(t *testing.T) {
	binaryPath := buildCLI(t)
	dir, env := cliEnv(t)

	cmd := exec.Command(binaryPath, "analyze", "--chat")
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = strings.NewReader("10:21 แอดมิน: ด่วน โอนเงินภายในวันนี้\n10:22 ฉัน: ได้ครับ\n")
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("analyze --chat failed: %v\nOutput: %s", err, output)
	}

	var report map[string]interface{}
	if err := json.Unmarshal(output, &report); err != nil {
		t.Fatalf("analyze --chat output is not JSON: %v\nOutput: %s", err, output)
	}
	if _, ok := report["messages"]; !ok {
		t.Errorf("chat report should contain messages\nOutput: %s", output)
	}
}

func TestCLIConfigFile(t *testing.T) {
	binaryPath := buildCLI(t)
	dir, env := cliEnv(t)

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("engine:\n  provider: bogus\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(binaryPath, "--config", configPath, "analyze", "hello")
	cmd.Dir = dir
	cmd.Env = env
	output, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("invalid provider in config file should fail\nOutput: %s", output)
	}
	if !strings.Contains(string(output), "bogus") {
		t.Errorf("error should name the invalid provider\nOutput: %s", output)
	}

	// a flag overrides the file
	cmd = exec.Command(binaryPath, "--config", configPath, "--engine", "tesseract", "analyze", "hello")
	cmd.Dir = dir
	cmd.Env = env
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Errorf("--engine should override the config file: %v\nOutput: %s", err, output)
	}
}

func TestCLIScanMissingFile(t *testing.T) {
	binaryPath := buildCLI(t)
	dir, env := cliEnv(t)

	cmd := exec.Command(binaryPath, "scan", filepath.Join(dir, "missing.png"))
	cmd.Dir = dir
	cmd.Env = env
	output, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("scan of a missing file should fail\nOutput: %s", output)
	}
	if !strings.Contains(string(output), `"status": "error"`) {
		t.Errorf("scan should still print an error result\nOutput: %s", output)
	}
}

func TestCLIWorkerRequiresQueue(t *testing.T) {
	binaryPath := buildCLI(t)
	dir, env := cliEnv(t)

	cmd := exec.Command(binaryPath, "worker")
	cmd.Dir = dir
	cmd.Env = env
	output, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("worker without a queue should fail\nOutput: %s", output)
	}
	if !strings.Contains(string(output), "queue.redis-url") {
		t.Errorf("error should name queue.redis-url\nOutput: %s", output)
	}
}

func TestCLIInvalidCommand(t *testing.T) {
	binaryPath := buildCLI(t)

	output, err := exec.Command(binaryPath, "invalid-command").CombinedOutput()
	if err == nil {
		t.Error("Invalid command should return error")
	}
	if !strings.Contains(string(output), "unknown command") {
		t.Errorf("Output should mention unknown command\nOutput: %s", output)
	}
}
