package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/folio-org/eureka-ci-app/internal/config"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func writeTestConfig(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configYAML := `
webhook:
  secret_ref: webhook-secret
state:
  path: ` + filepath.Join(tmpDir, "eureka-ci.db") + `
secrets:
  dir: ` + tmpDir + `
config_store:
  root: ` + tmpDir + `
github:
  app_id: 12345
  private_key_ref: app-private-key
  dispatch_repo: folio-org/eureka-ci-workflows
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0600); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestRunConfigCheckValidConfig(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigCheck() code = %d, stderr: %s", code, stderr)
	}

	if !strings.Contains(stdout, "Config check PASSED") {
		t.Fatalf("stdout missing pass line: %s", stdout)
	}
	if !strings.Contains(stdout, "folio-org/eureka-ci-workflows@main") {
		t.Fatalf("stdout missing dispatch target with default ref: %s", stdout)
	}
	if !strings.Contains(stdout, "queue workers:   4") {
		t.Fatalf("stdout missing defaulted worker count: %s", stdout)
	}
}

func TestRunConfigCheckMissingFile(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	})
	if code != 1 {
		t.Fatalf("runConfigCheck() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Config check FAILED") {
		t.Fatalf("stderr missing failure line: %s", stderr)
	}
}

func TestRunConfigShowRedactsAuthKey(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configYAML := `
webhook:
  secret_ref: webhook-secret
api:
  enabled: true
  auth_key: super-secret-key
state:
  path: ` + filepath.Join(tmpDir, "eureka-ci.db") + `
secrets:
  dir: ` + tmpDir + `
config_store:
  root: ` + tmpDir + `
github:
  app_id: 12345
  private_key_ref: app-private-key
  dispatch_repo: folio-org/eureka-ci-workflows
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0600); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runConfigShow() code = %d, stderr: %s", code, stderr)
	}

	if strings.Contains(stdout, "super-secret-key") {
		t.Fatalf("stdout leaked auth key: %s", stdout)
	}
	if !strings.Contains(stdout, "<redacted>") {
		t.Fatalf("stdout missing redaction marker: %s", stdout)
	}
}

func TestRunConfigNounHelp(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"--help"})
	})
	if code != 0 {
		t.Fatalf("runConfigNoun() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Usage: eureka-ci config <check|show>") {
		t.Fatalf("stdout missing config usage: %s", stdout)
	}
}

func TestRunConfigNounUnknownAction(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"frobnicate"})
	})
	if code != 1 {
		t.Fatalf("runConfigNoun() code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown config action") {
		t.Fatalf("stderr missing unknown action message: %s", stderr)
	}
}

func TestPrintUsageListsCommands(t *testing.T) {
	_, stdout, _ := captureOutputWithExitCode(t, func() int {
		printUsage()
		return 0
	})
	for _, want := range []string{"start", "watch", "config check", "version"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("usage missing %q: %s", want, stdout)
		}
	}
}

func TestPIDLockPathDerivesFromStatePath(t *testing.T) {
	cfg := writeAndLoad(t)
	got := pidLockPath(cfg)
	if filepath.Ext(got) != ".pid" {
		t.Fatalf("pidLockPath() = %q, want .pid extension", got)
	}
	if filepath.Dir(got) != filepath.Dir(cfg.State.Path) {
		t.Fatalf("pidLockPath() = %q, want same directory as %q", got, cfg.State.Path)
	}
}

func writeAndLoad(t *testing.T) *config.Config {
	t.Helper()
	cfg, _, err := loadConfig(writeTestConfig(t))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	return cfg
}
