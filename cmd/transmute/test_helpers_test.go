package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"transmute/internal/config"
	"transmute/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	inputDir   string
}

// setupCLITestEnv writes a config file whose directories live under a temp
// dir. apiBind may be empty to keep the default.
func setupCLITestEnv(t *testing.T, apiBind string) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	if apiBind != "" {
		cfg.Paths.APIBind = apiBind
	}

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	inputDir := filepath.Join(base, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath, inputDir: inputDir}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstaging_dir = %q\noutput_dir = %q\nstate_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[routing]\nmax_hops = %d\n",
		cfg.Paths.StagingDir,
		cfg.Paths.OutputDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Routing.MaxHops,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--env-file", ""}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q in output:\n%s", substr, output)
	}
}
