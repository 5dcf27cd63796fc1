package deps

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"transmute/internal/catalog"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank result %#v", results[2])
	}
}

func TestCheckBinariesReadsVersion(t *testing.T) {
	orig := commandContext
	t.Cleanup(func() { commandContext = orig })
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/bin/sh", "-c", "printf '\\nffmpeg version 7.1 Copyright\\nbuilt with gcc\\n'")
	}

	binDir := t.TempDir()
	tool := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	results := CheckBinaries(context.Background(), []Requirement{{Name: "FFmpeg", Command: tool, VersionArgs: []string{"-version"}}})
	if results[0].Version != "ffmpeg version 7.1 Copyright" {
		t.Fatalf("unexpected version %q", results[0].Version)
	}
}

func TestUnavailableMethods(t *testing.T) {
	statuses := []Status{
		{Name: "FFmpeg", Available: true, Methods: []catalog.Method{catalog.MethodFFmpeg}},
		{Name: "Calibre", Methods: []catalog.Method{catalog.MethodCalibre}},
		{Name: "Poppler", Methods: []catalog.Method{catalog.MethodPoppler, catalog.MethodCalibre}},
	}
	got := UnavailableMethods(statuses)
	want := []catalog.Method{catalog.MethodCalibre, catalog.MethodPoppler}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
