package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"transmute/internal/logging"
)

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("set old time: %v", err)
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	oldDir := filepath.Join(tmpDir, "job-old")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create old dir: %v", err)
	}
	age(t, oldDir, 2*time.Hour)

	recentDir := filepath.Join(tmpDir, "job-recent")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, nil, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != oldDir {
		t.Fatalf("expected only %s removed, got %v", oldDir, result.Removed)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("old directory should have been removed")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent directory should still exist")
	}
}

func TestCleanStaleKeepsActiveJobs(t *testing.T) {
	tmpDir := t.TempDir()
	ws := NewWorkspace(tmpDir)
	if _, err := ws.HopDir("busy", 0); err != nil {
		t.Fatalf("HopDir: %v", err)
	}
	age(t, ws.JobDir("busy"), 48*time.Hour)

	result := CleanStale(context.Background(), tmpDir, time.Hour, map[string]struct{}{"busy": {}}, nil)
	if len(result.Removed) != 0 {
		t.Fatalf("active job directory removed: %v", result.Removed)
	}
}

func TestCleanStaleIgnoresFiles(t *testing.T) {
	tmpDir := t.TempDir()

	oldFile := filepath.Join(tmpDir, "old-file.txt")
	if err := os.WriteFile(oldFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	age(t, oldFile, 2*time.Hour)

	result := CleanStale(context.Background(), tmpDir, time.Hour, nil, logging.NewNop())
	if len(result.Removed) != 0 {
		t.Errorf("expected no removals for files, got %d", len(result.Removed))
	}
	if _, err := os.Stat(oldFile); err != nil {
		t.Error("file should not have been removed")
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	dir, err := ws.HopDir("abc", 1)
	if err != nil {
		t.Fatalf("HopDir: %v", err)
	}
	if filepath.Base(dir) != "hop-2" || filepath.Base(filepath.Dir(dir)) != "job-abc" {
		t.Fatalf("unexpected hop dir %s", dir)
	}
	if id, ok := JobIDFromDir("job-abc"); !ok || id != "abc" {
		t.Fatalf("JobIDFromDir = %q,%v", id, ok)
	}
	if _, ok := JobIDFromDir("scratch"); ok {
		t.Fatal("non-job directory should not parse")
	}
	if _, err := ws.HopDir("", 0); err == nil {
		t.Fatal("expected error for empty job id")
	}
	if err := ws.Remove("abc"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(ws.JobDir("abc")); !os.IsNotExist(err) {
		t.Fatalf("job dir should be removed, err=%v", err)
	}
}

func TestListDirectories(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/path/12345"} {
		dirs, err := ListDirectories(path)
		if err != nil || dirs != nil {
			t.Fatalf("ListDirectories(%q) = %v, %v", path, dirs, err)
		}
	}
	ws := NewWorkspace(t.TempDir())
	dir, err := ws.HopDir("x", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "part.mkv"), make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	dirs, err := ListDirectories(ws.Root())
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 1 || dirs[0].Name != "job-x" || dirs[0].Size != 10 {
		t.Fatalf("unexpected listing %+v", dirs)
	}
}
