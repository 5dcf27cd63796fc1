package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const jobDirPrefix = "job-"

// Workspace hands out work directories below a staging root.
type Workspace struct {
	root string
}

// NewWorkspace returns a workspace rooted at root. An empty root uses a
// directory below os.TempDir.
func NewWorkspace(root string) *Workspace {
	root = strings.TrimSpace(root)
	if root == "" {
		root = filepath.Join(os.TempDir(), "transmute-staging")
	}
	return &Workspace{root: root}
}

// Root returns the staging root.
func (w *Workspace) Root() string { return w.root }

// JobDir returns the directory name used for jobID, without creating it.
func (w *Workspace) JobDir(jobID string) string {
	return filepath.Join(w.root, jobDirPrefix+jobID)
}

// HopDir creates and returns the work directory for hop index (0-based) of jobID.
func (w *Workspace) HopDir(jobID string, index int) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", errors.New("job id required")
	}
	dir := filepath.Join(w.JobDir(jobID), fmt.Sprintf("hop-%d", index+1))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create hop directory: %w", err)
	}
	return dir, nil
}

// Remove deletes everything staged for jobID.
func (w *Workspace) Remove(jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return nil
	}
	if err := os.RemoveAll(w.JobDir(jobID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// JobIDFromDir extracts the job id from a staging directory name.
func JobIDFromDir(name string) (string, bool) {
	if !strings.HasPrefix(name, jobDirPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(name, jobDirPrefix)
	return id, id != ""
}
