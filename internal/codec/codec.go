package codec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"transmute/internal/catalog"
	"transmute/internal/optimize"
)

// Descriptor identifies a file on disk and the format it holds.
type Descriptor struct {
	Path   string         `json:"path"`
	Format catalog.Format `json:"format"`
	Size   int64          `json:"size"`
}

// Describe stats path and returns its descriptor.
func Describe(path string, format catalog.Format) (Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Descriptor{}, err
	}
	if info.IsDir() {
		return Descriptor{}, fmt.Errorf("%s is a directory", path)
	}
	return Descriptor{Path: path, Format: format, Size: info.Size()}, nil
}

// Progress is reported by backends while a hop runs. Percent covers the hop
// only (0-100).
type Progress struct {
	Percent float64
	Message string
	ETA     time.Duration
}

// Request describes one hop.
type Request struct {
	Input    Descriptor
	From     catalog.Format
	To       catalog.Format
	Method   catalog.Method
	Options  optimize.Resolved
	WorkDir  string
	Progress func(Progress)
}

func (r Request) report(p Progress) {
	if r.Progress == nil {
		return
	}
	p.Percent = min(max(p.Percent, 0), 100)
	r.Progress(p)
}

// Backend converts req.Input into req.To inside req.WorkDir.
type Backend interface {
	Execute(ctx context.Context, req Request) (Descriptor, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (Descriptor, error)

// Execute calls f.
func (f BackendFunc) Execute(ctx context.Context, req Request) (Descriptor, error) {
	return f(ctx, req)
}

var extensions = map[catalog.Format]string{
	"kepub": "kepub.epub",
	"av1":   "mkv",
}

// Extension returns the file extension (without dot) used for f.
func Extension(f catalog.Format) string {
	if ext, ok := extensions[f]; ok {
		return ext
	}
	return string(f)
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, "."+ext) {
			return base[:len(base)-len(ext)-1]
		}
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return base
	}
	return stem
}

// OutputPath is where a backend writes the result of req.
func OutputPath(req Request) string {
	return filepath.Join(req.WorkDir, Stem(req.Input.Path)+"."+Extension(req.To))
}
