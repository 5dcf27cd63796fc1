package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"transmute/internal/catalog"
	"transmute/internal/config"
	"transmute/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckNtfy polls the configured topic without publishing anything.
func CheckNtfy(ctx context.Context, topicURL string) Result {
	const name = "ntfy"
	base := strings.TrimRight(strings.TrimSpace(topicURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing topic url"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/json?poll=1&since=latest", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("topic check failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("topic check failed (%v)", err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "topic requires authentication"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("topic check failed (%d)", resp.StatusCode)}
	}
}

// ToolRequirements lists the converter binaries named in cfg together with
// the conversion methods that need them. FFmpeg and FFprobe are required;
// the rest only disable their methods when missing.
func ToolRequirements(cfg *config.Config) []deps.Requirement {
	t := cfg.Tools
	return []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     t.FFmpeg,
			Description: "Required for audio, video and GIF conversion",
			VersionArgs: []string{"-version"},
			// The drapto encoder drives ffmpeg as well.
			Methods: []catalog.Method{catalog.MethodFFmpeg, catalog.MethodDrapto},
		},
		{
			Name:        "FFprobe",
			Command:     t.FFprobe,
			Description: "Required for media inspection",
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "Calibre",
			Command:     t.EbookConvert,
			Description: "E-book conversion (ebook-convert)",
			Optional:    true,
			VersionArgs: []string{"--version"},
			Methods:     []catalog.Method{catalog.MethodCalibre},
		},
		{
			Name:        "kepubify",
			Command:     t.Kepubify,
			Description: "EPUB to Kobo kepub conversion",
			Optional:    true,
			VersionArgs: []string{"--version"},
			Methods:     []catalog.Method{catalog.MethodKepubify},
		},
		{
			Name:        "Pandoc",
			Command:     t.Pandoc,
			Description: "Markup document conversion",
			Optional:    true,
			VersionArgs: []string{"--version"},
			Methods:     []catalog.Method{catalog.MethodPandoc},
		},
		{
			Name:        "LibreOffice",
			Command:     t.Soffice,
			Description: "Office document conversion",
			Optional:    true,
			VersionArgs: []string{"--version"},
			Methods:     []catalog.Method{catalog.MethodLibreOffice},
		},
		{
			Name:        "ImageMagick",
			Command:     t.Magick,
			Description: "Image conversion",
			Optional:    true,
			VersionArgs: []string{"-version"},
			Methods:     []catalog.Method{catalog.MethodImageMagick},
		},
		{
			Name:        "pdftoppm",
			Command:     t.Pdftoppm,
			Description: "PDF page rendering (poppler)",
			Optional:    true,
			VersionArgs: []string{"-v"},
			Methods:     []catalog.Method{catalog.MethodPoppler},
		},
		{
			Name:        "pdftotext",
			Command:     t.Pdftotext,
			Description: "PDF text extraction (poppler)",
			Optional:    true,
			VersionArgs: []string{"-v"},
			Methods:     []catalog.Method{catalog.MethodPoppler},
		},
	}
}

// CheckTools evaluates every converter binary named in cfg.
func CheckTools(ctx context.Context, cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	return deps.CheckBinaries(ctx, ToolRequirements(cfg))
}
