package codec

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// ebook-convert prints "42% Converting input to HTML..." lines.
var calibrePercent = regexp.MustCompile(`^\s*(\d{1,3})%\s*(.*)$`)

// Calibre converts e-books with calibre's ebook-convert.
type Calibre struct {
	Binary string
	exec   Executor
}

// Execute implements Backend.
func (c *Calibre) Execute(ctx context.Context, req Request) (Descriptor, error) {
	output := OutputPath(req)
	err := executor(c.exec).Run(ctx, binaryOr(c.Binary, "ebook-convert"), calibreArgs(req, output), func(line string) {
		if p, ok := parseCalibreProgress(line); ok {
			req.report(p)
		}
	})
	if err != nil {
		return Descriptor{}, toolFailure(ctx, req, err)
	}
	return Descriptor{Path: output, Format: req.To}, nil
}

func calibreArgs(req Request, output string) []string {
	o := req.Options
	args := []string{req.Input.Path, output}
	if o.OutputProfile != "" && o.OutputProfile != "default" {
		args = append(args, "--output-profile", o.OutputProfile)
	}
	if req.To == "pdf" {
		size := o.PageSize
		if size == "" {
			size = "a4"
		}
		args = append(args, "--paper-size", size)
	}
	return args
}

func parseCalibreProgress(line string) (Progress, bool) {
	m := calibrePercent.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	percent, err := strconv.Atoi(m[1])
	if err != nil || percent > 100 {
		return Progress{}, false
	}
	return Progress{Percent: float64(percent), Message: strings.TrimSpace(m[2])}, true
}

// Kepubify converts EPUB to Kobo KEPUB. It writes <stem>.kepub.epub into the
// output directory.
type Kepubify struct {
	Binary string
	exec   Executor
}

// Execute implements Backend.
func (k *Kepubify) Execute(ctx context.Context, req Request) (Descriptor, error) {
	args := []string{"--output", req.WorkDir, req.Input.Path}
	if err := executor(k.exec).Run(ctx, binaryOr(k.Binary, "kepubify"), args, nil); err != nil {
		return Descriptor{}, toolFailure(ctx, req, err)
	}
	return Descriptor{Path: OutputPath(req), Format: req.To}, nil
}
