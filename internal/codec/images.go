package codec

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

var lossyImages = map[string]bool{"jpg": true, "webp": true}

// ImageMagick converts raster images with magick.
type ImageMagick struct {
	Binary string
	exec   Executor
}

// Execute implements Backend.
func (m *ImageMagick) Execute(ctx context.Context, req Request) (Descriptor, error) {
	output := OutputPath(req)
	if err := executor(m.exec).Run(ctx, binaryOr(m.Binary, "magick"), magickArgs(req, output), nil); err != nil {
		return Descriptor{}, toolFailure(ctx, req, err)
	}
	return Descriptor{Path: output, Format: req.To}, nil
}

func magickArgs(req Request, output string) []string {
	o := req.Options
	input := req.Input.Path
	if req.From == "gif" {
		// First frame only.
		input += "[0]"
	}
	args := []string{input, "-auto-orient"}
	if o.Width > 0 && o.Height > 0 {
		args = append(args, "-resize", fmt.Sprintf("%dx%d>", o.Width, o.Height))
	}
	if o.StripMetadata {
		args = append(args, "-strip")
	}
	if lossyImages[string(req.To)] && o.ImageQuality > 0 {
		args = append(args, "-quality", strconv.Itoa(o.ImageQuality))
	}
	if req.To == "pdf" && o.PageSize != "" {
		args = append(args, "-page", strings.ToUpper(o.PageSize[:1])+o.PageSize[1:])
	}
	return append(args, output)
}

// Poppler extracts text or renders the first page of a PDF.
type Poppler struct {
	PdftoppmBinary  string
	PdftotextBinary string
	exec            Executor
}

// Execute implements Backend.
func (p *Poppler) Execute(ctx context.Context, req Request) (Descriptor, error) {
	output := OutputPath(req)
	var (
		binary string
		args   []string
	)
	switch req.To {
	case "txt":
		binary = binaryOr(p.PdftotextBinary, "pdftotext")
		args = []string{"-layout", req.Input.Path, output}
	case "png", "jpg":
		binary = binaryOr(p.PdftoppmBinary, "pdftoppm")
		args = pdftoppmArgs(req, output)
	default:
		return Descriptor{}, toolFailure(ctx, req, fmt.Errorf("poppler cannot produce %s", req.To))
	}
	if err := executor(p.exec).Run(ctx, binary, args, nil); err != nil {
		return Descriptor{}, toolFailure(ctx, req, err)
	}
	return Descriptor{Path: output, Format: req.To}, nil
}

// pdftoppm appends the extension itself, so it receives the output path
// without one.
func pdftoppmArgs(req Request, output string) []string {
	o := req.Options
	args := []string{"-singlefile", "-r", "150"}
	if req.To == "jpg" {
		args = append(args, "-jpeg")
		if o.ImageQuality > 0 {
			args = append(args, "-jpegopt", "quality="+strconv.Itoa(o.ImageQuality))
		}
	} else {
		args = append(args, "-png")
	}
	if o.Width > 0 && o.Height > 0 {
		args = append(args, "-scale-to-x", strconv.Itoa(o.Width), "-scale-to-y", "-1")
	}
	return append(args, req.Input.Path, strings.TrimSuffix(output, "."+Extension(req.To)))
}
