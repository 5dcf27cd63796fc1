package codec

import (
	"context"
	"net/url"
	"path/filepath"
)

var pandocWriters = map[string]string{
	"md":  "gfm",
	"txt": "plain",
}

// Pandoc converts between markup formats.
type Pandoc struct {
	Binary string
	exec   Executor
}

// Execute implements Backend.
func (p *Pandoc) Execute(ctx context.Context, req Request) (Descriptor, error) {
	output := OutputPath(req)
	if err := executor(p.exec).Run(ctx, binaryOr(p.Binary, "pandoc"), pandocArgs(req, output), nil); err != nil {
		return Descriptor{}, toolFailure(ctx, req, err)
	}
	return Descriptor{Path: output, Format: req.To}, nil
}

func pandocArgs(req Request, output string) []string {
	args := []string{req.Input.Path, "--output", output}
	if writer, ok := pandocWriters[string(req.To)]; ok {
		args = append(args, "--to", writer)
	}
	switch req.To {
	case "html":
		args = append(args, "--standalone", "--embed-resources")
	case "docx", "md":
		args = append(args, "--extract-media", filepath.Join(req.WorkDir, "media"))
	}
	return args
}

// LibreOffice converts office documents with soffice in headless mode. Each
// hop gets its own user profile so concurrent conversions do not contend for
// the profile lock.
type LibreOffice struct {
	Binary string
	exec   Executor
}

// Execute implements Backend.
func (l *LibreOffice) Execute(ctx context.Context, req Request) (Descriptor, error) {
	if err := executor(l.exec).Run(ctx, binaryOr(l.Binary, "soffice"), sofficeArgs(req), nil); err != nil {
		return Descriptor{}, toolFailure(ctx, req, err)
	}
	return Descriptor{Path: OutputPath(req), Format: req.To}, nil
}

func sofficeArgs(req Request) []string {
	profile := url.URL{Scheme: "file", Path: filepath.Join(req.WorkDir, ".soffice-profile")}
	return []string{
		"-env:UserInstallation=" + profile.String(),
		"--headless",
		"--norestore",
		"--convert-to", Extension(req.To),
		"--outdir", req.WorkDir,
		req.Input.Path,
	}
}
