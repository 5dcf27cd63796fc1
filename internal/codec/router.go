package codec

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"transmute/internal/catalog"
	"transmute/internal/config"
	"transmute/internal/services"
)

// Router dispatches hops to the backend registered for their method.
type Router struct {
	backends map[catalog.Method]Backend
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{backends: make(map[catalog.Method]Backend)}
}

// Option configures the default backends.
type Option func(*options)

type options struct {
	exec   Executor
	logger *slog.Logger
}

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(o *options) {
		if exec != nil {
			o.exec = exec
		}
	}
}

// WithLogger sets the logger backends report tool warnings to.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewDefault registers a backend for every catalog method using the tool
// binaries from cfg. When drapto is disabled AV1 hops fall back to ffmpeg's
// SVT-AV1 encoder.
func NewDefault(tools config.Tools, opts ...Option) *Router {
	o := options{exec: commandExecutor{}}
	for _, opt := range opts {
		opt(&o)
	}
	ffmpeg := &FFmpeg{Binary: tools.FFmpeg, exec: o.exec}

	r := NewRouter()
	r.Register(catalog.MethodFFmpeg, ffmpeg)
	if tools.DraptoEnabled {
		r.Register(catalog.MethodDrapto, &Drapto{Logger: o.logger})
	} else {
		r.Register(catalog.MethodDrapto, ffmpeg)
	}
	r.Register(catalog.MethodCalibre, &Calibre{Binary: tools.EbookConvert, exec: o.exec})
	r.Register(catalog.MethodKepubify, &Kepubify{Binary: tools.Kepubify, exec: o.exec})
	r.Register(catalog.MethodPandoc, &Pandoc{Binary: tools.Pandoc, exec: o.exec})
	r.Register(catalog.MethodLibreOffice, &LibreOffice{Binary: tools.Soffice, exec: o.exec})
	r.Register(catalog.MethodImageMagick, &ImageMagick{Binary: tools.Magick, exec: o.exec})
	r.Register(catalog.MethodPoppler, &Poppler{PdftoppmBinary: tools.Pdftoppm, PdftotextBinary: tools.Pdftotext, exec: o.exec})
	return r
}

// Register binds method to backend, replacing any previous binding.
func (r *Router) Register(method catalog.Method, backend Backend) {
	r.backends[method] = backend
}

// Methods lists registered methods in name order.
func (r *Router) Methods() []catalog.Method {
	out := make([]catalog.Method, 0, len(r.backends))
	for m := range r.backends {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Execute runs req through the backend registered for req.Method.
func (r *Router) Execute(ctx context.Context, req Request) (Descriptor, error) {
	if strings.TrimSpace(req.Input.Path) == "" {
		return Descriptor{}, services.Wrap(services.ErrValidation, "codec", "execute", "input path required", nil)
	}
	if strings.TrimSpace(req.WorkDir) == "" {
		return Descriptor{}, services.Wrap(services.ErrValidation, "codec", "execute", "work directory required", nil)
	}
	backend, ok := r.backends[req.Method]
	if !ok {
		return Descriptor{}, services.Wrap(services.ErrConfiguration, "codec", "execute", fmt.Sprintf("no backend for method %q", req.Method), nil)
	}
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return Descriptor{}, services.Wrap(services.ErrConfiguration, "codec", "prepare work dir", req.WorkDir, err)
	}

	out, err := backend.Execute(ctx, req)
	if err != nil {
		return Descriptor{}, err
	}
	if out.Path == "" {
		out.Path = OutputPath(req)
	}
	desc, err := Describe(out.Path, req.To)
	if err != nil {
		return Descriptor{}, services.Wrap(services.ErrExternalTool, "codec", string(req.Method), "tool produced no output file", err)
	}
	if desc.Size == 0 {
		return Descriptor{}, services.Wrap(services.ErrExternalTool, "codec", string(req.Method), "tool produced an empty file", nil)
	}
	req.report(Progress{Percent: 100})
	return desc, nil
}

// toolFailure tags err as an execution error unless ctx was cancelled.
func toolFailure(ctx context.Context, req Request, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return services.Wrap(services.ErrExternalTool, "codec", string(req.Method), fmt.Sprintf("%s -> %s", req.From, req.To), err)
}
