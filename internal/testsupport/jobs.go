package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"transmute/internal/catalog"
	"transmute/internal/codec"
	"transmute/internal/config"
	"transmute/internal/history"
	"transmute/internal/jobs"
	"transmute/internal/route"
	"transmute/internal/services"
	"transmute/internal/staging"
)

// DocumentCatalog is a small generic catalog: md -> html -> pdf -> txt.
func DocumentCatalog() *catalog.Catalog {
	return catalog.MustNew([]catalog.Edge{
		{Domain: catalog.DomainGeneric, From: "md", To: "html", Quality: catalog.Excellent, Method: catalog.MethodPandoc},
		{Domain: catalog.DomainGeneric, From: "html", To: "pdf", Quality: catalog.Good, Method: catalog.MethodLibreOffice},
		{Domain: catalog.DomainGeneric, From: "pdf", To: "txt", Quality: catalog.Fair, Method: catalog.MethodPoppler},
	})
}

// Backend copies each hop input to its output. Inputs whose base name
// contains FailOn fail with an execution error.
type Backend struct {
	FailOn string

	mu    sync.Mutex
	calls []catalog.Method
}

// Execute implements codec.Backend.
func (b *Backend) Execute(ctx context.Context, req codec.Request) (codec.Descriptor, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req.Method)
	b.mu.Unlock()

	if b.FailOn != "" && strings.Contains(filepath.Base(req.Input.Path), b.FailOn) {
		return codec.Descriptor{}, services.Wrap(services.ErrExternalTool, "stub", "execute", "tool exited with status 1", nil)
	}
	if req.Progress != nil {
		req.Progress(codec.Progress{Percent: 50})
	}
	data, err := os.ReadFile(req.Input.Path)
	if err != nil {
		return codec.Descriptor{}, err
	}
	out := codec.OutputPath(req)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return codec.Descriptor{}, err
	}
	return codec.Describe(out, req.To)
}

// Methods returns the methods executed so far, in call order.
func (b *Backend) Methods() []catalog.Method {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]catalog.Method(nil), b.calls...)
}

// NewManager builds a job manager over DocumentCatalog using cfg's hop
// limit, staging and output directories. The manager is closed on cleanup.
func NewManager(t testing.TB, cfg *config.Config, backend codec.Backend) *jobs.Manager {
	t.Helper()

	resolver := route.NewResolver(DocumentCatalog(), route.WithMaxHops(cfg.Routing.MaxHops))
	m := jobs.New(resolver, backend,
		jobs.WithWorkspace(staging.NewWorkspace(cfg.Paths.StagingDir)),
		jobs.WithOutputDir(cfg.Paths.OutputDir),
	)
	t.Cleanup(m.Close)
	return m
}

// MustOpenHistory opens the history store at cfg.HistoryPath and registers
// cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
