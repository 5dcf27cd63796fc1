package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"transmute/internal/catalog"
	"transmute/internal/codec"
	"transmute/internal/jobs"
	"transmute/internal/optimize"
	"transmute/internal/route"
	"transmute/internal/services"
	"transmute/internal/staging"
)

func testCatalog() *catalog.Catalog {
	return catalog.MustNew([]catalog.Edge{
		{Domain: catalog.DomainGeneric, From: "md", To: "html", Quality: catalog.Excellent, Method: catalog.MethodPandoc},
		{Domain: catalog.DomainGeneric, From: "html", To: "pdf", Quality: catalog.Good, Method: catalog.MethodLibreOffice},
		{Domain: catalog.DomainGeneric, From: "pdf", To: "txt", Quality: catalog.Fair, Method: catalog.MethodPoppler},
		{Domain: catalog.DomainGeneric, From: "mp4", To: "mp3", Quality: catalog.Good, Method: catalog.MethodFFmpeg},
	})
}

// stubBackend copies its input to the hop output. Inputs whose name
// contains failOn fail with an execution error.
type stubBackend struct {
	failOn string
	mu     sync.Mutex
	calls  []codec.Request
}

func (b *stubBackend) Execute(ctx context.Context, req codec.Request) (codec.Descriptor, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	b.mu.Unlock()
	if b.failOn != "" && strings.Contains(filepath.Base(req.Input.Path), b.failOn) {
		return codec.Descriptor{}, services.Wrap(services.ErrExternalTool, "stub", "execute", "tool exited with status 1", nil)
	}
	for _, pct := range []float64{25, 50, 10, 75} {
		req.Progress(codec.Progress{Percent: pct})
	}
	data, err := os.ReadFile(req.Input.Path)
	if err != nil {
		return codec.Descriptor{}, err
	}
	out := codec.OutputPath(req)
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		return codec.Descriptor{}, err
	}
	return codec.Describe(out, req.To)
}

func (b *stubBackend) requests() []codec.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]codec.Request(nil), b.calls...)
}

// gateBackend blocks every hop until release is closed or ctx ends.
type gateBackend struct {
	entered chan string
	release chan struct{}
}

func newGateBackend() *gateBackend {
	return &gateBackend{entered: make(chan string, 8), release: make(chan struct{})}
}

func (g *gateBackend) Execute(ctx context.Context, req codec.Request) (codec.Descriptor, error) {
	g.entered <- req.Input.Path
	select {
	case <-g.release:
	case <-ctx.Done():
		return codec.Descriptor{}, ctx.Err()
	}
	out := codec.OutputPath(req)
	if err := os.WriteFile(out, []byte("converted"), 0o644); err != nil {
		return codec.Descriptor{}, err
	}
	return codec.Describe(out, req.To)
}

type fixedProbe struct {
	ch  optimize.Characteristics
	err error
}

func (p fixedProbe) Analyze(context.Context, string) (optimize.Characteristics, error) {
	return p.ch, p.err
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("# "+name), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func newManager(t *testing.T, backend codec.Backend, opts ...jobs.Option) (*jobs.Manager, string) {
	t.Helper()
	out := t.TempDir()
	base := []jobs.Option{
		jobs.WithWorkspace(staging.NewWorkspace(t.TempDir())),
		jobs.WithOutputDir(out),
	}
	m := jobs.New(route.NewResolver(testCatalog(), route.WithMaxHops(3)), backend, append(base, opts...)...)
	t.Cleanup(m.Close)
	return m, out
}

func submit(t *testing.T, m *jobs.Manager, input string, to catalog.Format) string {
	t.Helper()
	sub, err := m.Submit(context.Background(), jobs.Request{Input: input, To: to})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.JobID == "" {
		t.Fatalf("expected job id, plan %+v", sub.Plan)
	}
	return sub.JobID
}

func waitJob(t *testing.T, m *jobs.Manager, id string) jobs.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait %s: %v", id, err)
	}
	return job
}

func TestMultiHopJobCompletes(t *testing.T) {
	backend := &stubBackend{}
	m, out := newManager(t, backend)
	input := writeInput(t, t.TempDir(), "notes.md")

	job := waitJob(t, m, submit(t, m, input, "pdf"))
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s (%s)", job.Status, job.Error)
	}
	if job.Progress != 100 {
		t.Fatalf("progress = %v, want 100", job.Progress)
	}
	if job.Output == nil || job.Output.Path != filepath.Join(out, "notes.pdf") || job.Output.Format != "pdf" {
		t.Fatalf("unexpected output %+v", job.Output)
	}
	if _, err := os.Stat(job.Output.Path); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	calls := backend.requests()
	if len(calls) != 2 {
		t.Fatalf("expected 2 hops, got %d", len(calls))
	}
	if calls[1].Input.Path != filepath.Join(filepath.Dir(calls[0].WorkDir), "hop-1", "notes.html") {
		t.Fatalf("second hop must consume first hop output, got %s", calls[1].Input.Path)
	}
	if calls[0].Method != catalog.MethodPandoc || calls[1].Method != catalog.MethodLibreOffice {
		t.Fatalf("unexpected methods %s, %s", calls[0].Method, calls[1].Method)
	}
	if _, err := os.Stat(filepath.Dir(calls[0].WorkDir)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging directory should be removed, stat err %v", err)
	}
}

func TestStagingRemovedBeforeTerminalEvent(t *testing.T) {
	ws := staging.NewWorkspace(t.TempDir())
	m, _ := newManager(t, &stubBackend{}, jobs.WithWorkspace(ws))
	dir := t.TempDir()

	for i := range 25 {
		id := submit(t, m, writeInput(t, dir, fmt.Sprintf("n%02d.md", i)), "pdf")
		if job := waitJob(t, m, id); job.Status != jobs.StatusCompleted {
			t.Fatalf("status = %s (%s)", job.Status, job.Error)
		}
		if _, err := os.Stat(ws.JobDir(id)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("iteration %d: staging directory present after completion, stat err %v", i, err)
		}
	}
}

func TestProgressIsNonDecreasing(t *testing.T) {
	m, _ := newManager(t, &stubBackend{})
	input := writeInput(t, t.TempDir(), "a.md")

	var (
		mu     sync.Mutex
		events []jobs.Event
	)
	done := make(chan struct{})
	m.Subscribe(jobs.AllJobs, func(ev jobs.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		if ev.Terminal() {
			close(done)
		}
	})
	submit(t, m, input, "txt")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}

	mu.Lock()
	defer mu.Unlock()
	if events[0].Type != jobs.EventStarted {
		t.Fatalf("first event = %s, want started", events[0].Type)
	}
	last := -1.0
	for _, ev := range events {
		if ev.Job.Progress < last {
			t.Fatalf("progress decreased from %v to %v at %s", last, ev.Job.Progress, ev.Job.Step)
		}
		if ev.Job.Progress == 100 && ev.Type != jobs.EventCompleted {
			t.Fatalf("progress 100 before completion (%s)", ev.Type)
		}
		last = ev.Job.Progress
	}
	if final := events[len(events)-1]; final.Type != jobs.EventCompleted || final.Job.Progress != 100 {
		t.Fatalf("unexpected final event %s at %v", final.Type, final.Job.Progress)
	}
}

func TestCancelTerminalJobReturnsFalse(t *testing.T) {
	m, _ := newManager(t, &stubBackend{})
	id := submit(t, m, writeInput(t, t.TempDir(), "a.md"), "html")
	job := waitJob(t, m, id)
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s", job.Status)
	}
	if m.Cancel(id) {
		t.Fatal("cancel of a completed job must return false")
	}
	if again, _ := m.Get(id); again.Status != jobs.StatusCompleted || again.Progress != 100 {
		t.Fatalf("terminal job changed: %+v", again)
	}
	if m.Cancel("missing") {
		t.Fatal("cancel of unknown job must return false")
	}
}

func TestCancelWaitsForRunningHop(t *testing.T) {
	gate := newGateBackend()
	m, out := newManager(t, gate, jobs.WithMaxConcurrent(1))
	dir := t.TempDir()
	running := submit(t, m, writeInput(t, dir, "first.md"), "html")
	<-gate.entered
	queued := submit(t, m, writeInput(t, dir, "second.md"), "html")

	if !m.Cancel(queued) {
		t.Fatal("expected cancel of queued job to succeed")
	}
	if job := waitJob(t, m, queued); job.Status != jobs.StatusCancelled || job.Error != "" {
		t.Fatalf("queued job: %+v", job)
	}

	if !m.Cancel(running) {
		t.Fatal("expected cancel of running job to succeed")
	}
	if job, _ := m.Get(running); job.Status != jobs.StatusCancelled {
		t.Fatalf("running job status = %s", job.Status)
	}
	close(gate.release)
	waitJob(t, m, running)
	m.Close()
	if _, err := os.Stat(filepath.Join(out, "first.html")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cancelled job must not publish output, stat err %v", err)
	}
}

func TestExecutionFailureIsCaptured(t *testing.T) {
	m, _ := newManager(t, &stubBackend{failOn: "broken"})
	id := submit(t, m, writeInput(t, t.TempDir(), "broken.md"), "pdf")
	job := waitJob(t, m, id)
	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %s", job.Status)
	}
	if job.ErrorKind != "execution" || !strings.Contains(job.Error, "tool exited with status 1") {
		t.Fatalf("unexpected error %q (%s)", job.Error, job.ErrorKind)
	}
	if job.Progress >= 100 {
		t.Fatalf("failed job progress = %v", job.Progress)
	}
}

func TestSubscriberPanicDoesNotAffectOthers(t *testing.T) {
	m, _ := newManager(t, &stubBackend{})
	m.Subscribe(jobs.AllJobs, func(jobs.Event) { panic("boom") })
	completed := make(chan jobs.Event, 1)
	input := writeInput(t, t.TempDir(), "a.md")

	m.Subscribe(jobs.AllJobs, func(ev jobs.Event) {
		if ev.Type == jobs.EventCompleted {
			completed <- ev
		}
	})
	id := submit(t, m, input, "html")
	select {
	case ev := <-completed:
		if ev.Job.ID != id {
			t.Fatalf("completed event for %s, want %s", ev.Job.ID, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("healthy subscriber missed completion")
	}
}

func TestUnsubscribe(t *testing.T) {
	m, _ := newManager(t, &stubBackend{})
	sub := m.Subscribe("job-1", func(jobs.Event) {})
	if !m.Unsubscribe(sub) {
		t.Fatal("expected active subscription")
	}
	if m.Unsubscribe(sub) {
		t.Fatal("second unsubscribe must report false")
	}
}

func TestUnsubscribeWaitsForRunningCallback(t *testing.T) {
	m, _ := newManager(t, &stubBackend{})
	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		once     sync.Once
		mu       sync.Mutex
		returned bool
	)
	sub := m.Subscribe(jobs.AllJobs, func(jobs.Event) {
		once.Do(func() {
			close(entered)
			<-release
			mu.Lock()
			returned = true
			mu.Unlock()
		})
	})
	submit(t, m, writeInput(t, t.TempDir(), "a.md"), "html")

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never ran")
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	if !m.Unsubscribe(sub) {
		t.Fatal("expected active subscription")
	}
	mu.Lock()
	defer mu.Unlock()
	if !returned {
		t.Fatal("Unsubscribe returned while the callback was still running")
	}
}

func TestUnsubscribeFromOwnCallback(t *testing.T) {
	m, _ := newManager(t, &stubBackend{})
	subs := make(chan jobs.Subscription, 1)
	done := make(chan bool, 1)
	var once sync.Once
	subs <- m.Subscribe(jobs.AllJobs, func(jobs.Event) {
		once.Do(func() { done <- m.Unsubscribe(<-subs) })
	})
	submit(t, m, writeInput(t, t.TempDir(), "a.md"), "html")

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected active subscription")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Unsubscribe from the callback did not return")
	}
}

func TestCleanupEvictsExpiredJobs(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	m, _ := newManager(t, &stubBackend{}, jobs.WithClock(clock))
	id := submit(t, m, writeInput(t, t.TempDir(), "a.md"), "html")
	waitJob(t, m, id)

	if n := m.Cleanup(time.Hour); n != 0 {
		t.Fatalf("fresh job evicted (%d)", n)
	}
	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()
	if n := m.Cleanup(time.Hour); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if _, ok := m.Get(id); ok {
		t.Fatal("evicted job still visible")
	}
}

func TestCloseFailsRunningJobs(t *testing.T) {
	gate := newGateBackend()
	m, _ := newManager(t, gate)
	id := submit(t, m, writeInput(t, t.TempDir(), "a.md"), "html")
	<-gate.entered
	m.Close()

	job, ok := m.Get(id)
	if !ok {
		t.Fatal("job missing after close")
	}
	if job.Status != jobs.StatusFailed || job.Error != "conversion manager stopped" {
		t.Fatalf("unexpected job after close: %+v", job)
	}
	if _, err := m.Submit(context.Background(), jobs.Request{Input: writeInput(t, t.TempDir(), "b.md"), To: "html"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("submit after close: %v", err)
	}
}

func TestStartRejectsInvalidRoutes(t *testing.T) {
	m, _ := newManager(t, &stubBackend{})
	resolver := route.NewResolver(testCatalog(), route.WithMaxHops(3))
	long, ok := resolver.FindRoute(catalog.DomainGeneric, "md", "txt")
	if !ok {
		t.Fatal("expected md -> txt route")
	}
	input := codec.Descriptor{Path: writeInput(t, t.TempDir(), "a.md"), Format: "md"}
	direct, _ := resolver.FindRoute(catalog.DomainGeneric, "html", "pdf")

	cases := []struct {
		name  string
		input codec.Descriptor
		rt    route.Route
	}{
		{name: "missing path", input: codec.Descriptor{Format: "md"}, rt: long},
		{name: "empty route", input: input, rt: route.Route{}},
		{name: "source mismatch", input: input, rt: direct},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Start(tc.input, tc.rt, optimize.Resolved{}); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if len(m.List()) != 0 {
		t.Fatal("rejected starts must not register jobs")
	}
}

func TestStartRejectsRouteOverHopLimit(t *testing.T) {
	m := jobs.New(route.NewResolver(testCatalog(), route.WithMaxHops(2)), &stubBackend{},
		jobs.WithWorkspace(staging.NewWorkspace(t.TempDir())))
	t.Cleanup(m.Close)
	long, ok := route.NewResolver(testCatalog(), route.WithMaxHops(3)).FindRoute(catalog.DomainGeneric, "md", "txt")
	if !ok || long.HopCount() != 3 {
		t.Fatalf("expected 3 hop route, got %s", long)
	}
	input := codec.Descriptor{Path: writeInput(t, t.TempDir(), "a.md"), Format: "md"}
	if _, err := m.Start(input, long, optimize.Resolved{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListIsOrderedByCreation(t *testing.T) {
	var (
		mu   sync.Mutex
		tick = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	m, _ := newManager(t, &stubBackend{}, jobs.WithClock(clock))
	dir := t.TempDir()
	first := submit(t, m, writeInput(t, dir, "a.md"), "html")
	second := submit(t, m, writeInput(t, dir, "b.md"), "html")
	waitJob(t, m, first)
	waitJob(t, m, second)

	list := m.List()
	if len(list) != 2 || list[0].ID != first || list[1].ID != second {
		t.Fatalf("unexpected order %+v", list)
	}
}

func TestWaitUnknownJob(t *testing.T) {
	m, _ := newManager(t, &stubBackend{})
	if _, err := m.Wait(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
