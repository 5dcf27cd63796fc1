package jobs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"transmute/internal/codec"
	"transmute/internal/detect"
	"transmute/internal/logging"
	"transmute/internal/optimize"
	"transmute/internal/route"
	"transmute/internal/services"
	"transmute/internal/staging"
)

// errStopped is recorded on jobs still running when the manager closes.
var errStopped = errors.New("conversion manager stopped")

// Manager owns the job and batch registries.
type Manager struct {
	resolver      *route.Resolver
	optimizer     *optimize.Optimizer
	probe         optimize.Probe
	detector      *detect.Detector
	backend       codec.Backend
	workspace     *staging.Workspace
	logger        *slog.Logger
	outputDir     string
	maxConcurrent int
	batchWorkers  int
	now           func() time.Time
	newID         func() string

	sem        *semaphore.Weighted
	events     *hub
	finalizeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	jobs    map[string]*record
	batches map[string]*batchRecord
	closed  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithOptimizer replaces the default option optimizer.
func WithOptimizer(o *optimize.Optimizer) Option {
	return func(m *Manager) {
		if o != nil {
			m.optimizer = o
		}
	}
}

// WithProbe sets the characteristics probe used by Plan.
func WithProbe(p optimize.Probe) Option {
	return func(m *Manager) { m.probe = p }
}

// WithDetector replaces the source format detector.
func WithDetector(d *detect.Detector) Option {
	return func(m *Manager) {
		if d != nil {
			m.detector = d
		}
	}
}

// WithWorkspace sets where hop outputs are staged.
func WithWorkspace(w *staging.Workspace) Option {
	return func(m *Manager) {
		if w != nil {
			m.workspace = w
		}
	}
}

// WithOutputDir sets the default directory for finished outputs. Empty
// means next to the input.
func WithOutputDir(dir string) Option {
	return func(m *Manager) { m.outputDir = dir }
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMaxConcurrent bounds how many job pipelines execute at once.
func WithMaxConcurrent(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrent = n
		}
	}
}

// WithBatchWorkers sets how many files of one batch run in parallel. One
// (the default) processes files strictly in order.
func WithBatchWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchWorkers = n
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New constructs a manager executing hops through backend.
func New(resolver *route.Resolver, backend codec.Backend, opts ...Option) *Manager {
	m := &Manager{
		resolver:      resolver,
		backend:       backend,
		optimizer:     optimize.New(),
		workspace:     staging.NewWorkspace(""),
		logger:        logging.NewNop(),
		maxConcurrent: 2,
		batchWorkers:  1,
		now:           time.Now,
		newID:         uuid.NewString,
		jobs:          make(map[string]*record),
		batches:       make(map[string]*batchRecord),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.detector == nil {
		m.detector = detect.New(resolver.Catalog())
	}
	m.logger = logging.NewComponentLogger(m.logger, "jobs")
	m.sem = semaphore.NewWeighted(int64(m.maxConcurrent))
	m.events = newHub(m.logger)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Resolver returns the path resolver used for planning.
func (m *Manager) Resolver() *route.Resolver { return m.resolver }

// record is the live state of one job. Fields of job other than the
// immutable identity (ID, BatchID, Route, Options, CreatedAt) are guarded by
// mu.
type record struct {
	mu        sync.Mutex
	job       Job
	outputDir string
	sampler   *logging.ProgressSampler

	// wake is cancelled on Cancel and on Close; it only interrupts waiting
	// for a pipeline slot, never a running hop.
	wake context.Context
	stop context.CancelFunc
	done chan struct{}
}

// StartOption adjusts a single Start call.
type StartOption func(*startConfig)

type startConfig struct {
	outputDir string
	batchID   string
}

// ToDir writes the finished output into dir instead of the manager default.
func ToDir(dir string) StartOption {
	return func(c *startConfig) { c.outputDir = dir }
}

func inBatch(id string) StartOption {
	return func(c *startConfig) { c.batchID = id }
}

// Start registers a Pending job for input along rt and runs its pipeline
// asynchronously. It fails synchronously with a validation error when the
// input or route is unusable.
func (m *Manager) Start(input codec.Descriptor, rt route.Route, resolved optimize.Resolved, opts ...StartOption) (string, error) {
	rec, err := m.start(input, rt, resolved, opts...)
	if err != nil {
		return "", err
	}
	return rec.job.ID, nil
}

func (m *Manager) start(input codec.Descriptor, rt route.Route, resolved optimize.Resolved, opts ...StartOption) (*record, error) {
	if err := m.checkStart(input, rt); err != nil {
		return nil, err
	}
	if input.Format == "" {
		input.Format = rt.Source()
	}
	cfg := startConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "start", errStopped.Error(), nil)
	}
	wake, stop := context.WithCancel(m.ctx)
	rec := &record{
		job: Job{
			ID:        m.newID(),
			BatchID:   cfg.batchID,
			Input:     input,
			Route:     rt,
			Options:   resolved,
			Status:    StatusPending,
			CreatedAt: m.now(),
		},
		outputDir: cfg.outputDir,
		sampler:   logging.NewProgressSampler(10),
		wake:      wake,
		stop:      stop,
		done:      make(chan struct{}),
	}
	m.jobs[rec.job.ID] = rec
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(rec)
	return rec, nil
}

func (m *Manager) checkStart(input codec.Descriptor, rt route.Route) error {
	invalid := func(msg string) error {
		return services.Wrap(services.ErrValidation, "jobs", "start", msg, nil)
	}
	switch {
	case input.Path == "":
		return invalid("input path required")
	case len(rt.Formats) == 0:
		return invalid("route required")
	case len(rt.Formats) != len(rt.Hops)+1:
		return invalid("route formats and hops disagree")
	case input.Format != "" && input.Format != rt.Source():
		return invalid(fmt.Sprintf("input is %s but route starts at %s", input.Format, rt.Source()))
	case rt.HopCount() > m.resolver.MaxHops():
		return invalid(fmt.Sprintf("route has %d hops, limit is %d", rt.HopCount(), m.resolver.MaxHops()))
	}
	return nil
}

func (m *Manager) lookup(id string) *record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// Get returns a snapshot of job id.
func (m *Manager) Get(id string) (Job, bool) {
	rec := m.lookup(id)
	if rec == nil {
		return Job{}, false
	}
	return m.snapshot(rec), true
}

// List returns snapshots of every registered job, oldest first.
func (m *Manager) List() []Job {
	m.mu.RLock()
	recs := make([]*record, 0, len(m.jobs))
	for _, rec := range m.jobs {
		recs = append(recs, rec)
	}
	m.mu.RUnlock()

	out := make([]Job, 0, len(recs))
	for _, rec := range recs {
		out = append(out, m.snapshot(rec))
	}
	slices.SortFunc(out, func(a, b Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Active returns the ids of jobs that are not terminal.
func (m *Manager) Active() map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{})
	for id, rec := range m.jobs {
		rec.mu.Lock()
		if !rec.job.Status.Terminal() {
			out[id] = struct{}{}
		}
		rec.mu.Unlock()
	}
	return out
}

func (m *Manager) snapshot(rec *record) Job {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	job := rec.job.clone()
	if job.Status == StatusProcessing {
		job.EstimatedRemaining = estimateRemaining(job.Progress, job.Elapsed(m.now()))
	}
	return job
}

// estimateRemaining extrapolates the average progress rate so far.
func estimateRemaining(progress float64, elapsed time.Duration) time.Duration {
	if progress <= 0 || progress >= 100 || elapsed <= 0 {
		return 0
	}
	return time.Duration(float64(elapsed) * (100 - progress) / progress).Round(time.Second)
}

// Cancel moves a Pending or Processing job to Cancelled. It returns false,
// leaving the job untouched, when the job is unknown or already terminal.
func (m *Manager) Cancel(id string) bool {
	rec := m.lookup(id)
	if rec == nil {
		return false
	}
	return m.finish(rec, StatusCancelled, nil, nil)
}

// Wait blocks until job id is terminal or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (Job, error) {
	rec := m.lookup(id)
	if rec == nil {
		return Job{}, services.Wrap(services.ErrNotFound, "jobs", "wait", "job "+id, nil)
	}
	select {
	case <-rec.done:
		return m.snapshot(rec), nil
	case <-ctx.Done():
		return m.snapshot(rec), ctx.Err()
	}
}

// Subscribe registers fn for events of job id, batch id, or AllJobs. fn runs
// on a dedicated goroutine; panics are recovered and logged.
func (m *Manager) Subscribe(target string, fn func(Event)) Subscription {
	return m.events.subscribe(target, fn)
}

// Unsubscribe stops delivery to sub and waits for a callback in progress to
// return, unless called from that callback. It reports whether sub was
// active.
func (m *Manager) Unsubscribe(sub Subscription) bool {
	return m.events.unsubscribe(sub)
}

// Cleanup evicts jobs and batches that have been terminal for longer than
// retention and returns the number of evicted jobs.
func (m *Manager) Cleanup(retention time.Duration) int {
	cutoff := m.now().Add(-retention)
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.jobs {
		rec.mu.Lock()
		expired := rec.job.Status.Terminal() && rec.job.EndedAt.Before(cutoff)
		rec.mu.Unlock()
		if expired {
			delete(m.jobs, id)
			removed++
		}
	}
	for id, rec := range m.batches {
		rec.mu.Lock()
		expired := rec.batch.Status == BatchCompleted && rec.batch.EndedAt.Before(cutoff)
		rec.mu.Unlock()
		if expired {
			delete(m.batches, id)
		}
	}
	if removed > 0 {
		m.logger.Debug("evicted finished jobs",
			logging.Int("count", removed),
			logging.Duration("retention", retention),
			logging.String(logging.FieldEventType, "jobs_evicted"),
		)
	}
	return removed
}

// Close stops accepting work, fails jobs that are still running, and waits
// for every pipeline and batch to return. Subscribers receive the events
// queued before Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.events.close()
}
