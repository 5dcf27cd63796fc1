package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"transmute/internal/api"
	"transmute/internal/config"
	"transmute/internal/deps"
	"transmute/internal/history"
	"transmute/internal/jobs"
	"transmute/internal/logging"
	"transmute/internal/notifications"
	"transmute/internal/preflight"
	"transmute/internal/staging"
)

// Daemon coordinates the job manager, its subscribers and the HTTP API, and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	manager  *jobs.Manager
	history  *history.Store
	notifier notifications.Service
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt atomic.Int64
	cancel    context.CancelFunc
	detach    []func()
	wg        sync.WaitGroup
}

// SweepResult summarizes one janitor pass.
type SweepResult struct {
	EvictedJobs    int
	RemovedStaging int
	StagingErrors  int
}

// New constructs a daemon. store may be nil to run without history; a nil
// notifier is replaced by one built from cfg.
func New(cfg *config.Config, manager *jobs.Manager, store *history.Store, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || manager == nil {
		return nil, errors.New("daemon requires config and job manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		manager:  manager,
		history:  store,
		notifier: notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Manager exposes the wrapped job manager.
func (d *Daemon) Manager() *jobs.Manager { return d.manager }

// Handler returns the HTTP API handler, including auth and CORS.
func (d *Daemon) Handler() http.Handler { return d.api.handler }

// Start acquires the daemon lock, attaches subscribers, starts the janitor
// and begins serving the API when a bind address is configured.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another transmute daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	if d.history != nil {
		d.detach = append(d.detach, history.Attach(d.manager, d.history, d.logger))
	}
	d.detach = append(d.detach, notifications.Forward(d.manager, d.notifier, d.cfg.NotificationTimeout(), d.logger))

	if interval := d.cfg.CleanupInterval(); interval > 0 {
		d.wg.Add(1)
		go d.janitor(runCtx, interval)
	}

	d.cancel = cancel
	d.startedAt.Store(time.Now().UnixNano())
	d.running.Store(true)
	d.logger.Info("transmute daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops serving and releases the daemon lock. The job manager keeps its
// jobs; use Close to shut it down as well.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.stopServing()
	d.release()
	d.logger.Info("transmute daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon, shuts the job manager down and closes the history
// store. Jobs interrupted by the shutdown are still recorded.
func (d *Daemon) Close() error {
	d.mu.Lock()
	wasRunning := d.running.Load()
	if wasRunning {
		d.stopServing()
	}
	d.manager.Close()
	if wasRunning {
		d.release()
		d.logger.Info("transmute daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	}
	d.mu.Unlock()

	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

func (d *Daemon) stopServing() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
}

func (d *Daemon) release() {
	for _, detach := range d.detach {
		detach()
	}
	d.detach = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool { return d.running.Load() }

// LockPath returns the flock file guarding single-instance execution.
func (d *Daemon) LockPath() string { return d.lockPath }

func (d *Daemon) janitor(ctx context.Context, interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep evicts terminal jobs older than the retention window and removes
// staging directories of jobs that are no longer active.
func (d *Daemon) Sweep(ctx context.Context) SweepResult {
	result := SweepResult{EvictedJobs: d.manager.Cleanup(d.cfg.Retention())}
	cleaned := staging.CleanStale(ctx, d.cfg.Paths.StagingDir, d.cfg.StagingMaxAge(), d.manager.Active(), d.logger)
	result.RemovedStaging = len(cleaned.Removed)
	result.StagingErrors = len(cleaned.Errors)

	if result.EvictedJobs > 0 || result.RemovedStaging > 0 || result.StagingErrors > 0 {
		d.logger.Info("janitor sweep",
			logging.String(logging.FieldEventType, "janitor_sweep"),
			logging.Int("evicted_jobs", result.EvictedJobs),
			logging.Int("removed_staging", result.RemovedStaging),
			logging.Int("staging_errors", result.StagingErrors),
		)
	}
	return result
}

// Status returns runtime information including tool availability.
func (d *Daemon) Status(ctx context.Context) api.Status {
	counts := make(map[jobs.Status]int)
	for _, job := range d.manager.List() {
		counts[job.Status]++
	}
	openBatches := 0
	for _, batch := range d.manager.Batches() {
		if batch.Status != jobs.BatchCompleted {
			openBatches++
		}
	}
	tools := preflight.CheckTools(ctx, d.cfg)

	status := api.Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Jobs:         counts,
		Batches:      openBatches,
		MaxHops:      d.manager.Resolver().MaxHops(),
		Strategy:     d.manager.Resolver().Strategy(),
		Checks:       preflight.RunAll(ctx, d.cfg),
		Dependencies: tools,
		Unavailable:  deps.UnavailableMethods(tools),
	}
	if status.Running {
		status.StartedAt = time.Unix(0, d.startedAt.Load())
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	return status
}
