package jobs

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"transmute/internal/catalog"
	"transmute/internal/codec"
	"transmute/internal/detect"
	"transmute/internal/logging"
	"transmute/internal/optimize"
	"transmute/internal/services"
)

// BatchRequest converts every file to one target format.
type BatchRequest struct {
	Files     []string         `json:"files"`
	To        catalog.Format   `json:"to"`
	Domain    catalog.Domain   `json:"domain,omitempty"`
	Options   optimize.Options `json:"options"`
	OutputDir string           `json:"output_dir,omitempty"`
}

type batchRecord struct {
	mu        sync.Mutex
	batch     Batch
	results   []Job
	attempted []bool
	done      chan struct{}
}

func (b *batchRecord) snapshot() Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.batch
	out.Files = slices.Clone(b.batch.Files)
	out.Results = make([]Job, 0, out.Completed)
	for i, ok := range b.attempted {
		if ok {
			out.Results = append(out.Results, b.results[i].clone())
		}
	}
	return out
}

// StartBatch registers a batch and processes its files in the background.
// A file that cannot be planned or converted becomes a Failed result and
// the batch moves on.
func (m *Manager) StartBatch(req BatchRequest) (string, error) {
	invalid := func(msg string) error {
		return services.Wrap(services.ErrValidation, "jobs", "start batch", msg, nil)
	}
	files := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return "", invalid("at least one file required")
	}
	to := catalog.ParseFormat(string(req.To))
	if to == "" {
		return "", invalid("target format required")
	}
	req.Files, req.To = files, to

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", services.Wrap(services.ErrConfiguration, "jobs", "start batch", errStopped.Error(), nil)
	}
	rec := &batchRecord{
		batch: Batch{
			ID:        m.newID(),
			Files:     files,
			Target:    to,
			Options:   req.Options,
			Status:    BatchPending,
			Total:     len(files),
			CreatedAt: m.now(),
		},
		results:   make([]Job, len(files)),
		attempted: make([]bool, len(files)),
		done:      make(chan struct{}),
	}
	m.batches[rec.batch.ID] = rec
	m.wg.Add(1)
	m.mu.Unlock()

	go m.runBatch(rec, req)
	return rec.batch.ID, nil
}

func (m *Manager) runBatch(rec *batchRecord, req BatchRequest) {
	defer m.wg.Done()
	id := rec.batch.ID
	ctx := services.WithBatchID(m.ctx, id)
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_started"),
		logging.Int("files", len(req.Files)),
		logging.String("target", string(req.To)),
	)

	rec.mu.Lock()
	rec.batch.Status = BatchProcessing
	rec.mu.Unlock()

	process := func(i int) {
		file := req.Files[i]
		rec.mu.Lock()
		rec.batch.CurrentFile = file
		rec.mu.Unlock()

		job := m.runBatchFile(ctx, id, req, file)

		rec.mu.Lock()
		rec.results[i] = job
		rec.attempted[i] = true
		rec.batch.Completed++
		rec.mu.Unlock()
		m.emitBatch(rec, EventBatchProgress)
	}

	if m.batchWorkers <= 1 {
		for i := range req.Files {
			process(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(m.batchWorkers)
		for i := range req.Files {
			g.Go(func() error {
				process(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	rec.mu.Lock()
	rec.batch.Status = BatchCompleted
	rec.batch.CurrentFile = ""
	rec.batch.EndedAt = m.now()
	rec.mu.Unlock()
	m.emitBatch(rec, EventBatchCompleted)
	close(rec.done)

	snap := rec.snapshot()
	logger.Info("batch completed",
		logging.String(logging.FieldEventType, "batch_completed"),
		logging.Int("completed", snap.Count(StatusCompleted)),
		logging.Int("failed", snap.Count(StatusFailed)),
		logging.Int("cancelled", snap.Count(StatusCancelled)),
	)
}

// runBatchFile converts one file and returns its terminal job.
func (m *Manager) runBatchFile(ctx context.Context, batchID string, req BatchRequest, file string) Job {
	plan, err := m.Plan(ctx, Request{
		Input:     file,
		To:        req.To,
		Domain:    req.Domain,
		Options:   req.Options,
		OutputDir: req.OutputDir,
	})
	if err == nil && !plan.Supported() {
		err = services.Wrap(services.ErrUnsupported, "jobs", "plan", plan.Unsupported.Message(), nil)
	}
	if err != nil {
		return m.reject(file, batchID, err)
	}
	rec, err := m.start(plan.Input, plan.Route, plan.Options, ToDir(req.OutputDir), inBatch(batchID))
	if err != nil {
		return m.reject(file, batchID, err)
	}
	<-rec.done
	return m.snapshot(rec)
}

// reject registers a job that failed before it could start so the failure
// is visible through Get and the failed event.
func (m *Manager) reject(file, batchID string, err error) Job {
	now := m.now()
	rec := &record{
		job: Job{
			ID:        m.newID(),
			BatchID:   batchID,
			Input:     codec.Descriptor{Path: file, Format: detect.FromName(file)},
			Status:    StatusPending,
			CreatedAt: now,
		},
		done: make(chan struct{}),
		stop: func() {},
	}
	m.mu.Lock()
	m.jobs[rec.job.ID] = rec
	m.mu.Unlock()
	m.finish(rec, StatusFailed, nil, err)
	return m.snapshot(rec)
}

func (m *Manager) emitBatch(rec *batchRecord, typ EventType) {
	snap := rec.snapshot()
	m.events.publish(Event{Type: typ, Time: m.now(), Batch: &snap}, snap.ID)
}

// Batch returns a snapshot of batch id.
func (m *Manager) Batch(id string) (Batch, bool) {
	m.mu.RLock()
	rec := m.batches[id]
	m.mu.RUnlock()
	if rec == nil {
		return Batch{}, false
	}
	return rec.snapshot(), true
}

// Batches returns every registered batch, oldest first.
func (m *Manager) Batches() []Batch {
	m.mu.RLock()
	recs := make([]*batchRecord, 0, len(m.batches))
	for _, rec := range m.batches {
		recs = append(recs, rec)
	}
	m.mu.RUnlock()
	out := make([]Batch, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.snapshot())
	}
	slices.SortFunc(out, func(a, b Batch) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// WaitBatch blocks until every file of batch id has been attempted or ctx
// ends.
func (m *Manager) WaitBatch(ctx context.Context, id string) (Batch, error) {
	m.mu.RLock()
	rec := m.batches[id]
	m.mu.RUnlock()
	if rec == nil {
		return Batch{}, services.Wrap(services.ErrNotFound, "jobs", "wait batch", "batch "+id, nil)
	}
	select {
	case <-rec.done:
		return rec.snapshot(), nil
	case <-ctx.Done():
		return rec.snapshot(), ctx.Err()
	}
}
