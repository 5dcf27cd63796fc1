package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"transmute/internal/codec"
	"transmute/internal/fileutil"
	"transmute/internal/logging"
	"transmute/internal/optimize"
	"transmute/internal/services"
)

// errHalted stops a pipeline whose job became terminal from outside.
var errHalted = errors.New("job halted")

func (m *Manager) run(rec *record) {
	defer m.wg.Done()
	defer rec.stop()

	id := rec.job.ID
	ctx := services.WithJobID(m.ctx, id)
	if rec.job.BatchID != "" {
		ctx = services.WithBatchID(ctx, rec.job.BatchID)
	}
	logger := logging.WithContext(ctx, m.logger)

	if err := m.sem.Acquire(rec.wake, 1); err != nil {
		// Cancelled while queued, or the manager is closing.
		if m.ctx.Err() != nil {
			m.finish(rec, StatusFailed, nil, errStopped)
		}
		return
	}
	defer m.sem.Release(1)

	output, err := m.execute(ctx, rec)
	// Staging is gone before Wait or a terminal event can observe the job.
	if rmErr := m.workspace.Remove(id); rmErr != nil {
		logging.WarnWithContext(logger, "failed to remove staging directory", "staging_cleanup_failed",
			logging.Error(rmErr),
			logging.String("dir", m.workspace.JobDir(id)),
			logging.String(logging.FieldErrorHint, "remove the directory manually or let the daemon janitor prune it"),
			logging.String(logging.FieldImpact, "disk space is held until cleanup"),
		)
	}
	switch {
	case err == nil:
		if m.finish(rec, StatusCompleted, &output, nil) {
			logger.Info("conversion completed",
				logging.String(logging.FieldEventType, "job_completed"),
				logging.String("output", output.Path),
				logging.Int64("size_bytes", output.Size),
			)
		}
	case errors.Is(err, errHalted):
	default:
		if m.ctx.Err() != nil {
			err = errStopped
		}
		if m.finish(rec, StatusFailed, nil, err) {
			logging.ErrorWithContext(logger, "conversion failed", "job_failed",
				logging.Error(err),
				logging.String("error_kind", services.Kind(err)),
				logging.String(logging.FieldErrorHint, hintFor(err)),
			)
		}
	}
}

func hintFor(err error) string {
	switch services.Kind(err) {
	case "validation":
		return "check the input file and requested options"
	case "execution":
		return "run transmute check to verify the conversion tools"
	case "configuration":
		return "review the [tools] section of the config"
	default:
		return "retry the conversion"
	}
}

// checkpoint is consulted between steps; a running hop is never interrupted
// by Cancel.
func (m *Manager) checkpoint(rec *record) error {
	if m.ctx.Err() != nil {
		return errStopped
	}
	rec.mu.Lock()
	terminal := rec.job.Status.Terminal()
	rec.mu.Unlock()
	if terminal {
		return errHalted
	}
	return nil
}

func (m *Manager) execute(ctx context.Context, rec *record) (codec.Descriptor, error) {
	input := rec.job.Input
	rt := rec.job.Route

	m.advance(rec, StepValidate, "checking input", 0)
	current, err := codec.Describe(input.Path, input.Format)
	if err != nil {
		return codec.Descriptor{}, services.Wrap(services.ErrValidation, "jobs", StepValidate, "input unavailable", err)
	}
	m.advance(rec, StepValidate, "input ok", progressValidated)

	if err := m.checkpoint(rec); err != nil {
		return codec.Descriptor{}, err
	}
	m.advance(rec, StepAnalyze, "reading input", progressValidated)
	rec.mu.Lock()
	rec.job.Input = current
	rec.mu.Unlock()
	m.advance(rec, StepAnalyze, fmt.Sprintf("%s, %d bytes", current.Format, current.Size), progressAnalyzed)

	if err := m.checkpoint(rec); err != nil {
		return codec.Descriptor{}, err
	}
	hopOptions := make([]optimize.Resolved, len(rt.Hops))
	for i, hop := range rt.Hops {
		hopOptions[i] = rec.job.Options.ForHop(i, hop)
	}
	m.advance(rec, StepOptimize, fmt.Sprintf("%d hop(s) planned", len(rt.Hops)), progressOptimized)

	n := len(rt.Hops)
	for i, hop := range rt.Hops {
		if err := m.checkpoint(rec); err != nil {
			return codec.Descriptor{}, err
		}
		step := fmt.Sprintf("%s %d/%d", StepExecute, i+1, n)
		hopCtx := services.WithStep(ctx, step)
		dir, err := m.workspace.HopDir(rec.job.ID, i)
		if err != nil {
			return codec.Descriptor{}, services.Wrap(services.ErrTransient, "jobs", step, "prepare work directory", err)
		}
		m.advance(rec, step, hop.String(), hopProgress(i, n, 0))
		req := codec.Request{
			Input:   current,
			From:    hop.From,
			To:      hop.To,
			Method:  hop.Method,
			Options: hopOptions[i],
			WorkDir: dir,
			Progress: func(p codec.Progress) {
				msg := p.Message
				if msg == "" {
					msg = hop.String()
				}
				m.advance(rec, step, msg, hopProgress(i, n, p.Percent))
			},
		}
		logging.WithContext(hopCtx, m.logger).Debug("executing hop",
			logging.String("hop", hop.String()),
			logging.String("method", string(hop.Method)),
			logging.String("work_dir", dir),
		)
		out, err := m.backend.Execute(hopCtx, req)
		if err != nil {
			return codec.Descriptor{}, err
		}
		current = out
		m.advance(rec, step, hop.String()+" done", hopProgress(i, n, 100))
	}

	if err := m.checkpoint(rec); err != nil {
		return codec.Descriptor{}, err
	}
	m.advance(rec, StepFinalize, "writing output", progressExecuted)
	return m.finalize(rec, current)
}

// hopProgress maps hop-local percent onto the band shared by all hops.
func hopProgress(index, total int, percent float64) float64 {
	if total == 0 {
		return progressExecuted
	}
	span := float64(progressExecuted-progressOptimized) / float64(total)
	return progressOptimized + span*(float64(index)+min(max(percent, 0), 100)/100)
}

func (m *Manager) finalize(rec *record, staged codec.Descriptor) (codec.Descriptor, error) {
	input := rec.job.Input
	dir := rec.outputDir
	if dir == "" {
		dir = m.outputDir
	}
	if dir == "" {
		dir = filepath.Dir(input.Path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return codec.Descriptor{}, services.Wrap(services.ErrConfiguration, "jobs", StepFinalize, "create output directory", err)
	}
	target := rec.job.Route.Target()
	name := codec.Stem(input.Path) + "." + codec.Extension(target)

	m.finalizeMu.Lock()
	defer m.finalizeMu.Unlock()
	dest := fileutil.UniquePath(filepath.Join(dir, name))
	var err error
	if rec.job.Route.IsTrivial() {
		err = fileutil.CopyFile(staged.Path, dest)
	} else {
		err = fileutil.MoveFile(staged.Path, dest)
	}
	if err != nil {
		return codec.Descriptor{}, services.Wrap(services.ErrTransient, "jobs", StepFinalize, "place output", err)
	}
	return codec.Describe(dest, target)
}

// advance records step progress. The first call moves the job to
// Processing; progress never decreases and stays below 100 until finish.
func (m *Manager) advance(rec *record, step, message string, progress float64) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	job := &rec.job
	if job.Status.Terminal() {
		return
	}
	if job.Status == StatusPending {
		job.Status = StatusProcessing
		job.StartedAt = m.now()
		job.Step = step
		job.Message = message
		m.emit(rec, EventStarted)
	}
	progress = min(progress, progressLiveMax)
	changed := step != job.Step || progress > job.Progress
	job.Progress = max(job.Progress, progress)
	job.Step = step
	job.Message = message
	if !changed {
		return
	}
	m.emit(rec, EventProgress)
	if rec.sampler.ShouldLog(job.Progress, step) {
		m.logger.Info("conversion progress",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldStep, step),
			logging.Float64("progress", job.Progress),
			logging.String("message", message),
		)
	}
}

// finish moves rec to a terminal status. Only the first call wins.
func (m *Manager) finish(rec *record, status Status, output *codec.Descriptor, err error) bool {
	rec.mu.Lock()
	job := &rec.job
	if job.Status.Terminal() {
		rec.mu.Unlock()
		return false
	}
	job.Status = status
	job.EndedAt = m.now()
	job.Output = output
	switch status {
	case StatusCompleted:
		job.Progress = 100
		job.Step = StepFinalize
		job.Message = "done"
	case StatusCancelled:
		job.Message = "cancelled"
	}
	if err != nil {
		job.Error = services.FailureMessage(err)
		job.ErrorKind = services.Kind(err)
	}
	m.emit(rec, terminalEvent(status))
	rec.mu.Unlock()

	close(rec.done)
	rec.stop()
	return true
}

func terminalEvent(status Status) EventType {
	switch status {
	case StatusCompleted:
		return EventCompleted
	case StatusCancelled:
		return EventCancelled
	default:
		return EventFailed
	}
}

// emit publishes a snapshot of rec.job. Callers hold rec.mu, which keeps
// the events of one job in order.
func (m *Manager) emit(rec *record, typ EventType) {
	job := rec.job.clone()
	if job.Status == StatusProcessing {
		job.EstimatedRemaining = estimateRemaining(job.Progress, job.Elapsed(m.now()))
	}
	keys := []string{job.ID}
	if job.BatchID != "" {
		keys = append(keys, job.BatchID)
	}
	m.events.publish(Event{Type: typ, Time: m.now(), Job: &job}, keys...)
}
