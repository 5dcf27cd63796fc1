package notifications

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"transmute/internal/jobs"
	"transmute/internal/logging"
)

// EventSource is the subscription surface of the job manager.
type EventSource interface {
	Subscribe(target string, fn func(jobs.Event)) jobs.Subscription
	Unsubscribe(sub jobs.Subscription) bool
}

// Forward publishes finished jobs and batches from source through svc and
// returns a function that stops forwarding. Jobs that belong to a batch are
// summarized by the batch notification instead.
func Forward(source EventSource, svc Service, timeout time.Duration, logger *slog.Logger) func() {
	logger = logging.NewComponentLogger(logger, "notifications")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sub := source.Subscribe(jobs.AllJobs, func(ev jobs.Event) {
		event, payload, ok := translate(ev)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := svc.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(logger, "notification failed", "notification_failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.String(logging.FieldImpact, "user was not notified"),
			)
		}
	})
	return func() { source.Unsubscribe(sub) }
}

func translate(ev jobs.Event) (Event, Payload, bool) {
	switch {
	case ev.Type == jobs.EventBatchCompleted && ev.Batch != nil:
		b := ev.Batch
		return EventBatchCompleted, Payload{
			"batch":     b.ID,
			"total":     b.Total,
			"succeeded": b.Count(jobs.StatusCompleted),
			"failed":    b.Count(jobs.StatusFailed),
			"duration":  b.EndedAt.Sub(b.CreatedAt),
		}, true
	case ev.Job == nil || ev.Job.BatchID != "":
		return "", nil, false
	case ev.Type == jobs.EventCompleted:
		payload := Payload{
			"job":   ev.Job.ID,
			"input": filepath.Base(ev.Job.Input.Path),
			"route": ev.Job.Route.String(),
		}
		if ev.Job.Output != nil {
			payload["output"] = filepath.Base(ev.Job.Output.Path)
		}
		return EventJobCompleted, payload, true
	case ev.Type == jobs.EventFailed:
		return EventJobFailed, Payload{
			"job":   ev.Job.ID,
			"input": filepath.Base(ev.Job.Input.Path),
			"error": ev.Job.Error,
		}, true
	default:
		return "", nil, false
	}
}
