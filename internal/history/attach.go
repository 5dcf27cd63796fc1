package history

import (
	"context"
	"log/slog"
	"time"

	"transmute/internal/jobs"
	"transmute/internal/logging"
)

// EventSource is the subscription surface of the job manager.
type EventSource interface {
	Subscribe(target string, fn func(jobs.Event)) jobs.Subscription
	Unsubscribe(sub jobs.Subscription) bool
}

const recordTimeout = 5 * time.Second

// Attach records every terminal job published by source into store. The
// returned function detaches the recorder.
func Attach(source EventSource, store *Store, logger *slog.Logger) func() {
	logger = logging.NewComponentLogger(logger, "history")
	sub := source.Subscribe(jobs.AllJobs, func(ev jobs.Event) {
		if !ev.Terminal() || ev.Job == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := store.Record(ctx, EntryFromJob(*ev.Job)); err != nil {
			logging.WarnWithContext(logger, "failed to record job history", "history_record_failed",
				logging.String(logging.FieldJobID, ev.Job.ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on "+store.Path()),
				logging.String(logging.FieldImpact, "job will be missing from history"),
			)
		}
	})
	return func() { source.Unsubscribe(sub) }
}
