// Package notifications pushes conversion outcomes to ntfy.
//
// NewService returns an ntfy-backed Service when a topic URL is configured
// and a no-op otherwise. Forward subscribes a Service to the job manager so
// finished jobs and batches produce notifications without the manager
// knowing about HTTP. Per-event toggles in the [notifications] config
// section suppress individual event types.
package notifications
