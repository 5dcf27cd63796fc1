// Package jobs drives conversion routes as trackable, cancellable
// asynchronous jobs and runs batches of them.
//
// A Manager owns the job registry. Each job runs its own pipeline goroutine
// through the steps validate, analyze, optimize, one execute step per hop,
// and finalize. Only the pipeline mutates a job; Get, List and event
// subscribers see immutable snapshots. Cancellation is cooperative: it marks
// the job Cancelled immediately, and the pipeline stops at the next step
// boundary after the running hop returns.
//
// Plan and Submit wrap route resolution, probing and option optimization so
// validation errors surface synchronously and unsupported conversions come
// back as a structured result rather than an error.
package jobs
