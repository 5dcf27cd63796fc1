// Package api defines the wire-format envelopes of the transmute HTTP API and
// a small client for talking to a running daemon.
//
// Domain snapshots (jobs.Job, jobs.Batch, route.Route, history.Entry) already
// carry JSON tags, so the envelopes here only wrap them. Field names use
// snake_case throughout. Errors are returned as ErrorResponse with the
// services error kind, which Client maps back onto the services sentinels so
// callers can keep using errors.Is.
package api
