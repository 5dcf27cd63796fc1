// Package logging assembles structured slog loggers and formatting helpers used
// across transmute.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so job code automatically tags
// log lines with job IDs, batch IDs, pipeline steps and correlation IDs. A
// no-op logger is provided for tests and wiring code that cannot fail.
package logging
