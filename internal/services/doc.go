// Package services defines shared utilities consumed by the conversion
// pipeline and its external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, batch IDs, pipeline step names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (validation, unsupported route, tool execution) so the job manager
//     and API can react consistently.
//
// Use these helpers when wiring new backends so error reporting and
// observability stay uniform across the pipeline.
package services
