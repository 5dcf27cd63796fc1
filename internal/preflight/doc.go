// Package preflight provides readiness checks for the converter binaries
// and filesystem paths that transmute depends on.
//
// These checks run in two contexts:
//   - The CLI "transmute check" command prints every result.
//   - The daemon logs failed checks at startup and serves them from
//     /api/status so clients can tell which conversion methods will fail.
//
// Checks for optional features (ntfy) run only when they are configured.
package preflight
