// Package optimize turns a caller's raw conversion options into a fully
// resolved, backend-ready option set for one hop.
//
// Unspecified values are filled from media characteristics (dimensions, frame
// rate, detected motion, source bitrate) and per-container codec tables.
// Platform presets cap bitrate, dimensions and frame rate. Inconsistent raw
// options fail with a validation error before any job exists. Optimize never
// mutates its input.
package optimize
