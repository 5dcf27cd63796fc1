// Package staging owns the per-job work directories that hold intermediate
// hop outputs, and removes directories left behind by crashed or abandoned
// jobs.
package staging
