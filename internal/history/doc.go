// Package history keeps a SQLite record of finished conversion jobs.
//
// The job manager only retains jobs in memory until Cleanup evicts them;
// Attach subscribes a Store to every terminal job event so completed,
// failed and cancelled jobs stay queryable across daemon restarts. Schema
// changes bump schemaVersion in schema.go; users delete the database to
// adopt the new schema.
package history
