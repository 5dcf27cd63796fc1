// Package daemon runs transmute as a long-lived service.
//
// It wraps a jobs.Manager with flock-based single-instance locking, records
// finished jobs into the history store, forwards job and batch outcomes to
// the notification service, and runs a janitor that evicts expired jobs and
// stale staging directories. The HTTP API in api_server.go exposes every
// manager operation plus a server-sent event stream.
//
// Keep orchestration here: conversion logic belongs to jobs and codec while
// the daemon owns startup, shutdown and the transport surface.
package daemon
