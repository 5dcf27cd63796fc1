package api

import (
	"time"

	"transmute/internal/catalog"
	"transmute/internal/deps"
	"transmute/internal/history"
	"transmute/internal/jobs"
	"transmute/internal/preflight"
	"transmute/internal/route"
)

// DomainFormats lists the formats and declared edges of one domain.
type DomainFormats struct {
	Domain  catalog.Domain   `json:"domain"`
	Formats []catalog.Format `json:"formats"`
	Edges   []catalog.Edge   `json:"edges"`
}

// FormatsResponse wraps the catalog listing.
type FormatsResponse struct {
	Domains []DomainFormats `json:"domains"`
}

// RouteResponse answers a single route lookup. Reachable is filled when no
// route exists.
type RouteResponse struct {
	Found     bool             `json:"found"`
	Route     *route.Route     `json:"route,omitempty"`
	Reachable []catalog.Format `json:"reachable,omitempty"`
}

// RoutesResponse lists every route between two formats.
type RoutesResponse struct {
	Routes []route.Route `json:"routes"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []jobs.Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job jobs.Job `json:"job"`
}

// CancelResponse reports whether a cancel request changed the job.
type CancelResponse struct {
	Cancelled bool     `json:"cancelled"`
	Job       jobs.Job `json:"job"`
}

// BatchCreatedResponse is returned when a batch is accepted.
type BatchCreatedResponse struct {
	BatchID string `json:"batch_id"`
}

// BatchResponse wraps a single batch.
type BatchResponse struct {
	Batch jobs.Batch `json:"batch"`
}

// BatchListResponse wraps a collection of batches.
type BatchListResponse struct {
	Batches []jobs.Batch `json:"batches"`
}

// HistoryResponse lists recorded jobs with per-status totals.
type HistoryResponse struct {
	Entries []history.Entry     `json:"entries"`
	Totals  map[jobs.Status]int `json:"totals"`
}

// Status aggregates daemon runtime information.
type Status struct {
	Running      bool                `json:"running"`
	PID          int                 `json:"pid"`
	StartedAt    time.Time           `json:"started_at,omitzero"`
	LockFilePath string              `json:"lock_file_path"`
	HistoryPath  string              `json:"history_path,omitempty"`
	Jobs         map[jobs.Status]int `json:"jobs"`
	Batches      int                 `json:"batches"`
	MaxHops      int                 `json:"max_hops"`
	Strategy     route.Strategy      `json:"strategy"`
	Checks       []preflight.Result  `json:"checks"`
	Dependencies []deps.Status       `json:"dependencies"`
	Unavailable  []catalog.Method    `json:"unavailable_methods,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
