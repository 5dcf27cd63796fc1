package jobs

import (
	"fmt"
	"strings"
	"time"

	"transmute/internal/catalog"
	"transmute/internal/codec"
	"transmute/internal/optimize"
	"transmute/internal/route"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus validates a status name.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("unknown job status %q", value)
	}
}

// Pipeline step labels. Hop steps are reported as "execute i/n".
const (
	StepValidate = "validate"
	StepAnalyze  = "analyze"
	StepOptimize = "optimize"
	StepExecute  = "execute"
	StepFinalize = "finalize"
)

// Progress reached when each step finishes. Hops share the band between
// progressOptimized and progressExecuted evenly.
const (
	progressValidated = 5
	progressAnalyzed  = 10
	progressOptimized = 15
	progressExecuted  = 95
	// Live jobs never report 100; only Completed does.
	progressLiveMax = 99
)

// Job is a point-in-time snapshot of a conversion job.
type Job struct {
	ID                 string            `json:"id"`
	BatchID            string            `json:"batch_id,omitempty"`
	Input              codec.Descriptor  `json:"input"`
	Route              route.Route       `json:"route"`
	Options            optimize.Resolved `json:"options"`
	Status             Status            `json:"status"`
	Progress           float64           `json:"progress"`
	Step               string            `json:"step,omitempty"`
	Message            string            `json:"message,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	StartedAt          time.Time         `json:"started_at,omitzero"`
	EndedAt            time.Time         `json:"ended_at,omitzero"`
	Output             *codec.Descriptor `json:"output,omitempty"`
	Error              string            `json:"error,omitempty"`
	ErrorKind          string            `json:"error_kind,omitempty"`
	EstimatedRemaining time.Duration     `json:"estimated_remaining,omitempty"`
}

// Elapsed is the processing time so far, or the total once terminal.
func (j Job) Elapsed(now time.Time) time.Duration {
	if j.StartedAt.IsZero() {
		return 0
	}
	if !j.EndedAt.IsZero() {
		return j.EndedAt.Sub(j.StartedAt)
	}
	return now.Sub(j.StartedAt)
}

func (j Job) clone() Job {
	if j.Output != nil {
		out := *j.Output
		j.Output = &out
	}
	return j
}

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
)

// Batch is a snapshot of a batch. Results hold the terminal job of every
// attempted file in input order.
type Batch struct {
	ID          string           `json:"id"`
	Files       []string         `json:"files"`
	Target      catalog.Format   `json:"target"`
	Options     optimize.Options `json:"options"`
	Status      BatchStatus      `json:"status"`
	Completed   int              `json:"completed"`
	Total       int              `json:"total"`
	CurrentFile string           `json:"current_file,omitempty"`
	Results     []Job            `json:"results"`
	CreatedAt   time.Time        `json:"created_at"`
	EndedAt     time.Time        `json:"ended_at,omitzero"`
}

// Count returns how many results ended in status.
func (b Batch) Count(status Status) int {
	n := 0
	for _, r := range b.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}
