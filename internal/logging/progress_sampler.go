package logging

import "strings"

// ProgressSampler thins job progress logging. A line is due when progress
// enters a new bucket or the pipeline moves to another step (including the
// next hop of a multi-hop route). It is not safe for concurrent use.
type ProgressSampler struct {
	bucketSize float64
	lastStep   string
	lastBucket int
}

// NewProgressSampler returns a sampler with the given bucket width in percent
// (5 when non-positive).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress update is worth a log line. A negative
// percent means unknown and only step changes count.
func (s *ProgressSampler) ShouldLog(percent float64, step string) bool {
	if s == nil {
		return true
	}
	emit := false
	step = strings.TrimSpace(step)
	if step != "" && step != s.lastStep {
		s.lastStep = step
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		bucket := int(min(percent, 100) / s.bucketSize)
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStep = ""
	s.lastBucket = -1
}
