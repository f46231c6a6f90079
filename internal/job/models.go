package job

import (
	"errors"
	"time"

	"github.com/wordclip/wordclip/internal/query"
	"github.com/wordclip/wordclip/internal/segment"
)

// Status is the lifecycle phase of a search job. Non-terminal statuses
// progress monotonically; completed and failed are terminal.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusSearching    Status = "searching"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrDuplicateKey is returned by Create when a job already exists for
// the fingerprint. Callers resolve it by fetching the existing job.
var ErrDuplicateKey = errors.New("job already exists for fingerprint")

// Job is one queued or running search request. Exactly one job exists
// per fingerprint at any time.
type Job struct {
	ID             string           `json:"id"`
	Fingerprint    string           `json:"fingerprint"`
	Query          string           `json:"query"`
	Canonical      string           `json:"canonical"`
	Kind           query.Kind       `json:"kind"`
	Status         Status           `json:"status"`
	CurrentVideoID string           `json:"currentVideoId,omitempty"`
	Result         *segment.Segment `json:"result,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Init carries the fields needed to enqueue a new job.
type Init struct {
	Fingerprint string
	Query       string
	Canonical   string
	Kind        query.Kind
}
