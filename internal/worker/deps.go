package worker

import (
	"context"

	"github.com/wordclip/wordclip/internal/job"
	"github.com/wordclip/wordclip/internal/segment"
)

// JobStore is the slice of the job queue the pool and pipeline consume.
type JobStore interface {
	ListQueued(ctx context.Context) ([]job.Job, error)
	SetStatus(ctx context.Context, fp string, status job.Status, currentVideoID string) error
	SetResult(ctx context.Context, fp string, seg segment.Segment) error
	SetError(ctx context.Context, fp string, message string) error
}

// SegmentStore is the result cache the pipeline writes into.
type SegmentStore interface {
	Insert(ctx context.Context, seg segment.Segment) error
}

// WordIndex receives the per-word segment references of completed clips.
type WordIndex interface {
	AddSegmentToWords(ctx context.Context, words []string, ref segment.Ref) error
}
