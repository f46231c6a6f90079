package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wordclip/wordclip/internal/job"
	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/query"
	"github.com/wordclip/wordclip/internal/segment"
)

// Service resolves search requests: canonicalize, consult the result
// cache, and enqueue or surface the background job.
type Service struct {
	segments *segment.Store
	jobs     *job.Store
	logger   *logger.Logger
}

// NewService creates the search service.
func NewService(segments *segment.Store, jobs *job.Store, log *logger.Logger) *Service {
	return &Service{
		segments: segments,
		jobs:     jobs,
		logger:   log.WithComponent("search"),
	}
}

// Resolution is the outcome of one search request: either a cached
// segment or the job (fresh or pre-existing) that will produce one.
type Resolution struct {
	Cached *segment.Segment
	Job    *job.Job
}

// Resolve handles one search submission. A cache hit bypasses the job
// queue entirely; otherwise the existing job for the fingerprint is
// returned, or a new one is enqueued.
func (s *Service) Resolve(ctx context.Context, raw string, jobID string) (Resolution, error) {
	canonical, err := query.Canonicalize(raw)
	if err != nil {
		return Resolution{}, err
	}
	fp := query.Fingerprint(canonical.Text)

	log := s.logger.WithContext(logger.WithFingerprint(ctx, fp))

	cached, err := s.segments.FindByFingerprint(ctx, fp)
	if err != nil {
		return Resolution{}, fmt.Errorf("cache lookup failed: %w", err)
	}
	if cached != nil {
		log.Debug("search served from cache")
		return Resolution{Cached: cached}, nil
	}

	// Prefer the explicit job id when polling; fall back to the
	// fingerprint so resubmitted queries converge on the same job.
	if jobID != "" {
		j, err := s.jobs.FindByID(ctx, jobID)
		if err != nil {
			return Resolution{}, fmt.Errorf("job lookup failed: %w", err)
		}
		if j != nil {
			return Resolution{Job: j}, nil
		}
	}

	existing, err := s.jobs.FindByFingerprint(ctx, fp)
	if err != nil {
		return Resolution{}, fmt.Errorf("job lookup failed: %w", err)
	}
	if existing != nil {
		return Resolution{Job: existing}, nil
	}

	created, err := s.jobs.Create(ctx, job.Init{
		Fingerprint: fp,
		Query:       raw,
		Canonical:   canonical.Text,
		Kind:        canonical.Kind,
	})
	if errors.Is(err, job.ErrDuplicateKey) {
		// Lost the race to another request; adopt its job.
		winner, lookupErr := s.jobs.FindByFingerprint(ctx, fp)
		if lookupErr != nil {
			return Resolution{}, fmt.Errorf("job lookup after duplicate failed: %w", lookupErr)
		}
		if winner == nil {
			return Resolution{}, fmt.Errorf("job vanished after duplicate-key create")
		}
		return Resolution{Job: winner}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("job create failed: %w", err)
	}

	log.Info("search job enqueued", slog.String("job_id", created.ID))
	return Resolution{Job: created}, nil
}
