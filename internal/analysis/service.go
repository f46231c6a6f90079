package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/streaming"
)

// Cache is the persistence slice the service consumes.
type Cache interface {
	FindByFingerprint(ctx context.Context, fp string) (*Record, error)
	Insert(ctx context.Context, r Record) error
	IncrementAccess(ctx context.Context, fp string) (int, error)
}

// persistBackoffs schedules retries for cache writes. A write that still
// fails is dropped: persistence never fails the in-flight response.
var persistBackoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// synthChunkDelay paces synthesized replay of records that predate
// chunk logs.
const synthChunkDelay = 15 * time.Millisecond

// Service coalesces analysis requests behind the stream registry,
// persists completed streams, and replays cached transcripts.
type Service struct {
	cache    Cache
	provider Provider
	registry *streaming.Registry
	logger   *logger.Logger
}

// NewService wires the analysis service and installs the registry's
// terminal observer for persistence.
func NewService(cache Cache, provider Provider, registry *streaming.Registry, log *logger.Logger) *Service {
	s := &Service{
		cache:    cache,
		provider: provider,
		registry: registry,
		logger:   log.WithComponent("analysis"),
	}
	registry.SetOnTerminal(s.persistTerminal)
	return s
}

// FindCached returns the persisted record for a request and bumps its
// access accounting on a hit.
func (s *Service) FindCached(ctx context.Context, fp string) (*Record, error) {
	record, err := s.cache.FindByFingerprint(ctx, fp)
	if err != nil || record == nil {
		return nil, err
	}

	count, err := s.cache.IncrementAccess(ctx, fp)
	if err != nil {
		s.logger.Warn("failed to bump access count",
			slog.String("fingerprint", fp),
			slog.String("error", err.Error()))
	} else {
		record.AccessCount = count
	}

	return record, nil
}

// StartOrJoin registers (or joins) the active stream for a request. The
// creating caller's registry spawns a single driver task that runs the
// upstream call; every other caller becomes a subscriber.
func (s *Service) StartOrJoin(req Request) (*streaming.Stream, bool, error) {
	fp := req.Fingerprint()
	return s.registry.GetOrCreate(fp, req, func(ctx context.Context, st *streaming.Stream) {
		err := s.provider.StreamAnalysis(ctx, req, func(text string) {
			s.registry.PublishChunk(fp, text)
		})
		if err != nil {
			s.logger.Error("upstream analysis failed",
				slog.String("fingerprint", fp),
				slog.String("error", err.Error()))
			s.registry.Error(fp, "Analysis service temporarily unavailable")
			return
		}
		s.registry.Complete(fp)
	})
}

// Await blocks until the stream terminalizes and returns its parsed
// result.
func (s *Service) Await(ctx context.Context, st *streaming.Stream) (Result, error) {
	select {
	case <-st.Done():
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	if st.Status() == streaming.StatusErrored {
		return Result{}, errors.New(st.ErrMessage())
	}

	result, err := ParseResult(st.Accumulated())
	if err != nil {
		return Result{}, fmt.Errorf("analysis produced unparseable output: %w", err)
	}
	return result, nil
}

// persistTerminal saves a completed stream's transcript. Runs on the
// driver task; failures are retried with backoff and finally dropped
// without affecting subscribers.
func (s *Service) persistTerminal(st *streaming.Stream) {
	if st.Status() != streaming.StatusCompleted {
		return
	}

	req, ok := st.Params.(Request)
	if !ok {
		s.logger.Error("stream carries unexpected params type",
			slog.String("fingerprint", st.Fingerprint))
		return
	}

	result, err := ParseResult(st.Accumulated())
	if err != nil {
		s.logger.Warn("completed stream output not persistable",
			slog.String("fingerprint", st.Fingerprint),
			slog.String("error", err.Error()))
		return
	}

	record := Record{
		Fingerprint: st.Fingerprint,
		Request:     req,
		Result:      result,
		ChunkLog:    st.Chunks(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for attempt := 0; ; attempt++ {
		err = s.cache.Insert(ctx, record)
		if err == nil || errors.Is(err, ErrDuplicateKey) {
			return
		}
		if attempt >= len(persistBackoffs) {
			s.logger.Error("giving up persisting analysis",
				slog.String("fingerprint", st.Fingerprint),
				slog.String("error", err.Error()))
			return
		}
		s.logger.Warn("analysis persist failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
		select {
		case <-time.After(persistBackoffs[attempt]):
		case <-ctx.Done():
			return
		}
	}
}

// ReplayStep is one paced write of a cached transcript.
type ReplayStep struct {
	Text  string
	Delay time.Duration // pause after writing this step
}

// ReplayPlan converts a record into paced replay steps. Stored chunk
// logs reuse the live pacing law; legacy records without a log fall
// back to synthesized chunks at a fixed cadence.
func ReplayPlan(r *Record) []ReplayStep {
	if len(r.ChunkLog) > 0 {
		steps := make([]ReplayStep, len(r.ChunkLog))
		for i, c := range r.ChunkLog {
			var delay time.Duration
			if i+1 < len(r.ChunkLog) {
				delay = streaming.ReplayDelay(c.At, r.ChunkLog[i+1].At)
			}
			steps[i] = ReplayStep{Text: c.Text, Delay: delay}
		}
		return steps
	}

	texts := SynthesizeChunks(FullResponseText(r.Result))
	steps := make([]ReplayStep, len(texts))
	for i, t := range texts {
		var delay time.Duration
		if i+1 < len(texts) {
			delay = synthChunkDelay
		}
		steps[i] = ReplayStep{Text: t, Delay: delay}
	}
	return steps
}
