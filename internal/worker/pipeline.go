package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wordclip/wordclip/internal/captions"
	"github.com/wordclip/wordclip/internal/job"
	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/match"
	"github.com/wordclip/wordclip/internal/media"
	"github.com/wordclip/wordclip/internal/query"
	"github.com/wordclip/wordclip/internal/segment"
	"github.com/wordclip/wordclip/internal/wordindex"
)

// PipelineConfig tunes a job run.
type PipelineConfig struct {
	ScratchDir         string
	ChunkSeconds       int
	MaxChunks          int
	MaxCandidates      int
	ResultsPerStrategy int
	JobTimeout         time.Duration

	EnglishMinFunctionWords int
	EnglishMaxNonASCIIRatio float64
}

// Pipeline runs one search job from queued to terminal: catalog search,
// per-candidate download/transcribe/match, then persistence and word
// indexing. Each job has a single writer task, so status transitions are
// totally ordered.
type Pipeline struct {
	jobs        JobStore
	segments    SegmentStore
	words       WordIndex
	catalog     media.Catalog
	downloader  media.Downloader
	transcriber media.Transcriber
	cfg         PipelineConfig
	logger      *logger.Logger
}

// NewPipeline wires a job pipeline.
func NewPipeline(
	jobs JobStore,
	segments SegmentStore,
	words WordIndex,
	catalog media.Catalog,
	downloader media.Downloader,
	transcriber media.Transcriber,
	cfg PipelineConfig,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		jobs:        jobs,
		segments:    segments,
		words:       words,
		catalog:     catalog,
		downloader:  downloader,
		transcriber: transcriber,
		cfg:         cfg,
		logger:      log.WithComponent("pipeline"),
	}
}

// searchStrategies expands a canonical query into the fixed ordered list
// of catalog queries.
func searchStrategies(canonical query.Canonical) []string {
	quoted := `"` + canonical.Text + `"`
	if canonical.Kind == query.KindWord {
		return []string{
			quoted + " explained",
			canonical.Text + " explained",
			canonical.Text,
			quoted,
		}
	}
	return []string{
		quoted,
		canonical.Text,
		canonical.Text + " example",
		quoted + " explained",
	}
}

// Run executes the full state machine for one job. It always leaves the
// job in a terminal state.
func (p *Pipeline) Run(ctx context.Context, j job.Job) {
	log := &logger.Logger{Logger: p.logger.With(
		slog.String("job_id", j.ID),
		slog.String("fingerprint", j.Fingerprint))}
	started := time.Now()

	canonical := query.Canonical{Text: j.Canonical, Kind: j.Kind}

	if err := p.jobs.SetStatus(ctx, j.Fingerprint, job.StatusSearching, ""); err != nil {
		log.Error("failed to mark job searching", slog.String("error", err.Error()))
	}

	candidates := p.collectCandidates(ctx, canonical, log)
	if len(candidates) == 0 {
		p.fail(ctx, j.Fingerprint, "No videos found for this query", log)
		return
	}

	log.Info("candidates collected", slog.Int("count", len(candidates)))

	tried := 0
	for _, candidate := range candidates {
		if time.Since(started) > p.cfg.JobTimeout {
			p.fail(ctx, j.Fingerprint, "Search timed out", log)
			return
		}
		if ctx.Err() != nil {
			p.fail(ctx, j.Fingerprint, "Search cancelled", log)
			return
		}

		tried++
		done, err := p.tryCandidate(ctx, j, canonical, candidate, log)
		if err != nil {
			// Faults inside a candidate are isolated: log, clean up
			// (done in tryCandidate), move on.
			log.Warn("candidate failed",
				slog.String("video_id", candidate.VideoID),
				slog.String("error", err.Error()))
			continue
		}
		if done {
			return
		}
	}

	p.fail(ctx, j.Fingerprint, fmt.Sprintf("No English video found; tried %d videos", tried), log)
}

// collectCandidates runs each search strategy, deduplicating by video id
// until enough unique candidates are gathered.
func (p *Pipeline) collectCandidates(ctx context.Context, canonical query.Canonical, log *logger.Logger) []media.Candidate {
	seen := make(map[string]struct{})
	var out []media.Candidate

	for _, strategy := range searchStrategies(canonical) {
		if len(out) >= p.cfg.MaxCandidates {
			break
		}

		results, err := p.catalog.Search(ctx, strategy, p.cfg.ResultsPerStrategy)
		if err != nil {
			log.Warn("catalog search strategy failed",
				slog.String("strategy", strategy),
				slog.String("error", err.Error()))
			continue
		}

		for _, r := range results {
			if _, dup := seen[r.VideoID]; dup {
				continue
			}
			seen[r.VideoID] = struct{}{}
			out = append(out, r)
			if len(out) >= p.cfg.MaxCandidates {
				break
			}
		}
	}

	return out
}

// tryCandidate runs the per-candidate stages. Returns done=true when the
// job reached a terminal completed state. Scratch files are removed
// regardless of outcome.
func (p *Pipeline) tryCandidate(ctx context.Context, j job.Job, canonical query.Canonical, candidate media.Candidate, log *logger.Logger) (done bool, err error) {
	embeddable, err := p.catalog.IsEmbeddable(ctx, candidate.VideoID)
	if err != nil {
		return false, fmt.Errorf("embeddability check: %w", err)
	}
	if !embeddable {
		log.Debug("skipping non-embeddable video", slog.String("video_id", candidate.VideoID))
		return false, nil
	}

	if err := p.jobs.SetStatus(ctx, j.Fingerprint, job.StatusDownloading, candidate.VideoID); err != nil {
		log.Error("failed to mark job downloading", slog.String("error", err.Error()))
	}

	defer p.cleanupScratch(candidate.VideoID, log)

	audioPath, err := p.downloader.DownloadAudio(ctx, candidate.VideoID, p.cfg.ScratchDir)
	if err != nil {
		return false, fmt.Errorf("audio download: %w", err)
	}

	if err := p.jobs.SetStatus(ctx, j.Fingerprint, job.StatusTranscribing, candidate.VideoID); err != nil {
		log.Error("failed to mark job transcribing", slog.String("error", err.Error()))
	}

	result, err := p.transcriber.Transcribe(ctx, audioPath, canonical.Text, p.cfg.ChunkSeconds, p.cfg.MaxChunks)
	if err != nil {
		return false, fmt.Errorf("transcription: %w", err)
	}
	if !result.EarlyStopped && result.ChunksProcessed >= p.cfg.MaxChunks {
		// The chunk cap was reached without an early stop: unless the
		// phrase sat in the final chunk of the audio, it never showed up
		// in the inspected window.
		log.Debug("phrase not present in transcribed window", slog.String("video_id", candidate.VideoID))
	}

	segments, err := captions.ParseFile(result.CaptionPath)
	if err != nil {
		return false, fmt.Errorf("caption parse: %w", err)
	}
	if len(segments) == 0 {
		return false, nil
	}

	joined := joinCaptionText(segments)
	if !looksEnglish(joined, p.cfg.EnglishMinFunctionWords, p.cfg.EnglishMaxNonASCIIRatio) {
		log.Debug("rejected by English gate", slog.String("video_id", candidate.VideoID))
		return false, nil
	}

	m := match.FindPhrase(segments, canonical)
	if m < 0 {
		log.Debug("phrase not found in captions", slog.String("video_id", candidate.VideoID))
		return false, nil
	}

	sentence := match.ExpandToSentence(segments, m)
	clip := segment.Segment{
		Fingerprint: j.Fingerprint,
		Query:       j.Query,
		VideoID:     candidate.VideoID,
		StartTime:   sentence.StartTime,
		EndTime:     sentence.EndTime,
		Caption:     sentence.Caption,
		Captions:    match.OverlappingCues(segments, sentence.StartTime, sentence.EndTime),
	}

	if err := p.jobs.SetResult(ctx, j.Fingerprint, clip); err != nil {
		return false, fmt.Errorf("persist job result: %w", err)
	}

	// The job already terminalized; cache and index writes are
	// independent, and a failure is only logged: it is not retried and
	// does not change the job's completed result.
	words := wordindex.ExtractWords(clip.Caption)
	var g errgroup.Group
	g.Go(func() error {
		if err := p.segments.Insert(ctx, clip); err != nil && !errors.Is(err, segment.ErrDuplicateKey) {
			return fmt.Errorf("cache segment: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := p.words.AddSegmentToWords(ctx, words, segment.RefOf(clip)); err != nil {
			return fmt.Errorf("index words: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("post-completion write failed", slog.String("error", err.Error()))
	}

	log.Info("job pipeline completed",
		slog.String("video_id", candidate.VideoID),
		slog.Int("chunks_processed", result.ChunksProcessed),
		slog.Bool("early_stopped", result.EarlyStopped),
		slog.Int("indexed_words", len(words)))

	return true, nil
}

// fail terminalizes a job as failed.
func (p *Pipeline) fail(ctx context.Context, fp, message string, log *logger.Logger) {
	if err := p.jobs.SetError(ctx, fp, message); err != nil {
		log.Error("failed to mark job failed", slog.String("error", err.Error()))
	}
}

// cleanupScratch removes every scratch artifact for a candidate.
func (p *Pipeline) cleanupScratch(videoID string, log *logger.Logger) {
	matches, err := filepath.Glob(filepath.Join(p.cfg.ScratchDir, videoID+"*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			log.Warn("failed to remove scratch file",
				slog.String("path", m),
				slog.String("error", err.Error()))
		}
	}
}

func joinCaptionText(segments []captions.Cue) string {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return strings.Join(texts, " ")
}
