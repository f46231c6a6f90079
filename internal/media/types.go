package media

import "context"

// Candidate is a video identifier emitted by the catalog for evaluation
// by the search pipeline.
type Candidate struct {
	VideoID string
	Title   string
}

// Catalog searches the public video catalog and probes embeddability.
type Catalog interface {
	Search(ctx context.Context, q string, k int) ([]Candidate, error)
	IsEmbeddable(ctx context.Context, videoID string) (bool, error)
}

// Downloader fetches a video's audio track to a scratch path.
type Downloader interface {
	DownloadAudio(ctx context.Context, videoID, destDir string) (string, error)
}

// TranscribeResult reports the outcome of a chunked transcription run.
type TranscribeResult struct {
	CaptionPath     string
	ChunksProcessed int
	EarlyStopped    bool
}

// Transcriber converts audio to timed captions, chunk by chunk, stopping
// early once the target phrase appears (plus one spill chunk).
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, phrase string, chunkSec, maxChunks int) (TranscribeResult, error)
}
