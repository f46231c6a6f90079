package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wordclip/wordclip/internal/captions"
	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/match"
)

// WhisperTranscriber splits audio into fixed-length chunks with ffmpeg
// and transcribes them one at a time with a whisper CLI, inspecting each
// chunk's captions for the target phrase. Once the phrase (or a
// variation) appears, one additional chunk is transcribed to catch a
// sentence spilling across the boundary, then the run stops.
type WhisperTranscriber struct {
	ffmpegBinary  string
	whisperBinary string
	whisperModel  string
	logger        *logger.Logger
}

// NewWhisperTranscriber creates the chunked ffmpeg+whisper adapter.
func NewWhisperTranscriber(ffmpegBinary, whisperBinary, whisperModel string, log *logger.Logger) *WhisperTranscriber {
	return &WhisperTranscriber{
		ffmpegBinary:  ffmpegBinary,
		whisperBinary: whisperBinary,
		whisperModel:  whisperModel,
		logger:        log.WithComponent("transcriber"),
	}
}

// Transcribe implements the chunked early-stop transcription contract.
// The merged caption file is written next to the audio file as
// <audio>.vtt with per-chunk cues shifted onto the full timeline.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath, phrase string, chunkSec, maxChunks int) (TranscribeResult, error) {
	chunkDir := audioPath + ".chunks"
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return TranscribeResult{}, fmt.Errorf("failed to create chunk dir: %w", err)
	}

	chunkPaths, err := t.splitAudio(ctx, audioPath, chunkDir, chunkSec)
	if err != nil {
		return TranscribeResult{}, err
	}
	if len(chunkPaths) == 0 {
		return TranscribeResult{}, fmt.Errorf("audio produced no chunks")
	}

	tokens := match.PhraseTokens(phrase)

	var chunkCues [][]captions.Cue
	processed := 0
	earlyStopped := false
	matchedAt := -1

	for i, chunkPath := range chunkPaths {
		if i >= maxChunks && matchedAt == -1 {
			break
		}
		// After a hit, only the single spill chunk is transcribed.
		if matchedAt >= 0 && i > matchedAt+1 {
			break
		}

		if err := ctx.Err(); err != nil {
			return TranscribeResult{}, err
		}

		cues, err := t.transcribeChunk(ctx, chunkPath)
		if err != nil {
			return TranscribeResult{}, err
		}
		chunkCues = append(chunkCues, cues)
		processed++

		if matchedAt == -1 && chunkMatchesPhrase(cues, tokens) {
			matchedAt = i
			earlyStopped = i+1 < len(chunkPaths)
			t.logger.Debug("phrase found in chunk",
				slog.Int("chunk", i),
				slog.String("phrase", phrase))
		}
	}

	merged := captions.MergeChunks(chunkCues, float64(chunkSec))
	captionPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".vtt"
	if err := captions.WriteFile(captionPath, merged); err != nil {
		return TranscribeResult{}, err
	}

	return TranscribeResult{
		CaptionPath:     captionPath,
		ChunksProcessed: processed,
		EarlyStopped:    earlyStopped,
	}, nil
}

// chunkMatchesPhrase reports whether every phrase token (with
// variations) occurs somewhere in the chunk's joined text.
func chunkMatchesPhrase(cues []captions.Cue, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}

	var joined strings.Builder
	for _, c := range cues {
		joined.WriteString(c.Text)
		joined.WriteString(" ")
	}
	text := joined.String()

	for _, tok := range tokens {
		if !match.ContainsVariation(text, tok) {
			return false
		}
	}
	return true
}

// splitAudio segments the audio into fixed-length chunk files.
func (t *WhisperTranscriber) splitAudio(ctx context.Context, audioPath, chunkDir string, chunkSec int) ([]string, error) {
	pattern := filepath.Join(chunkDir, "chunk_%03d"+filepath.Ext(audioPath))
	cmd := exec.CommandContext(ctx, t.ffmpegBinary,
		"-i", audioPath,
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", chunkSec),
		"-c", "copy",
		"-y",
		pattern,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audio split failed: %w: %s", err, stderr.String())
	}

	entries, err := os.ReadDir(chunkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "chunk_") {
			paths = append(paths, filepath.Join(chunkDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// transcribeChunk runs whisper on one chunk and parses its VTT output.
func (t *WhisperTranscriber) transcribeChunk(ctx context.Context, chunkPath string) ([]captions.Cue, error) {
	outDir := filepath.Dir(chunkPath)
	cmd := exec.CommandContext(ctx, t.whisperBinary,
		chunkPath,
		"--model", t.whisperModel,
		"--language", "en",
		"--output_format", "vtt",
		"--output_dir", outDir,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("transcription failed for %s: %w: %s", filepath.Base(chunkPath), err, stderr.String())
	}

	vttPath := strings.TrimSuffix(chunkPath, filepath.Ext(chunkPath)) + ".vtt"
	cues, err := captions.ParseFile(vttPath)
	if err != nil {
		return nil, err
	}
	return cues, nil
}
