package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/wordclip/wordclip/internal/logger"
)

// YtDlp drives the yt-dlp binary for catalog search and audio download,
// and the oEmbed endpoint for embeddability probes.
type YtDlp struct {
	binary     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewYtDlp creates a catalog/downloader adapter around the yt-dlp binary.
func NewYtDlp(binary string, log *logger.Logger) *YtDlp {
	return &YtDlp{
		binary:     binary,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log.WithComponent("ytdlp"),
	}
}

type searchEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Search runs a catalog search returning up to k candidates.
func (y *YtDlp) Search(ctx context.Context, q string, k int) ([]Candidate, error) {
	target := fmt.Sprintf("ytsearch%d:%s", k, q)
	cmd := exec.CommandContext(ctx, y.binary,
		target,
		"--dump-json",
		"--flat-playlist",
		"--no-warnings",
		"--quiet",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("catalog search failed: %w: %s", err, stderr.String())
	}

	var candidates []Candidate
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry searchEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			y.logger.Warn("skipping malformed search entry", slog.String("error", err.Error()))
			continue
		}
		if entry.ID == "" {
			continue
		}
		candidates = append(candidates, Candidate{VideoID: entry.ID, Title: entry.Title})
	}

	return candidates, nil
}

// IsEmbeddable probes the oEmbed endpoint: embeddable videos answer 200,
// restricted ones 401/403.
func (y *YtDlp) IsEmbeddable(ctx context.Context, videoID string) (bool, error) {
	probeURL := "https://www.youtube.com/oembed?format=json&url=" +
		url.QueryEscape("https://www.youtube.com/watch?v="+videoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build embed probe: %w", err)
	}

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("embed probe failed: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// DownloadAudio fetches the audio track as mp3 into destDir and returns
// the file path.
func (y *YtDlp) DownloadAudio(ctx context.Context, videoID, destDir string) (string, error) {
	outPath := filepath.Join(destDir, videoID+".mp3")
	cmd := exec.CommandContext(ctx, y.binary,
		"https://www.youtube.com/watch?v="+videoID,
		"--extract-audio",
		"--audio-format", "mp3",
		"--output", outPath,
		"--no-playlist",
		"--no-warnings",
		"--quiet",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("audio download failed: %w: %s", err, stderr.String())
	}

	y.logger.Debug("audio downloaded",
		slog.String("video_id", videoID),
		slog.Duration("duration", time.Since(start)))

	return outPath, nil
}
