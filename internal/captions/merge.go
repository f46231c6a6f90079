package captions

import (
	"fmt"
	"os"
	"strings"
)

// MergeChunks stitches per-chunk cue lists into one timeline by shifting
// each chunk's cues by chunkIndex * chunkDuration seconds.
func MergeChunks(chunks [][]Cue, chunkDuration float64) []Cue {
	var merged []Cue
	for idx, cues := range chunks {
		offset := float64(idx) * chunkDuration
		for _, c := range cues {
			c.Start += offset
			merged = append(merged, c)
		}
	}
	return merged
}

// WriteFile serializes cues back to a WEBVTT file. Used by the chunked
// transcriber to produce a single merged caption file per candidate.
func WriteFile(path string, cues []Cue) error {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cues {
		b.WriteString(fmt.Sprintf("%s --> %s\n%s\n\n", formatTimestamp(c.Start), formatTimestamp(c.End()), c.Text))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write caption file: %w", err)
	}
	return nil
}

func formatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	totalMillis := int64(sec*1000 + 0.5)
	h := totalMillis / 3600000
	m := totalMillis % 3600000 / 60000
	s := totalMillis % 60000 / 1000
	ms := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
