package match

import (
	"strings"

	"github.com/wordclip/wordclip/internal/captions"
)

// trailingPadding extends the clip end so a sentence is not cut mid-word.
const trailingPadding = 2.0

// Sentence is a matched clip expanded to natural sentence boundaries.
type Sentence struct {
	StartIndex int
	EndIndex   int
	StartTime  float64
	EndTime    float64
	Caption    string
}

// endsSentence reports whether a segment's trimmed text ends with
// sentence-terminating punctuation.
func endsSentence(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// ExpandToSentence grows the matched segment at index m outward to the
// nearest sentence boundaries. The previous sentence's terminator marks
// the break; the sentence starts at the segment after it. Forward, the
// first terminated segment is included.
func ExpandToSentence(segments []captions.Cue, m int) Sentence {
	start := 0
	for i := m - 1; i >= 0; i-- {
		if endsSentence(segments[i].Text) {
			start = i + 1
			break
		}
	}

	end := len(segments) - 1
	for i := m; i < len(segments); i++ {
		if endsSentence(segments[i].Text) {
			end = i
			break
		}
	}

	texts := make([]string, 0, end-start+1)
	for _, seg := range segments[start : end+1] {
		texts = append(texts, seg.Text)
	}

	return Sentence{
		StartIndex: start,
		EndIndex:   end,
		StartTime:  segments[start].Start,
		EndTime:    segments[end].End() + trailingPadding,
		Caption:    strings.TrimSpace(strings.Join(texts, " ")),
	}
}

// OverlappingCues returns the cues intersecting [startTime, endTime].
func OverlappingCues(segments []captions.Cue, startTime, endTime float64) []captions.Cue {
	var out []captions.Cue
	for _, seg := range segments {
		if seg.End() > startTime && seg.Start < endTime {
			out = append(out, seg)
		}
	}
	return out
}
