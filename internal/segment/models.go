package segment

import (
	"errors"
	"time"

	"github.com/wordclip/wordclip/internal/captions"
)

// ErrDuplicateKey is returned by Insert when a segment already exists
// for the fingerprint. Callers treat this as success: segments are
// immutable and the first writer wins.
var ErrDuplicateKey = errors.New("segment already exists for fingerprint")

// Segment is a cached search result: the clip of a video containing the
// queried word or phrase, expanded to sentence boundaries.
type Segment struct {
	Fingerprint string          `json:"fingerprint"`
	Query       string          `json:"query"`
	VideoID     string          `json:"videoId"`
	StartTime   float64         `json:"startTime"`
	EndTime     float64         `json:"endTime"`
	Caption     string          `json:"caption"`
	Captions    []captions.Cue  `json:"captions"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Ref identifies a clip inside a word-index entry. Uniqueness inside an
// entry is by (videoId, start, end).
type Ref struct {
	VideoID   string  `json:"videoId"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Caption   string  `json:"caption"`
}

// RefOf builds the index reference for a segment.
func RefOf(s Segment) Ref {
	return Ref{
		VideoID:   s.VideoID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Caption:   s.Caption,
	}
}
