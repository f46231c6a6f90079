package streaming

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an active stream.
type Status string

const (
	// StatusActive means the upstream driver is still producing chunks.
	StatusActive Status = "active"
	// StatusCompleted means the upstream call finished successfully.
	StatusCompleted Status = "completed"
	// StatusErrored means the upstream call failed.
	StatusErrored Status = "errored"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusErrored
}

// Chunk is one incremental piece of upstream output, stamped with its
// arrival time relative to stream creation. The relative timestamps
// drive replay pacing for late joiners.
type Chunk struct {
	Text string `json:"text"`
	At   int64  `json:"at"` // milliseconds since stream creation
}

// FrameKind discriminates SSE frames.
type FrameKind int

const (
	FrameChunk FrameKind = iota
	FrameDone
	FrameError
)

// Frame is one SSE data frame delivered to a subscriber.
type Frame struct {
	Kind         FrameKind
	Text         string // chunk text
	FullResponse string // set on done frames
	ErrMessage   string // set on error frames
}

// Payload renders the frame as the JSON body of an SSE data line.
func (f Frame) Payload() []byte {
	var v any
	switch f.Kind {
	case FrameDone:
		v = map[string]any{"done": true, "fullResponse": f.FullResponse}
	case FrameError:
		v = map[string]any{"error": f.ErrMessage}
	default:
		v = map[string]any{"chunk": f.Text}
	}
	b, _ := json.Marshal(v)
	return b
}

// IsTerminal reports whether the frame ends the subscriber's connection.
func (f Frame) IsTerminal() bool {
	return f.Kind == FrameDone || f.Kind == FrameError
}

// Metrics summarizes the registry for observability.
type Metrics struct {
	ActiveStreams    int   `json:"active_streams"`
	CompletedStreams int   `json:"completed_streams"`
	TotalSubscribers int   `json:"total_subscribers"`
	BufferedBytes    int64 `json:"buffered_bytes"`
}

// Pacing bounds for replay: the inter-chunk gap is compressed to a third
// and clamped to [5ms, 30ms], so a late joiner catches up quickly but
// still reads like a live stream.
const (
	replayMinDelay = 5 * time.Millisecond
	replayMaxDelay = 30 * time.Millisecond
	replayDivisor  = 3

	// catchUpRecheck is how long the replayer waits at the log tail
	// before deciding the stream has gone quiet.
	catchUpRecheck = 10 * time.Millisecond

	// subscriberSendTimeout is how long a publish waits on a slow
	// subscriber before treating the write as dead.
	subscriberSendTimeout = 100 * time.Millisecond

	// completedCleanupDelay and erroredCleanupDelay schedule removal of
	// terminal streams, conditional on zero subscribers.
	completedCleanupDelay = 5 * time.Minute
	erroredCleanupDelay   = 1 * time.Second
)

// ReplayDelay computes the pause after delivering a replayed chunk,
// given the recorded gap to the next one.
func ReplayDelay(currentAt, nextAt int64) time.Duration {
	gap := time.Duration(nextAt-currentAt) * time.Millisecond / replayDivisor
	if gap < replayMinDelay {
		return replayMinDelay
	}
	if gap > replayMaxDelay {
		return replayMaxDelay
	}
	return gap
}
