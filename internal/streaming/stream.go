package streaming

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wordclip/wordclip/internal/logger"
)

// Stream is one in-flight coalesced upstream call. Exactly one driver
// task feeds it through PublishChunk/Complete/Error; any number of
// subscribers observe it. All mutation happens under mu, so every
// subscriber sees chunks in upstream arrival order.
type Stream struct {
	Fingerprint string
	Params      any
	CreatedAt   time.Time

	mu          sync.Mutex
	subscribers map[string]*Subscriber
	chunks      []Chunk
	accumulated strings.Builder
	status      Status
	errMessage  string

	completedCh chan struct{}

	logger *logger.Logger
}

func newStream(fingerprint string, params any, log *logger.Logger) *Stream {
	return &Stream{
		Fingerprint: fingerprint,
		Params:      params,
		CreatedAt:   time.Now(),
		subscribers: make(map[string]*Subscriber),
		status:      StatusActive,
		completedCh: make(chan struct{}),
		logger:      log,
	}
}

// Status returns the stream's current lifecycle state.
func (s *Stream) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ErrMessage returns the error message for an errored stream.
func (s *Stream) ErrMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMessage
}

// Accumulated returns the concatenated upstream output so far.
func (s *Stream) Accumulated() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated.String()
}

// Chunks returns a copy of the chunk log.
func (s *Stream) Chunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// SubscriberCount returns the number of attached subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Done returns a channel closed when the stream reaches a terminal
// state. Used by non-streaming callers that wait for the coalesced
// result.
func (s *Stream) Done() <-chan struct{} {
	return s.completedCh
}

// Subscribe attaches a client. When the stream has accumulated chunks,
// the subscriber starts in replay mode and a paced replay task walks the
// log; otherwise live broadcasts are delivered immediately.
func (s *Stream) Subscribe(ctx context.Context) *Subscriber {
	sub := newSubscriber(ctx, uuid.New().String(), s.Fingerprint)

	s.mu.Lock()
	s.subscribers[sub.ID] = sub
	startReplay := len(s.chunks) > 0 || s.status.IsTerminal()
	if startReplay {
		sub.replaying = true
	}
	s.mu.Unlock()

	s.logger.Debug("subscriber joined",
		slog.String("fingerprint", s.Fingerprint),
		slog.String("subscriber_id", sub.ID),
		slog.Bool("replaying", startReplay))

	if startReplay {
		go s.replay(sub)
	}

	return sub
}

// Unsubscribe detaches a client. The driver task keeps running so the
// result still persists.
func (s *Stream) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, exists := s.subscribers[id]; exists {
		sub.cancel()
		// The channel is left open; the draining goroutine stops via
		// the cancelled context.
		delete(s.subscribers, id)
	}
}

// publish appends a chunk and delivers it to every live (non-replaying)
// subscriber. Dead writes remove the subscriber.
func (s *Stream) publish(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() {
		return
	}

	s.chunks = append(s.chunks, Chunk{
		Text: text,
		At:   time.Since(s.CreatedAt).Milliseconds(),
	})
	s.accumulated.WriteString(text)

	frame := Frame{Kind: FrameChunk, Text: text}
	for id, sub := range s.subscribers {
		if sub.replaying {
			continue
		}
		if !sub.send(frame, subscriberSendTimeout) {
			sub.finish()
			delete(s.subscribers, id)
			s.logger.Debug("removed dead subscriber",
				slog.String("fingerprint", s.Fingerprint),
				slog.String("subscriber_id", id))
		}
	}
}

// complete terminalizes the stream successfully and ends live
// subscribers with a done frame. Replaying subscribers get the terminal
// frame from their replay task once they catch up.
func (s *Stream) complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() {
		return
	}
	s.status = StatusCompleted
	close(s.completedCh)

	frame := Frame{Kind: FrameDone, FullResponse: s.accumulated.String()}
	s.endLiveSubscribers(frame)

	s.logger.Info("stream completed",
		slog.String("fingerprint", s.Fingerprint),
		slog.Int("chunks", len(s.chunks)),
		slog.Duration("duration", time.Since(s.CreatedAt)))
}

// fail terminalizes the stream with an error frame.
func (s *Stream) fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.IsTerminal() {
		return
	}
	s.status = StatusErrored
	s.errMessage = message
	close(s.completedCh)

	s.endLiveSubscribers(Frame{Kind: FrameError, ErrMessage: message})

	s.logger.Warn("stream errored",
		slog.String("fingerprint", s.Fingerprint),
		slog.String("error", message))
}

// endLiveSubscribers sends the terminal frame to every non-replaying
// subscriber and closes their channels. Callers hold mu.
func (s *Stream) endLiveSubscribers(frame Frame) {
	for id, sub := range s.subscribers {
		if sub.replaying {
			continue
		}
		sub.send(frame, subscriberSendTimeout)
		sub.finish()
		delete(s.subscribers, id)
	}
}

// terminalFrame renders the stream's terminal state. Callers hold mu.
func (s *Stream) terminalFrame() Frame {
	if s.status == StatusErrored {
		return Frame{Kind: FrameError, ErrMessage: s.errMessage}
	}
	return Frame{Kind: FrameDone, FullResponse: s.accumulated.String()}
}

// replay walks the chunk log for a late joiner with pacing, then hands
// the subscriber over to live delivery, or delivers the terminal frame
// when the stream has already ended. The handoff happens under mu with a
// final length re-check, so no chunk is lost or duplicated across the
// replay-to-live transition.
func (s *Stream) replay(sub *Subscriber) {
	idx := 0
	for {
		s.mu.Lock()
		if _, still := s.subscribers[sub.ID]; !still {
			s.mu.Unlock()
			return
		}

		if idx < len(s.chunks) {
			chunk := s.chunks[idx]
			var next *Chunk
			if idx+1 < len(s.chunks) {
				n := s.chunks[idx+1]
				next = &n
			}
			s.mu.Unlock()

			if sub.IsDisconnected() {
				return
			}
			if !sub.sendBlocking(Frame{Kind: FrameChunk, Text: chunk.Text}) {
				return
			}
			idx++

			if next != nil {
				time.Sleep(ReplayDelay(chunk.At, next.At))
			}
			continue
		}

		// Caught up with the log tail.
		if s.status.IsTerminal() {
			frame := s.terminalFrame()
			s.mu.Unlock()

			sub.sendBlocking(frame)

			s.mu.Lock()
			sub.finish()
			delete(s.subscribers, sub.ID)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		// Give the upstream a beat to produce more before handing the
		// subscriber to live delivery.
		time.Sleep(catchUpRecheck)

		s.mu.Lock()
		if idx < len(s.chunks) {
			s.mu.Unlock()
			continue
		}
		if s.status.IsTerminal() {
			s.mu.Unlock()
			continue
		}
		sub.replaying = false
		s.mu.Unlock()
		return
	}
}

// bufferedBytes estimates the memory held by the chunk log.
func (s *Stream) bufferedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.chunks {
		n += int64(len(c.Text))
	}
	return n
}
