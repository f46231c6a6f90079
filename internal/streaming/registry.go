package streaming

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wordclip/wordclip/internal/logger"
)

// ErrRegistryFull is returned when no new stream can be registered and
// no terminal idle stream can be evicted.
var ErrRegistryFull = errors.New("too many concurrent analysis streams")

// DriverFunc drives the upstream call for a newly created stream. It is
// invoked exactly once per stream, in its own task. The driver reports
// output through the registry's publish/complete/error methods.
type DriverFunc func(ctx context.Context, s *Stream)

// Registry is the process-local table of active analysis streams, keyed
// by fingerprint. It guarantees at most one upstream driver per
// fingerprint: every caller after the first becomes a subscriber of the
// existing stream.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*Stream

	maxStreams int
	logger     *logger.Logger

	// onTerminal, when set, observes every stream reaching a terminal
	// state. The analysis cache uses it to persist transcripts.
	onTerminal func(s *Stream)
}

// NewRegistry creates a stream registry bounded to maxStreams
// simultaneous registrations.
func NewRegistry(maxStreams int, log *logger.Logger) *Registry {
	return &Registry{
		streams:    make(map[string]*Stream),
		maxStreams: maxStreams,
		logger:     log.WithComponent("stream-registry"),
	}
}

// SetOnTerminal installs the terminal-state observer. Must be called
// during initialization, before any streams are created.
func (r *Registry) SetOnTerminal(fn func(s *Stream)) {
	r.onTerminal = fn
}

// GetOrCreate returns the registered stream for a fingerprint, creating
// it and spawning its driver task when absent. The bool reports whether
// this call created the stream.
func (r *Registry) GetOrCreate(fp string, params any, driver DriverFunc) (*Stream, bool, error) {
	r.mu.Lock()

	if s, exists := r.streams[fp]; exists {
		r.mu.Unlock()
		return s, false, nil
	}

	if len(r.streams) >= r.maxStreams {
		evicted := r.evictTerminalIdle()
		if len(r.streams) >= r.maxStreams {
			r.mu.Unlock()
			r.logger.Warn("stream registry full",
				slog.Int("streams", len(r.streams)),
				slog.Int("evicted", evicted))
			return nil, false, ErrRegistryFull
		}
	}

	s := newStream(fp, params, r.logger)
	r.streams[fp] = s
	r.mu.Unlock()

	r.logger.Info("stream registered", slog.String("fingerprint", fp))

	go driver(context.Background(), s)

	return s, true, nil
}

// Get returns the registered stream for a fingerprint, or nil.
func (r *Registry) Get(fp string) *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[fp]
}

// PublishChunk appends upstream output to the stream's log and fans it
// out to live subscribers.
func (r *Registry) PublishChunk(fp, text string) {
	if s := r.Get(fp); s != nil {
		s.publish(text)
	}
}

// Complete terminalizes a stream successfully and schedules its cleanup.
func (r *Registry) Complete(fp string) {
	s := r.Get(fp)
	if s == nil {
		return
	}
	s.complete()
	if r.onTerminal != nil {
		r.onTerminal(s)
	}
	r.scheduleCleanup(fp, completedCleanupDelay)
}

// Error terminalizes a stream with an error and schedules its cleanup.
func (r *Registry) Error(fp, message string) {
	s := r.Get(fp)
	if s == nil {
		return
	}
	s.fail(message)
	if r.onTerminal != nil {
		r.onTerminal(s)
	}
	r.scheduleCleanup(fp, erroredCleanupDelay)
}

// Unsubscribe detaches a subscriber from a stream.
func (r *Registry) Unsubscribe(fp, subscriberID string) {
	if s := r.Get(fp); s != nil {
		s.Unsubscribe(subscriberID)
	}
}

// scheduleCleanup removes a terminal stream after the delay, provided it
// still has no subscribers. A replay in progress postpones removal to
// the next timer.
func (r *Registry) scheduleCleanup(fp string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		s, exists := r.streams[fp]
		if !exists || !s.Status().IsTerminal() {
			return
		}
		if s.SubscriberCount() > 0 {
			r.logger.Debug("cleanup postponed, stream still has subscribers",
				slog.String("fingerprint", fp))
			time.AfterFunc(delay, func() { r.scheduleCleanupNow(fp) })
			return
		}
		delete(r.streams, fp)
		r.logger.Debug("stream cleaned up", slog.String("fingerprint", fp))
	})
}

// scheduleCleanupNow is the retry body for postponed cleanups.
func (r *Registry) scheduleCleanupNow(fp string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.streams[fp]
	if !exists || !s.Status().IsTerminal() || s.SubscriberCount() > 0 {
		return
	}
	delete(r.streams, fp)
}

// evictTerminalIdle removes the oldest terminal streams with zero
// subscribers: 10% of that idle terminal population, rounded down, but
// always at least one when any exist. Callers hold mu.
func (r *Registry) evictTerminalIdle() int {
	type victim struct {
		fp        string
		createdAt time.Time
	}

	var terminal []victim
	for fp, s := range r.streams {
		if s.Status().IsTerminal() && s.SubscriberCount() == 0 {
			terminal = append(terminal, victim{fp: fp, createdAt: s.CreatedAt})
		}
	}
	if len(terminal) == 0 {
		return 0
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].createdAt.Before(terminal[j].createdAt)
	})

	quota := len(terminal) / 10
	if quota < 1 {
		quota = 1
	}

	evicted := 0
	for _, v := range terminal[:quota] {
		delete(r.streams, v.fp)
		evicted++
	}
	return evicted
}

// GetMetrics returns aggregate registry state for observability.
func (r *Registry) GetMetrics() Metrics {
	r.mu.Lock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.Unlock()

	var m Metrics
	for _, s := range streams {
		if s.Status().IsTerminal() {
			m.CompletedStreams++
		} else {
			m.ActiveStreams++
		}
		m.TotalSubscribers += s.SubscriberCount()
		m.BufferedBytes += s.bufferedBytes()
	}
	return m
}

// Shutdown terminalizes every active stream so subscribers are released.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	var active []*Stream
	for _, s := range r.streams {
		if !s.Status().IsTerminal() {
			active = append(active, s)
		}
	}
	r.mu.Unlock()

	for _, s := range active {
		s.fail("server shutting down")
	}

	r.logger.Info("stream registry shut down", slog.Int("terminated", len(active)))
}
