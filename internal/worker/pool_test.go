package worker

import (
	"testing"
	"time"

	"github.com/wordclip/wordclip/internal/captions"
	"github.com/wordclip/wordclip/internal/job"
	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/media"
	"github.com/wordclip/wordclip/internal/query"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPoolRunsQueuedJobs(t *testing.T) {
	jobs := newFakeJobStore()
	catalog := &fakeCatalog{
		results: map[string][]media.Candidate{
			`"python" explained`: {{VideoID: "vid1"}},
		},
	}
	transcriber := &fakeTranscriber{captions: map[string][]captions.Cue{
		"vid1.mp3": englishCues(),
	}}
	p := testPipeline(t, jobs, newFakeSegmentStore(), newFakeWordIndex(), catalog, transcriber)

	jobs.add(queuedJob("fp-pool-1", "python", query.KindWord))

	pool := NewPool(jobs, p, 5, 20*time.Millisecond, logger.New(logger.Config{Level: 8}))
	pool.Start()
	defer pool.Shutdown()

	waitFor(t, 2*time.Second, func() bool {
		return jobs.get("fp-pool-1").Status.IsTerminal()
	})

	if got := jobs.get("fp-pool-1"); got.Status != job.StatusCompleted {
		t.Errorf("expected completed, got %s (error=%q)", got.Status, got.Error)
	}
}

func TestPoolDrainsMoreJobsThanWorkers(t *testing.T) {
	jobs := newFakeJobStore()
	catalog := &fakeCatalog{results: map[string][]media.Candidate{}}
	p := testPipeline(t, jobs, newFakeSegmentStore(), newFakeWordIndex(), catalog, &fakeTranscriber{})

	// Eight distinct jobs against five workers; every job must reach a
	// terminal state and no task may remain active afterwards.
	for i := 0; i < 8; i++ {
		jobs.add(queuedJob("fp-many-"+string(rune('a'+i)), "nosuchword", query.KindWord))
	}

	pool := NewPool(jobs, p, 5, 20*time.Millisecond, logger.New(logger.Config{Level: 8}))
	pool.Start()
	defer pool.Shutdown()

	waitFor(t, 2*time.Second, func() bool {
		for i := 0; i < 8; i++ {
			if !jobs.get("fp-many-"+string(rune('a'+i))).Status.IsTerminal() {
				return false
			}
		}
		return true
	})

	if active := pool.ActiveCount(); active != 0 {
		t.Errorf("expected 0 active tasks after drain, got %d", active)
	}
}
