package analysis

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/streaming"
)

type memCache struct {
	mu      sync.Mutex
	records map[string]*Record
}

func newMemCache() *memCache {
	return &memCache{records: make(map[string]*Record)}
}

func (m *memCache) FindByFingerprint(ctx context.Context, fp string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[fp]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (m *memCache) Insert(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[r.Fingerprint]; exists {
		return ErrDuplicateKey
	}
	r.AccessCount = 1
	m.records[r.Fingerprint] = &r
	return nil
}

func (m *memCache) IncrementAccess(ctx context.Context, fp string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[fp]
	r.AccessCount++
	return r.AccessCount, nil
}

type scriptedProvider struct {
	chunks []string
	calls  atomic.Int32
	delay  time.Duration
}

func (p *scriptedProvider) StreamAnalysis(ctx context.Context, req Request, onChunk func(string)) error {
	p.calls.Add(1)
	for _, c := range p.chunks {
		if p.delay > 0 {
			time.Sleep(p.delay)
		}
		onChunk(c)
	}
	return nil
}

func testRequest() Request {
	return Request{
		Sentence:       "El gato duerme.",
		TargetWord:     "gato",
		TargetLanguage: "es",
		NativeLanguage: "en",
		UserID:         "u1",
	}
}

const scriptedOutput = `{"fullTranslation":"The cat sleeps.","literalTranslation":"cat sleeps","grammarAnalysis":"present","breakdown":[],"idioms":[]}`

func newTestService(provider Provider, cache Cache) *Service {
	log := logger.New(logger.Config{Level: slog.LevelError})
	registry := streaming.NewRegistry(100, log)
	return NewService(cache, provider, registry, log)
}

func TestCoalescingSingleUpstreamCall(t *testing.T) {
	provider := &scriptedProvider{
		chunks: SynthesizeChunks(scriptedOutput),
		delay:  5 * time.Millisecond,
	}
	cache := newMemCache()
	svc := newTestService(provider, cache)
	req := testRequest()

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stream, _, err := svc.StartOrJoin(req)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = svc.Await(context.Background(), stream)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i].FullTranslation != "The cat sleeps." {
			t.Errorf("caller %d got wrong result: %+v", i, results[i])
		}
	}

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("expected exactly one upstream call, got %d", got)
	}

	// Persistence runs on the driver task right after completion.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r, _ := cache.FindByFingerprint(context.Background(), req.Fingerprint()); r != nil {
			if r.AccessCount != 1 {
				t.Errorf("fresh record should have accessCount=1, got %d", r.AccessCount)
			}
			if len(r.ChunkLog) == 0 {
				t.Error("persisted record missing chunk log")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("analysis was never persisted")
}

func TestFindCachedBumpsAccessCount(t *testing.T) {
	cache := newMemCache()
	svc := newTestService(&scriptedProvider{}, cache)
	req := testRequest()
	fp := req.Fingerprint()

	cache.Insert(context.Background(), Record{
		Fingerprint: fp,
		Request:     req,
		Result:      Result{FullTranslation: "cached"},
	})

	r, err := svc.FindCached(context.Background(), fp)
	if err != nil {
		t.Fatalf("FindCached failed: %v", err)
	}
	if r == nil || r.AccessCount != 2 {
		t.Errorf("expected accessCount=2 after first hit, got %+v", r)
	}
}

func TestReplayPlanUsesStoredLog(t *testing.T) {
	r := &Record{
		ChunkLog: []streaming.Chunk{
			{Text: "a", At: 0},
			{Text: "b", At: 300},
			{Text: "c", At: 303},
		},
	}
	steps := ReplayPlan(r)
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	if steps[0].Delay != 30*time.Millisecond {
		t.Errorf("large gap should clamp to 30ms, got %v", steps[0].Delay)
	}
	if steps[1].Delay != 5*time.Millisecond {
		t.Errorf("small gap should clamp to 5ms, got %v", steps[1].Delay)
	}
	if steps[2].Delay != 0 {
		t.Errorf("last step should carry no delay, got %v", steps[2].Delay)
	}
}

func TestReplayPlanSynthesizesForLegacyRecords(t *testing.T) {
	r := &Record{
		Result: Result{FullTranslation: "legacy", Breakdown: []BreakdownEntry{}, Idioms: []IdiomEntry{}},
	}
	steps := ReplayPlan(r)
	if len(steps) == 0 {
		t.Fatal("expected synthesized steps")
	}
	var rebuilt string
	for _, s := range steps {
		if len(s.Text) > 100 {
			t.Errorf("synthesized chunk too long: %d", len(s.Text))
		}
		rebuilt += s.Text
	}
	if rebuilt != FullResponseText(r.Result) {
		t.Error("synthesized chunks do not reassemble the full response")
	}
}

func TestUpstreamErrorSurfacesToCaller(t *testing.T) {
	provider := &failingProvider{}
	svc := newTestService(provider, newMemCache())
	req := testRequest()

	stream, _, err := svc.StartOrJoin(req)
	if err != nil {
		t.Fatalf("StartOrJoin failed: %v", err)
	}
	if _, err := svc.Await(context.Background(), stream); err == nil {
		t.Fatal("expected error from failed upstream")
	}

	// Nothing is persisted for errored streams.
	if r, _ := svc.cache.FindByFingerprint(context.Background(), req.Fingerprint()); r != nil {
		t.Error("errored stream must not be persisted")
	}
}

type failingProvider struct{}

func (p *failingProvider) StreamAnalysis(ctx context.Context, req Request, onChunk func(string)) error {
	onChunk("partial ")
	return context.DeadlineExceeded
}
