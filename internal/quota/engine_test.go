package quota

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wordclip/wordclip/internal/logger"
)

type memCounterStore struct {
	mu       sync.Mutex
	counters map[string]*Counter
	now      func() time.Time
}

func newMemCounterStore(now func() time.Time) *memCounterStore {
	return &memCounterStore{counters: make(map[string]*Counter), now: now}
}

func key(identity, scope string) string { return identity + "|" + scope }

func (m *memCounterStore) Get(ctx context.Context, identity, scope string) (*Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[key(identity, scope)]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (m *memCounterStore) Reset(ctx context.Context, identity, scope string, windowStart time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key(identity, scope)] = &Counter{
		Identity: identity, Scope: scope, RequestCount: 0, WindowStart: windowStart,
	}
	return nil
}

func (m *memCounterStore) Increment(ctx context.Context, identity, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[key(identity, scope)]
	if !ok {
		m.counters[key(identity, scope)] = &Counter{
			Identity: identity, Scope: scope, RequestCount: 1, WindowStart: m.now(),
		}
		return nil
	}
	c.RequestCount++
	return nil
}

type fakeEntitlements struct {
	mu     sync.Mutex
	active map[string]bool
	err    error
	calls  int
}

func (f *fakeEntitlements) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.active[userID], nil
}

func testEngine(entitlements *fakeEntitlements) (*Engine, *memCounterStore, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	store := newMemCounterStore(func() time.Time { return *clock })
	e := NewEngine(store, entitlements, 3, 240*time.Minute, logger.New(logger.Config{Level: slog.LevelError}))
	e.now = func() time.Time { return *clock }
	return e, store, clock
}

func TestAIQuotaFreeTierWall(t *testing.T) {
	e, _, clock := testEngine(&fakeEntitlements{active: map[string]bool{}})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := e.CheckAIQuota(ctx, "user-1")
		if err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if d.Used != i {
			t.Errorf("request %d: expected used=%d, got %d", i, i, d.Used)
		}
	}

	// Fourth request within the window is denied and does not increment.
	d, err := e.CheckAIQuota(ctx, "user-1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("fourth request should be denied")
	}
	if d.Used != 3 {
		t.Errorf("denied request must not increment: used=%d", d.Used)
	}
	if d.RetryAfter <= 0 {
		t.Error("denial must carry a positive retry-after")
	}

	// A second denial still reports used=3.
	d, _ = e.CheckAIQuota(ctx, "user-1")
	if d.Used != 3 {
		t.Errorf("counter leaked on denial: used=%d", d.Used)
	}

	// Past the window, the counter resets.
	*clock = clock.Add(241 * time.Minute)
	d, err = e.CheckAIQuota(ctx, "user-1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !d.Allowed || d.Used != 1 {
		t.Errorf("expected fresh window with used=1, got allowed=%v used=%d", d.Allowed, d.Used)
	}
}

func TestAIQuotaSubscriberUnlimited(t *testing.T) {
	ents := &fakeEntitlements{active: map[string]bool{"subscriber": true}}
	e, store, _ := testEngine(ents)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := e.CheckAIQuota(ctx, "subscriber")
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if !d.Allowed || !d.HasSubscription {
			t.Fatal("subscriber must always be allowed")
		}
	}

	// The subscriber branch never touches the counter.
	if c, _ := store.Get(ctx, "subscriber", "ai"); c != nil {
		t.Errorf("subscriber requests must not increment the counter: %+v", c)
	}
}

func TestEntitlementCacheOnlyCachesActive(t *testing.T) {
	ents := &fakeEntitlements{active: map[string]bool{"u": false}}
	e, _, clock := testEngine(ents)
	ctx := context.Background()

	e.CheckAIQuota(ctx, "u")
	e.CheckAIQuota(ctx, "u")
	if ents.calls != 2 {
		t.Errorf("inactive results must not be cached: %d provider calls", ents.calls)
	}

	// The user subscribes; the next check sees it immediately and the
	// active result is then cached.
	ents.mu.Lock()
	ents.active["u"] = true
	ents.mu.Unlock()

	e.CheckAIQuota(ctx, "u")
	e.CheckAIQuota(ctx, "u")
	if ents.calls != 3 {
		t.Errorf("active result should be served from cache: %d provider calls", ents.calls)
	}

	// The cache expires after its TTL.
	*clock = clock.Add(6 * time.Minute)
	e.CheckAIQuota(ctx, "u")
	if ents.calls != 4 {
		t.Errorf("expired cache entry should re-check: %d provider calls", ents.calls)
	}
}

func TestEntitlementErrorFailsOpen(t *testing.T) {
	ents := &fakeEntitlements{err: errors.New("provider down")}
	e, store, _ := testEngine(ents)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := e.CheckAIQuota(ctx, "u")
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if !d.Allowed {
			t.Fatal("provider errors must fail open")
		}
	}

	// Fail-open answers are not cached: every request re-asks.
	if ents.calls != 5 {
		t.Errorf("error results must not be cached: %d provider calls", ents.calls)
	}
	if c, _ := store.Get(ctx, "u", "ai"); c != nil {
		t.Error("fail-open requests must not increment the counter")
	}
}

func TestThrottleFallsBackToIP(t *testing.T) {
	e, _, _ := testEngine(&fakeEntitlements{})
	ctx := context.Background()
	limits := ThrottleLimits{UserLimit: 5, IPLimit: 2, Window: time.Hour}

	// Anonymous requests are throttled by IP with the IP limit.
	for i := 0; i < 2; i++ {
		d, err := e.CheckThrottle(ctx, "", "10.0.0.1", "search", limits)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d should be allowed: %v", i, err)
		}
	}
	d, _ := e.CheckThrottle(ctx, "", "10.0.0.1", "search", limits)
	if d.Allowed {
		t.Error("third anonymous request should be throttled at the IP limit")
	}

	// A user id gets its own identity and the user limit.
	d, _ = e.CheckThrottle(ctx, "user-9", "10.0.0.1", "search", limits)
	if !d.Allowed {
		t.Error("authenticated identity must not share the IP counter")
	}
}
