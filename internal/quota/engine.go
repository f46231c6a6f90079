package quota

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wordclip/wordclip/internal/entitlement"
	"github.com/wordclip/wordclip/internal/logger"
)

// entitlementCacheTTL bounds how long a positive subscription check is
// reused. Only active results are cached: an inactive answer is always
// re-checked so a fresh purchase takes effect immediately.
const entitlementCacheTTL = 5 * time.Minute

// Decision is the outcome of a quota or throttle check.
type Decision struct {
	Allowed         bool
	Used            int
	Limit           int // 0 means unlimited
	HasSubscription bool
	RetryAfter      time.Duration
}

// Unlimited reports whether the identity is not subject to a limit.
func (d Decision) Unlimited() bool {
	return d.Limit == 0
}

// ThrottleLimits configures the generic per-route throttle.
type ThrottleLimits struct {
	UserLimit int
	IPLimit   int
	Window    time.Duration
}

// Engine implements both gates: the generic sliding-window throttle and
// the entitlement-gated AI quota.
type Engine struct {
	counters     CounterStore
	entitlements entitlement.Provider
	logger       *logger.Logger
	now          func() time.Time

	freeLimit  int
	freeWindow time.Duration

	cacheMu sync.Mutex
	cache   map[string]time.Time // userID → time the active result was cached
}

// NewEngine creates a quota engine.
func NewEngine(counters CounterStore, entitlements entitlement.Provider, freeLimit int, freeWindow time.Duration, log *logger.Logger) *Engine {
	return &Engine{
		counters:     counters,
		entitlements: entitlements,
		logger:       log.WithComponent("quota"),
		now:          time.Now,
		freeLimit:    freeLimit,
		freeWindow:   freeWindow,
		cache:        make(map[string]time.Time),
	}
}

// CheckThrottle applies the generic throttle for a route. Identity is
// the user id when supplied, else the client IP; the applicable limit
// follows the identity kind.
func (e *Engine) CheckThrottle(ctx context.Context, userID, clientIP, scope string, limits ThrottleLimits) (Decision, error) {
	identity := userID
	limit := limits.UserLimit
	if identity == "" {
		identity = clientIP
		limit = limits.IPLimit
	}

	return e.check(ctx, identity, scope, limit, limits.Window)
}

// CheckAIQuota applies the subscription-gated analysis quota. Subscribers
// are unlimited; everyone else gets the free allowance per window. The
// counter increments only in the non-subscriber branch and only on
// allowed requests.
func (e *Engine) CheckAIQuota(ctx context.Context, userID string) (Decision, error) {
	if e.isSubscriber(ctx, userID) {
		return Decision{Allowed: true, HasSubscription: true}, nil
	}

	d, err := e.check(ctx, userID, "ai", e.freeLimit, e.freeWindow)
	if err != nil {
		return d, err
	}
	d.HasSubscription = false
	return d, nil
}

// check runs the sliding fixed-width window decision. The counter read
// happens before the increment, so concurrent requests from one
// identity may slightly overshoot the limit; the limiter is approximate
// by design.
func (e *Engine) check(ctx context.Context, identity, scope string, limit int, window time.Duration) (Decision, error) {
	now := e.now()

	counter, err := e.counters.Get(ctx, identity, scope)
	if err != nil {
		return Decision{}, err
	}

	used := 0
	windowStart := now
	if counter != nil {
		if now.After(counter.WindowStart.Add(window)) {
			// First request past the window: reset.
			if err := e.counters.Reset(ctx, identity, scope, now); err != nil {
				return Decision{}, err
			}
		} else {
			used = counter.RequestCount
			windowStart = counter.WindowStart
		}
	}

	if used >= limit {
		return Decision{
			Allowed:    false,
			Used:       used,
			Limit:      limit,
			RetryAfter: windowStart.Add(window).Sub(now),
		}, nil
	}

	if err := e.counters.Increment(ctx, identity, scope); err != nil {
		return Decision{}, err
	}

	return Decision{Allowed: true, Used: used + 1, Limit: limit}, nil
}

// isSubscriber consults the cache, then the provider. Provider errors
// fail open (the request is allowed) and are never cached.
func (e *Engine) isSubscriber(ctx context.Context, userID string) bool {
	// Anonymous callers arrive as "ip:"-prefixed identities; only real
	// user ids are checked against the provider.
	if userID == "" || strings.HasPrefix(userID, "ip:") {
		return false
	}

	e.cacheMu.Lock()
	cachedAt, hit := e.cache[userID]
	e.cacheMu.Unlock()
	if hit && e.now().Sub(cachedAt) < entitlementCacheTTL {
		return true
	}

	active, err := e.entitlements.HasActiveSubscription(ctx, userID)
	if err != nil {
		e.logger.Warn("entitlement check failed, failing open",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return true
	}

	if active {
		e.cacheMu.Lock()
		e.cache[userID] = e.now()
		e.cacheMu.Unlock()
	} else {
		e.cacheMu.Lock()
		delete(e.cache, userID)
		e.cacheMu.Unlock()
	}

	return active
}
