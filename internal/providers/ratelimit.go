package providers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/lexshelf/internal/types"
)

// DefaultRequestsPerMinute applies when a provider has no configured rate.
const DefaultRequestsPerMinute = 60

// RateLimiter is a token bucket for one credential.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	tokens            float64
	lastUpdate        time.Time
	pausedUntil       time.Time

	totalConsumed int64
	totalWaited   time.Duration
	total429      int64
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	Credential      string        `json:"credential"`
	TokensAvailable int           `json:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
	Total429        int64         `json:"total_429"`
	Last429Time     time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter creates a full bucket allowing requestsPerMinute.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		tokens:            float64(requestsPerMinute),
		lastUpdate:        time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		r.refill(now)

		var wait time.Duration
		switch {
		case now.Before(r.pausedUntil):
			wait = r.pausedUntil.Sub(now)
		case r.tokens >= 1.0:
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		default:
			wait = r.timeUntilToken()
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			r.mu.Lock()
			r.totalWaited += wait
			r.mu.Unlock()
		}
	}
}

// Record429 notes a rate-limit response. A positive retryAfter drains the
// bucket and pauses the credential for that long.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.total429++
	r.last429Time = now
	if retryAfter > 0 {
		r.tokens = 0
		r.pausedUntil = now.Add(retryAfter)
	}
}

// Status returns current limiter state.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill(time.Now())
	return RateLimiterStatus{
		TokensAvailable: int(r.tokens),
		TokensLimit:     r.requestsPerMinute,
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
		Total429:        r.total429,
		Last429Time:     r.last429Time,
	}
}

// refill adds tokens for elapsed time. Must be called with lock held.
func (r *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	r.tokens += elapsed * r.perSecond()
	if limit := float64(r.requestsPerMinute); r.tokens > limit {
		r.tokens = limit
	}
}

func (r *RateLimiter) perSecond() float64 {
	return float64(r.requestsPerMinute) / 60.0
}

// timeUntilToken must be called with lock held.
func (r *RateLimiter) timeUntilToken() time.Duration {
	needed := 1.0 - r.tokens
	if needed <= 0 {
		return 0
	}
	return time.Duration(needed / r.perSecond() * float64(time.Second))
}

// limiterSet holds one RateLimiter per credential, created on first use.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

func newLimiterSet() *limiterSet {
	return &limiterSet{limiters: make(map[string]*RateLimiter)}
}

func (s *limiterSet) get(key types.ProviderKey, requestsPerMinute int) *RateLimiter {
	id := key.ProviderName + "\x00" + key.Credential

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[id]; ok {
		return l
	}
	l := NewRateLimiter(requestsPerMinute)
	s.limiters[id] = l
	return l
}

func (s *limiterSet) status() []RateLimiterStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RateLimiterStatus, 0, len(s.limiters))
	for id, l := range s.limiters {
		st := l.Status()
		provider, credential, _ := strings.Cut(id, "\x00")
		st.Credential = types.ProviderKey{ProviderName: provider, Credential: credential}.Label()
		out = append(out, st)
	}
	return out
}
