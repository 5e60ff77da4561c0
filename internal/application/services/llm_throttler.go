package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// DefaultRequestTimeout applies to provider/model pairs without a profile.
const DefaultRequestTimeout = 30 * time.Second

// LLMThrottler manages rate limiting and timeouts for LLM providers.
type LLMThrottler struct {
	// Per provider/model limits, keyed by "provider/model"
	limiters map[string]*modelLimit
	mu       sync.RWMutex
}

// modelLimit pairs a token bucket with the per-call timeout. A nil limiter
// means the pair is unlimited.
type modelLimit struct {
	maxRequests    int
	limiter        *rate.Limiter
	requestTimeout time.Duration
}

func newModelLimit(maxRPS, timeoutMS int) *modelLimit {
	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	l := &modelLimit{maxRequests: maxRPS, requestTimeout: timeout}
	if maxRPS > 0 {
		// Bucket starts full and holds one second of traffic.
		l.limiter = rate.NewLimiter(rate.Limit(maxRPS), maxRPS)
	}
	return l
}

// NewLLMThrottler creates a new throttler with profiles.
func NewLLMThrottler(profiles map[string]*models.ModelProfile) *LLMThrottler {
	throttler := &LLMThrottler{
		limiters: make(map[string]*modelLimit),
	}
	for key, profile := range profiles {
		throttler.limiters[key] = newModelLimit(profile.MaxRequestsPerSecond, profile.RequestTimeoutMS)
	}
	return throttler
}

func (t *LLMThrottler) lookup(provider, model string) (*modelLimit, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.limiters[fmt.Sprintf("%s/%s", provider, model)]
	return l, ok
}

// WaitForToken blocks until the provider/model may be called or ctx is done.
// Pairs without a limit return immediately.
func (t *LLMThrottler) WaitForToken(ctx context.Context, provider, model string) error {
	l, ok := t.lookup(provider, model)
	if !ok || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// GetTimeout returns the configured timeout for a provider/model.
func (t *LLMThrottler) GetTimeout(provider, model string) time.Duration {
	l, ok := t.lookup(provider, model)
	if !ok {
		return DefaultRequestTimeout
	}
	return l.requestTimeout
}

// UpdateRateLimit replaces the limit for a provider/model. maxRPS <= 0
// removes it.
func (t *LLMThrottler) UpdateRateLimit(provider, model string, maxRPS int, timeoutMS int) {
	modelKey := fmt.Sprintf("%s/%s", provider, model)

	t.mu.Lock()
	defer t.mu.Unlock()

	if maxRPS > 0 {
		t.limiters[modelKey] = newModelLimit(maxRPS, timeoutMS)
	} else {
		delete(t.limiters, modelKey)
	}
}

// GetStats returns the state of every rate-limited provider/model.
func (t *LLMThrottler) GetStats() map[string]ThrottleStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := make(map[string]ThrottleStats)
	for key, l := range t.limiters {
		if l.limiter == nil {
			continue
		}
		stats[key] = ThrottleStats{
			MaxRequests:     l.maxRequests,
			AvailableTokens: int(l.limiter.Tokens()),
			TimeoutMS:       int(l.requestTimeout.Milliseconds()),
		}
	}
	return stats
}

// ThrottleStats contains throttling statistics for a provider/model.
type ThrottleStats struct {
	MaxRequests     int `json:"max_requests"`
	AvailableTokens int `json:"available_tokens"`
	TimeoutMS       int `json:"timeout_ms"`
}
