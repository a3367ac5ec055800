// Package ratelimit provides per-provider token buckets and per-session
// generation budgets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ProviderRates configures request rates per provider name, in requests
// per second.
type ProviderRates map[string]float64

// DefaultProviderRates returns conservative limits for the built-in
// providers.
func DefaultProviderRates() ProviderRates {
	return ProviderRates{
		"stub": 50,
		"http": 2,
	}
}

// ProviderLimiter rate-limits provider submissions and polls using token
// buckets.
type ProviderLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewProviderLimiter creates a limiter with the given per-provider rates.
func NewProviderLimiter(rates ProviderRates) *ProviderLimiter {
	pl := &ProviderLimiter{limiters: make(map[string]*rate.Limiter, len(rates))}
	for name, rps := range rates {
		pl.Set(name, rps)
	}
	return pl
}

// Set replaces the rate for one provider. Burst is the whole-number rate,
// at least one.
func (pl *ProviderLimiter) Set(provider string, rps float64) {
	burst := max(int(rps), 1)
	pl.mu.Lock()
	pl.limiters[provider] = rate.NewLimiter(rate.Limit(rps), burst)
	pl.mu.Unlock()
}

// Wait blocks until a token is available for the provider, or ctx is
// cancelled.
func (pl *ProviderLimiter) Wait(ctx context.Context, provider string) error {
	if pl == nil {
		return nil
	}
	pl.mu.RLock()
	limiter, ok := pl.limiters[provider]
	pl.mu.RUnlock()
	if !ok {
		return nil // unknown provider = no limit
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", provider, err)
	}
	return nil
}
