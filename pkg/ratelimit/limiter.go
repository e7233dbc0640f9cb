package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event. Unknown names pass
// through immediately so a missing limiter never blocks a fetch.
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return nil
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return true
	}

	return limiter.Allow()
}

// Reserve returns a reservation for a future event
func (m *MultiLimiter) Reserve(name string) (*rate.Reservation, error) {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Reserve(), nil
}

// Default rate limiter names, one per external provider
const (
	LimiterCoinGecko   = "coingecko"
	LimiterYahoo       = "yahoo"
	LimiterOpenWeather = "openweather"
	LimiterNewsAPI     = "newsapi"
	LimiterRSS         = "rss"
	LimiterAppStore    = "appstore"
	LimiterStripe      = "stripe"
	LimiterResend      = "resend"
)

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	m := NewMultiLimiter()

	// CoinGecko free tier: ~30 requests per minute, burst 5
	m.AddLimiter(LimiterCoinGecko, 30.0/60, 5)

	// Yahoo Finance: unofficial API, stay polite - 1 per second, burst 5
	m.AddLimiter(LimiterYahoo, 1, 5)

	// OpenWeatherMap free tier: 60 requests per minute, burst 10
	m.AddLimiter(LimiterOpenWeather, 60.0/60, 10)

	// NewsAPI: 100 requests per day = ~0.0012 per second, burst 10
	m.AddLimiter(LimiterNewsAPI, 100.0/(24*60*60), 10)

	// RSS: no strict limit, but be polite - 1 per second, burst 10
	m.AddLimiter(LimiterRSS, 1, 10)

	// App Store Connect: 50 requests per hour, burst 5
	m.AddLimiter(LimiterAppStore, 50.0/(60*60), 5)

	// Stripe: 100 read requests per second, burst 25
	m.AddLimiter(LimiterStripe, 100, 25)

	// Resend: 10 requests per second, burst 10
	m.AddLimiter(LimiterResend, 10, 10)

	return m
}
