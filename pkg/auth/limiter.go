package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool hands out one token-bucket limiter per caller key (API key
// or client IP) on the gateway listener. Limiters are created lazily the
// first time a key shows up and kept for the life of the process.
type limiterPool struct {
	mu  sync.Mutex
	m   map[string]*rate.Limiter
	cfg SecConfig
}

// get returns the limiter for key, creating it with the configured rate
// and burst. Zero or negative settings fall back to 5 rps with a burst
// of 10.
func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := p.cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

// Allow reports whether the caller behind key may proceed right now.
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}
