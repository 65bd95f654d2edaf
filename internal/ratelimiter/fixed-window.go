package ratelimiter

import (
	"sync"
	"time"
)

type Config struct {
	RequestsPerTimeFrame int
	TimeFrame            time.Duration
	Enabled              bool
}

type window struct {
	count   int
	started time.Time
}

// FixedWindowRateLimiter counts requests per client IP inside a fixed window.
// Primarily guards the public callback endpoint against floods of forged
// notifications.
type FixedWindowRateLimiter struct {
	sync.Mutex
	clients map[string]*window
	limit   int
	frame   time.Duration
}

func NewFixedWindowLimiter(limit int, frame time.Duration) *FixedWindowRateLimiter {
	rl := &FixedWindowRateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		frame:   frame,
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether the request may proceed and, when it may not, how
// long until the window resets.
func (rl *FixedWindowRateLimiter) Allow(ip string) (bool, time.Duration) {
	now := time.Now()

	rl.Lock()
	defer rl.Unlock()

	w, ok := rl.clients[ip]
	if !ok || now.Sub(w.started) >= rl.frame {
		rl.clients[ip] = &window{count: 1, started: now}
		return true, 0
	}

	if w.count < rl.limit {
		w.count++
		return true, 0
	}

	return false, rl.frame - now.Sub(w.started)
}

func (rl *FixedWindowRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.frame)
	for range ticker.C {
		now := time.Now()
		rl.Lock()
		for ip, w := range rl.clients {
			if now.Sub(w.started) >= rl.frame {
				delete(rl.clients, ip)
			}
		}
		rl.Unlock()
	}
}
