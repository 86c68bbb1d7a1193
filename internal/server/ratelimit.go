package server

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiter enforces a global requests-per-minute cap plus a smaller
// per-caller cap keyed by client IP. Either RPM set to zero disables
// that layer.
type rateLimiter struct {
	global    *rate.Limiter
	perCaller rate.Limit
	burst     int

	mu      sync.Mutex
	callers map[string]*rate.Limiter
}

func newRateLimiter(globalRPM, perCallerRPM int) *rateLimiter {
	rl := &rateLimiter{callers: map[string]*rate.Limiter{}}
	if globalRPM > 0 {
		rl.global = rate.NewLimiter(rate.Limit(globalRPM)/60, burstFor(globalRPM))
	}
	if perCallerRPM > 0 {
		rl.perCaller = rate.Limit(perCallerRPM) / 60
		rl.burst = burstFor(perCallerRPM)
	}
	return rl
}

// burstFor allows short spikes of roughly a tenth of the minute budget.
func burstFor(rpm int) int {
	b := rpm / 10
	if b < 1 {
		b = 1
	}
	return b
}

func (rl *rateLimiter) callerLimiter(caller string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.callers[caller]
	if !ok {
		lim = rate.NewLimiter(rl.perCaller, rl.burst)
		rl.callers[caller] = lim
	}
	return lim
}

func (rl *rateLimiter) allow(caller string) bool {
	if rl.global != nil && !rl.global.Allow() {
		return false
	}
	if rl.perCaller > 0 && !rl.callerLimiter(caller).Allow() {
		return false
	}
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "request rate exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
