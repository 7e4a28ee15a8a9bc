package coloyalty

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Ограничение частоты запросов на пользователя
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rateEntry
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(perMinute int, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*rateEntry),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

// Лимит советника из LEDGER_ADVISOR_RPM, по умолчанию 10 в минуту
func NewAdvisorLimiter() *RateLimiter {
	rpm := 10
	env := os.Getenv("LEDGER_ADVISOR_RPM")
	if env != "" {
		v, err := strconv.Atoi(env)
		if err == nil {
			rpm = v
		}
	}
	return NewRateLimiter(rpm, 3)
}

func (r *RateLimiter) Allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	entry, ok := r.visitors[id]
	if !ok {
		r.sweep(now)
		entry = &rateEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func (r *RateLimiter) sweep(now time.Time) {
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > limiterIdle {
			delete(r.visitors, id)
		}
	}
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Allow(Actor(req.Context())) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}
