package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 5 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client-IP token bucket. It exists for the public
// signup surface, which is reachable without a token.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	logger   *slog.Logger
	stopScan chan struct{}
}

func NewRateLimiter(perSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		clients:  make(map[string]*clientLimiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		logger:   logger,
		stopScan: make(chan struct{}),
	}
	go rl.scanLoop()
	return rl
}

// Allow reports whether a request from the given client fits its bucket.
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[clientID]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[clientID] = client
	}
	client.lastSeen = time.Now()
	return client.limiter.Allow()
}

// Middleware rejects over-limit requests with 429 and the standard error
// envelope.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			rl.logger.Warn("rate limit exceeded",
				slog.String("ip", clientIP(r)),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error": map[string]interface{}{
					"code":    "rate_limited",
					"message": "too many requests, slow down",
				},
				"requestId": RequestIDFromContext(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stop ends the background cleanup. Buckets already handed out keep working.
func (rl *RateLimiter) Stop() {
	close(rl.stopScan)
}

func (rl *RateLimiter) scanLoop() {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-limiterIdleTTL)
			for id, client := range rl.clients {
				if client.lastSeen.Before(cutoff) {
					delete(rl.clients, id)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopScan:
			return
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
