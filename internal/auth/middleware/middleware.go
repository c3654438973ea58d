package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/brizzai/oauth-proxy/internal/auth/constants"
	"github.com/brizzai/oauth-proxy/internal/logger"
	"github.com/brizzai/oauth-proxy/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OriginChecker decides whether an Origin may read responses.
type OriginChecker func(origin string) bool

// CORS answers preflight requests and adds CORS headers for allowed origins.
// Disallowed origins get no CORS headers at all; the browser then refuses
// to expose the response.
func CORS(allowed OriginChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get(constants.OriginHeader)
			if origin != "" && allowed(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", constants.AllowMethods)
				h.Set("Access-Control-Allow-Headers", constants.AllowHeaders)
				h.Set("Access-Control-Max-Age", constants.MaxAge)
				h.Add("Vary", constants.OriginHeader)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StripPrefixes removes the first matching mount prefix from the request
// path. A prefix only matches on a segment boundary, so "/prod" does not
// strip "/production".
func StripPrefixes(prefixes []string) func(http.Handler) http.Handler {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = "/" + strings.Trim(p, "/")
		if p != "/" {
			cleaned = append(cleaned, p)
		}
	}

	return func(next http.Handler) http.Handler {
		if len(cleaned) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range cleaned {
				rest, ok := strings.CutPrefix(r.URL.Path, prefix)
				if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
					continue
				}
				if rest == "" {
					rest = "/"
				}
				r2 := r.Clone(r.Context())
				r2.URL.Path = rest
				r2.URL.RawPath = ""
				next.ServeHTTP(w, r2)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Recover turns a panic outside the token handler into
// a 400 with the generic exchange failure message.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("Recovered from panic",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				utils.WriteError(w, constants.MsgTokenExchangeFailed, http.StatusBadRequest)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// maxTrackedClients bounds the limiter map; it is reset when full.
const maxTrackedClients = 10000

// RateLimiter is a per-client-IP token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter returns nil when requestsPerSecond is not positive.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxTrackedClients {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = l
	}
	return l.Allow()
}

// RateLimit rejects requests over the limit with 429. A nil limiter
// disables it.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.Allow(ip) {
				logger.Warn("Rate limit exceeded", zap.String("client_ip", ip), zap.String("path", r.URL.Path))
				utils.WriteError(w, constants.MsgTooManyRequests, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
