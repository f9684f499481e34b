package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/go-faster/jx"
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	// Max requests per window. Zero disables limiting.
	Max    int
	Window time.Duration
	// Paths are not limited when they match exactly, e.g. probe endpoints
	// and gateway callbacks.
	Exempt []string
}

// RateLimit rejects clients above the limit with 429 and a JSON body. The
// client is keyed by its real IP, honoring X-Forwarded-For and X-Real-IP.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	exempt := make(map[string]struct{}, len(cfg.Exempt))
	for _, p := range cfg.Exempt {
		exempt[p] = struct{}{}
	}

	limit := httprate.Limit(cfg.Max, cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// WriteError writes the API error body {"code":..,"message":..}.
func WriteError(w http.ResponseWriter, code int, message string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
