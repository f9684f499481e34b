package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func do(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestWrap_Order(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	do(Wrap(okHandler(), mark("outer"), mark("inner")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, calls)
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated", incoming: "", keep: false},
		{name: "reused", incoming: "abc-123", keep: true},
		{name: "too long", incoming: strings.Repeat("a", 129), keep: false},
		{name: "control chars", incoming: "abc\x01", keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}

			w := do(h, req)
			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), InjectLogger(zap.New(core)), Recovery())

	w := do(h, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"message":"internal error"}`, w.Body.String())
	require.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestRecovery_AbortHandler(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute, Exempt: []string{"/livez"}})(okHandler())
	req := func(path, ip string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.RemoteAddr = ip + ":5555"
		return r
	}

	for range 2 {
		require.Equal(t, http.StatusOK, do(h, req("/api/orders", "10.0.0.1")).Code)
	}
	w := do(h, req("/api/orders", "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, do(h, req("/api/orders", "10.0.0.2")).Code, "other clients are unaffected")
	assert.Equal(t, http.StatusOK, do(h, req("/livez", "10.0.0.1")).Code, "exempt path")
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(okHandler())
	for range 100 {
		require.Equal(t, http.StatusOK, do(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(CORSConfig{
		AllowOrigins: []string{"https://menu.example.com"},
		AllowHeaders: []string{"Content-Type", "X-API-Key"},
		MaxAge:       600,
	})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://menu.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := do(h, req)

	assert.Equal(t, "https://menu.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = do(h, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := chi.NewRouter()
	r.Use(RequestID(), InjectLogger(zap.New(core)), LogRequests())
	r.Get("/api/orders/{orderID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("{}"))
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	do(r, httptest.NewRequest(http.MethodGet, "/api/orders/o1", nil))
	do(r, httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "Request", entries[0].Message)
	assert.Equal(t, "/api/orders/{orderID}", first["route"])
	assert.EqualValues(t, http.StatusNotFound, first["status"])
	assert.EqualValues(t, 2, first["bytes"])
	assert.NotEmpty(t, first["request_id"])

	assert.Equal(t, "Request failed", entries[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestInjectLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := Wrap(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("hello")
	}), InjectLogger(zap.New(core)))

	do(h, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("hello").Len())
}

type testTelemetry struct {
	tp trace.TracerProvider
}

func (t testTelemetry) TracerProvider() trace.TracerProvider { return t.tp }
func (t testTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestInstrument_NamesSpanByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	r := chi.NewRouter()
	r.Use(Instrument("dinein-api", testTelemetry{tp: tp}))
	r.Get("/api/tables/{tableID}/active-order", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	do(r, httptest.NewRequest(http.MethodGet, "/api/tables/t1/active-order", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/tables/{tableID}/active-order", spans[0].Name())
}
