package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Status string
	Checks map[string]string
}

func decodeReport(t *testing.T, w *httptest.ResponseRecorder) report {
	t.Helper()
	var r report
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			r.Status = s
			return err
		case "checks":
			r.Checks = map[string]string{}
			return d.Obj(func(d *jx.Decoder, name string) error {
				s, err := d.Str()
				r.Checks[name] = s
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return r
}

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func pass(context.Context) error { return nil }

func fail(msg string) Check {
	return func(context.Context) error { return errors.New(msg) }
}

func TestServeLive(t *testing.T) {
	tests := []struct {
		name       string
		check      Check
		runs       int
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "healthy before first run", check: fail("down"), runs: 0, wantStatus: http.StatusOK},
		{name: "passing", check: pass, runs: 3, wantStatus: http.StatusOK},
		{name: "below threshold", check: fail("temporary"), runs: 2, wantStatus: http.StatusOK},
		{
			name:       "failing",
			check:      fail("connection refused"),
			runs:       3,
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"db": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.Add(Liveness, "db", tt.check)
			for range tt.runs {
				h.probes[0].observe(context.Background())
			}

			w := serve(h.ServeLive)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			r := decodeReport(t, w)
			if tt.wantChecks == nil {
				assert.Equal(t, "ok", r.Status)
				return
			}
			assert.Equal(t, "unhealthy", r.Status)
			assert.Equal(t, tt.wantChecks, r.Checks)
		})
	}
}

func TestServeReady(t *testing.T) {
	h := New()
	h.Add(Readiness, "postgres", pass)
	h.Add(Liveness, "goroutines", fail("too many"), WithThresholds(1, 1))
	h.probes[1].observe(context.Background())

	w := serve(h.ServeReady)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]string{"_readiness": "service is not ready"}, decodeReport(t, w).Checks)

	h.SetReady(true)
	w = serve(h.ServeReady)
	assert.Equal(t, http.StatusOK, w.Code, "liveness failures do not affect readiness")
	assert.True(t, h.Ready())

	h.SetReady(false)
	assert.False(t, h.Ready())
}

func TestProbe_Recovers(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	h := New()
	h.Add(Readiness, "postgres", func(context.Context) error {
		if failing.Load() {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(2, 2))
	h.SetReady(true)
	p := h.probes[0]
	ctx := context.Background()

	p.observe(ctx)
	assert.True(t, h.Ready())
	p.observe(ctx)
	assert.False(t, h.Ready())

	failing.Store(false)
	p.observe(ctx)
	assert.False(t, h.Ready(), "one success is below the threshold")
	p.observe(ctx)
	assert.True(t, h.Ready())
}

func TestProbe_Timeout(t *testing.T) {
	h := New()
	h.Add(Readiness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond), WithThresholds(1, 1))

	h.probes[0].observe(context.Background())

	r := decodeReport(t, serve(h.ServeReady))
	assert.Equal(t, context.DeadlineExceeded.Error(), r.Checks["slow"])
}

func TestStartStop(t *testing.T) {
	var runs atomic.Int32
	h := New()
	h.Add(Liveness, "counter", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	h.Stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	require.NoError(t, PingCheck(pinger{})(context.Background()))
	require.EqualError(t, PingCheck(pinger{err: errors.New("refused")})(context.Background()), "refused")
}
