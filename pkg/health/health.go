// Package health serves liveness and readiness probes.
//
// Every probe runs on its own ticker. A probe turns unhealthy after a run of
// consecutive failures and healthy again after a run of successes, so one
// slow ping does not flip the endpoint.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Check reports nil when the component is healthy.
type Check func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

// Option tunes a probe.
type Option func(*probe)

// WithTimeout bounds a single run of the check.
func WithTimeout(d time.Duration) Option {
	return func(p *probe) { p.timeout = d }
}

// WithThresholds sets how many consecutive failures mark the probe unhealthy
// and how many successes restore it.
func WithThresholds(failures, successes int) Option {
	return func(p *probe) {
		if failures > 0 {
			p.failAfter = failures
		}
		if successes > 0 {
			p.passAfter = successes
		}
	}
}

type probe struct {
	name      string
	kind      Kind
	check     Check
	timeout   time.Duration
	failAfter int
	passAfter int

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Only touched by the probe's own goroutine.
	fails  int
	passes int
}

func (p *probe) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.check(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.passes = 0
		p.fails++
		if p.fails >= p.failAfter {
			p.healthy.Store(false)
		}
		return
	}
	p.lastErr.Store(nil)
	p.fails = 0
	p.passes++
	if p.passes >= p.passAfter {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() string {
	if msg := p.lastErr.Load(); msg != nil {
		return *msg
	}
	return "check is unhealthy"
}

// Health holds the registered probes and the manual readiness flag.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a probe. Probes start healthy. Register before Start.
func (h *Health) Add(kind Kind, name string, check Check, opts ...Option) {
	p := &probe{
		name:      name,
		kind:      kind,
		check:     check,
		timeout:   time.Second,
		failAfter: 3,
		passAfter: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

// Start runs every probe immediately and then at the interval until Stop or
// ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.stop = cancel
	probes := append([]*probe(nil), h.probes...)
	h.mu.Unlock()

	for _, p := range probes {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.observe(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop halts the probes and waits for in-flight checks to return.
func (h *Health) Stop() {
	h.mu.Lock()
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// SetReady flips the manual readiness flag. Set false on shutdown to drain
// traffic before the server stops.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports whether the service is marked ready and every readiness
// probe passes.
func (h *Health) Ready() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	failed := make(map[string]string)
	for _, p := range h.probes {
		if p.kind == kind && !p.healthy.Load() {
			failed[p.name] = p.failure()
		}
	}
	return failed
}

// ServeLive handles /livez.
func (h *Health) ServeLive(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.failures(Liveness))
}

// ServeReady handles /readyz.
func (h *Health) ServeReady(w http.ResponseWriter, _ *http.Request) {
	failed := h.failures(Readiness)
	if !h.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeReport(w, failed)
}

func writeReport(w http.ResponseWriter, failed map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.Obj(func(e *jx.Encoder) {
		if len(failed) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })

		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		sort.Strings(names)
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failed[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
