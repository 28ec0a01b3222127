// Package health serves liveness and readiness probes. Readiness combines the
// server lifecycle state with pings of the backing stores.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// State constants for the readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// DefaultCheckTimeout bounds each dependency ping.
const DefaultCheckTimeout = 2 * time.Second

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

type dependency struct {
	name string
	ping PingFunc
}

// Checker tracks readiness. It is safe for concurrent use.
type Checker struct {
	state   atomic.Int32
	timeout time.Duration

	mu   sync.RWMutex
	deps []dependency
}

// NewChecker creates a Checker in the Starting state.
func NewChecker() *Checker {
	return &Checker{timeout: DefaultCheckTimeout}
}

// AddDependency registers a dependency pinged on every readiness probe,
// e.g. AddDependency("postgres", db.PingContext).
func (c *Checker) AddDependency(name string, ping PingFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps = append(c.deps, dependency{name: name, ping: ping})
}

// SetTimeout overrides DefaultCheckTimeout.
func (c *Checker) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is Ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// CheckDependencies pings every dependency concurrently and returns the
// per-dependency result ("ok" or the error text) and whether all passed.
func (c *Checker) CheckDependencies(ctx context.Context) (map[string]string, bool) {
	c.mu.RLock()
	deps := append([]dependency(nil), c.deps...)
	c.mu.RUnlock()

	results := make([]string, len(deps))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range deps {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()
			if err := d.ping(pctx); err != nil {
				results[i] = err.Error()
				return nil
			}
			results[i] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(deps))
	healthy := true
	for i, d := range deps {
		out[d.name] = results[i]
		if results[i] != "ok" {
			healthy = false
		}
	}
	return out, healthy
}

// healthResponse is the JSON body returned by health endpoints.
type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// LivenessHandler always responds 200 OK (/healthz).
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// ReadinessHandler responds 200 when ready and every dependency answers,
// 503 otherwise (/readyz).
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: c.State()})
			return
		}
		deps, ok := c.CheckDependencies(r.Context())
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Dependencies: deps})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: c.State(), Dependencies: deps})
	}
}

func writeJSON(w http.ResponseWriter, code int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
