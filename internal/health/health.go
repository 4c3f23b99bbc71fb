// Package health serves the liveness and readiness probes of contractd.
//
//   - GET /healthz answers 200 while the process can serve HTTP.
//   - GET /readyz answers 200 only when every registered [Checker] passes.
//
// Both respond with {"status": "ok"|"fail", "checks": {...}}.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovleluv/AIContract-STT/internal/resilience"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named dependency probe.
type Checker struct {
	// Name keys the check in the response, e.g. "redis" or "postgres".
	Name string

	// Check returns nil when the dependency is usable. It must respect ctx.
	Check func(ctx context.Context) error
}

// Pinger is implemented by the session and draft stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a Checker that pings p.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// BreakerStates is satisfied by the provider fallback groups.
type BreakerStates interface {
	States() map[string]resilience.State
}

// Breakers returns a Checker that fails when every circuit breaker in b is
// open, i.e. no backend of that kind would accept a call.
func Breakers(name string, b BreakerStates) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		states := b.States()
		var open []string
		for n, s := range states {
			if s == resilience.StateOpen {
				open = append(open, n)
			}
		}
		if len(states) > 0 && len(open) == len(states) {
			sort.Strings(open)
			return fmt.Errorf("all circuit breakers open: %s", strings.Join(open, ", "))
		}
		return nil
	}}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a Handler evaluating checkers on each readiness request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers concurrently, each under [checkTimeout], and
// answers 503 if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)
	for _, c := range h.checkers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
				return
			}
			checks[c.Name] = "ok"
		})
	}
	wg.Wait()

	res, status := result{Status: "ok", Checks: checks}, http.StatusOK
	if !allOK {
		res.Status, status = "fail", http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
