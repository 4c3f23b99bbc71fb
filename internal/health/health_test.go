package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ovleluv/AIContract-STT/internal/resilience"
)

func ok(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(t *testing.T, h *Handler, ctx context.Context, path string) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "redis", Check: failing("down")})

	code, body := serve(t, h, context.Background(), "/healthz")
	if code != http.StatusOK || body.Status != "ok" || body.Checks != nil {
		t.Errorf("healthz = %d %+v", code, body)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "redis", Check: ok}, {Name: "postgres", Check: ok}},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"redis": "ok", "postgres": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{{Name: "redis", Check: ok}, {Name: "postgres", Check: failing("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"redis": "ok", "postgres": "fail: connection refused"},
		},
		{
			name:       "all fail",
			checkers:   []Checker{{Name: "redis", Check: failing("timeout")}, {Name: "llm", Check: failing("no providers")}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"redis": "fail: timeout", "llm": "fail: no providers"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := serve(t, New(tt.checkers...), context.Background(), "/readyz")
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			wantBody := "ok"
			if tt.wantStatus != http.StatusOK {
				wantBody = "fail"
			}
			if body.Status != wantBody {
				t.Errorf("body status = %q, want %q", body.Status, wantBody)
			}
			for name, want := range tt.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("checks[%s] = %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	slow := func(ctx context.Context) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(Checker{Name: "a", Check: slow}, Checker{Name: "b", Check: slow})

	go func() {
		for range 2 {
			select {
			case <-started:
			case <-time.After(2 * time.Second):
				return
			}
		}
		close(release)
	}()

	code, body := serve(t, h, context.Background(), "/readyz")
	if code != http.StatusOK {
		t.Errorf("status = %d, checks = %v", code, body.Checks)
	}
}

func TestReadyz_RespectsRequestCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	code, body := serve(t, h, ctx, "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", code)
	}
	if !strings.HasPrefix(body.Checks["slow"], "fail: ") {
		t.Errorf("slow = %q", body.Checks["slow"])
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPing(t *testing.T) {
	t.Parallel()

	c := Ping("redis", pinger{err: errors.New("refused")})
	if c.Name != "redis" || c.Check(context.Background()) == nil {
		t.Errorf("Ping checker = %q, err = %v", c.Name, c.Check(context.Background()))
	}
	if err := Ping("redis", pinger{}).Check(context.Background()); err != nil {
		t.Errorf("healthy pinger: %v", err)
	}
}

type breakerStates map[string]resilience.State

func (b breakerStates) States() map[string]resilience.State { return b }

func TestBreakers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		states  breakerStates
		wantErr bool
	}{
		{"none registered", breakerStates{}, false},
		{"all closed", breakerStates{"openai": resilience.StateClosed}, false},
		{"one of two open", breakerStates{"openai": resilience.StateOpen, "anthropic": resilience.StateClosed}, false},
		{"half open counts as usable", breakerStates{"openai": resilience.StateHalfOpen}, false},
		{"all open", breakerStates{"openai": resilience.StateOpen, "anthropic": resilience.StateOpen}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Breakers("llm", tt.states).Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "anthropic, openai") {
				t.Errorf("err = %q, want sorted breaker names", err)
			}
		})
	}
}
