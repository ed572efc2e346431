package internal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	"go.eggybyte.com/sysobs/core/errors"
)

type mockHealthChecker struct {
	name    string
	err     error
	checked bool
	block   bool
}

func (m *mockHealthChecker) Name() string { return m.name }

func (m *mockHealthChecker) Check(ctx context.Context) error {
	m.checked = true
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.err
}

func TestCheckHealth(t *testing.T) {
	ok1 := &mockHealthChecker{name: "observer"}
	ok2 := &mockHealthChecker{name: "exporter"}

	if err := CheckHealth(context.Background(), nil); err != nil {
		t.Errorf("CheckHealth(no checkers) = %v, want nil", err)
	}
	if err := CheckHealth(context.Background(), []HealthChecker{ok1, ok2}); err != nil {
		t.Errorf("CheckHealth() = %v, want nil", err)
	}
	if !ok1.checked || !ok2.checked {
		t.Error("all checkers should run")
	}
}

func TestCheckHealth_CombinesFailures(t *testing.T) {
	bad1 := &mockHealthChecker{name: "observer", err: errors.New(errors.CodeUnavailable, "stale sample")}
	good := &mockHealthChecker{name: "exporter"}
	bad2 := &mockHealthChecker{name: "gpu", err: errors.New(errors.CodeInternal, "driver lost")}

	err := CheckHealth(context.Background(), []HealthChecker{bad1, good, bad2})
	if err == nil {
		t.Fatal("CheckHealth() = nil, want failure")
	}
	if !good.checked || !bad2.checked {
		t.Error("a failure must not stop later checkers")
	}

	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("len(errors) = %d, want 2", len(errs))
	}
	if errors.OpOf(errs[0]) != "observer" || errors.OpOf(errs[1]) != "gpu" {
		t.Errorf("ops = %q, %q", errors.OpOf(errs[0]), errors.OpOf(errs[1]))
	}
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body)
}

func TestHealthHandler(t *testing.T) {
	checker := &mockHealthChecker{name: "observer"}
	h := NewHealthHandler([]HealthChecker{checker}, time.Second)

	for _, path := range []string{"/health", "/readyz", "/livez"} {
		code, body := get(t, h, path)
		if code != http.StatusOK || body != "OK" {
			t.Errorf("GET %s = %d %q, want 200 OK", path, code, body)
		}
	}

	checker.err = errors.New(errors.CodeUnavailable, "no tick for 15s")

	code, body := get(t, h, "/health")
	if code != http.StatusServiceUnavailable {
		t.Errorf("GET /health = %d, want 503", code)
	}
	if !strings.Contains(body, "no tick for 15s") {
		t.Errorf("body %q does not name the failure", body)
	}

	if code, _ := get(t, h, "/livez"); code != http.StatusOK {
		t.Errorf("GET /livez = %d, liveness ignores checkers", code)
	}
}

func TestHealthHandler_Timeout(t *testing.T) {
	h := NewHealthHandler([]HealthChecker{&mockHealthChecker{name: "slow", block: true}}, 20*time.Millisecond)

	start := time.Now()
	code, _ := get(t, h, "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("GET /readyz = %d, want 503", code)
	}
	if time.Since(start) > time.Second {
		t.Error("readiness did not honor the timeout")
	}
}
