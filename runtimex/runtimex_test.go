package runtimex

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/testingx"
)

// recorder collects start and stop events across services in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type mockService struct {
	name     string
	rec      *recorder
	startErr error
	stopErr  error
}

func (m *mockService) Start(ctx context.Context) error {
	m.rec.add("start " + m.name)
	return m.startErr
}

func (m *mockService) Stop(ctx context.Context) error {
	m.rec.add("stop " + m.name)
	return m.stopErr
}

type staticChecker struct {
	mu  sync.Mutex
	err error
}

func (c *staticChecker) set(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *staticChecker) Name() string { return "static" }

func (c *staticChecker) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func httpGet(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(nil, Options{})
	testingx.AssertError(t, err, errors.CodeInvalidArgument)

	_, err = New(nil, Options{
		Logger:  testingx.NewMockLogger(t),
		Metrics: &Endpoint{Addr: "127.0.0.1:0"},
	})
	testingx.AssertError(t, err, errors.CodeInvalidArgument)
}

func TestRuntime_Lifecycle(t *testing.T) {
	rec := &recorder{}
	checker := &staticChecker{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("process_cpu_usage 12.5\n"))
	})

	rt, err := New([]Service{
		&mockService{name: "a", rec: rec},
		&mockService{name: "b", rec: rec},
	}, Options{
		Logger:         testingx.NewMockLogger(t),
		Health:         &Endpoint{Addr: "127.0.0.1:0"},
		HealthCheckers: []HealthChecker{checker},
		Metrics:        &Endpoint{Addr: "127.0.0.1:0"},
		MetricsHandler: metrics,
	})
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))

	code, body := httpGet(t, "http://"+rt.MetricsAddr()+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "process_cpu_usage")

	code, _ = httpGet(t, "http://"+rt.HealthAddr()+"/health")
	assert.Equal(t, http.StatusOK, code)

	checker.set(errors.New(errors.CodeUnavailable, "stale"))
	code, body = httpGet(t, "http://"+rt.HealthAddr()+"/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "stale")

	healthAddr := rt.HealthAddr()
	require.NoError(t, rt.Stop(context.Background()))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, rec.list())

	_, err = http.Get("http://" + healthAddr + "/livez")
	assert.Error(t, err, "health server still serving after Stop")
}

func TestRuntime_StartFailureStopsStarted(t *testing.T) {
	rec := &recorder{}
	rt, err := New([]Service{
		&mockService{name: "a", rec: rec},
		&mockService{name: "b", rec: rec, startErr: errors.New(errors.CodeAborted, "already started")},
		&mockService{name: "c", rec: rec},
	}, Options{Logger: testingx.NewMockLogger(t)})
	require.NoError(t, err)

	err = rt.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"start a", "start b", "stop a"}, rec.list())
}

func TestRuntime_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	rec := &recorder{}
	rt, err := New([]Service{&mockService{name: "a", rec: rec}}, Options{
		Logger: testingx.NewMockLogger(t),
		Health: &Endpoint{Addr: ln.Addr().String()},
	})
	require.NoError(t, err)

	err = rt.Start(context.Background())
	testingx.AssertError(t, err, errors.CodeUnavailable)
	assert.Empty(t, rec.list(), "no service may start when a port cannot be bound")
}

func TestRuntime_StopCombinesErrors(t *testing.T) {
	rec := &recorder{}
	rt, err := New([]Service{
		&mockService{name: "a", rec: rec, stopErr: errors.New(errors.CodeInternal, "a failed")},
		&mockService{name: "b", rec: rec, stopErr: errors.New(errors.CodeInternal, "b failed")},
	}, Options{Logger: testingx.NewMockLogger(t)})
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))

	err = rt.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
}

func TestRun(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, []Service{&mockService{name: "observer", rec: rec}}, Options{
			Logger: testingx.NewMockLogger(t),
		})
	}()

	require.Eventually(t, func() bool { return len(rec.list()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"start observer", "stop observer"}, rec.list())
}
