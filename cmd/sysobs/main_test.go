package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.eggybyte.com/sysobs/configx"
	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/obsx"
	"go.eggybyte.com/sysobs/testingx"
)

func TestCategories(t *testing.T) {
	assert.Nil(t, categories(nil))
	assert.Equal(t,
		[]obsx.Category{obsx.CategoryCPU, obsx.CategoryNetwork},
		categories([]string{"cpu", "network"}))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	logger, err := newLogger(&configx.ObserverConfig{
		ServiceName: "sysobs-test",
		LogLevel:    "warn",
		LogFormat:   "logfmt",
	}, &level, &buf)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level.Level())

	logger.Info("dropped")
	logger.Warn("kept")
	level.Set(slog.LevelInfo)
	logger.Info("lowered")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "lowered")
	assert.Contains(t, out, "sysobs-test")

	_, err = newLogger(&configx.ObserverConfig{LogLevel: "loud"}, &level, &buf)
	assert.Error(t, err)
}

func TestFollowLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sysobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := testingx.NewMockLogger(t)
	mgr, err := configx.NewManager(ctx, configx.Options{
		Logger:   logger,
		Sources:  []configx.Source{configx.NewFileSource(path, configx.FileOptions{Logger: logger})},
		Debounce: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	var level slog.LevelVar
	level.Set(slog.LevelWarn)
	stop := followLogLevel(mgr, &level, logger)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))
	require.Eventually(t, func() bool { return level.Level() == slog.LevelDebug },
		5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, logger.Count("INFO", "log level changed"), 1)

	// A rejected update leaves the level alone.
	require.NoError(t, os.WriteFile(path, []byte("log_level: verbose\n"), 0o600))
	require.Eventually(t, func() bool {
		return logger.Count("ERROR", "ignoring invalid configuration update") > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, slog.LevelDebug, level.Level())

	stop()
	require.NoError(t, os.WriteFile(path, []byte("log_level: error\n"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, slog.LevelDebug, level.Level())
}

func TestRun_Iterations(t *testing.T) {
	if testing.Short() {
		t.Skip("reads the real host")
	}

	var stdout bytes.Buffer
	cfg := &configx.ObserverConfig{
		ServiceName: "sysobs-test",
		Exporter:    "stdout",
		Interval:    20 * time.Millisecond,
		Categories:  []string{"process", "memory"},
		Labels:      map[string]string{"host": "ci"},
		Iterations:  2,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := testingx.NewMockLogger(t)
	require.NoError(t, run(ctx, cfg, logger, &stdout))

	out := stdout.String()
	assert.Contains(t, out, "process.memory.usage")
	assert.Contains(t, out, "system.memory.total")
	assert.NotContains(t, out, "system.network.io")
	logger.AssertLogged("INFO", "observing process")
}

func TestRun_GPUUnavailableStillRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("reads the real host")
	}

	var stdout bytes.Buffer
	cfg := &configx.ObserverConfig{
		ServiceName: "sysobs-test",
		Exporter:    "stdout",
		Interval:    20 * time.Millisecond,
		Categories:  []string{"memory"},
		EnableGPU:   true,
		Iterations:  1,
	}

	logger := testingx.NewMockLogger(t)
	require.NoError(t, run(context.Background(), cfg, logger, &stdout))

	// With or without a driver the host metrics keep flowing.
	assert.LessOrEqual(t, logger.Count("WARN", "gpu source unavailable"), 1)
	assert.Contains(t, stdout.String(), "system.memory.usage")
}

func TestRun_InvalidExporter(t *testing.T) {
	err := run(context.Background(), &configx.ObserverConfig{
		ServiceName: "sysobs-test",
		Exporter:    "zipkin",
		Interval:    time.Second,
	}, testingx.NewMockLogger(t), &bytes.Buffer{})
	testingx.AssertError(t, err, errors.CodeInvalidArgument)
}

func TestRun_UnknownPID(t *testing.T) {
	err := run(context.Background(), &configx.ObserverConfig{
		ServiceName: "sysobs-test",
		Exporter:    "stdout",
		Interval:    time.Second,
		PID:         1 << 30,
		Iterations:  1,
	}, testingx.NewMockLogger(t), &bytes.Buffer{})
	assert.ErrorIs(t, err, obsx.ErrProcessNotFound)
}

func TestRootCmd_Version(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "sysobs dev\n", out.String())
}

func TestRootCmd_FlagsOverrideEnv(t *testing.T) {
	t.Setenv(configx.ConfigFileEnv, "")
	t.Setenv("SYSOBS_EXPORTER", "stdout")

	var stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetErr(&stderr)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--exporter", "zipkin", "--iterations", "1"})

	err := cmd.Execute()
	testingx.AssertError(t, err, errors.CodeInvalidArgument)
}

func TestRootCmd_Iterations(t *testing.T) {
	if testing.Short() {
		t.Skip("reads the real host")
	}
	t.Setenv(configx.ConfigFileEnv, "")
	t.Setenv("OTEL_METRIC_EXPORT_INTERVAL", "20")
	t.Setenv("SYSOBS_CATEGORIES", "memory")
	t.Setenv("SYSOBS_RUNTIME_METRICS", "false")

	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--exporter", "stdout", "--iterations", "1"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, stdout.String(), "system.memory.usage")
}
