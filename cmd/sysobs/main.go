// Command sysobs samples one process and its host and exports the values as
// OpenTelemetry metrics.
//
// Configuration is read from the environment, optionally layered with the
// YAML or JSON file named by SYSOBS_CONFIG_FILE:
//
//	SYSOBS_PID=4242 SYSOBS_EXPORTER=otlp OTEL_EXPORTER_OTLP_ENDPOINT=collector:4317 ./sysobs
//
// Endpoints:
//   - Health: :8081 (HEALTH_PORT), /health, /readyz and /livez
//   - Metrics: :9091 (METRICS_PORT), /metrics, Prometheus exporter only
//
// Flags (--pid, --exporter, --iterations, --config) override both. A
// LOG_LEVEL change in the config file is applied without a restart.
// With SYSOBS_ITERATIONS or --iterations set, sysobs samples that many
// times, flushes the exporter and exits without serving any endpoint.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go.eggybyte.com/sysobs/configx"
	"go.eggybyte.com/sysobs/core/log"
	"go.eggybyte.com/sysobs/hostx"
	"go.eggybyte.com/sysobs/logx"
	"go.eggybyte.com/sysobs/obsx"
	"go.eggybyte.com/sysobs/runtimex"
)

const shutdownTimeout = 10 * time.Second

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		pid        int32
		exporter   string
		iterations int
	)

	cmd := &cobra.Command{
		Use:   "sysobs",
		Short: "Export process and host metrics over OpenTelemetry",
		Long: `sysobs samples one process and the host it runs on and exports the values
as OpenTelemetry metrics through Prometheus, OTLP or stdout.

Settings come from the environment (see configx.ObserverConfig) and the
optional YAML or JSON file named by SYSOBS_CONFIG_FILE or --config.
Flags override both.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				if err := os.Setenv(configx.ConfigFileEnv, configFile); err != nil {
					return err
				}
			}

			// The manager keeps following SYSOBS_CONFIG_FILE until the
			// command returns.
			mgr, err := configx.DefaultManager(cmd.Context(), logx.New(logx.WithWriter(cmd.ErrOrStderr())))
			if err != nil {
				return err
			}
			cfg, err := configx.ObserverConfigFrom(mgr)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("pid") {
				cfg.PID = pid
			}
			if flags.Changed("exporter") {
				cfg.Exporter = exporter
			}
			if flags.Changed("iterations") {
				cfg.Iterations = iterations
			}
			if err := configx.ValidateStruct(nil, cfg); err != nil {
				return err
			}

			var level slog.LevelVar
			logger, err := newLogger(cfg, &level, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer followLogLevel(mgr, &level, logger)()

			return run(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "YAML or JSON config file, overrides "+configx.ConfigFileEnv)
	cmd.Flags().Int32Var(&pid, "pid", 0, "process to observe, 0 for sysobs itself")
	cmd.Flags().StringVar(&exporter, "exporter", "", "metrics exporter: prometheus, otlp or stdout")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "sample this many times, flush and exit")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the sysobs version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sysobs", version)
		},
	})

	return cmd
}

// newLogger builds the process logger. Its minimum level follows level,
// which starts at cfg.LogLevel.
func newLogger(cfg *configx.ObserverConfig, level *slog.LevelVar, w io.Writer) (log.Logger, error) {
	lvl, err := logx.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	level.Set(lvl)
	return logx.New(
		logx.WithFormat(logx.Format(cfg.LogFormat)),
		logx.WithLevelVar(level),
		logx.WithWriter(w),
	).With("service", cfg.ServiceName), nil
}

// followLogLevel applies LOG_LEVEL changes from the config file while
// sysobs runs. Other settings take effect on restart.
func followLogLevel(mgr configx.Manager, level *slog.LevelVar, logger log.Logger) (stop func()) {
	return configx.WatchObserverConfig(mgr, logger, func(next *configx.ObserverConfig) {
		lvl, err := logx.ParseLevel(next.LogLevel)
		if err != nil || lvl == level.Level() {
			return
		}
		logger.Info("log level changed", log.Str("level", next.LogLevel))
		level.Set(lvl)
	})
}

// run wires provider, observer and runtime, and blocks until ctx is
// cancelled or the configured iterations are done. stdout receives the
// stdout exporter output.
func run(ctx context.Context, cfg *configx.ObserverConfig, logger log.Logger, stdout io.Writer) (err error) {
	provider, err := obsx.NewProvider(ctx, obsx.Options{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Exporter:       obsx.Exporter(cfg.Exporter),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		ExportInterval: cfg.Interval,
		Writer:         stdout,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if serr := provider.Shutdown(shutdownCtx); serr != nil && err == nil {
			err = serr
		}
	}()

	if cfg.RuntimeMetrics {
		if err := provider.EnableRuntimeMetrics(ctx); err != nil {
			return err
		}
	}

	var gpu hostx.GPUSource
	if cfg.EnableGPU {
		src, gerr := openGPU()
		if gerr != nil {
			logger.Warn("gpu source unavailable, reporting no gpu metrics", log.Str("error", gerr.Error()))
		} else {
			gpu = src
			defer func() {
				if cerr := src.Close(); cerr != nil {
					logger.Error(cerr, "close gpu source")
				}
			}()
		}
	}

	observer, err := provider.EnableSystemMetrics(ctx, obsx.ObserverOptions{
		PID:          cfg.PID,
		Interval:     cfg.Interval,
		Categories:   categories(cfg.Categories),
		EnableGPU:    cfg.EnableGPU,
		GPU:          gpu,
		CustomLabels: cfg.Labels,
		Logger:       logger,
		Iterations:   cfg.Iterations,
	})
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		// Flush before unregistering so push exporters see the last sample.
		if ferr := provider.ForceFlush(stopCtx); ferr != nil {
			logger.Error(ferr, "flush metrics")
		}
		if serr := observer.Shutdown(stopCtx); serr != nil {
			logger.Error(serr, "observer shutdown")
		}
	}()

	proc := observer.Process()
	logger.Info("observing process",
		log.Int64("pid", int64(proc.PID)),
		log.Str("name", proc.Name),
		log.Str("exporter", cfg.Exporter),
		log.Dur("interval", cfg.Interval))

	if cfg.Iterations > 0 {
		return observer.Run(ctx)
	}

	opts := runtimex.Options{
		Logger:          logger,
		Health:          &runtimex.Endpoint{Addr: cfg.HealthPort},
		HealthCheckers:  []runtimex.HealthChecker{observer},
		ShutdownTimeout: shutdownTimeout,
	}
	if obsx.Exporter(cfg.Exporter) == obsx.ExporterPrometheus {
		opts.Metrics = &runtimex.Endpoint{Addr: cfg.MetricsPort}
		opts.MetricsHandler = provider.PrometheusHandler()
	}

	return runtimex.Run(ctx, []runtimex.Service{observer}, opts)
}

func categories(names []string) []obsx.Category {
	if len(names) == 0 {
		return nil
	}
	cats := make([]obsx.Category, 0, len(names))
	for _, n := range names {
		cats = append(cats, obsx.Category(n))
	}
	return cats
}
