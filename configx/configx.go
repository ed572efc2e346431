package configx

import (
	"context"
	"os"
	"time"

	"go.eggybyte.com/sysobs/configx/internal"
	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/core/log"
)

// ConfigFileEnv names the environment variable pointing DefaultManager at an
// optional YAML or JSON file layered over the environment.
const ConfigFileEnv = "SYSOBS_CONFIG_FILE"

// Source yields configuration snapshots keyed by upper-case names such as
// SYSOBS_PID. Implementations are safe for concurrent use.
type Source interface {
	// Load returns the current snapshot; a source with nothing to offer
	// returns an empty map.
	Load(ctx context.Context) (map[string]string, error)

	// Watch streams replacement snapshots and closes the channel when ctx
	// is done.
	Watch(ctx context.Context) (<-chan map[string]string, error)
}

// Manager is the merged view over all sources. Later sources win and an
// empty value never hides an earlier one.
type Manager interface {
	Snapshot() map[string]string
	Value(key string) (string, bool)

	// Bind decodes env/default/unit tags into target.
	Bind(target any, opts ...BindOption) error

	// OnUpdate calls fn with every merged snapshot applied after a source
	// changed.
	OnUpdate(fn func(snapshot map[string]string)) (unsubscribe func())
}

// Options configures NewManager.
type Options struct {
	Logger   log.Logger
	Sources  []Source      // lowest precedence first
	Debounce time.Duration // quiet period per source, 200ms when zero
}

// BindOption tunes Manager.Bind.
type BindOption interface {
	apply(*bindConfig)
}

type bindConfig struct {
	onUpdate func()
}

type bindOptionFunc func(*bindConfig)

func (f bindOptionFunc) apply(cfg *bindConfig) { f(cfg) }

// WithUpdateCallback re-binds the target on every configuration change and
// then invokes fn.
func WithUpdateCallback(fn func()) BindOption {
	return bindOptionFunc(func(cfg *bindConfig) {
		cfg.onUpdate = fn
	})
}

// ObserverConfig is the configuration of the sysobs host program.
type ObserverConfig struct {
	ServiceName    string `env:"SERVICE_NAME" default:"sysobs" validate:"required"`
	ServiceVersion string `env:"SERVICE_VERSION" default:"0.0.0"`
	LogLevel       string `env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat      string `env:"LOG_FORMAT" default:"logfmt" validate:"oneof=logfmt json"`

	HealthPort  string `env:"HEALTH_PORT" default:":8081"`
	MetricsPort string `env:"METRICS_PORT" default:":9091"`

	// PID of the observed process; 0 observes sysobs itself.
	PID        int32             `env:"SYSOBS_PID" default:"0" validate:"gte=0"`
	Interval   time.Duration     `env:"OTEL_METRIC_EXPORT_INTERVAL" default:"5000" unit:"ms" validate:"gt=0"`
	EnableGPU  bool              `env:"SYSOBS_ENABLE_GPU" default:"false"`
	Categories []string          `env:"SYSOBS_CATEGORIES" validate:"dive,oneof=process cpu memory disk network gpu"`
	Labels     map[string]string `env:"SYSOBS_LABELS"`
	Iterations int               `env:"SYSOBS_ITERATIONS" default:"0" validate:"gte=0"`

	Exporter       string `env:"SYSOBS_EXPORTER" default:"prometheus" validate:"oneof=prometheus otlp stdout"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	OTLPInsecure   bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	RuntimeMetrics bool   `env:"SYSOBS_RUNTIME_METRICS" default:"true"`
}

type manager struct {
	impl *internal.Manager
}

// NewManager creates a configuration manager, loads every source once and
// starts watching them until ctx is cancelled.
func NewManager(ctx context.Context, opts Options) (Manager, error) {
	internalSources := make([]internal.Source, len(opts.Sources))
	for i, src := range opts.Sources {
		internalSources[i] = src
	}

	impl, err := internal.NewManager(opts.Logger, internalSources, opts.Debounce)
	if err != nil {
		return nil, err
	}

	if err := impl.Start(ctx); err != nil {
		return nil, err
	}

	return &manager{impl: impl}, nil
}

func (m *manager) Snapshot() map[string]string { return m.impl.Snapshot() }

func (m *manager) Value(key string) (string, bool) { return m.impl.Value(key) }

func (m *manager) Bind(target any, opts ...BindOption) error {
	var cfg bindConfig
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return m.impl.Bind(target, cfg.onUpdate)
}

func (m *manager) OnUpdate(fn func(snapshot map[string]string)) func() {
	return m.impl.OnUpdate(fn)
}

// EnvOptions selects and folds environment variable names.
type EnvOptions struct {
	Prefix    string
	Lowercase bool
	Uppercase bool
}

// FileOptions tunes NewFileSource.
type FileOptions struct {
	Format  string // "yaml" or "json"; detected from the extension when empty
	NoWatch bool
	Logger  log.Logger
}

// NewEnvSource reads the process environment. Its Watch never fires.
func NewEnvSource(opts EnvOptions) Source {
	return internal.NewEnvSource(internal.EnvOptions{
		Prefix:    opts.Prefix,
		Lowercase: opts.Lowercase,
		Uppercase: opts.Uppercase,
	})
}

// NewFileSource creates a YAML or JSON file source. Nested keys are
// flattened to upper-case "_"-joined names; the file is reloaded on change
// unless NoWatch is set.
func NewFileSource(path string, opts FileOptions) Source {
	return internal.NewFileSource(path, internal.FileOptions{
		Format:  opts.Format,
		NoWatch: opts.NoWatch,
		Logger:  opts.Logger,
	})
}

// DefaultManager creates a manager over the environment, with the file named
// by SYSOBS_CONFIG_FILE layered on top when set.
func DefaultManager(ctx context.Context, logger log.Logger) (Manager, error) {
	sources := []Source{NewEnvSource(EnvOptions{})}
	if path := os.Getenv(ConfigFileEnv); path != "" {
		sources = append(sources, NewFileSource(path, FileOptions{Logger: logger}))
	}
	return NewManager(ctx, Options{
		Logger:  logger,
		Sources: sources,
	})
}

// LoadObserverConfig binds and validates an ObserverConfig from the default
// sources once. The sources stop watching before it returns; use
// DefaultManager with WatchObserverConfig to follow changes.
func LoadObserverConfig(ctx context.Context, logger log.Logger) (*ObserverConfig, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mgr, err := DefaultManager(ctx, logger)
	if err != nil {
		return nil, err
	}
	return ObserverConfigFrom(mgr)
}

// ObserverConfigFrom binds and validates an ObserverConfig from the current
// snapshot of mgr.
func ObserverConfigFrom(mgr Manager) (*ObserverConfig, error) {
	var cfg ObserverConfig
	if err := mgr.Bind(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateStruct(nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WatchObserverConfig calls fn with a new ObserverConfig after every update
// mgr applies. Updates that do not bind or validate are logged and skipped,
// so fn only ever sees a valid configuration.
func WatchObserverConfig(mgr Manager, logger log.Logger, fn func(cfg *ObserverConfig)) (unsubscribe func()) {
	return mgr.OnUpdate(func(snapshot map[string]string) {
		var cfg ObserverConfig
		err := internal.BindToStruct(snapshot, &cfg)
		if err == nil {
			err = ValidateStruct(nil, &cfg)
		}
		if err != nil {
			logger.Error(err, "ignoring invalid configuration update")
			return
		}
		fn(&cfg)
	})
}

// ParseLabels parses "k=v,k2=v2" into a map.
func ParseLabels(value string) (map[string]string, error) {
	labels, err := internal.ParseLabels(value)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidArgument, "configx.ParseLabels", err)
	}
	return labels, nil
}
