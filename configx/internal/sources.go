package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"go.eggybyte.com/sysobs/core/errors"
	"go.eggybyte.com/sysobs/core/log"
)

// EnvOptions configures environment variable source behavior.
type EnvOptions struct {
	Prefix    string // Prefix for environment variables (e.g., "SYSOBS_")
	Lowercase bool   // Convert keys to lowercase
	Uppercase bool   // Convert keys to uppercase
}

// EnvSource loads configuration from environment variables.
type EnvSource struct {
	prefix    string
	lowercase bool
	uppercase bool
}

// NewEnvSource creates a new environment variable source.
func NewEnvSource(opts EnvOptions) Source {
	return &EnvSource{
		prefix:    opts.Prefix,
		lowercase: opts.Lowercase,
		uppercase: opts.Uppercase,
	}
}

// Load reads configuration from environment variables.
func (s *EnvSource) Load(ctx context.Context) (map[string]string, error) {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		if s.prefix != "" {
			if !strings.HasPrefix(key, s.prefix) {
				continue
			}
			key = strings.TrimPrefix(key, s.prefix)
		}

		if s.lowercase {
			key = strings.ToLower(key)
		} else if s.uppercase {
			key = strings.ToUpper(key)
		}

		config[key] = value
	}

	return config, nil
}

// Watch returns a channel that never sends. Environment variables are
// static for the lifetime of the process.
func (s *EnvSource) Watch(ctx context.Context) (<-chan map[string]string, error) {
	ch := make(chan map[string]string)
	go func() {
		defer close(ch)
		<-ctx.Done()
	}()
	return ch, nil
}

// FileOptions configures file source behavior.
type FileOptions struct {
	Format  string     // "json" or "yaml"; detected from the extension when empty
	NoWatch bool       // Disable reloading on file changes
	Logger  log.Logger // Receives watch errors; defaults to a no-op logger
}

// FileSource loads configuration from a YAML or JSON file. Nested keys are
// flattened into upper-case names joined by "_", so
//
//	observer:
//	  interval: 2s
//
// yields OBSERVER_INTERVAL=2s and lines up with the environment names.
type FileSource struct {
	path   string
	format string
	watch  bool
	logger log.Logger
}

// NewFileSource creates a new file source.
func NewFileSource(path string, opts FileOptions) Source {
	format := opts.Format
	if format == "" {
		format = detectFileFormat(path)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	return &FileSource{
		path:   path,
		format: format,
		watch:  !opts.NoWatch,
		logger: logger,
	}
}

// Load reads configuration from the file. A missing file yields an empty
// snapshot so the file can be created later and picked up by Watch.
func (s *FileSource) Load(ctx context.Context) (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, errors.Wrap(errors.CodeUnavailable, "configx.FileSource", err)
	}

	config, err := parseConfigFile(data, s.format)
	if err != nil {
		return nil, errors.Wrapf(errors.CodeInvalidArgument, "configx.FileSource", err, "parse %s", s.path)
	}
	return config, nil
}

// Watch reloads the file whenever it is written, created or renamed into
// place. The parent directory is watched rather than the file itself so
// that atomic replacements (write to temp, rename) are seen.
func (s *FileSource) Watch(ctx context.Context) (<-chan map[string]string, error) {
	ch := make(chan map[string]string)
	if !s.watch {
		go func() {
			defer close(ch)
			<-ctx.Done()
		}()
		return ch, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "configx.FileSource", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return nil, errors.Wrapf(errors.CodeUnavailable, "configx.FileSource", err, "watch %s", s.path)
	}

	go s.loop(ctx, watcher, ch)
	return ch, nil
}

func (s *FileSource) loop(ctx context.Context, watcher *fsnotify.Watcher, ch chan<- map[string]string) {
	defer close(ch)
	defer watcher.Close()

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			config, err := s.Load(ctx)
			if err != nil {
				s.logger.Error(err, "reload config file failed", log.Str("path", s.path))
				continue
			}

			select {
			case ch <- config:
			case <-ctx.Done():
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error(err, "config file watcher error", log.Str("path", s.path))
		}
	}
}

func detectFileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

func parseConfigFile(data []byte, format string) (map[string]string, error) {
	var doc map[string]any
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	out := make(map[string]string)
	if doc != nil {
		flatten("", doc, out)
	}
	return out, nil
}

// flatten writes the scalar leaves of v into out. Lists are joined with ",".
// A map under a key ending in LABELS becomes sorted "k=v" pairs.
func flatten(prefix string, v any, out map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		if prefix != "" && strings.HasSuffix(prefix, "LABELS") {
			out[prefix] = joinLabels(val)
			return
		}
		for k, child := range val {
			flatten(joinKey(prefix, k), child, out)
		}
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		out[prefix] = strings.Join(parts, ",")
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(val)
	}
}

func joinKey(prefix, key string) string {
	key = strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

func joinLabels(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fmt.Sprint(m[k]))
	}
	return strings.Join(parts, ",")
}
