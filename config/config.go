package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/shellcache/analyze"
	"github.com/jonwraymond/shellcache/cache"
	"github.com/jonwraymond/shellcache/dupdetect"
	"github.com/jonwraymond/shellcache/guard"
	"github.com/jonwraymond/shellcache/learn"
	"github.com/jonwraymond/shellcache/observe"
)

// ErrNotFound is returned by Load when the file does not exist.
var ErrNotFound = errors.New("config: file not found")

// Duration wraps time.Duration for YAML values like "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// File is the YAML configuration document. Zero values mean "use the
// package default"; constructors apply defaults, not this package.
type File struct {
	Service    ServiceSection    `yaml:"service"`
	Cache      CacheSection      `yaml:"cache"`
	Analyze    AnalyzeSection    `yaml:"analyze"`
	Duplicates DuplicatesSection `yaml:"duplicates"`
	Rules      RulesSection      `yaml:"rules"`
	Guard      GuardSection      `yaml:"guard"`
	Telemetry  TelemetrySection  `yaml:"telemetry"`
}

// ServiceSection names the service for telemetry.
type ServiceSection struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// CacheSection configures the result store.
type CacheSection struct {
	MaxEntries    int      `yaml:"maxEntries"`
	SweepInterval Duration `yaml:"sweepInterval"`
}

// AnalyzeSection configures output analysis.
type AnalyzeSection struct {
	NeverThreshold float64 `yaml:"neverThreshold"`
}

// DuplicatesSection configures duplicate detection.
type DuplicatesSection struct {
	Window          Duration `yaml:"window"`
	MaxHistory      int      `yaml:"maxHistory"`
	SignalThreshold int      `yaml:"signalThreshold"`
}

// RulesSection configures rule persistence.
type RulesSection struct {
	Path     string   `yaml:"path"`
	Debounce Duration `yaml:"debounce"`
}

// GuardSection configures execution protection.
type GuardSection struct {
	MaxFailures       int      `yaml:"maxFailures"`
	ResetTimeout      Duration `yaml:"resetTimeout"`
	MaxConcurrent     int      `yaml:"maxConcurrent"`
	MaxWait           Duration `yaml:"maxWait"`
	CommandTimeout    Duration `yaml:"commandTimeout"`
	MaxHeapBytes      uint64   `yaml:"maxHeapBytes"`
	HighThreshold     float64  `yaml:"highThreshold"`
	CriticalThreshold float64  `yaml:"criticalThreshold"`
}

// TelemetrySection configures the observer.
type TelemetrySection struct {
	Tracing struct {
		Enabled   bool    `yaml:"enabled"`
		Exporter  string  `yaml:"exporter"`
		SamplePct float64 `yaml:"samplePct"`
	} `yaml:"tracing"`
	Metrics struct {
		Enabled  bool   `yaml:"enabled"`
		Exporter string `yaml:"exporter"`
	} `yaml:"metrics"`
	Logging struct {
		Enabled bool   `yaml:"enabled"`
		Level   string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads, env-expands, and parses the YAML document at path.
// Unknown keys are an error so typos do not silently fall back to
// defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse env-expands and parses a YAML document.
func Parse(data []byte) (*File, error) {
	expanded, err := expandEnvStrict(string(data))
	if err != nil {
		return nil, err
	}

	var f File
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil // empty document, all defaults
		}
		return nil, fmt.Errorf("config: parsing document: %w", err)
	}
	return &f, nil
}

// StoreConfig maps the cache section onto the store configuration.
func (f *File) StoreConfig() cache.StoreConfig {
	return cache.StoreConfig{
		MaxEntries:    f.Cache.MaxEntries,
		SweepInterval: f.Cache.SweepInterval.Std(),
	}
}

// AnalyzerConfig maps the analyze section.
func (f *File) AnalyzerConfig() analyze.Config {
	return analyze.Config{NeverThreshold: f.Analyze.NeverThreshold}
}

// DetectorConfig maps the duplicates section.
func (f *File) DetectorConfig() dupdetect.Config {
	return dupdetect.Config{
		Window:          f.Duplicates.Window.Std(),
		MaxHistory:      f.Duplicates.MaxHistory,
		SignalThreshold: f.Duplicates.SignalThreshold,
	}
}

// LearnConfig maps the rules section.
func (f *File) LearnConfig() learn.Config {
	return learn.Config{
		Path:     f.Rules.Path,
		Debounce: f.Rules.Debounce.Std(),
	}
}

// BuildGuard assembles a Guard from the guard section.
func (f *File) BuildGuard() *guard.Guard {
	return guard.New(
		guard.WithBreaker(guard.NewBreaker(guard.BreakerConfig{
			MaxFailures:  f.Guard.MaxFailures,
			ResetTimeout: f.Guard.ResetTimeout.Std(),
		})),
		guard.WithBulkhead(guard.NewBulkhead(guard.BulkheadConfig{
			MaxConcurrent: f.Guard.MaxConcurrent,
			MaxWait:       f.Guard.MaxWait.Std(),
		})),
		guard.WithCommandTimeout(f.Guard.CommandTimeout.Std()),
		guard.WithMemoryMonitor(guard.NewMemoryMonitor(guard.MemoryConfig{
			MaxHeapBytes:      f.Guard.MaxHeapBytes,
			HighThreshold:     f.Guard.HighThreshold,
			CriticalThreshold: f.Guard.CriticalThreshold,
		})),
	)
}

// ObserveConfig maps the service and telemetry sections.
func (f *File) ObserveConfig() observe.Config {
	name := f.Service.Name
	if name == "" {
		name = "shellcache"
	}
	cfg := observe.Config{
		ServiceName: name,
		Version:     f.Service.Version,
	}
	cfg.Tracing = observe.TracingConfig{
		Enabled:   f.Telemetry.Tracing.Enabled,
		Exporter:  f.Telemetry.Tracing.Exporter,
		SamplePct: f.Telemetry.Tracing.SamplePct,
	}
	cfg.Metrics = observe.MetricsConfig{
		Enabled:  f.Telemetry.Metrics.Enabled,
		Exporter: f.Telemetry.Metrics.Exporter,
	}
	cfg.Logging = observe.LoggingConfig{
		Enabled: f.Telemetry.Logging.Enabled,
		Level:   f.Telemetry.Logging.Level,
	}
	return cfg
}
