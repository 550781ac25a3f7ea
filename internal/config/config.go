// Package config loads mesh-router settings from TOML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/signalsfoundry/mesh-router/internal/adjudicator"
	"github.com/signalsfoundry/mesh-router/internal/logging"
	"github.com/signalsfoundry/mesh-router/internal/lossiness"
	"github.com/signalsfoundry/mesh-router/internal/objective"
	"github.com/signalsfoundry/mesh-router/internal/observability"
)

// Duration is a time.Duration read from strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the full router configuration.
type Config struct {
	Log         LogConfig         `toml:"log"`
	API         APIConfig         `toml:"api"`
	Metrics     MetricsConfig     `toml:"metrics"`
	Tracing     TracingConfig     `toml:"tracing"`
	Router      RouterConfig      `toml:"router"`
	Cache       CacheConfig       `toml:"cache"`
	Lossiness   LossinessConfig   `toml:"lossiness"`
	Calibration CalibrationConfig `toml:"calibration"`
	Tick        TickConfig        `toml:"tick"`
	Topology    TopologyConfig    `toml:"topology"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Backend    string `toml:"backend"`
	AddSource  bool   `toml:"add_source"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type APIConfig struct {
	Address string `toml:"address"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	Exporter    string  `toml:"exporter"`
	ServiceName string  `toml:"service_name"`
	Endpoint    string  `toml:"endpoint"`
	SampleRatio float64 `toml:"sample_ratio"`
}

type RouterConfig struct {
	Thresholds        adjudicator.RouteThresholds `toml:"thresholds"`
	Alternatives      int                         `toml:"alternatives"`
	BatchParallelism  int                         `toml:"batch_parallelism"`
	CoefficientPreset string                      `toml:"coefficient_preset"`
	HistoryDepth      int                         `toml:"history_depth"`
}

type CacheConfig struct {
	MaxAge   Duration `toml:"max_age"`
	Capacity int      `toml:"capacity"`
}

type LossinessConfig struct {
	MaxPerBucket int                  `toml:"max_per_bucket"`
	Thresholds   lossiness.Thresholds `toml:"thresholds"`
}

type CalibrationConfig struct {
	// Dir is watched for candidate coefficient files; empty disables the
	// watcher.
	Dir      string   `toml:"dir"`
	Debounce Duration `toml:"debounce"`
}

// WatchPair is a source/destination pair re-adjudicated every tick.
type WatchPair struct {
	Source      string `toml:"source"`
	Destination string `toml:"destination"`
}

type TickConfig struct {
	Interval    Duration    `toml:"interval"`
	Accelerated bool        `toml:"accelerated"`
	Watch       []WatchPair `toml:"watch"`
}

type TopologyConfig struct {
	// Path is a JSON topology file.
	Path string `toml:"path"`
	// TLEPath is an optional three-line element file for satellites.
	TLEPath string `toml:"tle_path"`
	// MinElevationDeg is the elevation mask for ground links once satellite
	// positions are propagated.
	MinElevationDeg float64 `toml:"min_elevation_deg"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:   "info",
			Format:  "text",
			Backend: logging.BackendSlog,
		},
		API: APIConfig{
			Address: ":8080",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "mesh-router",
			SampleRatio: 1.0,
		},
		Router: RouterConfig{
			Thresholds:        adjudicator.DefaultThresholds(),
			Alternatives:      2,
			BatchParallelism:  8,
			CoefficientPreset: objective.PresetDefault,
			HistoryDepth:      16,
		},
		Cache: CacheConfig{
			MaxAge:   Duration{adjudicator.DefaultCacheMaxAge},
			Capacity: adjudicator.DefaultCacheCapacity,
		},
		Lossiness: LossinessConfig{
			MaxPerBucket: lossiness.DefaultMaxPerBucket,
			Thresholds:   lossiness.DefaultThresholds(),
		},
		Calibration: CalibrationConfig{
			Debounce: Duration{250 * time.Millisecond},
		},
		Tick: TickConfig{
			Interval: Duration{time.Second},
		},
		Topology: TopologyConfig{
			MinElevationDeg: 10,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. LOG_* variables match the
// logging package; everything else is prefixed ROUTER_. Malformed values are
// reported together.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	float := func(key string, dst *float64) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	duration := func(key string, dst *Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_BACKEND", &c.Log.Backend)
	str("LOG_FILE", &c.Log.File)

	str("ROUTER_API_ADDR", &c.API.Address)

	boolean("ROUTER_METRICS_ENABLED", &c.Metrics.Enabled)
	str("ROUTER_METRICS_ADDR", &c.Metrics.Address)

	boolean("ROUTER_TRACING_ENABLED", &c.Tracing.Enabled)
	str("ROUTER_TRACING_EXPORTER", &c.Tracing.Exporter)
	str("ROUTER_TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
	float("ROUTER_TRACING_SAMPLE_RATIO", &c.Tracing.SampleRatio)
	str("ROUTER_OTLP_ENDPOINT", &c.Tracing.Endpoint)

	float("ROUTER_BUY_THRESHOLD", &c.Router.Thresholds.BuyThreshold)
	float("ROUTER_SPREAD_THRESHOLD", &c.Router.Thresholds.SpreadThreshold)
	integer("ROUTER_MAX_HOPS", &c.Router.Thresholds.MaxHops)
	integer("ROUTER_ALTERNATIVES", &c.Router.Alternatives)
	str("ROUTER_COEFFICIENT_PRESET", &c.Router.CoefficientPreset)

	duration("ROUTER_CACHE_MAX_AGE", &c.Cache.MaxAge)
	integer("ROUTER_CACHE_CAPACITY", &c.Cache.Capacity)

	str("ROUTER_CALIBRATION_DIR", &c.Calibration.Dir)
	duration("ROUTER_TICK_INTERVAL", &c.Tick.Interval)
	str("ROUTER_TOPOLOGY", &c.Topology.Path)
	str("ROUTER_TLE", &c.Topology.TLEPath)

	return errors.Join(errs...)
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if err := c.Router.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("router.thresholds: %w", err))
	}
	if c.Router.Alternatives < 0 {
		errs = append(errs, fmt.Errorf("router.alternatives must be >= 0, got %d", c.Router.Alternatives))
	}
	if c.Router.HistoryDepth < 1 {
		errs = append(errs, fmt.Errorf("router.history_depth must be >= 1, got %d", c.Router.HistoryDepth))
	}
	if _, err := objective.Preset(c.Router.CoefficientPreset); err != nil {
		errs = append(errs, fmt.Errorf("router.coefficient_preset: %w", err))
	}
	if c.Cache.MaxAge.Duration <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_age must be > 0"))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cache.capacity must be > 0"))
	}
	if c.Lossiness.MaxPerBucket <= 0 {
		errs = append(errs, fmt.Errorf("lossiness.max_per_bucket must be > 0"))
	}
	if err := c.Lossiness.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("lossiness.thresholds: %w", err))
	}
	if c.Tick.Interval.Duration <= 0 {
		errs = append(errs, fmt.Errorf("tick.interval must be > 0"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio))
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case observability.ExporterStdout, observability.ExporterOTLP:
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter))
	}
	if c.Topology.MinElevationDeg < 0 || c.Topology.MinElevationDeg >= 90 {
		errs = append(errs, fmt.Errorf("topology.min_elevation_deg must be within [0, 90), got %v", c.Topology.MinElevationDeg))
	}
	for i, w := range c.Tick.Watch {
		if w.Source == "" || w.Destination == "" {
			errs = append(errs, fmt.Errorf("tick.watch[%d]: source and destination are required", i))
		}
	}
	return errors.Join(errs...)
}

// Logging converts the log section for logging.New.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{
		Level:      c.Level,
		Format:     c.Format,
		Backend:    c.Backend,
		AddSource:  c.AddSource,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// Observability converts the tracing section for observability.StartTracing.
func (c TracingConfig) Observability() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Enabled,
		ServiceName: c.ServiceName,
		Exporter:    strings.ToLower(c.Exporter),
		Endpoint:    c.Endpoint,
		SampleRatio: c.SampleRatio,
	}
}
