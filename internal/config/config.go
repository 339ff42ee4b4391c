package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/lazypower/rapport/internal/engine"
)

// Config holds all rapport configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Graph      GraphConfig      `toml:"graph"`
	Decay      DecayConfig      `toml:"decay"`
	ToneShift  ToneShiftConfig  `toml:"tone_shift"`
	Centrality CentralityConfig `toml:"centrality"`
	Clusters   ClusterConfig    `toml:"clusters"`
	Neglect    NeglectConfig    `toml:"neglect"`
	Adjust     AdjustConfig     `toml:"adjust"`
	Log        LogConfig        `toml:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
	// IngestRate is the sustained interactions per second accepted per user
	// over HTTP; IngestBurst is the bucket size.
	IngestRate  float64 `toml:"ingest_rate"`
	IngestBurst int     `toml:"ingest_burst"`
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type GraphConfig struct {
	SampleCapacity int `toml:"sample_capacity"`
}

type DecayConfig struct {
	HalfLife       Duration `toml:"half_life"`
	CacheStaleness Duration `toml:"cache_staleness"`
}

type ToneShiftConfig struct {
	Recent        Duration `toml:"recent"`
	BaselineStart Duration `toml:"baseline_start"`
	BaselineEnd   Duration `toml:"baseline_end"`
	MinSamples    int      `toml:"min_samples"`
	Threshold     float64  `toml:"threshold"`
}

type CentralityConfig struct {
	Damping        float64 `toml:"damping"`
	MaxIterations  int     `toml:"max_iterations"`
	DegreeWeight   float64 `toml:"degree_weight"`
	ImportanceBase float64 `toml:"importance_base"`
}

type ClusterConfig struct {
	MinSize        int     `toml:"min_size"`
	ThresholdRatio float64 `toml:"threshold_ratio"`
	MinEdgeWeight  float64 `toml:"min_edge_weight"`
}

type NeglectConfig struct {
	ImportanceFloor float64  `toml:"importance_floor"`
	MinWindow       Duration `toml:"min_window"`
	MaxWindow       Duration `toml:"max_window"`
	WarnAhead       Duration `toml:"warn_ahead"`
}

type AdjustConfig struct {
	Enabled bool    `toml:"enabled"`
	MaxStep float64 `toml:"max_step"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, console
}

// Default returns a Config with sensible defaults.
func Default() Config {
	p := engine.DefaultParams()
	return Config{
		Server: ServerConfig{
			Bind:         "127.0.0.1",
			Port:         37780,
			IngestRate:   50,
			IngestBurst:  200,
			MaxBodyBytes: 4 << 20,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Graph: GraphConfig{
			SampleCapacity: 50,
		},
		Decay: DecayConfig{
			HalfLife:       Duration(p.HalfLife),
			CacheStaleness: Duration(p.CacheStaleness),
		},
		ToneShift: ToneShiftConfig{
			Recent:        Duration(p.Tone.Recent),
			BaselineStart: Duration(p.Tone.BaselineStart),
			BaselineEnd:   Duration(p.Tone.BaselineEnd),
			MinSamples:    p.Tone.MinSamples,
			Threshold:     p.Tone.Threshold,
		},
		Centrality: CentralityConfig{
			Damping:        p.Centrality.Damping,
			MaxIterations:  p.Centrality.MaxIterations,
			DegreeWeight:   p.Centrality.DegreeWeight,
			ImportanceBase: p.Centrality.ImportanceBase,
		},
		Clusters: ClusterConfig{
			MinSize:        p.Clusters.MinSize,
			ThresholdRatio: p.Clusters.ThresholdRatio,
			MinEdgeWeight:  p.Clusters.MinEdgeWeight,
		},
		Neglect: NeglectConfig{
			ImportanceFloor: p.Neglect.ImportanceFloor,
			MinWindow:       Duration(p.Neglect.MinWindow),
			MaxWindow:       Duration(p.Neglect.MaxWindow),
			WarnAhead:       Duration(p.Neglect.WarnAhead),
		},
		Adjust: AdjustConfig{
			Enabled: p.Adjust.Enabled,
			MaxStep: p.Adjust.MaxStep,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies
// environment overrides. An empty path falls back to RAPPORT_CONFIG; a
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("RAPPORT_CONFIG")
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("decode %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("stat %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("RAPPORT_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("RAPPORT_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("RAPPORT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RAPPORT_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("RAPPORT_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Validate rejects values no analytic can run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.IngestRate > 0, "server.ingest_rate must be positive")
	check(c.Server.IngestBurst > 0, "server.ingest_burst must be positive")
	check(c.Server.MaxBodyBytes > 0, "server.max_body_bytes must be positive")
	check(c.Graph.SampleCapacity > 0, "graph.sample_capacity must be positive")
	check(c.Decay.HalfLife > 0, "decay.half_life must be positive")
	check(c.Decay.CacheStaleness >= 0, "decay.cache_staleness must not be negative")
	check(c.ToneShift.MinSamples > 0, "tone_shift.min_samples must be positive")
	check(c.ToneShift.Threshold >= 0 && c.ToneShift.Threshold <= 2, "tone_shift.threshold must be in [0,2]")
	check(c.Centrality.Damping > 0 && c.Centrality.Damping < 1, "centrality.damping must be in (0,1)")
	check(c.Centrality.MaxIterations > 0, "centrality.max_iterations must be positive")
	check(c.Centrality.DegreeWeight >= 0 && c.Centrality.DegreeWeight <= 1, "centrality.degree_weight must be in [0,1]")
	check(c.Centrality.ImportanceBase >= 0 && c.Centrality.ImportanceBase <= 1, "centrality.importance_base must be in [0,1]")
	check(c.Clusters.MinSize > 0, "clusters.min_size must be positive")
	check(c.Clusters.ThresholdRatio >= 0, "clusters.threshold_ratio must not be negative")
	check(c.Clusters.MinEdgeWeight >= 0, "clusters.min_edge_weight must not be negative")
	check(c.Neglect.ImportanceFloor >= 0 && c.Neglect.ImportanceFloor <= 1, "neglect.importance_floor must be in [0,1]")
	check(c.Neglect.MinWindow > 0, "neglect.min_window must be positive")
	check(c.Neglect.MinWindow <= c.Neglect.MaxWindow, "neglect.min_window exceeds neglect.max_window")
	check(c.Adjust.MaxStep > 0 && c.Adjust.MaxStep <= 1, "adjust.max_step must be in (0,1]")
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q unknown", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q unknown", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// EngineParams converts the analytic sections to engine tuning.
func (c *Config) EngineParams() engine.Params {
	p := engine.DefaultParams()
	p.HalfLife = c.Decay.HalfLife.Duration()
	p.CacheStaleness = c.Decay.CacheStaleness.Duration()
	p.Tone = engine.ToneParams{
		Recent:        c.ToneShift.Recent.Duration(),
		BaselineStart: c.ToneShift.BaselineStart.Duration(),
		BaselineEnd:   c.ToneShift.BaselineEnd.Duration(),
		MinSamples:    c.ToneShift.MinSamples,
		Threshold:     c.ToneShift.Threshold,
	}
	p.Centrality.Damping = c.Centrality.Damping
	p.Centrality.MaxIterations = c.Centrality.MaxIterations
	p.Centrality.DegreeWeight = c.Centrality.DegreeWeight
	p.Centrality.ImportanceBase = c.Centrality.ImportanceBase
	p.Clusters = engine.ClusterParams{
		MinSize:        c.Clusters.MinSize,
		ThresholdRatio: c.Clusters.ThresholdRatio,
		MinEdgeWeight:  c.Clusters.MinEdgeWeight,
	}
	p.Neglect = engine.NeglectParams{
		ImportanceFloor: c.Neglect.ImportanceFloor,
		MinWindow:       c.Neglect.MinWindow.Duration(),
		MaxWindow:       c.Neglect.MaxWindow.Duration(),
		WarnAhead:       c.Neglect.WarnAhead.Duration(),
	}
	p.Adjust = engine.AdjustParams{
		Enabled: c.Adjust.Enabled,
		MaxStep: c.Adjust.MaxStep,
	}
	return p
}

// Duration is a time.Duration that decodes from text such as "336h" or
// "14d".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if days < 0 {
			return fmt.Errorf("duration cannot be negative: %s", s)
		}
		*d = Duration(days * float64(24*time.Hour))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
