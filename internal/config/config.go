package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/Skryldev/stem-lab/domain/model"
)

// Config is the complete configuration
type Config struct {
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Concat     ConcatConfig     `yaml:"concat"`
	Tools      ToolsConfig      `yaml:"tools"`
	Separation SeparationConfig `yaml:"separation"`
	Download   DownloadConfig   `yaml:"download"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// WorkspaceConfig locates session directories
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// PipelineConfig holds per-run defaults
type PipelineConfig struct {
	Model            string   `yaml:"model"`
	Roles            []string `yaml:"roles"`
	EchoReduction    float64  `yaml:"echo_reduction"`
	Presence         float64  `yaml:"presence"`
	StageTimeout     int      `yaml:"stage_timeout"` // seconds
	CombinedBitDepth int      `yaml:"combined_bit_depth"`
	Workers          int      `yaml:"workers"`
}

// ConcatConfig tunes silence removal
type ConcatConfig struct {
	ThresholdDBFS float64 `yaml:"threshold_dbfs"`
	MinSilenceMS  int     `yaml:"min_silence_ms"`
	KeepSilenceMS int     `yaml:"keep_silence_ms"`
}

// ToolsConfig points at external binaries. Empty paths are looked up in PATH.
type ToolsConfig struct {
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
	Demucs  string `yaml:"demucs"`
	YTDLP   string `yaml:"yt_dlp"`
	Device  string `yaml:"device"`
}

// SeparationConfig selects the separator backend
type SeparationConfig struct {
	Mode     string `yaml:"mode"` // local or remote
	Endpoint string `yaml:"endpoint"`
}

// DownloadConfig tunes HTTP downloads
type DownloadConfig struct {
	Timeout     int      `yaml:"timeout"` // seconds
	MaxAttempts int      `yaml:"max_attempts"`
	MediaHosts  []string `yaml:"media_hosts"`
}

// MetricsConfig exposes prometheus metrics when Address is set
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// LoggingConfig configures zap
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a configuration that works with a local demucs install
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{Root: "./sessions"},
		Pipeline: PipelineConfig{
			Model:            string(model.DefaultModel),
			Roles:            []string{string(model.RoleVocals)},
			EchoReduction:    0.85,
			Presence:         0.2,
			StageTimeout:     600,
			CombinedBitDepth: model.DefaultBitDepth,
			Workers:          2,
		},
		Concat: ConcatConfig{
			ThresholdDBFS: -40,
			MinSilenceMS:  1000,
			KeepSilenceMS: 100,
		},
		Separation: SeparationConfig{Mode: "local"},
		Download: DownloadConfig{
			Timeout:     1800,
			MaxAttempts: 3,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return cfg, nil
}

// ApplyEnv overrides fields from STEMLAB_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = n
		return nil
	}
	flt := func(key string, dst *float64) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = f
		return nil
	}

	str("STEMLAB_ROOT", &c.Workspace.Root)
	str("STEMLAB_MODEL", &c.Pipeline.Model)
	str("STEMLAB_FFMPEG", &c.Tools.FFmpeg)
	str("STEMLAB_FFPROBE", &c.Tools.FFprobe)
	str("STEMLAB_DEMUCS", &c.Tools.Demucs)
	str("STEMLAB_YT_DLP", &c.Tools.YTDLP)
	str("STEMLAB_DEVICE", &c.Tools.Device)
	str("STEMLAB_SEPARATION_MODE", &c.Separation.Mode)
	str("STEMLAB_SEPARATION_ENDPOINT", &c.Separation.Endpoint)
	str("STEMLAB_METRICS_ADDR", &c.Metrics.Address)
	str("STEMLAB_LOG_LEVEL", &c.Logging.Level)
	if v, ok := lookup("STEMLAB_ROLES"); ok && v != "" {
		c.Pipeline.Roles = splitList(v)
	}

	return multierr.Combine(
		num("STEMLAB_WORKERS", &c.Pipeline.Workers),
		num("STEMLAB_STAGE_TIMEOUT", &c.Pipeline.StageTimeout),
		flt("STEMLAB_ECHO_REDUCTION", &c.Pipeline.EchoReduction),
		flt("STEMLAB_PRESENCE", &c.Pipeline.Presence),
	)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.Workspace.Root == "" {
		return errors.New("workspace: root cannot be empty")
	}
	if err := c.Pipeline.Validate(); err != nil {
		return errors.Wrap(err, "pipeline config")
	}
	if err := c.Concat.Validate(); err != nil {
		return errors.Wrap(err, "concat config")
	}
	if err := c.Separation.Validate(); err != nil {
		return errors.Wrap(err, "separation config")
	}
	if err := c.Download.Validate(); err != nil {
		return errors.Wrap(err, "download config")
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.Wrap(err, "logging config")
	}
	return nil
}

// Validate validates pipeline defaults
func (p *PipelineConfig) Validate() error {
	if _, err := model.LookupModel(p.Model); err != nil {
		return err
	}
	if len(p.Roles) == 0 {
		return errors.New("roles cannot be empty")
	}
	if p.EchoReduction < model.MinEchoReduction || p.EchoReduction > model.MaxEchoReduction {
		return errors.Newf("echo_reduction must be between %g and %g, got %g",
			model.MinEchoReduction, model.MaxEchoReduction, p.EchoReduction)
	}
	if p.Presence < model.MinPresence || p.Presence > model.MaxPresence {
		return errors.Newf("presence must be between %g and %g, got %g",
			model.MinPresence, model.MaxPresence, p.Presence)
	}
	if p.StageTimeout < 1 {
		return errors.Newf("stage_timeout must be at least 1 second, got %d", p.StageTimeout)
	}
	switch p.CombinedBitDepth {
	case 8, 16, 24, 32:
	default:
		return errors.Newf("combined_bit_depth must be 8, 16, 24 or 32, got %d", p.CombinedBitDepth)
	}
	if p.Workers < 1 {
		return errors.Newf("workers must be at least 1, got %d", p.Workers)
	}
	return nil
}

// Validate validates silence removal settings
func (c *ConcatConfig) Validate() error {
	if c.ThresholdDBFS >= 0 {
		return errors.Newf("threshold_dbfs must be negative, got %g", c.ThresholdDBFS)
	}
	if c.MinSilenceMS < 1 {
		return errors.Newf("min_silence_ms must be positive, got %d", c.MinSilenceMS)
	}
	if c.KeepSilenceMS < 0 {
		return errors.Newf("keep_silence_ms cannot be negative, got %d", c.KeepSilenceMS)
	}
	return nil
}

// Validate validates the separator backend
func (s *SeparationConfig) Validate() error {
	switch s.Mode {
	case "local":
	case "remote":
		if s.Endpoint == "" {
			return errors.New("endpoint is required in remote mode")
		}
	default:
		return errors.Newf("mode must be 'local' or 'remote', got '%s'", s.Mode)
	}
	return nil
}

// Validate validates download settings
func (d *DownloadConfig) Validate() error {
	if d.Timeout < 1 {
		return errors.Newf("timeout must be at least 1 second, got %d", d.Timeout)
	}
	if d.MaxAttempts < 1 {
		return errors.Newf("max_attempts must be at least 1, got %d", d.MaxAttempts)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return errors.Newf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
}

// StageTimeoutDuration returns the stage timeout as a time.Duration
func (p *PipelineConfig) StageTimeoutDuration() time.Duration {
	return time.Duration(p.StageTimeout) * time.Second
}

// StemRoles converts the configured role names
func (p *PipelineConfig) StemRoles() []model.StemRole {
	roles := make([]model.StemRole, len(p.Roles))
	for i, r := range p.Roles {
		roles[i] = model.StemRole(r)
	}
	return roles
}

// MinSilence returns the minimum silence length as a time.Duration
func (c *ConcatConfig) MinSilence() time.Duration {
	return time.Duration(c.MinSilenceMS) * time.Millisecond
}

// KeepSilence returns the retained silence padding as a time.Duration
func (c *ConcatConfig) KeepSilence() time.Duration {
	return time.Duration(c.KeepSilenceMS) * time.Millisecond
}

// TimeoutDuration returns the download timeout as a time.Duration
func (d *DownloadConfig) TimeoutDuration() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}
