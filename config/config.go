package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/volume"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// VolumeConfig holds the settings used to create and open volumes.
type VolumeConfig struct {
	DedupBlockSize   uint64 `yaml:"dedup_block_size"`
	IndexGrowEntries int64  `yaml:"index_grow_entries"`
	DataGrowBytes    int64  `yaml:"data_grow_bytes"`
	SyncOnCommit     bool   `yaml:"sync_on_commit"`
	Preallocate      bool   `yaml:"preallocate"`
	Lock             bool   `yaml:"lock"`
	LockStaleTTL     string `yaml:"lock_stale_ttl"`
	FileMode         string `yaml:"file_mode"`   // octal, e.g. "0600"
	DebugFiles       bool   `yaml:"debug_files"` // log the lifetime of every file handle
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "stderr", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
	Format string `yaml:"format"` // "json" or "text"
}

// MetricsConfig controls the prometheus metrics of the volume.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Config is the top-level configuration struct.
type Config struct {
	Volume  VolumeConfig  `yaml:"volume"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Volume: VolumeConfig{
			DedupBlockSize:   core.DefaultDedupBlockSize,
			IndexGrowEntries: 1024,
			DataGrowBytes:    128 * 1024, // 128 KiB
			SyncOnCommit:     true,
			Preallocate:      true,
			Lock:             true,
			LockStaleTTL:     "30s",
			FileMode:         "0600",
			DebugFiles:       false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			File:   "dedupvol.log",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "dedup",
		},
	}
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config yaml")
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, errors.Wrapf(err, "failed to open config file %s", path)
	}
	defer file.Close()

	return Load(file)
}

// ParseFileMode parses an octal permission string such as "0640".
func ParseFileMode(s string) (os.FileMode, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid file mode %q", s)
	}
	if v > 0777 {
		return 0, errors.Newf("invalid file mode %q: only permission bits are allowed", s)
	}
	return os.FileMode(v), nil
}

// VolumeOptions converts the volume section into volume.Options. Logger and
// metrics are left for the caller to fill in.
func (c VolumeConfig) VolumeOptions() (volume.Options, error) {
	mode, err := ParseFileMode(c.FileMode)
	if err != nil {
		return volume.Options{}, err
	}
	if c.DedupBlockSize == 0 {
		return volume.Options{}, errors.New("dedup_block_size must be positive")
	}
	return volume.Options{
		DedupBlockSize:   c.DedupBlockSize,
		IndexGrowEntries: c.IndexGrowEntries,
		DataGrowBytes:    c.DataGrowBytes,
		SyncOnCommit:     c.SyncOnCommit,
		Preallocate:      c.Preallocate,
		Lock:             c.Lock,
		FileMode:         mode,
	}, nil
}

// NewLogger builds the logger described by cfg. The returned closer is
// non-nil when the logger writes to a file.
func NewLogger(cfg LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, errors.Newf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	case "file":
		if cfg.File == "" {
			return nil, nil, errors.New("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to open log file %s", cfg.File)
		}
		output = file
		closer = file // The file handle is the closer.
	case "none":
		output = io.Discard
	default:
		return nil, nil, errors.Newf("invalid log output: %s", cfg.Output)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(output, opts)), closer, nil
	case "text", "":
		return slog.New(slog.NewTextHandler(output, opts)), closer, nil
	default:
		if closer != nil {
			closer.Close()
		}
		return nil, nil, errors.Newf("invalid log format: %s", cfg.Format)
	}
}
