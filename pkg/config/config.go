// Package config loads lagen settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coolbeans/lagen/pkg/consolidate"
	"github.com/coolbeans/lagen/pkg/register"
)

// Entry store backends.
const (
	EntriesFile   = "file"
	EntriesSQLite = "sqlite"
)

// Environment variables that override file settings.
const (
	EnvDataDir     = "LAGEN_DATA_DIR"
	EnvRegisterURL = "LAGEN_REGISTER_URL"
	EnvLogLevel    = "LAGEN_LOG_LEVEL"
	EnvKeepExpired = "LAGEN_KEEP_EXPIRED"
)

// Settings is the full lagen configuration.
type Settings struct {
	DataDir   string `yaml:"data_dir"`
	BaseURI   string `yaml:"base_uri"`
	StateFile string `yaml:"state_file"`

	Register RegisterSettings `yaml:"register"`
	Storage  StorageSettings  `yaml:"storage"`
	Build    BuildSettings    `yaml:"build"`
	Log      LogSettings      `yaml:"log"`
	Metrics  MetricsSettings  `yaml:"metrics"`
}

// RegisterSettings configures the register client.
type RegisterSettings struct {
	BaseURL   string        `yaml:"base_url"`
	RateLimit time.Duration `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// StorageSettings selects where document entries are kept.
type StorageSettings struct {
	// Entries is EntriesFile or EntriesSQLite.
	Entries string `yaml:"entries"`
}

// BuildSettings configures the consolidated document builder.
type BuildSettings struct {
	KeepExpired bool `yaml:"keep_expired"`
	Concurrency int  `yaml:"concurrency"`
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsSettings configures metric export.
type MetricsSettings struct {
	// Textfile, when set, receives the collected metrics in the Prometheus
	// text format at the end of every command.
	Textfile string `yaml:"textfile"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		DataDir:   "data",
		BaseURI:   consolidate.DefaultBaseURI,
		StateFile: "scan-state.yaml",
		Register: RegisterSettings{
			BaseURL:   register.DefaultBaseURL,
			RateLimit: register.DefaultRequestInterval,
			Burst:     1,
			Timeout:   30 * time.Second,
			UserAgent: register.DefaultUserAgent,
			CacheTTL:  register.DefaultCacheTTL,
		},
		Storage: StorageSettings{Entries: EntriesFile},
		Build:   BuildSettings{Concurrency: consolidate.DefaultConcurrency},
		Log:     LogSettings{Level: "info", Format: "text"},
	}
}

// Load reads settings from path over the defaults and applies environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (Settings, error) {
	settings := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return settings, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &settings); err != nil {
				return settings, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := settings.ApplyEnv(os.LookupEnv); err != nil {
		return settings, err
	}
	return settings, settings.Validate()
}

// ApplyEnv overrides settings from the environment as seen through lookup.
func (settings *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	if value, ok := lookup(EnvDataDir); ok && value != "" {
		settings.DataDir = value
	}
	if value, ok := lookup(EnvRegisterURL); ok && value != "" {
		settings.Register.BaseURL = value
	}
	if value, ok := lookup(EnvLogLevel); ok && value != "" {
		settings.Log.Level = value
	}
	if value, ok := lookup(EnvKeepExpired); ok && value != "" {
		keep, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvKeepExpired, value, err)
		}
		settings.Build.KeepExpired = keep
	}
	return nil
}

// Validate checks values that have a fixed set of choices.
func (settings Settings) Validate() error {
	switch settings.Storage.Entries {
	case EntriesFile, EntriesSQLite:
	default:
		return fmt.Errorf("storage.entries must be %q or %q, got %q", EntriesFile, EntriesSQLite, settings.Storage.Entries)
	}
	switch settings.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", settings.Log.Format)
	}
	if _, err := ParseLevel(settings.Log.Level); err != nil {
		return err
	}
	if settings.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	return nil
}

// StatePath returns the scan state file, resolved against the data directory
// when relative.
func (settings Settings) StatePath() string {
	if filepath.IsAbs(settings.StateFile) {
		return settings.StateFile
	}
	return filepath.Join(settings.DataDir, settings.StateFile)
}

// EntriesDatabasePath is the SQLite file used when entries are kept in SQLite.
func (settings Settings) EntriesDatabasePath() string {
	return filepath.Join(settings.DataDir, "entries.db")
}

// RegisterConfig converts the register settings into a client configuration.
func (settings Settings) RegisterConfig() register.Config {
	config := register.DefaultConfig()
	if settings.Register.BaseURL != "" {
		config.Endpoints = register.EndpointsFor(settings.Register.BaseURL)
	}
	config.RateLimit = settings.Register.RateLimit
	if settings.Register.Burst > 0 {
		config.Burst = settings.Register.Burst
	}
	config.Timeout = settings.Register.Timeout
	if settings.Register.UserAgent != "" {
		config.UserAgent = settings.Register.UserAgent
	}
	config.CacheTTL = settings.Register.CacheTTL
	return config
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds the process logger described by the log settings.
func (settings Settings) NewLogger(output io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(settings.Log.Level)
	if err != nil {
		return nil, err
	}
	handlerOptions := &slog.HandlerOptions{Level: level}
	if settings.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(output, handlerOptions)), nil
	}
	return slog.New(slog.NewTextHandler(output, handlerOptions)), nil
}
