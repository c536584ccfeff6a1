// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store and archive providers.
const (
	ProviderPostgres = "postgres"
	ProviderMemory   = "memory"
	ProviderLocal    = "local"
	ProviderGCS      = "gcs"
	ProviderNone     = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`
	Auth     AuthConfig              `mapstructure:"auth"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	HTTP     HTTPConfig              `mapstructure:"http"`
	Pipeline PipelineConfig          `mapstructure:"pipeline"`
	Sources  map[string]SourceConfig `mapstructure:"sources"`
	Geocoder GeocoderConfig          `mapstructure:"geocoder"`
	Store    StoreConfig             `mapstructure:"store"`
	DB       DBConfig                `mapstructure:"db"`
	Archive  ArchiveConfig           `mapstructure:"archive"`
	PubSub   PubSubConfig            `mapstructure:"pubsub"`
}

// ServerConfig controls the operational HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig guards the run trigger endpoint.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures outbound requests to sources and robots.txt.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PipelineConfig tunes a run.
type PipelineConfig struct {
	HorizonDays     int `mapstructure:"horizon_days"`
	ParallelSources int `mapstructure:"parallel_sources"`
	ToleranceHours  int `mapstructure:"tolerance_hours"`
}

// SourceConfig overrides one registered source.
type SourceConfig struct {
	Enabled *bool  `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
}

// GeocoderConfig configures the Nominatim-compatible provider.
type GeocoderConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	Email          string `mapstructure:"email"`
	Language       string `mapstructure:"language"`
	IntervalMs     int    `mapstructure:"interval_ms"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StoreConfig selects the event store and geocode cache backend.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// ArchiveConfig selects where per-run draft archives go.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	Prefix   string `mapstructure:"prefix"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
}

// PubSubConfig holds the run summary topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment. Environment variables use the
// PROTEST_ prefix with dots replaced by underscores (PROTEST_DB_DSN).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.user_agent", "protest-scraper/1.0 (+https://github.com/artem-schander/protest-scraper)")
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("pipeline.horizon_days", 30)
	v.SetDefault("pipeline.parallel_sources", 1)
	v.SetDefault("pipeline.tolerance_hours", 72)
	v.SetDefault("geocoder.enabled", true)
	v.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.language", "de")
	v.SetDefault("geocoder.interval_ms", 1000)
	v.SetDefault("geocoder.timeout_seconds", 10)
	v.SetDefault("geocoder.email", "")
	v.SetDefault("store.provider", ProviderPostgres)
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("auth.api_key", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.prefix", "runs")
	v.SetDefault("archive.base_dir", "data/archive")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if strings.TrimSpace(c.HTTP.UserAgent) == "" {
		return fmt.Errorf("http.user_agent is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Pipeline.ParallelSources <= 0 {
		return fmt.Errorf("pipeline.parallel_sources must be > 0")
	}
	if c.Pipeline.ToleranceHours <= 0 {
		return fmt.Errorf("pipeline.tolerance_hours must be > 0")
	}
	if c.Geocoder.Enabled {
		if c.Geocoder.BaseURL == "" {
			return fmt.Errorf("geocoder.base_url is required when the geocoder is enabled")
		}
		if c.Geocoder.IntervalMs < 0 || c.Geocoder.TimeoutSeconds <= 0 {
			return fmt.Errorf("geocoder.interval_ms must be >= 0 and geocoder.timeout_seconds > 0")
		}
	}
	switch c.Store.Provider {
	case ProviderPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres store")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("store.provider %q is not supported", c.Store.Provider)
	}
	switch c.Archive.Provider {
	case ProviderNone, "", ProviderMemory:
	case ProviderLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local archive")
		}
	case ProviderGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.provider %q is not supported", c.Archive.Provider)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// HTTPTimeout is the per-request budget for outbound calls.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Tolerance is the fuzzy start window used for matching.
func (c Config) Tolerance() time.Duration {
	return time.Duration(c.Pipeline.ToleranceHours) * time.Hour
}
