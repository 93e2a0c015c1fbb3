package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Mapbox    MapboxConfig    `mapstructure:"mapbox"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Search    SearchConfig    `mapstructure:"search"`
	Route     RouteConfig     `mapstructure:"route"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"` // postgres | sqlite
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MapboxConfig struct {
	Token         string  `mapstructure:"token"`
	BaseURL       string  `mapstructure:"base_url"`
	Country       string  `mapstructure:"country"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Timeout       int     `mapstructure:"timeout"` // seconds
}

type GeocodeConfig struct {
	// CacheTTL bounds how long in-process entries live. Zero keeps them for the
	// lifetime of the process.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// SharedTTL is the lifetime of entries in the valkey tier, in seconds.
	SharedTTL      int  `mapstructure:"shared_ttl"`
	SuggestLimit   int  `mapstructure:"suggest_limit"`
	NegativeShared bool `mapstructure:"negative_shared"`
}

type SearchConfig struct {
	Limit              int     `mapstructure:"limit"`
	GeocodeConcurrency int     `mapstructure:"geocode_concurrency"`
	DebounceMS         int     `mapstructure:"debounce_ms"`
	DefaultRadiusKm    float64 `mapstructure:"default_radius_km"`
}

func (s SearchConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

type RouteConfig struct {
	FitDelayMS    int     `mapstructure:"fit_delay_ms"`
	PaddingTop    int     `mapstructure:"padding_top"`
	PaddingBottom int     `mapstructure:"padding_bottom"`
	PaddingLeft   int     `mapstructure:"padding_left"`
	PaddingRight  int     `mapstructure:"padding_right"`
	MaxZoom       float64 `mapstructure:"max_zoom"`
}

func (r RouteConfig) FitDelay() time.Duration {
	return time.Duration(r.FitDelayMS) * time.Millisecond
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: DISCOVERY_MAPBOX_TOKEN → mapbox.token
	v.SetEnvPrefix("DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "discovery")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "discovery")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "discovery.db")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("mapbox.token", "")
	v.SetDefault("mapbox.base_url", "https://api.mapbox.com")
	v.SetDefault("mapbox.country", "AU")
	v.SetDefault("mapbox.rate_per_second", 10.0)
	v.SetDefault("mapbox.timeout", 8)
	v.SetDefault("geocode.cache_ttl", "0s")
	v.SetDefault("geocode.shared_ttl", 86400)
	v.SetDefault("geocode.suggest_limit", 6)
	v.SetDefault("geocode.negative_shared", false)
	v.SetDefault("search.limit", 200)
	v.SetDefault("search.geocode_concurrency", 8)
	v.SetDefault("search.debounce_ms", 300)
	v.SetDefault("search.default_radius_km", 5.0)
	v.SetDefault("route.fit_delay_ms", 300)
	v.SetDefault("route.padding_top", 120)
	v.SetDefault("route.padding_bottom", 120)
	v.SetDefault("route.padding_left", 150)
	v.SetDefault("route.padding_right", 150)
	v.SetDefault("route.max_zoom", 13.0)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "GEOCODE_BACKFILL_QUEUE")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, "database.sqlite_path is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Geocode.CacheTTL < 0 {
		errs = append(errs, "geocode.cache_ttl must not be negative")
	}
	if c.Search.Limit <= 0 {
		errs = append(errs, "search.limit must be positive")
	}
	if c.Search.GeocodeConcurrency <= 0 {
		errs = append(errs, "search.geocode_concurrency must be positive")
	}
	if c.Search.DefaultRadiusKm <= 0 {
		errs = append(errs, "search.default_radius_km must be positive")
	}
	if c.Mapbox.RatePerSecond <= 0 {
		errs = append(errs, "mapbox.rate_per_second must be positive")
	}
	if c.Route.MaxZoom <= 0 {
		errs = append(errs, "route.max_zoom must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
