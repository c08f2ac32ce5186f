package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Territory TerritoryConfig `mapstructure:"territory"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory". The memory store is for local
	// development and loses everything on restart.
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
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
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Enabled      bool   `mapstructure:"enabled"`
}

// TemporalConfig enables durable reward delivery. When disabled, rewards
// are credited inline.
type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Topic is the subscription filter for collar fixes.
	Topic string `mapstructure:"topic"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TerritoryConfig tunes the geometry engine and the walk orchestrator.
type TerritoryConfig struct {
	MinAreaKm2         float64 `mapstructure:"min_area_km2"`
	MaxAreaKm2         float64 `mapstructure:"max_area_km2"`
	VertexToleranceDeg float64 `mapstructure:"vertex_tolerance_deg"`
	PreviewEvery       int     `mapstructure:"preview_every"`
	PointFlushBatch    int     `mapstructure:"point_flush_batch"`
	DegeneratePolicy   string  `mapstructure:"degenerate_policy"`
	PawsPerKm2         float64 `mapstructure:"paws_per_km2"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "dote")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "dote")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_endpoint", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "dote-rewards")
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "dote-"+service)
	v.SetDefault("mqtt.topic", "dote/collars/+/fix")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("territory.min_area_km2", 1e-4)
	v.SetDefault("territory.max_area_km2", 50.0)
	v.SetDefault("territory.vertex_tolerance_deg", 1e-7)
	v.SetDefault("territory.preview_every", 1)
	v.SetDefault("territory.point_flush_batch", 20)
	v.SetDefault("territory.degenerate_policy", "complete")
	v.SetDefault("territory.paws_per_km2", 1_000_000.0)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: DOTE_DATABASE_HOST → database.host
	v.SetEnvPrefix("DOTE")
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
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be postgres or memory, got %q", c.Database.Driver))
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
	if c.Temporal.Enabled && c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required when temporal is enabled")
	}

	t := c.Territory
	if t.MinAreaKm2 < 0 {
		errs = append(errs, "territory.min_area_km2 must not be negative")
	}
	if t.MaxAreaKm2 <= t.MinAreaKm2 {
		errs = append(errs, fmt.Sprintf("territory.max_area_km2 (%g) must exceed min_area_km2 (%g)", t.MaxAreaKm2, t.MinAreaKm2))
	}
	if t.VertexToleranceDeg < 0 {
		errs = append(errs, "territory.vertex_tolerance_deg must not be negative")
	}
	if t.PreviewEvery <= 0 {
		errs = append(errs, "territory.preview_every must be positive")
	}
	if t.PointFlushBatch <= 0 {
		errs = append(errs, "territory.point_flush_batch must be positive")
	}
	if t.DegeneratePolicy != "complete" && t.DegeneratePolicy != "reject" {
		errs = append(errs, fmt.Sprintf("territory.degenerate_policy must be complete or reject, got %q", t.DegeneratePolicy))
	}
	if t.PawsPerKm2 <= 0 {
		errs = append(errs, "territory.paws_per_km2 must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
