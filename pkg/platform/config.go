// Package platform loads the bot's configuration and wires its components:
// stores, the LINE adapter, the conversation router, the webhook ingress and
// the session query endpoint.
package platform

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// CurrentConfigVersion is the only accepted apiVersion.
const CurrentConfigVersion = "v1"

// Session and audit backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSlog     = "slog"
)

// Config holds the complete bot configuration.
type Config struct {
	APIVersion string         `yaml:"apiVersion" validate:"omitempty,eq=v1"`
	Server     ServerConfig   `yaml:"server"`
	LINE       LINEConfig     `yaml:"line"`
	LIFF       LIFFConfig     `yaml:"liff"`
	Token      TokenConfig    `yaml:"token"`
	Database   DatabaseConfig `yaml:"database"`
	Redis      RedisConfig    `yaml:"redis"`
	Session    SessionConfig  `yaml:"session"`
	Audit      AuditConfig    `yaml:"audit"`
	Logging    LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Name              string        `yaml:"name"`
	Address           string        `yaml:"address" validate:"required"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// LINEConfig configures the Messaging API channel.
type LINEConfig struct {
	ChannelSecret      string        `yaml:"channel_secret" validate:"required"`
	ChannelAccessToken string        `yaml:"channel_access_token" validate:"required"`
	APIBase            string        `yaml:"api_base" validate:"omitempty,url"`
	RateLimit          float64       `yaml:"rate_limit" validate:"gte=0"` // replies per second, 0 = unlimited
	Timeout            time.Duration `yaml:"timeout" validate:"gte=0"`
}

// LIFFConfig configures the web view hand-off.
type LIFFConfig struct {
	URL             string        `yaml:"url" validate:"required,url"`
	GraphQLEndpoint string        `yaml:"graphql_endpoint" validate:"omitempty,url"`
	QueryTimeout    time.Duration `yaml:"query_timeout" validate:"gte=0"`
	Debug           bool          `yaml:"debug"`
}

// TokenConfig configures hand-off token signing.
type TokenConfig struct {
	Secret string `yaml:"secret" validate:"required,min=16"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RedisConfig configures the Redis context cache.
type RedisConfig struct {
	Addr      string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SessionConfig configures where live user contexts are kept.
type SessionConfig struct {
	Backend         string        `yaml:"backend" validate:"oneof=memory redis postgres"`
	TTL             time.Duration `yaml:"ttl" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gt=0"`
}

// AuditConfig configures the webhook event trail.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Backend         string        `yaml:"backend" validate:"oneof=slog postgres"`
	RetentionDays   int           `yaml:"retention_days" validate:"gte=1"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gt=0"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// LoadConfig loads configuration from a file, expands ${VAR} references,
// applies defaults and validates the result.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration bytes.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "factcheck-bot"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":5001"
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.LIFF.QueryTimeout == 0 {
		cfg.LIFF.QueryTimeout = 10 * time.Second
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = BackendMemory
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = 5 * time.Minute
	}
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = BackendSlog
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 90
	}
	if cfg.Audit.CleanupInterval == 0 {
		cfg.Audit.CleanupInterval = 24 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

var validate = newValidator()

// newValidator reports fields by their YAML names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and the dependencies between sections.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s failed %q", yamlPath(fe.Namespace()), fe.Tag()))
		}
	}

	if c.Session.Backend == BackendRedis && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when session.backend is redis")
	}
	if c.Session.Backend == BackendPostgres && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required when session.backend is postgres")
	}
	if c.Audit.Enabled && c.Audit.Backend == BackendPostgres && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required when audit.backend is postgres")
	}
	if c.Database.AutoMigrate && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required when database.auto_migrate is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// yamlPath drops the root type from a validator namespace, leaving the
// YAML key path, e.g. "Config.line.channel_secret" becomes "line.channel_secret".
func yamlPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
