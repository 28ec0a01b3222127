package platform

import (
	"database/sql"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/factcheck-bot/pkg/audit"
	"github.com/txn2/factcheck-bot/pkg/conversation"
	"github.com/txn2/factcheck-bot/pkg/session"
	"github.com/txn2/factcheck-bot/pkg/usersettings"
)

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// Logger (optional, defaults to slog.Default).
	Logger *slog.Logger

	// DB (optional, opened from database.dsn if not provided).
	DB *sql.DB

	// Redis (optional, created from the redis section if not provided).
	Redis *goredis.Client

	// SessionStore (optional, created from session.backend if not provided).
	SessionStore session.Store

	// SettingsStore (optional, Postgres when a database is configured, memory otherwise).
	SettingsStore usersettings.Store

	// AuditLogger (optional, created from the audit section if not provided).
	AuditLogger audit.Logger

	// Replier (optional, a LINE reply client is created if not provided).
	Replier conversation.Replier

	// ContentHandler (optional, defaults to conversation.DefaultHandler).
	ContentHandler conversation.ContentHandler
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithRedis sets the Redis client.
func WithRedis(client *goredis.Client) Option {
	return func(o *Options) {
		o.Redis = client
	}
}

// WithSessionStore sets the live context store.
func WithSessionStore(store session.Store) Option {
	return func(o *Options) {
		o.SessionStore = store
	}
}

// WithSettingsStore sets the user settings store.
func WithSettingsStore(store usersettings.Store) Option {
	return func(o *Options) {
		o.SettingsStore = store
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(logger audit.Logger) Option {
	return func(o *Options) {
		o.AuditLogger = logger
	}
}

// WithReplier sets the reply sender.
func WithReplier(r conversation.Replier) Option {
	return func(o *Options) {
		o.Replier = r
	}
}

// WithContentHandler replaces the default content handler.
func WithContentHandler(h conversation.ContentHandler) Option {
	return func(o *Options) {
		o.ContentHandler = h
	}
}
