package platform

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/factcheck-bot/pkg/audit"
	auditpg "github.com/txn2/factcheck-bot/pkg/audit/postgres"
	"github.com/txn2/factcheck-bot/pkg/auth"
	"github.com/txn2/factcheck-bot/pkg/conversation"
	"github.com/txn2/factcheck-bot/pkg/database/migrate"
	"github.com/txn2/factcheck-bot/pkg/graphql"
	"github.com/txn2/factcheck-bot/pkg/health"
	"github.com/txn2/factcheck-bot/pkg/liff"
	"github.com/txn2/factcheck-bot/pkg/line"
	"github.com/txn2/factcheck-bot/pkg/session"
	sessionpg "github.com/txn2/factcheck-bot/pkg/session/postgres"
	sessionredis "github.com/txn2/factcheck-bot/pkg/session/redis"
	"github.com/txn2/factcheck-bot/pkg/token"
	"github.com/txn2/factcheck-bot/pkg/usersettings"
	settingspg "github.com/txn2/factcheck-bot/pkg/usersettings/postgres"
	"github.com/txn2/factcheck-bot/pkg/webhook"
)

// Platform is the main platform facade.
type Platform struct {
	config    *Config
	logger    *slog.Logger
	lifecycle *Lifecycle
	health    *health.Checker

	// Backing services
	db    *sql.DB
	redis *goredis.Client

	// Stores
	sessions    session.Store
	settings    usersettings.Store
	auditLogger audit.Logger

	// Session continuity
	codec         *token.Codec
	links         *liff.URLBuilder
	authenticator auth.Authenticator
	graphql       *graphql.Handler

	// Conversation
	replier conversation.Replier
	router  *conversation.Router
	ingress *webhook.Ingress
}

// New creates a new platform instance. Nothing is started until Start.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Platform{
		config:    options.Config,
		logger:    logger,
		lifecycle: NewLifecycle(),
		health:    health.NewChecker(),
	}

	if err := p.initializeComponents(options); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("initializing components: %w", err)
	}

	return p, nil
}

// initializeComponents builds components in dependency order. Lifecycle hooks
// are registered in the same order, so the ingress stops first.
func (p *Platform) initializeComponents(opts *Options) error {
	if err := p.initBackends(opts); err != nil {
		return err
	}
	if err := p.initStores(opts); err != nil {
		return err
	}
	if err := p.initContinuity(); err != nil {
		return err
	}
	return p.initConversation(opts)
}

// initBackends opens the database and Redis client when configured.
func (p *Platform) initBackends(opts *Options) error {
	p.db = opts.DB
	if p.db == nil && p.config.Database.DSN != "" {
		db, err := OpenDB(p.config.Database)
		if err != nil {
			return err
		}
		p.db = db
		p.lifecycle.RegisterCloser("postgres", db)
	}
	if p.db != nil {
		p.health.AddDependency("postgres", p.db.PingContext)
		if p.config.Database.AutoMigrate {
			db := p.db
			p.lifecycle.OnStart("migrations", func(context.Context) error { return migrate.Run(db) })
		}
	}

	p.redis = opts.Redis
	if p.redis == nil && p.config.Redis.Addr != "" {
		p.redis = goredis.NewClient(&goredis.Options{
			Addr:     p.config.Redis.Addr,
			Password: p.config.Redis.Password,
			DB:       p.config.Redis.DB,
		})
		p.lifecycle.RegisterCloser("redis", p.redis)
	}
	if p.redis != nil {
		rdb := p.redis
		p.health.AddDependency("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	return nil
}

// initStores creates the session, settings and audit stores.
func (p *Platform) initStores(opts *Options) error {
	sessions, err := p.createSessionStore(opts)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	p.sessions = sessions

	switch {
	case opts.SettingsStore != nil:
		p.settings = opts.SettingsStore
	case p.db != nil:
		p.settings = settingspg.New(p.db)
	default:
		p.logger.Warn("no database configured; subscriptions are kept in memory")
		p.settings = usersettings.NewMemoryStore()
	}

	auditLogger, err := p.createAuditLogger(opts)
	if err != nil {
		return fmt.Errorf("creating audit logger: %w", err)
	}
	p.auditLogger = auditLogger
	return nil
}

func (p *Platform) createSessionStore(opts *Options) (session.Store, error) {
	if opts.SessionStore != nil {
		return opts.SessionStore, nil
	}

	cfg := p.config.Session
	switch cfg.Backend {
	case BackendMemory, "":
		store := session.NewMemoryStore(cfg.TTL)
		p.lifecycle.Add("sessions",
			func(context.Context) error { store.StartCleanupRoutine(cfg.CleanupInterval); return nil },
			func(context.Context) error { return store.Close() },
		)
		return store, nil

	case BackendRedis:
		if p.redis == nil {
			return nil, fmt.Errorf("session backend redis requires redis.addr")
		}
		return sessionredis.New(p.redis, sessionredis.Config{
			TTL:       cfg.TTL,
			KeyPrefix: p.config.Redis.KeyPrefix,
		}), nil

	case BackendPostgres:
		if p.db == nil {
			return nil, fmt.Errorf("session backend postgres requires database.dsn")
		}
		store := sessionpg.New(p.db, sessionpg.Config{TTL: cfg.TTL})
		p.lifecycle.Add("sessions",
			func(context.Context) error { store.StartCleanupRoutine(cfg.CleanupInterval); return nil },
			func(context.Context) error { return store.Close() },
		)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

func (p *Platform) createAuditLogger(opts *Options) (audit.Logger, error) {
	if opts.AuditLogger != nil {
		return opts.AuditLogger, nil
	}

	cfg := p.config.Audit
	if !cfg.Enabled {
		return nil, nil //nolint:nilnil // audit is optional
	}

	switch cfg.Backend {
	case BackendSlog, "":
		return audit.NewSlogLogger(p.logger.With("component", "audit")), nil

	case BackendPostgres:
		if p.db == nil {
			return nil, fmt.Errorf("audit backend postgres requires database.dsn")
		}
		store := auditpg.New(p.db, auditpg.Config{RetentionDays: cfg.RetentionDays})
		p.lifecycle.Add("audit",
			func(context.Context) error { store.StartCleanupRoutine(cfg.CleanupInterval); return nil },
			func(context.Context) error { return store.Close() },
		)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}

// initContinuity creates the token codec, LIFF links and the session query endpoint.
func (p *Platform) initContinuity() error {
	codec, err := token.NewCodec(token.Config{SigningKey: []byte(p.config.Token.Secret)})
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}
	p.codec = codec

	links, err := liff.NewURLBuilder(p.config.LIFF.URL, codec)
	if err != nil {
		return fmt.Errorf("creating liff links: %w", err)
	}
	p.links = links

	authenticator, err := auth.NewSessionAuthenticator(codec, p.sessions)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}
	p.authenticator = authenticator

	gql, err := graphql.NewHandler(authenticator, p.logger.With("component", "graphql"))
	if err != nil {
		return fmt.Errorf("creating graphql handler: %w", err)
	}
	p.graphql = gql
	return nil
}

// initConversation creates the reply client, router and webhook ingress.
func (p *Platform) initConversation(opts *Options) error {
	p.replier = opts.Replier
	if p.replier == nil {
		client, err := line.NewReplyClient(line.ClientConfig{
			APIBase:     p.config.LINE.APIBase,
			AccessToken: p.config.LINE.ChannelAccessToken,
			RateLimit:   p.config.LINE.RateLimit,
			Timeout:     p.config.LINE.Timeout,
		})
		if err != nil {
			return fmt.Errorf("creating reply client: %w", err)
		}
		p.replier = client
	}

	content := opts.ContentHandler
	if content == nil {
		h, err := conversation.NewDefaultHandler(p.links, p.logger)
		if err != nil {
			return fmt.Errorf("creating content handler: %w", err)
		}
		content = h
	}

	router, err := conversation.NewRouter(conversation.RouterConfig{
		Settings: p.settings,
		Sessions: p.sessions,
		Content:  content,
		Replier:  p.replier,
		Logger:   p.logger,
	})
	if err != nil {
		return fmt.Errorf("creating conversation router: %w", err)
	}
	p.router = router

	ingress, err := webhook.New(webhook.Config{
		Handler: router,
		Audit:   p.auditLogger,
		Logger:  p.logger.With("component", "webhook"),
	})
	if err != nil {
		return fmt.Errorf("creating webhook ingress: %w", err)
	}
	p.ingress = ingress
	p.lifecycle.OnStop("webhook ingress", ingress.Shutdown)
	return nil
}

// Start starts background work and marks the platform ready.
func (p *Platform) Start(ctx context.Context) error {
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}
	p.health.SetReady()
	p.logger.Info("platform started",
		"session_backend", p.config.Session.Backend,
		"audit_enabled", p.auditLogger != nil,
		"database", p.db != nil,
	)
	return nil
}

// Stop marks the platform as draining, waits for in-flight webhook events and
// releases every resource it opened.
func (p *Platform) Stop(ctx context.Context) error {
	p.health.SetDraining()
	return p.lifecycle.Stop(ctx)
}

// Close releases resources without draining. Use it for a platform that was
// never started; Stop otherwise.
func (p *Platform) Close() error {
	return p.lifecycle.Close(context.Background())
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config { return p.config }

// Logger returns the platform logger.
func (p *Platform) Logger() *slog.Logger { return p.logger }

// Health returns the readiness checker.
func (p *Platform) Health() *health.Checker { return p.health }

// Ingress returns the webhook ingress.
func (p *Platform) Ingress() *webhook.Ingress { return p.ingress }

// GraphQL returns the session query endpoint. Mount it behind bearer extraction.
func (p *Platform) GraphQL() http.Handler { return p.graphql }

// Codec returns the hand-off token codec.
func (p *Platform) Codec() *token.Codec { return p.codec }

// Links returns the LIFF link builder.
func (p *Platform) Links() *liff.URLBuilder { return p.links }

// Sessions returns the live context store.
func (p *Platform) Sessions() session.Store { return p.sessions }

// Settings returns the user settings store.
func (p *Platform) Settings() usersettings.Store { return p.settings }

// AuditLogger returns the audit logger, nil when audit is disabled.
func (p *Platform) AuditLogger() audit.Logger { return p.auditLogger }

// DB returns the database connection, nil when none is configured.
func (p *Platform) DB() *sql.DB { return p.db }
