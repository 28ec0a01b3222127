// Package server assembles the bot's HTTP surface: the LINE webhook, the
// session query endpoint used by the LIFF app, health probes and metrics.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apihttp "github.com/txn2/factcheck-bot/pkg/http"
	"github.com/txn2/factcheck-bot/pkg/line"
	"github.com/txn2/factcheck-bot/pkg/metrics"
	"github.com/txn2/factcheck-bot/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// Route paths.
const (
	CallbackPath = "/callback"
	GraphQLPath  = "/graphql"
	HealthzPath  = "/healthz"
	ReadyzPath   = "/readyz"
	MetricsPath  = "/metrics"
)

// NewHandler returns the router for every endpoint of p.
func NewHandler(p *platform.Platform) http.Handler {
	cfg := p.Config()
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(p.Logger()))
	r.Use(middleware.Recoverer)

	r.With(line.SignatureMiddleware(cfg.LINE.ChannelSecret, p.Logger())).Mount(CallbackPath, p.Ingress().Routes())

	r.Route(GraphQLPath, func(gql chi.Router) {
		gql.Use(cors)
		gql.Use(apihttp.OptionalAuth())
		gql.Handle("/", p.GraphQL())
	})

	health := p.Health()
	r.Get(HealthzPath, health.LivenessHandler())
	r.Get(ReadyzPath, health.ReadinessHandler())
	r.Handle(MetricsPath, metrics.Handler())

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(cfg.Server.Name + " " + Version))
	})

	return r
}

// New creates the HTTP server for p. The caller runs ListenAndServe.
func New(p *platform.Platform) *http.Server {
	cfg := p.Config().Server
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           NewHandler(p),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(p.Logger().Handler(), slog.LevelError),
	}
}

// cors lets the LIFF app, served from another origin, query the session.
// Credentials travel in the Authorization header, never in cookies.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
