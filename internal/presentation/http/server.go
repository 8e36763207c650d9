// Package http exposes the wiki over HTTP: a JSON API served through huma
// and a handful of server rendered pages.
package http

import (
	"context"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiloult/app/internal/domain/identity"
	"wikiloult/app/internal/domain/users"
	"wikiloult/app/internal/domain/wiki"
)

// HealthChecker reports whether the backing store answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Metrics is the slice of the metrics registry the transport reports to.
type Metrics interface {
	RateLimited(limiter string)
	ObserveRequest(method string, status int, elapsed time.Duration)
	Handler() stdhttp.Handler
}

// Options configures the HTTP server wiring.
type Options struct {
	WikiService  wiki.Service
	UserService  users.Service
	Identity     *identity.Engine
	Health       HealthChecker
	Metrics      Metrics
	Logger       *logrus.Logger
	SentryHub    *sentry.Hub
	RateLimiter  RateLimiterSettings
	Registration RateLimiterSettings
	AudioFolder  string
	SecureCookie bool
}

// RateLimiterSettings configures the HTTP rate limiter behaviour.
type RateLimiterSettings struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// DefaultRateLimiterTTL is how long an idle client keeps its request bucket.
const DefaultRateLimiterTTL = 10 * time.Minute

// DefaultRegistrationLimit allows one registration per client address per day.
var DefaultRegistrationLimit = RateLimiterSettings{
	RequestsPerSecond: 1.0 / (24 * 60 * 60),
	Burst:             1,
	ClientTTL:         24 * time.Hour,
}

// Server wires the HTTP transport layer via Huma and templ components.
type Server struct {
	api          huma.API
	mux          *stdhttp.ServeMux
	wiki         wiki.Service
	users        users.Service
	identity     *identity.Engine
	health       HealthChecker
	metrics      Metrics
	logger       *logrus.Logger
	sentry       *sentry.Hub
	rateLimiter  *RateLimiter
	registration *RateLimiter
	audioFolder  string
	secureCookie bool
}

// NewServer constructs the HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.WikiService == nil {
		return nil, eris.New("wiki service is required")
	}
	if opts.UserService == nil {
		return nil, eris.New("user service is required")
	}
	if opts.Identity == nil {
		return nil, eris.New("identity engine is required")
	}

	limiter, err := newLimiter(opts.RateLimiter, "rate limiter")
	if err != nil {
		return nil, err
	}

	registrationSettings := opts.Registration
	if registrationSettings == (RateLimiterSettings{}) {
		registrationSettings = DefaultRegistrationLimit
	}
	registration, err := newLimiter(registrationSettings, "registration limiter")
	if err != nil {
		limiter.Stop()
		return nil, err
	}

	mux := stdhttp.NewServeMux()
	config := huma.DefaultConfig("Wikiloult", "1.0.0")
	config.Info.Description = "Le wiki collaboratif et anonyme du loult."

	api := humago.New(mux, config)

	srv := &Server{
		api:          api,
		mux:          mux,
		wiki:         opts.WikiService,
		users:        opts.UserService,
		identity:     opts.Identity,
		health:       opts.Health,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		sentry:       opts.SentryHub,
		rateLimiter:  limiter,
		registration: registration,
		audioFolder:  strings.TrimSpace(opts.AudioFolder),
		secureCookie: opts.SecureCookie,
	}

	srv.registerMiddlewares()
	srv.registerRoutes()

	return srv, nil
}

func newLimiter(settings RateLimiterSettings, name string) (*RateLimiter, error) {
	if settings.Burst <= 0 {
		return nil, eris.Errorf("%s burst must be greater than zero", name)
	}
	if settings.RequestsPerSecond <= 0 {
		return nil, eris.Errorf("%s requests per second must be greater than zero", name)
	}
	if settings.ClientTTL <= 0 {
		return nil, eris.Errorf("%s client TTL must be greater than zero", name)
	}

	return NewRateLimiter(settings.Burst, settings.RequestsPerSecond, settings.ClientTTL), nil
}

// Handler exposes the underlying HTTP handler for wiring into the application.
func (s *Server) Handler() stdhttp.Handler {
	return s.mux
}

// API exposes the underlying Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops the background pruning of the rate limiters.
func (s *Server) Close() {
	s.rateLimiter.Stop()
	s.registration.Stop()
}

func (s *Server) registerMiddlewares() {
	s.api.UseMiddleware(
		s.sentryMiddleware(),
		s.recoveryMiddleware(),
		s.requestIDMiddleware(),
		s.identityMiddleware(),
		s.rateLimitMiddleware(),
		s.loggingMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /favicon.ico", faviconHandler)
	s.mux.HandleFunc("HEAD /favicon.ico", faviconHandler)

	s.registerStaticRoute()
	s.registerAudioRoute()
	s.registerMetricsRoute()
	s.registerHealthRoute()

	s.registerViewRoutes()
	s.registerPageRoutes()
	s.registerUserRoutes()
	s.registerAdminRoutes()
}

func (s *Server) registerMetricsRoute() {
	if s.metrics == nil {
		return
	}
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.mux.ServeHTTP(w, r)
}
