// Package bootstrap composes the wikiloult layers from a loaded configuration.
package bootstrap

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wikiloult/app/internal/data/database"
	"wikiloult/app/internal/data/migrations"
	datausers "wikiloult/app/internal/data/users"
	datawiki "wikiloult/app/internal/data/wiki"
	"wikiloult/app/internal/domain/identity"
	domainspeech "wikiloult/app/internal/domain/speech"
	domainusers "wikiloult/app/internal/domain/users"
	domainwiki "wikiloult/app/internal/domain/wiki"
	"wikiloult/app/internal/infrastructure/markdown"
	"wikiloult/app/internal/infrastructure/speech/openai"
	"wikiloult/app/internal/platform/config"
	"wikiloult/app/internal/platform/metrics"
	presentationhttp "wikiloult/app/internal/presentation/http"
)

type Dependencies struct {
	Config    config.Config
	Logger    *logrus.Logger
	SentryHub *sentry.Hub
}

type Result struct {
	WikiService domainwiki.Service
	UserService domainusers.Service
	Identity    *identity.Engine
	Metrics     *metrics.Metrics
	HTTPServer  *presentationhttp.Server
	Database    *gorm.DB
	Cleanup     func() error
}

// Build composes the wikiloult application layers and returns the constructed components.
func Build(ctx context.Context, deps Dependencies) (Result, error) {
	cfg := deps.Config

	dbOptions := database.Options{Path: cfg.DBPath}
	if deps.Logger != nil {
		dbOptions.Logger = database.NewLogger(deps.Logger, 0)
	}

	db, err := database.Open(dbOptions)
	if err != nil {
		return Result{}, eris.Wrap(err, "opening database")
	}

	closeOnError := func(wrapper error) (Result, error) {
		if closeErr := database.Close(db); closeErr != nil && deps.Logger != nil {
			deps.Logger.WithError(closeErr).Error("closing database after bootstrap failure")
		}
		return Result{}, wrapper
	}

	if err := migrations.Migrate(ctx, db, deps.Logger); err != nil {
		return closeOnError(eris.Wrap(err, "running migrations"))
	}

	wikiRepo, err := datawiki.NewRepository(db, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating wiki repository"))
	}

	userRepo, err := datausers.NewRepository(db, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating users repository"))
	}

	engine, err := identity.NewEngine(identity.Settings{
		Salt:              cfg.Salt,
		PrivilegedCookies: cfg.AdminCookies,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating identity engine"))
	}

	renderer := markdown.NewRenderer()
	registry := metrics.New()

	userService, err := domainusers.NewService(domainusers.Options{
		Repository:   userRepo,
		Renderer:     renderer,
		Identity:     engine,
		Metrics:      registry,
		Logger:       deps.Logger,
		SentryHub:    deps.SentryHub,
		StoreTimeout: cfg.StoreTimeout,
		PurgeGrace:   cfg.PurgeGrace,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating user registry"))
	}

	editors, err := domainusers.EditorRegistry(userService)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating editor registry"))
	}

	synth, err := newSynthesizer(cfg, deps.Logger)
	if err != nil {
		return closeOnError(err)
	}

	wikiService, err := domainwiki.NewService(domainwiki.Options{
		Repository:   wikiRepo,
		Renderer:     renderer,
		Editors:      editors,
		Identity:     engine,
		Speech:       synth,
		Metrics:      registry,
		Logger:       deps.Logger,
		SentryHub:    deps.SentryHub,
		StoreTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating wiki service"))
	}

	httpServer, err := presentationhttp.NewServer(presentationhttp.Options{
		WikiService: wikiService,
		UserService: userService,
		Identity:    engine,
		Health:      dbHealth{db: db},
		Metrics:     registry,
		Logger:      deps.Logger,
		SentryHub:   deps.SentryHub,
		RateLimiter: presentationhttp.RateLimiterSettings{
			Burst:             cfg.RateLimitBurst,
			RequestsPerSecond: cfg.RateLimitRPS,
			ClientTTL:         presentationhttp.DefaultRateLimiterTTL,
		},
		AudioFolder:  cfg.AudioRenderFolder,
		SecureCookie: cfg.IsProduction(),
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "initialising http server"))
	}

	cleanup := func() error {
		httpServer.Close()
		return database.Close(db)
	}

	return Result{
		WikiService: wikiService,
		UserService: userService,
		Identity:    engine,
		Metrics:     registry,
		HTTPServer:  httpServer,
		Database:    db,
		Cleanup:     cleanup,
	}, nil
}

func newSynthesizer(cfg config.Config, logger *logrus.Logger) (domainspeech.Synthesizer, error) {
	if !cfg.SpeechEnabled() {
		if logger != nil {
			logger.Info("speech api key not set, title audio disabled")
		}
		return domainspeech.Noop{}, nil
	}

	client, err := openai.NewClient(openai.ClientOptions{
		APIKey:  cfg.SpeechAPIKey,
		BaseURL: cfg.SpeechEndpoint,
		Logger:  logger,
	})
	if err != nil {
		return nil, eris.Wrap(err, "creating speech client")
	}

	synth, err := openai.NewSynthesizer(openai.SynthesizerOptions{
		Client: client,
		Model:  cfg.SpeechModel,
		Folder: cfg.AudioRenderFolder,
	})
	if err != nil {
		return nil, eris.Wrap(err, "creating title synthesizer")
	}

	return synth, nil
}

// dbHealth reports database reachability to the health route.
type dbHealth struct {
	db *gorm.DB
}

func (h dbHealth) Ping(ctx context.Context) error {
	sqlDB, err := database.SQLDB(h.db)
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
