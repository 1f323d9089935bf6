package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/c360studio/visionvoice/caption"
	"github.com/c360studio/visionvoice/config"
	"github.com/c360studio/visionvoice/describe"
	"github.com/c360studio/visionvoice/events"
	"github.com/c360studio/visionvoice/journal"
	"github.com/c360studio/visionvoice/metrics"
	"github.com/c360studio/visionvoice/narration"
	"github.com/c360studio/visionvoice/server"
)

// App wires together all components described by a Config.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics   *metrics.Metrics
	captioner *caption.Client
	pipeline  *describe.Pipeline

	// Optional, nil when disabled
	store     *narration.Store
	janitor   *narration.Janitor
	journal   *journal.Journal
	publisher events.Publisher
}

// NewApp builds every enabled component. getenv supplies the captioning
// token.
func NewApp(cfg *config.Config, logger *slog.Logger, getenv func(string) string) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics.New(),
		publisher: events.NopPublisher{},
	}

	a.captioner = caption.NewClient(caption.Config{
		Endpoint: cfg.Captioner.Endpoint,
		Token:    cfg.Captioner.Token(getenv),
		TokenEnv: cfg.Captioner.TokenEnv,
	},
		caption.WithHTTPClient(&http.Client{Timeout: cfg.Captioner.Timeout}),
		caption.WithRetryConfig(cfg.Captioner.RetryConfig()),
		caption.WithImageConfig(cfg.Captioner.ImageConfig()),
		caption.WithObserver(a.metrics),
		caption.WithLogger(logger),
	)

	opts := []describe.Option{
		describe.WithRecorder(a.metrics),
		describe.WithLogger(logger),
	}

	if cfg.NarrationEnabled() {
		a.store = narration.NewStore(cfg.Narration.AudioDir, logger)
		synth := narration.NewHTTPSynthesizer(cfg.Narration.Endpoint, cfg.Narration.Language,
			narration.WithSynthesizerLogger(logger))
		narrator := narration.NewNarrator(synth, a.store,
			narration.WithKeepLatest(cfg.Narration.KeepLatest),
			narration.WithInlineCleanup(!cfg.JanitorEnabled()),
			narration.WithNarratorLogger(logger))
		opts = append(opts, describe.WithNarrator(narrator))

		if cfg.JanitorEnabled() {
			janitor, err := narration.NewJanitor(narration.JanitorConfig{
				Store:         a.store,
				KeepLatest:    cfg.Narration.KeepLatest,
				DebounceDelay: cfg.Narration.Debounce,
				Logger:        logger,
			})
			if err != nil {
				return nil, fmt.Errorf("create audio janitor: %w", err)
			}
			a.janitor = janitor
		}
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
		opts = append(opts, describe.WithJournal(j))
	}

	if cfg.Events.URL != "" {
		pub, err := events.Connect(cfg.Events.URL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = pub
		opts = append(opts, describe.WithPublisher(pub))
	}

	a.pipeline = describe.New(a.captioner, opts...)
	return a, nil
}

// Start begins background work.
func (a *App) Start(ctx context.Context) error {
	if a.janitor != nil {
		if err := a.janitor.Start(ctx); err != nil {
			return fmt.Errorf("start audio janitor: %w", err)
		}
	}
	return nil
}

// Server builds the HTTP surface over the pipeline.
func (a *App) Server() *server.Server {
	opts := []server.Option{server.WithMetricsHandler(a.metrics.Handler())}
	if a.store != nil {
		opts = append(opts, server.WithAudioStore(a.store))
	}
	if a.journal != nil {
		opts = append(opts, server.WithHistory(a.journal))
	}

	return server.New(server.Config{
		ListenAddr:     a.cfg.Server.Listen,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		Logger:         a.logger,
	}, a.pipeline, a.captioner, opts...)
}

// Close releases every component. It is safe to call on a partially built
// App.
func (a *App) Close() error {
	var errs []error
	if a.janitor != nil {
		errs = append(errs, a.janitor.Stop())
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	return errors.Join(errs...)
}
