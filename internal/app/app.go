// Package app builds the shared go-mantra components from configuration:
// the generative service chain, rate limiter, entity cache and extractor,
// intent classifier, detection engine and transcription service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/go-mantra/internal/config"
	"github.com/teslashibe/go-mantra/pkg/detection"
	"github.com/teslashibe/go-mantra/pkg/entity"
	"github.com/teslashibe/go-mantra/pkg/inference"
	"github.com/teslashibe/go-mantra/pkg/intent"
	"github.com/teslashibe/go-mantra/pkg/ratelimit"
	"github.com/teslashibe/go-mantra/pkg/session"
	"github.com/teslashibe/go-mantra/pkg/speech"
)

// App owns the long-lived components shared by every session.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	Limiter    *ratelimit.Limiter
	Provider   inference.Provider // nil without a generative service
	Cache      entity.Cache
	Extractor  *entity.Extractor
	Classifier *intent.Classifier
	Detector   *detection.Engine // nil when no model could be loaded
	Speech     speech.Service

	redis   *redis.Client
	closers []io.Closer
}

// New creates an uninitialized App.
func New(cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger.With("component", "app")}
}

// Init loads models and connects services. A missing intent model or
// transcription key is fatal; generative extraction, Redis and detection
// models degrade with a warning.
func (a *App) Init(ctx context.Context) error {
	classifier, err := intent.Load(a.cfg.IntentModelPrefix, a.logger)
	if err != nil {
		return fmt.Errorf("load intent model: %w", err)
	}
	a.Classifier = classifier
	a.closers = append(a.closers, classifier)

	a.Limiter = ratelimit.New(
		ratelimit.WithRequestsPerMinute(a.cfg.RequestsPerMinute),
		ratelimit.WithRetryIf(inference.IsQuotaExceeded),
		ratelimit.WithRetryDelay(a.cfg.QuotaRetryDelay),
		ratelimit.WithMaxRetries(a.cfg.QuotaMaxRetries),
		ratelimit.WithDeadline(a.cfg.QuotaDeadline),
		ratelimit.WithLogger(a.logger),
	)

	a.Provider = a.initProvider(ctx)
	a.Cache = a.initCache(ctx)

	opts := []entity.Option{
		entity.WithLimiter(a.Limiter),
		entity.WithCache(a.Cache),
		entity.WithModel(a.cfg.GeminiModel),
		entity.WithLogger(a.logger),
	}
	if a.Provider != nil {
		opts = append(opts, entity.WithProvider(a.Provider))
	}
	a.Extractor = entity.NewExtractor(opts...)

	a.Detector = a.initDetection()

	svc, err := speech.NewDeepgram(a.cfg.DeepgramAPIKey, a.logger)
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}
	a.Speech = svc

	a.logger.Info("initialized",
		"generative", a.Provider != nil,
		"redis", a.redis != nil,
		"detection", a.Detector != nil,
	)
	return nil
}

func (a *App) initProvider(ctx context.Context) inference.Provider {
	if !a.cfg.HasGenerativeService() {
		a.logger.Warn("no generative service configured; entities use patterns only")
		return nil
	}

	var providers []inference.Provider
	if a.cfg.GeminiAPIKey != "" {
		g, err := inference.NewGemini(
			inference.WithAPIKey(a.cfg.GeminiAPIKey),
			inference.WithModel(a.cfg.GeminiModel),
			inference.WithTimeout(a.cfg.GenerationTimeout),
			inference.WithLogger(a.logger),
		)
		if err != nil {
			a.logger.Warn("gemini unavailable", "error", err)
		} else {
			providers = append(providers, g)
		}
	}
	if a.cfg.CredentialsFile != "" && a.cfg.VertexProject != "" {
		v, err := inference.NewVertex(ctx,
			inference.WithProject(a.cfg.VertexProject, a.cfg.VertexLocation),
			inference.WithCredentialsFile(a.cfg.CredentialsFile),
			inference.WithModel(a.cfg.GeminiModel),
			inference.WithTimeout(a.cfg.GenerationTimeout),
			inference.WithLogger(a.logger),
		)
		if err != nil {
			a.logger.Warn("vertex unavailable", "error", err)
		} else {
			providers = append(providers, v)
		}
	}

	switch len(providers) {
	case 0:
		return nil
	case 1:
		a.closers = append(a.closers, providers[0])
		return providers[0]
	}
	chain, err := inference.NewChainWithLogger(a.logger, providers...)
	if err != nil {
		a.logger.Warn("provider chain unavailable", "error", err)
		return nil
	}
	a.closers = append(a.closers, chain)
	return chain
}

func (a *App) initCache(ctx context.Context) entity.Cache {
	if a.cfg.RedisAddr != "" {
		client, err := entity.DialRedis(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
		if err == nil {
			a.redis = client
			a.closers = append(a.closers, client)
			a.logger.Info("entity cache on redis", "addr", a.cfg.RedisAddr)
			return entity.NewRedisCache(client, a.cfg.EntityCacheTTL)
		}
		a.logger.Warn("redis unavailable; using memory cache", "addr", a.cfg.RedisAddr, "error", err)
	}
	return entity.NewMemoryCache(a.cfg.EntityCacheTTL, nil)
}

func (a *App) initDetection() *detection.Engine {
	var detectors []detection.Detector

	std := detection.DefaultYOLOConfig()
	std.ModelPath = a.cfg.StandardModel
	if d, err := detection.NewYOLO(std); err != nil {
		a.logger.Warn("standard detector unavailable", "model", std.ModelPath, "error", err)
	} else {
		detectors = append(detectors, d)
	}

	custom := detection.CustomYOLOConfig(a.cfg.CustomModel, a.cfg.CustomClasses)
	if d, err := detection.NewYOLO(custom); err != nil {
		a.logger.Warn("custom detector unavailable", "model", custom.ModelPath, "error", err)
	} else {
		detectors = append(detectors, d)
	}

	if len(detectors) == 0 {
		return nil
	}
	cfg := detection.DefaultConfig()
	cfg.Logger = a.logger
	engine := detection.NewEngine(cfg, detectors...)
	a.closers = append(a.closers, engine)
	return engine
}

// SpeechConfig returns the transcription settings for cfg's language.
func (a *App) SpeechConfig() speech.Config {
	sc := speech.DefaultConfig()
	sc.Language = a.cfg.Language
	return sc
}

// Deps returns the session dependencies built by Init.
func (a *App) Deps() session.Deps {
	deps := session.Deps{
		Speech:       a.Speech,
		SpeechConfig: a.SpeechConfig(),
		Classifier:   a.Classifier,
		Extractor:    a.Extractor,
		Logger:       a.logger,
	}
	// A nil *Engine must not become a non-nil Detector.
	if a.Detector != nil {
		deps.Detector = a.Detector
	}
	return deps
}

// Shutdown releases every component in reverse order of creation.
func (a *App) Shutdown() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if upstream, fallbacks, hits := a.extractorStats(); upstream+fallbacks+hits > 0 {
		a.logger.Info("entity extraction", "upstream", upstream, "fallbacks", fallbacks, "cache_hits", hits)
	}
	return errors.Join(errs...)
}

func (a *App) extractorStats() (int64, int64, int64) {
	if a.Extractor == nil {
		return 0, 0, 0
	}
	return a.Extractor.Stats()
}
