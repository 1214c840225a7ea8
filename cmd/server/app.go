package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/soaringjerry/Sigmo/internal/api"
	"github.com/soaringjerry/Sigmo/internal/cache"
	"github.com/soaringjerry/Sigmo/internal/config"
	"github.com/soaringjerry/Sigmo/internal/db"
	"github.com/soaringjerry/Sigmo/internal/middleware"
	"github.com/soaringjerry/Sigmo/internal/questionnaire"
	"github.com/soaringjerry/Sigmo/internal/rewrite"
	"github.com/soaringjerry/Sigmo/internal/services"
)

// app is the fully wired server. Close releases the store and cache.
type app struct {
	store api.Store
	redis *redis.Client
	auth  *middleware.Auth
	svc   api.Services
}

func (a *app) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return a.store.Close()
}

// openStore opens the configured backend and brings its schema up to date.
func openStore(ctx context.Context, cfg *config.Config) (api.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return api.NewMemoryStore(), nil
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.RunPostgresMigrations(ctx, pool, cfg.Storage.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return db.NewPostgresStore(pool)
	default:
		sqlDB, err := db.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(sqlDB, cfg.Storage.MigrationsDir); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return db.NewStore(sqlDB)
	}
}

// newGenerator builds the template bank, the state calculator and the
// optional model rewriter from config.
func newGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*questionnaire.Generator, error) {
	validator := questionnaire.NewValidator()
	var (
		bank *questionnaire.TemplateBank
		err  error
	)
	if cfg.Engine.TemplatesPath != "" {
		bank, err = questionnaire.LoadBank(cfg.Engine.TemplatesPath, validator)
	} else {
		bank, err = questionnaire.DefaultBank(validator)
	}
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	opts := []questionnaire.GeneratorOption{
		questionnaire.WithCalculator(questionnaire.NewCalculator(cfg.Engine.Thresholds)),
		questionnaire.WithRewriteAttempts(cfg.Rewrite.MaxAttempts),
		questionnaire.WithLogger(logger.Named("generator")),
	}
	rw, err := rewrite.New(ctx, rewrite.Options{
		Provider: cfg.Rewrite.Provider,
		APIKey:   cfg.Rewrite.APIKey,
		BaseURL:  cfg.Rewrite.BaseURL,
		Model:    cfg.Rewrite.Model,
		Timeout:  cfg.RewriteTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("configure rewriter: %w", err)
	}
	if rw != nil {
		opts = append(opts, questionnaire.WithRewriter(rw))
		if n, ok := rw.(rewrite.Named); ok {
			logger.Info("model rewrite enabled", zap.String("rewriter", n.Name()))
		}
	} else {
		logger.Info("model rewrite disabled, serving templates")
	}
	return questionnaire.NewGenerator(bank, validator, opts...), nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{store: store}

	var qstore services.QuestionnaireStore = store
	if cfg.Cache.RedisURL != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.redis = rdb
		qstore = services.SplitStore{
			ProgressStore: store,
			SnapshotStore: cache.NewSnapshotCache(store, rdb, cfg.CacheTTL(), logger.Named("cache")),
			DailyLogStore: store,
		}
		logger.Info("snapshot cache enabled", zap.Duration("ttl", cfg.CacheTTL()))
	}

	gen, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.auth = middleware.NewAuth(cfg.Auth.JWTSecret)
	protocols := services.NewProtocolService(store)
	protocols.SetDefaultPeriod(cfg.Engine.DefaultPeriodDays)
	a.svc = api.Services{
		Questionnaire: services.NewQuestionnaireService(qstore, store, gen, logger.Named("questionnaire")),
		Protocols:     protocols,
		Auth:          services.NewAuthService(store, a.auth.SignToken, cfg.TokenTTL()),
		Analytics:     services.NewAnalyticsService(store),
		Export:        services.NewExportService(store),
	}
	return a, nil
}
