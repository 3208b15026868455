package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/bv-engine/api/routes"
	"github.com/angelmondragon/bv-engine/internal/distribution"
	"github.com/angelmondragon/bv-engine/internal/income"
	"github.com/angelmondragon/bv-engine/internal/ledger"
	"github.com/angelmondragon/bv-engine/internal/members"
	"github.com/angelmondragon/bv-engine/internal/placement"
	"github.com/angelmondragon/bv-engine/internal/purchases"
	"github.com/angelmondragon/bv-engine/internal/rules"
	"github.com/angelmondragon/bv-engine/internal/tree"
	"github.com/angelmondragon/bv-engine/pkg/config"
	"github.com/angelmondragon/bv-engine/pkg/db"
	"github.com/angelmondragon/bv-engine/pkg/logger"
	"github.com/angelmondragon/bv-engine/pkg/metrics"
	"github.com/angelmondragon/bv-engine/pkg/migrate"
	"github.com/angelmondragon/bv-engine/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "bv-engine"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "bv-engine",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]any{"env": cfg.App.Env},
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
	} else {
		logg.Warn(ctx, "redis not configured; idempotency, rate limits and tree cache disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := metrics.NewEngineMetrics(registry)

	services, err := buildServices(cfg, logg, dbClient, redisClient, engineMetrics)
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, registry, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"dialect": cfg.DB.Driver,
	})
	logg.Info(logCtx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		logg.Info(logCtx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, engineMetrics *metrics.EngineMetrics) (routes.Services, error) {
	memberRepo := members.NewRepository(dbClient.DB())
	ruleRepo := rules.NewRepository(dbClient.DB())
	purchaseRepo := purchases.NewRepository(dbClient.DB())
	incomeRepo := income.NewRepository(dbClient.DB())

	resolver, err := placement.NewResolver(memberRepo, placement.Options{
		MaxDepth:   cfg.Engine.PlacementMaxDepth,
		MaxVisited: cfg.Engine.PlacementMaxVisited,
	})
	if err != nil {
		return routes.Services{}, err
	}

	memberService, err := members.NewService(members.ServiceParams{
		Repo:        memberRepo,
		Placer:      resolver,
		Logger:      logg,
		Metrics:     engineMetrics,
		MaxAttempts: cfg.Engine.PlacementMaxAttempts,
		Backoff:     cfg.Engine.PlacementBackoff,
	})
	if err != nil {
		return routes.Services{}, err
	}

	ruleService, err := rules.NewService(dbClient, ruleRepo, logg)
	if err != nil {
		return routes.Services{}, err
	}

	engine, err := distribution.NewEngine(distribution.EngineParams{
		DB:          dbClient,
		Members:     memberRepo,
		Rules:       ruleRepo,
		Purchases:   purchaseRepo,
		Income:      incomeRepo,
		Logger:      logg,
		Metrics:     engineMetrics,
		MaxLevels:   cfg.Engine.DistributionMaxLevels,
		AmountScale: cfg.Engine.AmountScale,
	})
	if err != nil {
		return routes.Services{}, err
	}

	treeOpts := tree.Options{Logger: logg, Metrics: engineMetrics}
	if redisClient != nil {
		treeOpts.Cache = redisClient
		treeOpts.CacheTTL = cfg.Engine.TreeCacheTTL
	}
	materializer, err := tree.NewMaterializer(memberRepo, treeOpts)
	if err != nil {
		return routes.Services{}, err
	}

	ledgerService, err := ledger.NewService(memberRepo, purchaseRepo, incomeRepo)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Members:     memberService,
		Tree:        materializer,
		Distributor: engine,
		Rules:       ruleService,
		Ledger:      ledgerService,
	}, nil
}
