package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/inspire-tradequest/trade-quest/internal/archive"
	"github.com/inspire-tradequest/trade-quest/internal/auth"
	"github.com/inspire-tradequest/trade-quest/internal/config"
	"github.com/inspire-tradequest/trade-quest/internal/domain"
	"github.com/inspire-tradequest/trade-quest/internal/execution"
	"github.com/inspire-tradequest/trade-quest/internal/gateway"
	"github.com/inspire-tradequest/trade-quest/internal/ingestion"
	"github.com/inspire-tradequest/trade-quest/internal/pricefeed"
	pgRepo "github.com/inspire-tradequest/trade-quest/internal/repository/postgres"
	redisRepo "github.com/inspire-tradequest/trade-quest/internal/repository/redis"
	sqliteRepo "github.com/inspire-tradequest/trade-quest/internal/repository/sqlite"
	"github.com/inspire-tradequest/trade-quest/internal/scheduler"
	"github.com/inspire-tradequest/trade-quest/internal/storage"
)

// priceBus is what the ticker, the order service and the hub share.
type priceBus interface {
	Publish(ctx context.Context, tick domain.PriceTick) error
	LastPrice(ctx context.Context, symbol string) (domain.PriceTick, error)
	Subscribe(ctx context.Context, symbol string) <-chan domain.PriceTick
}

func main() {
	configPath := flag.String("config", "tradequest.toml", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *goredis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redisRepo.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		logger.Info("redis connected")
	}

	kv, kvCloser, err := openKVStore(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.Storage.Backend, "err", err)
		os.Exit(1)
	}
	defer kvCloser.Close()

	var prices priceBus = pricefeed.NewBoard()
	if redisClient != nil {
		prices = redisRepo.NewPriceRepo(redisClient)
	}

	seed := cfg.Feed.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Info("price feed seeded", "seed", seed)

	jwtSvc := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Duration)

	orderSvc := execution.NewOrderService(
		storage.NewAdapter(kv, cfg.Ledger.InitialCapital),
		prices,
		execution.Config{
			InitialCapital: cfg.Ledger.InitialCapital,
			ShortPolicy:    execution.ShortPolicy(cfg.Ledger.ShortPolicy),
		},
		logger,
	)

	hub := gateway.NewHub(prices, logger)
	orderSvc.OnAccountChange(hub.NotifyAccount)

	ticker := ingestion.NewTicker(pricefeed.NewGenerator(seed), prices, cfg.Feed.TickInterval.Duration, logger)

	handlers := gateway.NewHandlers(
		storage.NewUserRepo(kv), orderSvc, ticker, pricefeed.NewGenerator(seed+1), jwtSvc, logger,
	)
	router := gateway.NewRouter(handlers, hub, jwtSvc, cfg.Server.CORSOrigins)

	var (
		sched       *scheduler.Scheduler
		snapshotJob *archive.SnapshotJob
	)
	if cfg.Archive.Enabled {
		writer, err := archive.NewS3Writer(ctx, archive.S3Config{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			logger.Error("failed to configure archive", "err", err)
			os.Exit(1)
		}
		sched = scheduler.New(logger)
		snapshotJob = archive.NewSnapshotJob(orderSvc, writer, cfg.Archive.Prefix, logger)
		if err := sched.AddJob(cfg.Archive.Schedule, snapshotJob); err != nil {
			logger.Error("invalid archive schedule", "schedule", cfg.Archive.Schedule, "err", err)
			os.Exit(1)
		}
		sched.Start()
	}

	go hub.Run(ctx)
	go ticker.Run(ctx)

	port := strconv.Itoa(cfg.Server.Port)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port, "storage", cfg.Storage.Backend, "short_policy", cfg.Ledger.ShortPolicy)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	if sched != nil {
		sched.Stop()
		// Sessions traded since the last scheduled run.
		if err := sched.RunNow(snapshotJob); err != nil {
			logger.Error("final snapshot failed", "err", err)
		}
	}
	logger.Info("server stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openKVStore returns the configured backend and what to close on exit.
func openKVStore(ctx context.Context, cfg *config.Config, redisClient *goredis.Client, logger *slog.Logger) (domain.KVStore, io.Closer, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := pgRepo.Connect(ctx, cfg.Storage.DatabaseURL, pgRepo.PoolConfig{
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.ConnMaxLife.Duration,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("database connected")
		if err := pgRepo.RunMigrations(cfg.Storage.DatabaseURL, cfg.Storage.MigrationsPath); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("migrations applied")
		return pgRepo.NewKVRepo(db), db, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis backend needs redis.url")
		}
		return redisRepo.NewKVRepo(redisClient), nopCloser{}, nil
	case "sqlite":
		repo, err := sqliteRepo.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sqlite opened", "path", cfg.Storage.SQLitePath)
		return repo, repo, nil
	case "memory":
		logger.Warn("memory storage: ledgers are lost on restart")
		return storage.NewMemoryKV(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
