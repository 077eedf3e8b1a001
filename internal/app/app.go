// Package app wires configuration into a running scheduling.Service: it picks
// the store, the locker and the appointment id allocator.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/api"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/config"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/db"
	redisclient "github.com/hackgods/vaccine-reservation-scheduling/internal/redis"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/store/memory"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/store/postgres"
)

type App struct {
	Service *scheduling.Service
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Checks  []api.Check

	log *zap.Logger
}

// New connects to every configured backend. Close releases them.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{log: log}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.openLocker(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Service = scheduling.NewService(store, locker, NewAllocator(cfg), log)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (scheduling.Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		a.log.Warn("using in-memory store, state is lost on exit")
		return memory.New(), nil
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("postgres connection: %w", err)
	}
	a.Pool = pool
	a.Checks = append(a.Checks, api.Check{Name: "postgres", Ping: pool.Ping})
	a.log.Info("connected to postgres")

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		version, err := db.MigrationVersion(ctx, pool)
		if err != nil {
			return nil, err
		}
		a.log.Info("migrations applied", zap.Int64("version", version))
	}

	return postgres.New(pool), nil
}

func (a *App) openLocker(ctx context.Context, cfg config.Config) (scheduling.Locker, error) {
	if !cfg.UsesRedis() {
		a.log.Info("no redis configured, using in-process locks")
		return scheduling.NewLocalLocker(), nil
	}

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	a.Redis = rdb
	a.Checks = append(a.Checks, api.Check{Name: "redis", Ping: redisclient.Pinger(rdb)})
	a.log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	return redisclient.NewRedisLocker(rdb, redisclient.LockOptions{
		TTL:       cfg.LockTTL,
		Retries:   cfg.LockRetries,
		RetryBase: cfg.LockRetryBase,
	}, a.log), nil
}

func NewAllocator(cfg config.Config) scheduling.IdentifierAllocator {
	if cfg.IDStrategy == config.IDStrategyRandom {
		return scheduling.NewRandomAllocator(cfg.IDRangeMax, cfg.IDMaxAttempts)
	}
	return scheduling.NewSequenceAllocator()
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.log.Warn("error closing redis", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
