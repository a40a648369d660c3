package store

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/config"
)

// Open creates the store selected by cfg.Driver. The returned close function
// releases backend connections.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case config.StoreMemory, "":
		logger.Info("record store: memory")
		return NewMemoryStore(), func() {}, nil

	case config.StoreRedis:
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			addr = "localhost:6379"
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("store: connect redis %s: %w", addr, err)
		}
		logger.Info("record store: redis", zap.String("addr", addr), zap.Int("db", cfg.DB))
		return NewRedisStore(client, cfg.KeyPrefix), func() { _ = client.Close() }, nil

	case config.StorePostgres:
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("store: %s is not set", cfg.DSNEnv)
		}
		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("store: parse dsn: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("store: connect postgres: %w", err)
		}
		pg := NewPgStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("record store: postgres", zap.Int32("max_conns", poolCfg.MaxConns))
		return pg, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}
