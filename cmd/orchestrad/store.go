package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/orchestra/internal/config"
	"github.com/petrijr/orchestra/internal/persistence"
)

const connectTimeout = 10 * time.Second

// openStore connects to the configured backend. The returned close function
// is always safe to call.
func openStore(ctx context.Context, cfg config.StoreConfig) (persistence.Store, func(), error) {
	noop := func() {}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.Backend {
	case config.BackendMemory:
		return persistence.NewInMemoryStore(), noop, nil

	case config.BackendSQLite:
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
		store, err := persistence.NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("init sqlite store: %w", err)
		}
		return store, func() { _ = db.Close() }, nil

	case config.BackendPostgres:
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store, err := persistence.NewPostgresStore(db)
		if err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("init postgres store: %w", err)
		}
		return store, func() { _ = db.Close() }, nil

	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return persistence.NewRedisStore(client, cfg.Namespace+":"), func() { _ = client.Close() }, nil

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, noop, fmt.Errorf("failed to ping mongo: %w", err)
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return persistence.NewMongoStore(client, cfg.Namespace), closeFn, nil
	}

	return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
