// Package testutil starts the throwaway service containers used by the store
// integration suites. Each container is started at most once per test binary
// and reaped by testcontainers when the binary exits.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// shared memoizes one container endpoint, including a failed start.
type shared struct {
	once     sync.Once
	endpoint string
	err      error
}

func (s *shared) get(t *testing.T, start func(ctx context.Context) (string, error)) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in -short mode")
	}

	s.once.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		s.endpoint, s.err = start(ctx)
	})
	if s.err != nil {
		t.Skipf("container unavailable: %v", s.err)
	}
	return s.endpoint
}

var (
	redisC    shared
	postgresC shared
	mongoC    shared
)

// RedisAddress returns host:port of a running Redis.
func RedisAddress(t *testing.T) string {
	t.Helper()
	return redisC.get(t, func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "redis:7",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
		if err != nil {
			return "", err
		}
		return c.Endpoint(ctx, "")
	})
}

// PostgresDSN returns a pgx DSN for a running PostgreSQL.
func PostgresDSN(t *testing.T) string {
	t.Helper()
	return postgresC.get(t, func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "postgres:16",
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					wait.ForLog("ready to accept connections"),
					// The log line shows up once during init too; only a query proves readiness.
					wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
						return fmt.Sprintf("postgres://orchestra:orchestra@%s:%s/orchestra_test?sslmode=disable", host, port.Port())
					}).WithQuery("SELECT 1"),
				).WithDeadline(2*time.Minute),
			),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "orchestra",
				"POSTGRES_PASSWORD": "orchestra",
				"POSTGRES_DB":       "orchestra_test",
			}),
		)
		if err != nil {
			return "", err
		}
		endpoint, err := c.Endpoint(ctx, "")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("postgres://orchestra:orchestra@%s/orchestra_test?sslmode=disable", endpoint), nil
	})
}

// MongoURI returns a mongodb:// URI for a running MongoDB.
func MongoURI(t *testing.T) string {
	t.Helper()
	return mongoC.get(t, func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "mongo:7",
			testcontainers.WithExposedPorts("27017/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("mongod startup complete"),
			),
		)
		if err != nil {
			return "", err
		}
		endpoint, err := c.Endpoint(ctx, "")
		if err != nil {
			return "", err
		}
		return "mongodb://" + endpoint, nil
	})
}
