// Package config loads the daemon configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. ORCHESTRA_STORE_BACKEND.
const Prefix = "ORCHESTRA"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

var backends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendRedis, BackendMongo}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
}

type StoreConfig struct {
	Backend string `envconfig:"BACKEND" default:"memory"`
	// DSN is a file path for sqlite, a postgres:// DSN, a redis:// URL or a
	// mongodb:// URI depending on Backend.
	DSN string `envconfig:"DSN"`
	// Namespace is the Redis key prefix or the Mongo database name.
	Namespace string `envconfig:"NAMESPACE" default:"orchestra"`
}

type WorkerConfig struct {
	Concurrency  int           `envconfig:"CONCURRENCY" default:"2"`
	PollInterval time.Duration `envconfig:"POLL" default:"100ms"`
	MaxAttempts  int           `envconfig:"MAX_ATTEMPTS" default:"1"`
	Backoff      time.Duration `envconfig:"BACKOFF" default:"0s"`
}

type Config struct {
	// Nested groups extend the key: Log.Level is ORCHESTRA_LOG_LEVEL.
	Log    LogConfig    `envconfig:"LOG"`
	Store  StoreConfig  `envconfig:"STORE"`
	Worker WorkerConfig `envconfig:"WORKER"`

	// WorkflowDir holds *.yaml workflow definitions loaded at startup.
	WorkflowDir string `envconfig:"WORKFLOW_DIR"`
	// Parallelism bounds concurrent step dispatch within one run.
	Parallelism int `envconfig:"PARALLELISM" default:"1"`
	// LenientTasks accepts tasks with not-yet-known dependencies.
	LenientTasks bool `envconfig:"LENIENT_TASKS" default:"false"`

	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads envFiles (a missing file is not an error) into the process
// environment without overriding variables that are already set, then
// decodes ORCHESTRA_* variables into a validated Config.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot check by type alone.
func (c *Config) Validate() error {
	var errs []error

	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if !slices.Contains(backends, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("store backend %q: want one of %s", c.Store.Backend, strings.Join(backends, ", ")))
	}
	if c.Store.Backend != BackendMemory && c.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store backend %q needs %s_STORE_DSN", c.Store.Backend, Prefix))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q: want text or json", c.Log.Format))
	}
	if c.Worker.Concurrency < 0 {
		errs = append(errs, errors.New("worker concurrency must not be negative"))
	}
	if c.Parallelism < 1 {
		errs = append(errs, errors.New("parallelism must be at least 1"))
	}
	return errors.Join(errs...)
}
