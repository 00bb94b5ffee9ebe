package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/scrywarden/scrywarden/pkg/config"
	"github.com/scrywarden/scrywarden/pkg/database"
	"github.com/scrywarden/scrywarden/pkg/httpapi"
	"github.com/scrywarden/scrywarden/pkg/logging"
	"github.com/scrywarden/scrywarden/pkg/metrics"
	"github.com/scrywarden/scrywarden/pkg/store"
)

const (
	defaultConnMaxLifetime = time.Hour
	defaultConnMaxIdleTime = 15 * time.Minute
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runtime bundles the pieces every subcommand needs before it can build
// its own transports/profiles/shippers: config, a configured logger, a
// migrated database pool, and the metrics/health HTTP surface.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *database.Client
	repo    *store.Repo
	metrics *metrics.Metrics
	http    *httpapi.Server
}

func bootstrap(ctx context.Context, component string) (*runtime, error) {
	cfg, err := config.Initialize(ctx, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	logger := logging.Configure(cfg.Logging)

	dbCfg := database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,

		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
	db, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.InfoContext(ctx, "connected to database", "host", dbCfg.Host, "database", dbCfg.Database)

	repo := store.New(db.Pool())

	m := metrics.New()
	httpServer, err := httpapi.New(component, repo, m, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build http server: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, db: db, repo: repo, metrics: m, http: httpServer}, nil
}

func (r *runtime) close() {
	if err := r.db.Close(); err != nil {
		r.logger.Error("error closing database client", "error", err)
	}
}
