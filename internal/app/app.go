// Package app assembles the replenishment engine from configuration. Both the
// HTTP server and the command line tool start from New.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/drive"
	"github.com/andresuchdata/autopo-replenish/internal/events"
	"github.com/andresuchdata/autopo-replenish/internal/lock"
	"github.com/andresuchdata/autopo-replenish/internal/repository"
	"github.com/andresuchdata/autopo-replenish/internal/repository/sqldb"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/andresuchdata/autopo-replenish/internal/storage"
	"github.com/andresuchdata/autopo-replenish/internal/telemetry"
)

const buildLockTTL = 30 * time.Second

type App struct {
	Config *config.Config
	DB     *sqldb.DB
	Store  *repository.Store
	Redis  *redis.Client

	Publisher events.Publisher
	Objects   storage.ObjectStorage // nil when object storage is disabled
	Exporter  storage.OrderExporter
	Drive     *drive.Service // nil without Drive credentials
	Importer  *drive.Importer

	Rules          *service.RuleService
	Suggestions    *service.SuggestionService
	PurchaseOrders *service.PurchaseOrderService
	Suppliers      *service.SupplierService
	Projections    *service.ProjectionService

	shutdownTracing func(context.Context) error
}

// New connects every backing service and builds the domain services. The
// database is required; Redis, Kafka, object storage and Drive are optional
// and fall back to in-process or no-op implementations when disabled.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracing = shutdown

	a.DB, err = sqldb.Open(cfg.Database)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.DB.Migrate(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Store = sqldb.NewStore(a.DB)

	a.Redis, err = cache.NewRedisClient(cfg.Cache)
	if err != nil {
		// The caches are an optimisation; run without them.
		log.Warn().Err(err).Msg("Redis unavailable, continuing without cache")
		a.Redis = nil
	}

	var locker lock.Locker = lock.NewLocal()
	if a.Redis != nil {
		locker = lock.NewRedis(a.Redis, buildLockTTL)
	}
	perfCache := cache.NewSupplierPerformanceCache(a.Redis, cfg.Cache.PerformanceTTLSeconds)
	suggestionCache := cache.NewSuggestionCache(a.Redis, cfg.Cache.SuggestionTTLSeconds)

	a.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled {
		a.Publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing purchase order events to Kafka")
	}

	a.Exporter = storage.NoopExporter{}
	if cfg.Storage.Enabled {
		client, err := storage.NewMinioClient(ctx, cfg.Storage)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		a.Objects = client
		a.Exporter = storage.NewCSVExporter(client, cfg.Storage.Prefix)
	}

	a.Importer = drive.NewImporter(a.Store.Demand, a.Store.Stock)
	if cfg.Drive.CredentialsFile != "" {
		creds, err := os.ReadFile(cfg.Drive.CredentialsFile)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("read drive credentials: %w", err)
		}
		a.Drive, err = drive.NewService(ctx, creds)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	r := cfg.Replenishment
	a.Rules = service.NewRuleService(a.Store, suggestionCache, r)
	a.Suggestions = service.NewSuggestionService(a.Store, suggestionCache, r)
	a.PurchaseOrders = service.NewPurchaseOrderService(service.PurchaseOrderDeps{
		Store:            a.Store,
		Suggestions:      a.Suggestions,
		Locker:           locker,
		Publisher:        a.Publisher,
		Exporter:         a.Exporter,
		PerformanceCache: perfCache,
		SuggestionCache:  suggestionCache,
		Config:           r,
	})
	a.Suppliers = service.NewSupplierService(a.Store, perfCache, r)
	a.Projections = service.NewProjectionService(a.Store, r)

	return a, nil
}

// Ingest returns the Drive ingest pipeline, or nil without Drive credentials.
func (a *App) Ingest() *drive.IngestService {
	if a.Drive == nil {
		return nil
	}
	return drive.NewIngestService(a.Drive, a.Importer)
}

// Ping checks the database and, when configured, Redis.
func (a *App) Ping(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases every connection, logging failures.
func (a *App) Close(ctx context.Context) {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing event publisher")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing Redis client")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing database")
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			log.Warn().Err(err).Msg("Flushing traces")
		}
	}
}
