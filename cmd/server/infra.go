package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"

	"certify/internal/certificate/store"
	"certify/internal/contentstore"
	"certify/internal/coursedata"
	"certify/internal/mint/queue"
	"certify/internal/platform/config"
	"certify/internal/platform/database"
	"certify/internal/platform/health"
	"certify/internal/platform/kafka"
	"certify/internal/platform/kafka/producer"
	redisclient "certify/internal/platform/redis"
	"certify/internal/platform/sqlite"
	"certify/internal/seeder"
)

// infra owns every external connection the process opens. close releases
// them in reverse order of acquisition.
type infra struct {
	pool     *database.Pool
	redis    *redisclient.Client
	producer *producer.Producer
	mongo    *mongo.Client
	sqlite   *sql.DB

	certificates store.Store
	queue        queue.Store
	courses      coursedata.Provider
	content      contentstore.Store

	closers []func()
}

func (in *infra) onClose(fn func()) {
	in.closers = append(in.closers, fn)
}

func (in *infra) close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
}

func openInfra(ctx context.Context, cfg *config.Server, reg prometheus.Registerer, checks *health.Handler, log *slog.Logger) (*infra, error) {
	in := &infra{}
	steps := []func(context.Context, *config.Server, prometheus.Registerer, *health.Handler, *slog.Logger) error{
		in.openDatabase,
		in.openQueue,
		in.openRedis,
		in.openKafka,
		in.openContent,
		in.openCourses,
	}
	for _, step := range steps {
		if err := step(ctx, cfg, reg, checks, log); err != nil {
			in.close()
			return nil, err
		}
	}
	return in, nil
}

func (in *infra) openDatabase(ctx context.Context, cfg *config.Server, reg prometheus.Registerer, checks *health.Handler, log *slog.Logger) error {
	pool, err := database.New(ctx, database.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if pool == nil {
		log.Warn("DATABASE_URL not set, certificates are kept in memory")
		in.certificates = store.NewInMemoryStore()
		return nil
	}
	in.pool = pool
	in.onClose(func() { _ = pool.Close() })

	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := pool.RegisterMetrics(reg); err != nil {
		return fmt.Errorf("register database metrics: %w", err)
	}
	checks.RegisterCheck("database", pool.Health)
	in.certificates = store.NewPostgres(pool.DB())
	log.Info("postgres connected", "max_open_conns", pool.Stats().MaxOpenConnections)
	return nil
}

func (in *infra) openQueue(ctx context.Context, cfg *config.Server, _ prometheus.Registerer, checks *health.Handler, log *slog.Logger) error {
	switch cfg.Queue.Backend {
	case config.QueuePostgres:
		in.queue = queue.NewPostgres(in.pool.DB())
	case config.QueueSQLite:
		db, err := sqlite.Open(ctx, cfg.Queue.SQLitePath)
		if err != nil {
			return err
		}
		in.sqlite = db
		in.onClose(func() { _ = db.Close() })
		q, err := queue.NewSQLite(ctx, db)
		if err != nil {
			return fmt.Errorf("prepare sqlite queue: %w", err)
		}
		in.queue = q
		checks.RegisterCheck("queue", db.PingContext)
	default:
		log.Warn("mint queue is in memory, queued anchors are lost on restart")
		in.queue = queue.NewInMemoryStore()
	}
	log.Info("mint queue ready", "backend", cfg.Queue.Backend)
	return nil
}

func (in *infra) openRedis(ctx context.Context, cfg *config.Server, reg prometheus.Registerer, checks *health.Handler, log *slog.Logger) error {
	client, err := redisclient.New(ctx, cfg.Redis, reg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		return nil
	}
	in.redis = client
	in.onClose(func() { _ = client.Close() })
	checks.RegisterCheck("redis", client.Health)
	log.Info("redis connected")
	return nil
}

func (in *infra) openKafka(_ context.Context, cfg *config.Server, _ prometheus.Registerer, checks *health.Handler, log *slog.Logger) error {
	if cfg.Kafka.Brokers == "" {
		return nil
	}
	p, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), log)
	if err != nil {
		return err
	}
	in.producer = p
	in.onClose(func() { p.Close(5 * time.Second) })
	checks.RegisterCheck("kafka", kafka.NewHealthChecker(cfg.Kafka.Brokers, p).Check)
	log.Info("kafka producer ready", "topic", cfg.Kafka.NotifyTopic)
	return nil
}

func (in *infra) openContent(ctx context.Context, cfg *config.Server, _ prometheus.Registerer, checks *health.Handler, log *slog.Logger) error {
	switch cfg.Content.Backend {
	case config.ContentIPFS:
		in.content = contentstore.NewIPFSStore(cfg.Content.IPFSAPIURL, cfg.Content.IPFSGateway, cfg.Content.Timeout)
	case config.ContentMongo:
		client, err := contentstore.ConnectMongo(ctx, cfg.Content.MongoURI)
		if err != nil {
			return err
		}
		in.mongo = client
		in.onClose(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		})
		checks.RegisterCheck("mongo", func(ctx context.Context) error { return client.Ping(ctx, nil) })
		in.content = contentstore.NewMongoStore(client.Database(cfg.Content.MongoDB), cfg.PublicURL)
	default:
		in.content = contentstore.Served{Store: contentstore.NewInMemoryStore(), BaseURL: cfg.PublicURL}
	}
	log.Info("content store ready", "backend", cfg.Content.Backend)
	return nil
}

func (in *infra) openCourses(_ context.Context, cfg *config.Server, _ prometheus.Registerer, checks *health.Handler, log *slog.Logger) error {
	if cfg.CourseDBDSN != "" {
		provider, err := coursedata.OpenGorm(cfg.CourseDBDSN)
		if err != nil {
			return err
		}
		in.onClose(func() {
			if db, err := provider.DB().DB(); err == nil {
				_ = db.Close()
			}
		})
		checks.RegisterCheck("course_db", provider.Ping)
		in.courses = provider
		return nil
	}

	provider := coursedata.NewInMemoryProvider()
	if !cfg.IsProduction() {
		seeder.New(provider, log).SeedAll()
		log.Info("demo students available", "students", seeder.Describe())
	}
	in.courses = provider
	return nil
}
