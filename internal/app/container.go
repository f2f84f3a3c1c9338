// Package app assembles repositories and services from configuration so the API server and the
// operator CLI share one wiring.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/repository"
	"github.com/noah-isme/library-lending-api/internal/service"
	"github.com/noah-isme/library-lending-api/pkg/cache"
	"github.com/noah-isme/library-lending-api/pkg/config"
	"github.com/noah-isme/library-lending-api/pkg/database"
	"github.com/noah-isme/library-lending-api/pkg/jobs"
)

const drainTimeout = 5 * time.Second

// Container holds the wired dependencies of the lending engine.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Users    *repository.UserRepository
	Audit    *repository.AuditRepository
	Metrics  *service.MetricsService
	Queue    *jobs.Queue
	Policies *service.PolicyService

	Auth          *service.AuthService
	Lending       *service.LendingService
	Reservations  *service.ReservationService
	Inventory     *service.InventoryService
	Catalog       *service.CatalogService
	LendingRights *service.LendingRightsService
	Sweeper       *service.Sweeper
}

// New connects to Postgres and, when the policy cache is enabled, Redis, then builds every service.
// The notification queue is created but not started.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.PolicyCache.Enabled {
		redisClient, err = cache.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, policy cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	return build(cfg, logger, db, redisClient), nil
}

func build(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, redisClient *redis.Client) *Container {
	validate := validator.New()
	metrics := service.NewMetricsService()

	books := repository.NewBookRepository(db)
	students := repository.NewStudentRepository(db)
	categories := repository.NewCategoryRepository(db)
	rights := repository.NewLendingRightsRepository(db)
	borrowings := repository.NewBorrowingRepository(db)
	reservations := repository.NewReservationRepository(db)
	notifications := repository.NewNotificationRepository(db)
	users := repository.NewUserRepository(db)
	audit := repository.NewAuditRepository(db)

	var cacheStore service.PolicyCacheStore
	if cfg.PolicyCache.Enabled && redisClient != nil {
		cacheStore = repository.NewCacheRepository(redisClient, "lending")
	}
	policyCache := service.NewPolicyCache(cacheStore, metrics, cfg.PolicyCache.TTL, logger)

	queue := jobs.NewQueue("notifications", service.NotificationHandler(notifications), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		OnDrop:     func(jobs.Job, error) { metrics.RecordNotificationDropped() },
		Logger:     logger.Named("notifications"),
	})
	notifier := service.NewNotificationService(queue, metrics, logger)

	resolver := service.NewPolicyResolver(cfg.Lending)
	engine := service.NewEngine(repository.NewLendingStore(db), resolver, notifier, metrics, logger)
	policies := service.NewPolicyService(books, students, rights, borrowings, resolver, policyCache, logger)
	reservationSvc := service.NewReservationService(engine, reservations, cfg.Lending.MaxPickupExtensionDays, validate, logger)

	return &Container{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Redis:    redisClient,
		Users:    users,
		Audit:    audit,
		Metrics:  metrics,
		Queue:    queue,
		Policies: policies,
		Auth: service.NewAuthService(users, audit, validate, logger, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		}),
		Lending:       service.NewLendingService(engine, borrowings, validate, logger),
		Reservations:  reservationSvc,
		Inventory:     service.NewInventoryService(engine, validate, logger),
		Catalog:       service.NewCatalogService(books, students, categories, policies, logger),
		LendingRights: service.NewLendingRightsService(books, rights, policyCache, validate, logger),
		Sweeper:       service.NewSweeper(reservations, reservationSvc, borrowings, notifier, metrics, cfg.Sweeper.BatchSize, logger),
	}
}

// Start launches the notification workers.
func (c *Container) Start(ctx context.Context) {
	c.Queue.Start(ctx)
}

// Close waits up to drainTimeout for buffered notifications, stops the workers and releases connections.
func (c *Container) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := c.Queue.Shutdown(ctx); err != nil {
		c.Logger.Warn("notification queue did not drain", zap.Error(err))
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := c.DB.Close(); err != nil {
		c.Logger.Warn("close database", zap.Error(err))
	}
}
