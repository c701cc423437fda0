// Package control wires the resilience components together and manages
// their lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/saracrm/courier/internal/alert"
	"github.com/saracrm/courier/internal/core/config"
	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/health"
	redisclient "github.com/saracrm/courier/internal/infra/redis"
	"github.com/saracrm/courier/internal/infra/storage/postgres"
	"github.com/saracrm/courier/internal/messaging"
	"github.com/saracrm/courier/internal/queue"
	"github.com/saracrm/courier/internal/resilience/ratelimit"
	"github.com/saracrm/courier/internal/webhook"
	"github.com/saracrm/courier/internal/worker"
)

// Courier is the main application struct that manages the delivery pipeline.
type Courier struct {
	cfg *config.AppConfig

	db          *postgres.DB
	redisClient *redisclient.Client

	sender     messaging.Sender
	limiter    *ratelimit.Limiter
	queueSvc   *queue.Service
	runner     *queue.Runner
	dispatcher *webhook.Dispatcher
	webhookSvc *webhook.Service
	pruner     *worker.Pruner

	healthServer *health.Server
	log          *slog.Logger
}

// NewCourier creates a Courier instance with all dependencies initialized.
// Redis is optional: without it the rate limiter and config cache fall back
// to unguarded sends and uncached reads.
func NewCourier(cfg *config.AppConfig) (*Courier, error) {
	log := slog.Default()

	// 1. Storage
	db, err := postgres.NewDB(context.Background(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}
	if err := goose.Up(db.DB.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	queueRepo := postgres.NewRetryQueueRepo(db)
	webhookRepo := postgres.NewWebhookRepo(db)
	deliveryRepo := postgres.NewDeliveryRepo(db)

	// 2. Redis
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, rate limiting and config caching disabled", "error", err)
			redisClient = nil
		}
	}

	// 3. Webhook fan-out
	var cacheStore webhook.ByteStore
	if redisClient != nil {
		cacheStore = redisClient
	}
	configCache := webhook.NewConfigCache(webhookRepo, cacheStore, log)
	dispatcher := webhook.NewDispatcher(configCache, deliveryRepo, log)
	webhookSvc := webhook.NewService(webhookRepo, deliveryRepo, configCache, log)

	// 4. Outbound sending
	sender := messaging.NewAPIClient(cfg.Messaging.APIURL, cfg.Messaging.APIToken, log)

	var notifier queue.Notifier
	if cfg.Messaging.OpsPhone != "" {
		notifier = &alert.PhoneNotifier{Sender: sender, OpsPhone: cfg.Messaging.OpsPhone}
	} else {
		notifier = &alert.LogNotifier{Logger: log}
	}

	queueSvc := queue.NewService(queueRepo, sender, dispatcher, notifier, log)

	var limiter *ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.New(redisClient, queueSvc, "whatsapp", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	runner := queue.NewRunner(queue.RunnerConfig{
		Interval:  cfg.Queue.DrainInterval,
		BatchSize: cfg.Queue.BatchSize,
	}, queueSvc, log)

	pruner := worker.NewPruner(cfg.Webhooks.DeliveryRetention, deliveryRepo, log)

	// 5. Health
	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	healthMon := health.NewMonitor(db, redisPinger, queueRepo)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Courier{
		cfg:          cfg,
		db:           db,
		redisClient:  redisClient,
		sender:       sender,
		limiter:      limiter,
		queueSvc:     queueSvc,
		runner:       runner,
		dispatcher:   dispatcher,
		webhookSvc:   webhookSvc,
		pruner:       pruner,
		healthServer: healthServer,
		log:          log,
	}, nil
}

// Start starts the background loops. It returns immediately; the loops stop
// when ctx is cancelled.
func (c *Courier) Start(ctx context.Context) error {
	go func() {
		if err := c.healthServer.Start(); err != nil {
			c.log.Error("Health server failed", "error", err)
		}
	}()

	c.db.StartMetricsCollector(ctx)

	go func() {
		if err := c.runner.Run(ctx); err != nil {
			c.log.Error("Queue runner failed", "error", err)
		}
	}()

	go c.pruner.Start(ctx)

	c.log.Info("Courier started", "port", c.cfg.Server.Port)
	return nil
}

// Stop drains in-flight work and closes connections.
func (c *Courier) Stop(ctx context.Context) error {
	c.log.Info("Stopping Courier...")

	// Let in-flight webhook deliveries settle before closing the DB they
	// record into.
	c.dispatcher.Wait()

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.log.Warn("Failed to close Redis", "error", err)
		}
	}

	err := c.healthServer.Stop(ctx)

	if dbErr := c.db.Close(); dbErr != nil {
		c.log.Warn("Failed to close DB", "error", dbErr)
	}
	return err
}

// Send pushes one message through the rate limiter to the provider. A
// rate-limited send is not an error: it is already queued for replay. A
// failed send is enqueued according to its classification and the error is
// returned so the caller can tell the user.
func (c *Courier) Send(ctx context.Context, msg domain.OutboundMessage) error {
	doSend := func(ctx context.Context) error {
		return c.sender.Send(ctx, &msg)
	}

	var err error
	if c.limiter != nil {
		var outcome ratelimit.Outcome
		outcome, err = c.limiter.Do(ctx, msg, doSend)
		if outcome.RateLimited {
			return nil
		}
	} else {
		err = doSend(ctx)
	}

	if err != nil {
		c.queueSvc.Enqueue(ctx, &msg, err)
		return err
	}
	return nil
}

// Queue exposes the retry queue service, for the CLI.
func (c *Courier) Queue() *queue.Service {
	return c.queueSvc
}

// Webhooks exposes the webhook config service, for the CLI.
func (c *Courier) Webhooks() *webhook.Service {
	return c.webhookSvc
}
