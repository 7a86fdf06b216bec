package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/config"
	"github.com/cuongbtq/cashback-jobs/internal/events"
	"github.com/cuongbtq/cashback-jobs/internal/lock"
	"github.com/cuongbtq/cashback-jobs/internal/notify"
	"github.com/cuongbtq/cashback-jobs/internal/partner"
	"github.com/cuongbtq/cashback-jobs/internal/queue"
	"github.com/cuongbtq/cashback-jobs/internal/reconcile"
	"github.com/cuongbtq/cashback-jobs/internal/wallet"
	"github.com/cuongbtq/cashback-jobs/internal/worker"
	"github.com/cuongbtq/cashback-jobs/shared/logger"
	"github.com/cuongbtq/cashback-jobs/shared/postgresql"
	"github.com/cuongbtq/cashback-jobs/shared/rabbitmq"
	"github.com/cuongbtq/cashback-jobs/shared/redis"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize Redis client
	redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, cfg.App.Name, appLogger.Logger)
	if err != nil {
		redisClient.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client; credit events are also fanned out to the
	// broker when enabled
	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			dbClient.Close()
			redisClient.Close()
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		appLogger.Info("RabbitMQ connection established")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		dbClient.Close()
		redisClient.Close()
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	minWithdrawal, err := cfg.Wallet.MinWithdrawalAmount()
	if err != nil {
		return fmt.Errorf("invalid wallet config: %w", err)
	}

	queueClient := queue.NewClient(redisClient, appLogger.Logger)
	locker := lock.New(redisClient, appLogger.Logger)

	// Job handlers
	dispatcher := notify.NewDispatcher(
		notify.NewSendGrid(notify.SendGridConfig{
			APIKey:        cfg.Notify.SendGrid.APIKey,
			BaseURL:       cfg.Notify.SendGrid.BaseURL,
			FromEmail:     cfg.Notify.SendGrid.FromEmail,
			FromName:      cfg.Notify.SendGrid.FromName,
			Timeout:       cfg.Notify.SendGrid.Timeout,
			RatePerSecond: cfg.Notify.SendGrid.RatePerSecond,
			Burst:         cfg.Notify.SendGrid.Burst,
		}, appLogger.Logger),
		notify.NewMSG91(notify.MSG91Config{
			AuthKey:       cfg.Notify.MSG91.AuthKey,
			BaseURL:       cfg.Notify.MSG91.BaseURL,
			SenderID:      cfg.Notify.MSG91.SenderID,
			FlowID:        cfg.Notify.MSG91.FlowID,
			CountryPrefix: cfg.Notify.MSG91.CountryPrefix,
			Timeout:       cfg.Notify.MSG91.Timeout,
			RatePerSecond: cfg.Notify.MSG91.RatePerSecond,
			Burst:         cfg.Notify.MSG91.Burst,
		}, appLogger.Logger),
		cfg.Notify.Brand,
		appLogger.Logger,
	)

	ledger := wallet.New(&wallet.Config{
		Logger:                appLogger.Logger,
		Repository:            wallet.NewPostgresRepository(dbClient.GetDB()),
		Locker:                locker,
		Notifier:              queueClient,
		LockTTL:               cfg.Wallet.LockTTL,
		MinWithdrawal:         minWithdrawal,
		MaxPendingWithdrawals: cfg.Wallet.MaxPendingWithdrawals,
	})

	jobRouter := worker.NewRouter()
	dispatcher.Register(jobRouter)
	ledger.Register(jobRouter)

	hostname, _ := os.Hostname()

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:      appLogger.Logger,
		Queue:       queueClient,
		Router:      jobRouter,
		WorkerID:    hostname,
		Queues:      cfg.Worker.Queues,
		Concurrency: cfg.Worker.Concurrency,
		PollTimeout: cfg.Worker.PollTimeout,
		IdleSleep:   cfg.Worker.IdleSleep,
		MaxAttempts: cfg.Worker.MaxAttempts,
		JobTimeout:  cfg.Worker.JobTimeout,
	})

	reconciler := initReconciler(cfg, appLogger.Logger, dbClient, queueClient, rabbitClient, locker)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return workerInstance.Start(gctx)
	})

	g.Go(func() error {
		return reconciler.Listen(gctx, redisClient)
	})

	var scheduler *cron.Cron
	if cfg.Sync.Enabled {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Sync.Schedule, func() {
			runSync(gctx, appLogger.Logger, reconciler, cfg.Sync.Lookback)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule sync: %w", err)
		}
		scheduler.Start()

		appLogger.Info("Reconciliation scheduled",
			slog.String("schedule", cfg.Sync.Schedule),
			slog.Int("partners", len(cfg.Partners)),
		)
	}

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case <-gctx.Done():
		if err := g.Wait(); err != nil {
			appLogger.Error("Worker error",
				slog.Any("error", err),
			)
			runErr = err
		}
	}

	// Cancel context to stop worker, listener and any running sync
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}
		workerInstance.Stop()
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}

// runSync performs one scheduled reconciliation pass
func runSync(ctx context.Context, logger *slog.Logger, r *reconcile.Reconciler, lookback time.Duration) {
	now := time.Now().UTC()
	since := reconcile.DefaultSince(now)
	if lookback > 0 {
		since = now.Add(-lookback)
	}

	summary, err := r.Run(ctx, since)
	if errors.Is(err, reconcile.ErrSyncInProgress) {
		return
	}
	if err != nil {
		logger.Error("Scheduled reconciliation failed", slog.Any("error", err))
		return
	}

	logger.Info("Scheduled reconciliation finished",
		slog.Time("since", since),
		slog.Any("summary", summary),
	)
}

// initReconciler builds the reconciler with one HTTP source per partner
func initReconciler(
	cfg *config.Config,
	logger *slog.Logger,
	dbClient *postgresql.Client,
	queueClient *queue.Client,
	rabbitClient *rabbitmq.Client,
	locker *lock.Locker,
) *reconcile.Reconciler {
	sources := make([]partner.Source, 0, len(cfg.Partners))
	for _, p := range cfg.Partners {
		sources = append(sources, partner.NewHTTPSource(partner.HTTPConfig{
			Network:       p.Network,
			URL:           p.URL,
			AuthHeader:    p.AuthHeader,
			AuthValue:     p.AuthValue,
			PageSize:      p.PageSize,
			MaxPages:      p.MaxPages,
			Timeout:       p.Timeout,
			RatePerSecond: p.RatePerSecond,
			Burst:         p.Burst,
		}, logger))
	}

	emitter := events.Multi{events.NewQueueEmitter(queueClient)}
	if rabbitClient != nil {
		emitter = append(emitter, events.NewBrokerEmitter(rabbitClient))
	}

	return reconcile.New(&reconcile.Config{
		Logger:           logger,
		Repository:       reconcile.NewPostgresRepository(dbClient.GetDB()),
		Sources:          sources,
		Emitter:          emitter,
		Locker:           locker,
		LockTTL:          cfg.Sync.LockTTL,
		FetchConcurrency: cfg.Sync.FetchConcurrency,
	})
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig, app *config.AppConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		Service:      app.Name,
		Version:      app.Version,
	}

	return logger.New(loggerCfg)
}

// initRedis initializes the Redis client backing queues and locks
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.Config{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, appName string, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ApplicationName: appName,
		ConnectTimeout:  cfg.ConnectTimeout,
		RetryAttempts:   cfg.RetryAttempts,
		RetryInterval:   cfg.RetryInterval,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
