/**
 * @description
 * This is the main entry point for the onboarding-service. It is responsible
 * for initializing the application, wiring up dependencies, and starting the
 * HTTP server, the RabbitMQ consumers and the reconciliation scheduler.
 *
 * Key features:
 * - Loads configuration from environment variables.
 * - Establishes and manages a connection pool to the PostgreSQL database.
 * - Connects to Redis for the cached verification status view.
 * - Sets up RabbitMQ consumers for onboarding and sync request events.
 * - Starts the cron scheduler for periodic status reconciliation.
 * - Implements graceful shutdown to ensure clean resource cleanup.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: For database connection pooling.
 * - github.com/joho/godotenv: To load .env files for local development.
 * - github.com/redis/go-redis/v9: The Redis client.
 * - The service's internal packages for config, app logic, storage, HTTP API
 *   and messaging.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/transferhub/onboarding-service/internal/api"
	"github.com/transferhub/onboarding-service/internal/app"
	"github.com/transferhub/onboarding-service/internal/config"
	"github.com/transferhub/onboarding-service/internal/store"
	"github.com/transferhub/onboarding-service/pkg/providerclient"
	"github.com/transferhub/onboarding-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	// Establish database connection pool.
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to parse database URL: %v\n", err)
	}

	dbConfig.MaxConns = 10
	dbConfig.MinConns = 2
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	dbpool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer dbpool.Close()
	log.Println("Database connection established")

	// Connect to Redis for the status cache.
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Unable to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(redisOptions)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.Fatalf("Unable to connect to Redis: %v", err)
	}
	cancelPing()
	defer redisClient.Close()
	log.Println("Redis connection established")

	// Set up repositories and clients.
	submissionRepo := store.NewPostgresSubmissionRepository(dbpool)
	userRepo := store.NewPostgresUserRepository(dbpool)
	resourceRepo := store.NewPostgresResourceRepository(dbpool)
	statusCache := store.NewRedisStatusCache(redisClient)
	providerClient := providerclient.NewClient(cfg.ProviderAPIBaseURL, cfg.ProviderAPIKey)

	// Set up the event producer.
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, "onboarding_events")
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ producer: %v", err)
	}
	defer producer.Close()

	// Wire up the application services.
	cacheTTL := time.Duration(cfg.StatusCacheTTLSeconds) * time.Second
	payloadBuilder := app.NewPayloadBuilder(submissionRepo, userRepo)
	orchestrator := app.NewOrchestrator(userRepo, submissionRepo, payloadBuilder, providerClient, statusCache)
	provisioner := app.NewProvisioner(resourceRepo, userRepo, providerClient, cfg.Currencies())
	synchronizer := app.NewSynchronizer(userRepo, providerClient, provisioner, statusCache, producer, cacheTTL)
	submissionService := app.NewSubmissionService(submissionRepo, resourceRepo, producer)
	eventHandler := app.NewOnboardingEventHandler(orchestrator, synchronizer)

	// Start the RabbitMQ consumers.
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	startConsumer := func(queueName, routingKey string, handler func(body []byte) bool) {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ consumer: %v", err)
		}
		go func() {
			defer consumer.Close()
			log.Printf("Starting consumer for queue '%s'...", queueName)
			err := consumer.Consume(consumerCtx, "onboarding_events", queueName, []string{routingKey}, handler)
			if err != nil && consumerCtx.Err() == nil {
				log.Printf("Consumer error on queue '%s': %v", queueName, err)
			}
		}()
	}

	startConsumer("onboarding_service_customer_requested", "customer.onboarding.requested", eventHandler.HandleOnboardingRequested)
	startConsumer("onboarding_service_sync_requested", "customer.sync.requested", eventHandler.HandleSyncRequested)

	// Start the reconciliation scheduler.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	jobs := app.NewJobs(userRepo, synchronizer, logger, cfg.SyncBatchSize)
	scheduler := app.NewScheduler(jobs, logger, cfg.SyncSchedule)
	scheduler.Start()

	// Set up and start the HTTP server.
	router := api.NewRouter(cfg, api.RouterDeps{
		Submissions:  submissionService,
		Orchestrator: orchestrator,
		Synchronizer: synchronizer,
		Publisher:    producer,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Println("Onboarding service is running. Waiting for events.")

	// Wait for termination signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down onboarding-service...")

	stopConsumers()
	<-scheduler.Stop().Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
}
