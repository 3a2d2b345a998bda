package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secondchance/internal/config"
	"secondchance/internal/events"
	applog "secondchance/internal/logger"
	"secondchance/internal/repositories"
	"secondchance/internal/server"
	"secondchance/internal/services"
	"secondchance/internal/storage"
	"secondchance/pkg/rabbitmq"
	"secondchance/pkg/security"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	// --- Configuration ---
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()
	v := viper.New()
	v.AutomaticEnv()

	cfg, err := config.Load(v)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := applog.New("secondchance", cfg.AppEnv, cfg.LogLevel)

	// --- Store ---
	// Opened once and shared by both services.
	store, err := repositories.Open(cfg.DBDriver, cfg.DatabaseDSN, applog.Gorm(log))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	attachments, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to prepare upload directory: %v", err)
	}

	tokens, err := security.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to initialize token manager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Optional RabbitMQ: catalog events and the attachment janitor ---
	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.CatalogExchange,
			Queue:    cfg.CatalogQueue,
		})
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ client: %v", err)
		}
		defer mqClient.Close()
		publisher = mqClient

		janitor := events.NewAttachmentJanitor(attachments, log)
		if err := mqClient.ConsumeCatalogEvents(ctx, janitor.Handle); err != nil {
			log.Fatalf("Failed to start catalog event consumer: %v", err)
		}
		log.Info("Catalog event consumer started")
	} else {
		log.Info("RABBITMQ_URL not set, attachments are removed inline")
	}

	// --- Optional Redis: login rate limiting ---
	deps := server.Deps{
		Health:   store,
		ImageDir: attachments.Dir(),
		Log:      log,
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis unreachable, rate limiter will fail open")
		}
		deps.Redis = rdb
	}

	// --- Services ---
	deps.Auth = services.NewAuthService(store.Users, tokens, security.NewPasswordHasher(cfg.BcryptCost), log)
	deps.Items = services.NewItemService(store.Items, attachments, publisher, cfg.MaxUploadBytes, log)

	app := server.New(cfg, deps)

	// --- Start HTTP Server ---
	log.WithFields(logrus.Fields{
		"port":      cfg.AppPort,
		"db":        cfg.DBDriver,
		"token_ttl": tokens.TTL().String(),
	}).Info("Starting server")

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Info("Shutting down server...")
	cancel()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Error("Error during Fiber shutdown")
	}

	log.Info("Server gracefully stopped")
}
