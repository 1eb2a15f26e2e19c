package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-ordering/internal/auth"
	"ms-ordering/internal/clock"
	"ms-ordering/internal/config"
	"ms-ordering/internal/database"
	"ms-ordering/internal/database/migrations"
	"ms-ordering/internal/events"
	"ms-ordering/internal/kafka"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/order"
	"ms-ordering/internal/order/order_api"
	orderredis "ms-ordering/internal/order/redis"
	"ms-ordering/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

const (
	outboxInterval  = 30 * time.Second
	outboxBatchSize = 100
)

func newLogger(cfg config.LogConfig) *logger.Logger {
	if cfg.ToFile {
		return logger.NewLogger(cfg.Service)
	}
	return logger.New(logger.Options{Terminal: os.Stdout})
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, client.Options().DB))
	return client, nil
}

func migrate(bunDB *bun.DB, cfg config.DatabaseConfig, log *logger.Logger) error {
	// The runner is not closed: closing it would close the shared sql.DB.
	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: cfg.MigrationsDir}, log)
	return runner.MigrateUp()
}

func healthHandler(bunDB *bun.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"database": "ok", "redis": "ok"}
		healthy := true
		if err := bunDB.PingContext(ctx); err != nil {
			status["database"] = err.Error()
			healthy = false
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
			healthy = false
		}

		if !healthy {
			_ = utils.WriteJSON(w, http.StatusServiceUnavailable, utils.APIResponse{
				Message:   "Unhealthy",
				Data:      status,
				Timestamp: time.Now(),
			})
			return
		}
		_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Healthy", status))
	}
}

// relayOutbox publishes outbox rows a failed or disabled publish left behind.
func relayOutbox(ctx context.Context, dispatcher *events.Dispatcher, log *logger.Logger) error {
	ticker := time.NewTicker(outboxInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := dispatcher.DispatchPending(ctx, outboxBatchSize); err != nil && ctx.Err() == nil {
				log.Warn("KAFKA", fmt.Sprintf("Outbox relay: %v", err))
			}
		}
	}
}

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := newLogger(cfg.Log)
	defer log.Close()

	log.Info("APP", "Starting Ordering Service initialization")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		if err := migrate(bunDB, cfg.Database, log); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	}

	redisClient, err := connectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("REDIS", err.Error())
	}
	defer redisClient.Close()

	clk := clock.Real()

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}
	verifier = auth.NewCachingVerifier(verifier, auth.NewRedisTokenCache(redisClient, clk))
	log.Info("AUTH", fmt.Sprintf("Token verification mode: %s", cfg.Auth.Mode))

	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		publisher = producer

		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, domain events stay in the outbox")
	}

	dispatcher := events.NewDispatcher(bunDB, publisher, cfg.Kafka.Topics, clk, log)
	orders := order.NewService(bunDB, orderredis.NewCartLock(redisClient, cfg.Redis, log), dispatcher, cfg, clk, log)
	handler := order_api.NewHandler(orders, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(bunDB, redisClient))
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))
		r.Route("/api", handler.Routes)
	})
	log.Info("ROUTER", "Cart and order routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("Ordering Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.ExternalPayments, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Run(gctx, orders)
		})
		g.Go(func() error {
			return relayOutbox(gctx, dispatcher, log)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("APP", err.Error())
		return
	}
	log.Info("APP", "Ordering Service shutdown complete")
}
