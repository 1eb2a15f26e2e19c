// Command cleanup deletes abandoned carts and relays outbox rows that were
// never published. It is meant to be run from cron or a job scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"ms-ordering/internal/clock"
	"ms-ordering/internal/config"
	"ms-ordering/internal/database"
	"ms-ordering/internal/events"
	"ms-ordering/internal/kafka"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/order"
	orderredis "ms-ordering/internal/order/redis"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	relay := flag.Int("relay", 500, "outbox rows to publish, 0 to skip")
	flag.Parse()

	log := logger.New(logger.Options{Terminal: os.Stdout})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer redisClient.Close()

	var publisher events.Publisher
	if cfg.Kafka.Enabled && *relay > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		publisher = producer
	}

	clk := clock.Real()
	dispatcher := events.NewDispatcher(bunDB, publisher, cfg.Kafka.Topics, clk, log)
	orders := order.NewService(bunDB, orderredis.NewCartLock(redisClient, cfg.Redis, log), dispatcher, cfg, clk, log)

	removed, err := orders.RemoveAbandonedCarts(ctx)
	if err != nil {
		log.Error("ORDER", fmt.Sprintf("Removing abandoned carts: %v", err))
		os.Exit(1)
	}
	log.Info("ORDER", fmt.Sprintf("Removed %d abandoned carts", removed))

	if publisher != nil {
		if err := dispatcher.DispatchPending(ctx, *relay); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Outbox relay: %v", err))
			os.Exit(1)
		}
	}
}
