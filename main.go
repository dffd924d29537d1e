package main

import (
	"context"
	"log"
	"net/http"

	"booking-engine/internal/api"
	"booking-engine/internal/booking"
	"booking-engine/internal/cache"
	"booking-engine/internal/config"
	"booking-engine/internal/db"
	"booking-engine/internal/event"
	"booking-engine/internal/kafka"
	"booking-engine/internal/logging"
	"booking-engine/internal/metrics"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoadConfig("./config")

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	connStr := db.ConnString(cfg.Database)

	if err := db.RunMigrations(connStr, "./migrations"); err != nil {
		log.Fatal(err)
	}

	dbpool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer dbpool.Close()

	bookingRepo := db.NewBookingRepository(dbpool)
	eventRepo := db.NewPaymentEventRepository(dbpool)
	rateRepo := db.NewCommissionConfigRepository(dbpool)

	availability := cache.NewAvailabilityCache(cfg.Redis, logger)

	ledger := booking.NewLedger(bookingRepo, logger)
	bookingService := booking.NewService(bookingRepo, ledger, availability, cfg.Booking.LockTimeoutMs, logger)

	reconciler := event.NewReconciler(eventRepo, bookingRepo, ledger, rateRepo, availability, cfg.Webhook.Secret, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Kafka.Enabled {
		eventReader := kafka.NewReader(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.PaymentEvents, cfg.Kafka.Reader.GroupID)
		defer eventReader.Close()

		kafka.ReadPaymentEvents(ctx, eventReader, reconciler, logger)
	}

	handler := api.NewHandler(bookingService, rateRepo, reconciler, logger)

	logger.Info("Starting server", "port", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, handler))
}
