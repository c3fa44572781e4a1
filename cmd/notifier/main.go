// Command notifier consumes booking events from RabbitMQ and appends one
// line per event to $NOTIFY_DIR/notifications.log.  It stands in for the
// email/SMS collaborator.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/bus-seat-booking/internal/config"
	"github.com/iliyamo/bus-seat-booking/internal/queue"
)

func main() {
	_ = godotenv.Load()
	logger := config.NewLogger(os.Getenv("LOG_LEVEL"), "booking-notifier")

	dir := os.Getenv("NOTIFY_DIR")
	if dir == "" {
		dir = "."
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := queue.StartConsumer(ctx, config.AMQPURL(), dir, logger); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
}
