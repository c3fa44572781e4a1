package service

import (
    "context"
    "log/slog"
    "time"

    "github.com/iliyamo/bus-seat-booking/internal/metrics"
    "github.com/iliyamo/bus-seat-booking/internal/queue"
)

// EventPublisher delivers one event to the broker.
type EventPublisher interface {
    Publish(ctx context.Context, ev queue.BookingEvent) error
}

// AsyncNotifier decouples booking requests from notification delivery.
// Notify never blocks: when the buffer is full the event is dropped and
// counted.  Delivery is at most once; a failed publish is logged, not
// retried.
type AsyncNotifier struct {
    pub     EventPublisher
    events  chan queue.BookingEvent
    timeout time.Duration
    logger  *slog.Logger
}

// NewAsyncNotifier returns a notifier with the given buffer size (at
// least 1).  Call Run to start delivering.
func NewAsyncNotifier(pub EventPublisher, buffer int, logger *slog.Logger) *AsyncNotifier {
    if buffer < 1 {
        buffer = 1
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &AsyncNotifier{pub: pub, events: make(chan queue.BookingEvent, buffer), timeout: 5 * time.Second, logger: logger}
}

// Notify queues ev for delivery.
func (n *AsyncNotifier) Notify(ev queue.BookingEvent) {
    select {
    case n.events <- ev:
    default:
        metrics.NotificationsDropped.Inc()
        n.logger.Warn("notification buffer full; event dropped", "type", ev.Type, "pnr", ev.PNR)
    }
}

// Run publishes queued events until ctx is cancelled.
func (n *AsyncNotifier) Run(ctx context.Context) {
    for {
        select {
        case <-ctx.Done():
            return
        case ev := <-n.events:
            n.publish(ctx, ev)
        }
    }
}

func (n *AsyncNotifier) publish(ctx context.Context, ev queue.BookingEvent) {
    ctx, cancel := context.WithTimeout(ctx, n.timeout)
    defer cancel()
    if err := n.pub.Publish(ctx, ev); err != nil {
        metrics.NotificationsDropped.Inc()
        n.logger.Warn("publish booking event failed", "type", ev.Type, "pnr", ev.PNR, "error", err)
        return
    }
    n.logger.Debug("booking event published", "type", ev.Type, "pnr", ev.PNR, "event_id", ev.EventID)
}
