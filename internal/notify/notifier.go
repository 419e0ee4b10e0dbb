// Package notify fans workflow events out to vendors and admins through
// the background queue. Delivery is fire-and-forget: a failed or skipped
// notification never rolls back the state transition that caused it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/procurehub/jobs"
)

// EventType enumerates workflow notifications.
type EventType string

const (
	// EventOfferWindowOpened tells vendors a request accepts offers.
	EventOfferWindowOpened EventType = "offer_window_opened"
	// EventOrderCreated tells a vendor an order was placed with them.
	EventOrderCreated EventType = "order_created"
	// EventOrderConfirmed tells admins a vendor confirmed.
	EventOrderConfirmed EventType = "order_confirmed"
	// EventOrderStatusChanged reports order progress to the counterparty.
	EventOrderStatusChanged EventType = "order_status_changed"
)

// Event is one notification. VendorID zero addresses the admin side.
type Event struct {
	Type      EventType
	VendorID  int64
	RequestID int64
	OrderID   int64
	Amount    decimal.Decimal
	Message   string
}

// Notifier is the notification sink boundary.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher queues notifications and suppresses duplicate fan-out for
// the same event within the dedupe window, so workflow retries do not
// spam vendors.
type Dispatcher struct {
	enqueuer  Enqueuer
	redis     *redis.Client
	logger    *slog.Logger
	printer   *message.Printer
	dedupeTTL time.Duration
}

// NewDispatcher constructs a Dispatcher. redis may be nil; dedupe is then
// disabled.
func NewDispatcher(enqueuer Enqueuer, rdb *redis.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		enqueuer:  enqueuer,
		redis:     rdb,
		logger:    logger,
		printer:   message.NewPrinter(language.Indonesian),
		dedupeTTL: 10 * time.Minute,
	}
}

// Notify queues the event for delivery.
func (d *Dispatcher) Notify(ctx context.Context, evt Event) error {
	if d.redis != nil {
		key := fmt.Sprintf("notify:dedupe:%s:%d:%d:%d", evt.Type, evt.VendorID, evt.RequestID, evt.OrderID)
		fresh, err := d.redis.SetNX(ctx, key, 1, d.dedupeTTL).Result()
		if err != nil {
			d.logger.Warn("notify dedupe check", slog.Any("error", err))
		} else if !fresh {
			d.logger.Debug("duplicate notification suppressed", slog.String("key", key))
			return nil
		}
	}
	text := evt.Message
	if !evt.Amount.IsZero() {
		amount, _ := evt.Amount.Float64()
		text = d.printer.Sprintf("%s (Rp %.2f)", evt.Message, amount)
	}
	task, err := jobs.NewNotifyDispatchTask(jobs.NotifyDispatchPayload{
		EventType: string(evt.Type),
		VendorID:  evt.VendorID,
		RequestID: evt.RequestID,
		OrderID:   evt.OrderID,
		Message:   text,
	})
	if err != nil {
		return fmt.Errorf("notify: build task: %w", err)
	}
	if d.enqueuer == nil {
		d.logger.Warn("notify enqueuer not configured, dropping event", slog.String("type", string(evt.Type)))
		return nil
	}
	if _, err := d.enqueuer.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("notify: enqueue: %w", err)
	}
	return nil
}
