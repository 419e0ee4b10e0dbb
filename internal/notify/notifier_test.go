package notify

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type countingEnqueuer struct {
	tasks []*asynq.Task
}

func (c *countingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestNotifyEnqueuesTask(t *testing.T) {
	enq := &countingEnqueuer{}
	d := NewDispatcher(enq, nil, slog.Default())

	err := d.Notify(context.Background(), Event{
		Type:      EventOrderCreated,
		VendorID:  5,
		RequestID: 1,
		OrderID:   9,
		Amount:    decimal.NewFromInt(9500),
		Message:   "order placed",
	})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	require.Contains(t, string(enq.tasks[0].Payload()), "order_created")
}

func TestNotifyDedupesRepeatedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	enq := &countingEnqueuer{}
	d := NewDispatcher(enq, rdb, slog.Default())
	ctx := context.Background()

	evt := Event{Type: EventOrderStatusChanged, VendorID: 5, OrderID: 9, Message: "shipped"}
	require.NoError(t, d.Notify(ctx, evt))
	require.NoError(t, d.Notify(ctx, evt))
	require.Len(t, enq.tasks, 1)

	// A different order is not suppressed.
	other := evt
	other.OrderID = 10
	require.NoError(t, d.Notify(ctx, other))
	require.Len(t, enq.tasks, 2)
}
