package order

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/procurehub/internal/notify"
	"github.com/odyssey-erp/procurehub/internal/offer"
	"github.com/odyssey-erp/procurehub/internal/request"
	"github.com/odyssey-erp/procurehub/internal/shared"
)

type memoryOrderRepo struct {
	nextID        int64
	orders        map[int64]*VendorOrder
	history       map[int64][]StatusHistory
	numbers       map[string]bool
	requestStatus map[int64]request.Status
	failVendors   map[int64]bool
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{
		orders:        map[int64]*VendorOrder{},
		history:       map[int64][]StatusHistory{},
		numbers:       map[string]bool{},
		requestStatus: map[int64]request.Status{},
		failVendors:   map[int64]bool{},
	}
}

func (m *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, (*memoryOrderTx)(m))
}

func (m *memoryOrderRepo) GetOrder(ctx context.Context, id int64) (VendorOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return VendorOrder{}, shared.NewNotFound(fmt.Sprintf("vendor order %d not found", id))
	}
	return *o, nil
}

func (m *memoryOrderRepo) ListByRequest(ctx context.Context, requestID int64) ([]VendorOrder, error) {
	var out []VendorOrder
	for id := int64(1); id <= m.nextID; id++ {
		if o, ok := m.orders[id]; ok && o.RequestID == requestID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memoryOrderRepo) ListByVendor(ctx context.Context, vendorID int64) ([]VendorOrder, error) {
	var out []VendorOrder
	for id := int64(1); id <= m.nextID; id++ {
		if o, ok := m.orders[id]; ok && o.VendorID == vendorID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memoryOrderRepo) GetHistory(ctx context.Context, orderID int64) ([]StatusHistory, error) {
	return append([]StatusHistory(nil), m.history[orderID]...), nil
}

func (m *memoryOrderRepo) GetRequestStatus(ctx context.Context, requestID int64) (request.Status, error) {
	status, ok := m.requestStatus[requestID]
	if !ok {
		return "", shared.NewNotFound(fmt.Sprintf("purchase request %d not found", requestID))
	}
	return status, nil
}

type memoryOrderTx memoryOrderRepo

func (t *memoryOrderTx) InsertOrder(ctx context.Context, o VendorOrder) (int64, error) {
	if t.failVendors[o.VendorID] {
		return 0, shared.NewPersistence("insert vendor order", fmt.Errorf("storage unavailable"))
	}
	if t.numbers[o.OrderNumber] {
		return 0, shared.NewDuplicate("order number already exists", nil)
	}
	t.numbers[o.OrderNumber] = true
	t.nextID++
	o.ID = t.nextID
	t.orders[o.ID] = &o
	return o.ID, nil
}

func (t *memoryOrderTx) UpdateStatus(ctx context.Context, id int64, from, to Status, fields map[string]any) (bool, error) {
	o, ok := t.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	for col, v := range fields {
		switch col {
		case "confirmed_at":
			at := v.(time.Time)
			o.ConfirmedAt = &at
		case "confirmed_by_vendor":
			o.ConfirmedByVendor = v.(bool)
		case "processing_started_at":
			at := v.(time.Time)
			o.ProcessingStartedAt = &at
		case "shipped_at":
			at := v.(time.Time)
			o.ShippedAt = &at
		case "delivered_at":
			at := v.(time.Time)
			o.DeliveredAt = &at
		case "actual_delivery_date":
			at := v.(time.Time)
			o.ActualDeliveryDate = &at
		case "completed_at":
			at := v.(time.Time)
			o.CompletedAt = &at
		case "cancelled_at":
			at := v.(time.Time)
			o.CancelledAt = &at
		case "tracking_number":
			o.TrackingNumber = v.(string)
		case "estimated_delivery_date":
			at := v.(time.Time)
			o.EstimatedDeliveryDate = &at
		case "vendor_notes":
			o.VendorNotes = v.(string)
		}
	}
	return true, nil
}

func (t *memoryOrderTx) InsertHistory(ctx context.Context, h StatusHistory) error {
	h.ID = int64(len(t.history[h.OrderID]) + 1)
	t.history[h.OrderID] = append(t.history[h.OrderID], h)
	return nil
}

type fakeSelections struct {
	lines []offer.SelectedLine
	err   error
}

func (f *fakeSelections) SelectedLineItems(ctx context.Context, requestID int64) ([]offer.SelectedLine, error) {
	return f.lines, f.err
}

type memIdem struct {
	keys map[string]bool
}

func (m *memIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type stubNotifier struct {
	events []notify.Event
}

func (s *stubNotifier) Notify(ctx context.Context, evt notify.Event) error {
	s.events = append(s.events, evt)
	return nil
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newOrderService(repo *memoryOrderRepo, selections SelectionSource, notifier notify.Notifier) (*Service, *memIdem) {
	idem := &memIdem{keys: map[string]bool{}}
	svc := NewService(repo, selections, idem, notifier, nil, slog.Default())
	base := time.Date(2025, 1, 25, 8, 0, 0, 0, time.UTC)
	calls := 0
	svc.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}
	return svc, idem
}

func TestTransitionTable(t *testing.T) {
	all := []Status{StatusPendingConfirmation, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCompleted, StatusCancelled}
	legal := map[Status]map[Status]bool{
		StatusPendingConfirmation: {StatusConfirmed: true, StatusCancelled: true},
		StatusConfirmed:           {StatusProcessing: true, StatusCancelled: true},
		StatusProcessing:          {StatusShipped: true, StatusCancelled: true},
		StatusShipped:             {StatusDelivered: true, StatusCancelled: true},
		StatusDelivered:           {StatusCompleted: true},
		StatusCompleted:           {},
		StatusCancelled:           {},
	}
	for _, from := range all {
		for _, to := range all {
			require.Equal(t, legal[from][to], from.CanTransitionTo(to),
				"transition %s -> %s", from, to)
		}
	}
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.False(t, StatusDelivered.Terminal())
}

func TestIllegalTransitionLeavesOrderUnchanged(t *testing.T) {
	repo := newMemoryOrderRepo()
	repo.requestStatus[1] = request.StatusApproved
	selections := &fakeSelections{lines: []offer.SelectedLine{
		{VendorID: 5, RequestItemID: 10, Quantity: 2, UnitPrice: dec(100)},
	}}
	svc, _ := newOrderService(repo, selections, nil)
	ctx := context.Background()

	result, err := svc.CreateFromApproval(ctx, CreateFromApprovalInput{RequestID: 1, CreatorID: 9})
	require.NoError(t, err)
	require.Equal(t, 1, result.OrdersCreated)
	id := result.Orders[0].ID

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: id, NewStatus: StatusShipped, UpdatedBy: 9})
	require.Error(t, err)
	require.Contains(t, err.Error(), "current status is PENDING_CONFIRMATION")

	after, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusPendingConfirmation, after.Status)
	require.Nil(t, after.ShippedAt)
	require.Len(t, repo.history[id], 1)
}

func TestCreateFromApprovalAggregatesByVendor(t *testing.T) {
	repo := newMemoryOrderRepo()
	repo.requestStatus[1] = request.StatusApproved
	selections := &fakeSelections{lines: []offer.SelectedLine{
		{VendorID: 5, RequestItemID: 10, Quantity: 6, UnitPrice: dec(1000), Specifications: "laptop 14in"},
		{VendorID: 5, RequestItemID: 11, Quantity: 4, UnitPrice: dec(500), Brand: "Acme"},
		{VendorID: 6, RequestItemID: 10, Quantity: 4, UnitPrice: dec(950)},
	}}
	notifier := &stubNotifier{}
	svc, _ := newOrderService(repo, selections, notifier)

	result, err := svc.CreateFromApproval(context.Background(), CreateFromApprovalInput{RequestID: 1, CreatorID: 9})
	require.NoError(t, err)
	require.Equal(t, 2, result.OrdersCreated)
	require.Empty(t, result.Failures)
	require.Len(t, result.Orders, 2)

	first := result.Orders[0]
	require.Equal(t, int64(5), first.VendorID)
	require.Equal(t, int64(10), first.OrderedQuantity)
	require.True(t, first.TotalPrice.Equal(dec(8000)))
	require.True(t, first.UnitPrice.Equal(dec(800)))
	require.Contains(t, first.ItemDescription, "laptop 14in x6")
	require.Contains(t, first.ItemDescription, "Acme x4")

	second := result.Orders[1]
	require.Equal(t, int64(6), second.VendorID)
	require.Equal(t, int64(4), second.OrderedQuantity)
	require.True(t, second.TotalPrice.Equal(dec(3800)))
	require.True(t, second.UnitPrice.Equal(dec(950)))

	require.Len(t, notifier.events, 2)
	require.Equal(t, notify.EventOrderCreated, notifier.events[0].Type)
}

func TestCreateFromApprovalRequiresApprovedRequest(t *testing.T) {
	repo := newMemoryOrderRepo()
	repo.requestStatus[1] = request.StatusUnderAnalysis
	svc, _ := newOrderService(repo, &fakeSelections{}, nil)

	_, err := svc.CreateFromApproval(context.Background(), CreateFromApprovalInput{RequestID: 1, CreatorID: 9})
	require.Error(t, err)
	require.Contains(t, err.Error(), "requires status APPROVED")
}

func TestCreateFromApprovalPartialSuccess(t *testing.T) {
	repo := newMemoryOrderRepo()
	repo.requestStatus[1] = request.StatusApproved
	repo.failVendors[6] = true
	selections := &fakeSelections{lines: []offer.SelectedLine{
		{VendorID: 5, RequestItemID: 10, Quantity: 6, UnitPrice: dec(1000)},
		{VendorID: 6, RequestItemID: 10, Quantity: 4, UnitPrice: dec(950)},
	}}
	svc, idem := newOrderService(repo, selections, nil)

	result, err := svc.CreateFromApproval(context.Background(), CreateFromApprovalInput{RequestID: 1, CreatorID: 9})
	require.NoError(t, err)
	require.Equal(t, 1, result.OrdersCreated)
	require.Len(t, result.Failures, 1)
	require.Equal(t, int64(6), result.Failures[0].VendorID)

	// Vendor 5's order persisted despite vendor 6's failure.
	orders, err := svc.ListByRequest(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, int64(5), orders[0].VendorID)

	// The failed vendor's key was released so a retry can recreate it.
	require.False(t, idem.keys["ORDERS:1:6"])
	require.True(t, idem.keys["ORDERS:1:5"])

	repo.failVendors = map[int64]bool{}
	retry, err := svc.CreateFromApproval(context.Background(), CreateFromApprovalInput{RequestID: 1, CreatorID: 9})
	require.NoError(t, err)
	require.Equal(t, 1, retry.OrdersCreated)
	require.Equal(t, []int64{5}, retry.SkippedVendors)
}

func TestCreateFromApprovalIdempotentPerVendor(t *testing.T) {
	repo := newMemoryOrderRepo()
	repo.requestStatus[1] = request.StatusApproved
	selections := &fakeSelections{lines: []offer.SelectedLine{
		{VendorID: 5, RequestItemID: 10, Quantity: 2, UnitPrice: dec(100)},
	}}
	svc, _ := newOrderService(repo, selections, nil)
	ctx := context.Background()

	first, err := svc.CreateFromApproval(ctx, CreateFromApprovalInput{RequestID: 1, CreatorID: 9})
	require.NoError(t, err)
	require.Equal(t, 1, first.OrdersCreated)

	second, err := svc.CreateFromApproval(ctx, CreateFromApprovalInput{RequestID: 1, CreatorID: 9})
	require.NoError(t, err)
	require.Equal(t, 0, second.OrdersCreated)
	require.Equal(t, []int64{5}, second.SkippedVendors)

	orders, err := svc.ListByRequest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func createOneOrder(t *testing.T, svc *Service, repo *memoryOrderRepo) VendorOrder {
	t.Helper()
	repo.requestStatus[1] = request.StatusApproved
	result, err := svc.CreateFromApproval(context.Background(), CreateFromApprovalInput{RequestID: 1, CreatorID: 9})
	require.NoError(t, err)
	require.Equal(t, 1, result.OrdersCreated)
	return result.Orders[0]
}

func TestConfirmChecksOwnershipAndState(t *testing.T) {
	repo := newMemoryOrderRepo()
	selections := &fakeSelections{lines: []offer.SelectedLine{
		{VendorID: 5, RequestItemID: 10, Quantity: 2, UnitPrice: dec(100)},
	}}
	notifier := &stubNotifier{}
	svc, _ := newOrderService(repo, selections, notifier)
	ctx := context.Background()
	o := createOneOrder(t, svc, repo)

	_, err := svc.Confirm(ctx, ConfirmInput{OrderID: o.ID, VendorID: 99})
	require.Error(t, err)
	require.Contains(t, err.Error(), "another vendor")

	confirmed, err := svc.Confirm(ctx, ConfirmInput{OrderID: o.ID, VendorID: 5, Notes: "ready to ship next week"})
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)
	require.True(t, confirmed.ConfirmedByVendor)
	require.NotNil(t, confirmed.ConfirmedAt)
	require.Equal(t, "ready to ship next week", confirmed.VendorNotes)

	// Second confirmation finds the order past PENDING_CONFIRMATION.
	_, err = svc.Confirm(ctx, ConfirmInput{OrderID: o.ID, VendorID: 5})
	require.Error(t, err)
	require.Contains(t, err.Error(), "requires status PENDING_CONFIRMATION")
}

func TestUpdateStatusStampsTimestampsAndHistory(t *testing.T) {
	repo := newMemoryOrderRepo()
	selections := &fakeSelections{lines: []offer.SelectedLine{
		{VendorID: 5, RequestItemID: 10, Quantity: 2, UnitPrice: dec(100)},
	}}
	svc, _ := newOrderService(repo, selections, nil)
	ctx := context.Background()
	o := createOneOrder(t, svc, repo)

	_, err := svc.Confirm(ctx, ConfirmInput{OrderID: o.ID, VendorID: 5})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: o.ID, NewStatus: StatusProcessing, UpdatedBy: 5})
	require.NoError(t, err)
	shippedAt, err := svc.UpdateStatus(ctx, UpdateStatusInput{
		OrderID: o.ID, NewStatus: StatusShipped, UpdatedBy: 5, TrackingNumber: "JNE-12345",
	})
	require.NoError(t, err)
	require.Equal(t, "JNE-12345", shippedAt.TrackingNumber)
	require.NotNil(t, shippedAt.ShippedAt)

	delivered, err := svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: o.ID, NewStatus: StatusDelivered, UpdatedBy: 9})
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	require.NotNil(t, delivered.ActualDeliveryDate)

	completed, err := svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: o.ID, NewStatus: StatusCompleted, UpdatedBy: 9})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)

	history, err := svc.History(ctx, o.ID)
	require.NoError(t, err)
	// creation + confirm + processing + shipped + delivered + completed
	require.Len(t, history, 6)
	require.Equal(t, StatusPendingConfirmation, history[0].NewStatus)
	require.Equal(t, StatusCompleted, history[5].NewStatus)
	require.Equal(t, StatusDelivered, history[5].OldStatus)

	stored, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	events := stored.TimelineEvents()
	require.Len(t, events, 6)
	for i := 1; i < len(events); i++ {
		require.False(t, events[i].At.Before(events[i-1].At))
	}
	require.Equal(t, StatusCompleted, events[5].Status)
}

func TestCancelPaths(t *testing.T) {
	repo := newMemoryOrderRepo()
	selections := &fakeSelections{lines: []offer.SelectedLine{
		{VendorID: 5, RequestItemID: 10, Quantity: 2, UnitPrice: dec(100)},
	}}
	svc, _ := newOrderService(repo, selections, nil)
	ctx := context.Background()
	o := createOneOrder(t, svc, repo)

	_, err := svc.Confirm(ctx, ConfirmInput{OrderID: o.ID, VendorID: 5})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: o.ID, NewStatus: StatusProcessing, UpdatedBy: 5})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: o.ID, NewStatus: StatusShipped, UpdatedBy: 5})
	require.NoError(t, err)

	cancelled, err := svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: o.ID, NewStatus: StatusCancelled, UpdatedBy: 9, Notes: "damaged in transit"})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: o.ID, NewStatus: StatusDelivered, UpdatedBy: 9})
	require.Error(t, err)
	require.Contains(t, err.Error(), "none (terminal)")
}
