package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/procurehub/internal/budget"
	"github.com/odyssey-erp/procurehub/internal/notify"
	"github.com/odyssey-erp/procurehub/internal/offer"
	"github.com/odyssey-erp/procurehub/internal/order"
	"github.com/odyssey-erp/procurehub/internal/request"
	"github.com/odyssey-erp/procurehub/internal/shared"
	"github.com/odyssey-erp/procurehub/internal/timeline"
)

// world is a single in-memory store backing every repository port, so the
// real services run the full workflow against shared state the way they
// would against one database.
type world struct {
	nextRequestID int64
	nextItemID    int64
	nextOfferID   int64
	nextLineID    int64
	nextOrderID   int64

	requests map[int64]*request.PurchaseRequest
	items    map[int64][]request.Item
	numbers  map[string]bool

	offers      map[int64]*offer.VendorOffer
	lines       map[int64][]offer.LineItem
	attachments map[int64][]offer.Attachment
	analyses    map[int64]offer.Analysis

	orders       map[int64]*order.VendorOrder
	orderHistory map[int64][]order.StatusHistory
	orderNumbers map[string]bool

	tracking     map[string]budget.Tracking
	reservations map[int64]budget.Reservation

	idemKeys map[string]bool
}

func newWorld() *world {
	return &world{
		requests:     map[int64]*request.PurchaseRequest{},
		items:        map[int64][]request.Item{},
		numbers:      map[string]bool{},
		offers:       map[int64]*offer.VendorOffer{},
		lines:        map[int64][]offer.LineItem{},
		attachments:  map[int64][]offer.Attachment{},
		analyses:     map[int64]offer.Analysis{},
		orders:       map[int64]*order.VendorOrder{},
		orderHistory: map[int64][]order.StatusHistory{},
		orderNumbers: map[string]bool{},
		tracking:     map[string]budget.Tracking{},
		reservations: map[int64]budget.Reservation{},
		idemKeys:     map[string]bool{},
	}
}

func trackingKey(department int64, year int, category string) string {
	return fmt.Sprintf("%d:%d:%s", department, year, category)
}

func (w *world) seedTracking(department int64, year int, category string, allocated int64) {
	w.tracking[trackingKey(department, year, category)] = budget.Tracking{
		ID:           1,
		DepartmentID: department,
		BudgetYear:   year,
		Category:     category,
		Allocated:    decimal.NewFromInt(allocated),
	}
}

// --- request port ---

type worldRequests struct{ w *world }
type worldRequestsTx struct{ w *world }

func (r worldRequests) WithTx(ctx context.Context, fn func(context.Context, request.TxRepository) error) error {
	return fn(ctx, worldRequestsTx{w: r.w})
}

func (r worldRequests) GetRequest(ctx context.Context, id int64) (request.PurchaseRequest, error) {
	pr, ok := r.w.requests[id]
	if !ok {
		return request.PurchaseRequest{}, shared.NewNotFound(fmt.Sprintf("purchase request %d not found", id))
	}
	return *pr, nil
}

func (r worldRequests) ListRequests(ctx context.Context, filters request.ListFilters) ([]request.PurchaseRequest, error) {
	var out []request.PurchaseRequest
	for id := int64(1); id <= r.w.nextRequestID; id++ {
		if pr, ok := r.w.requests[id]; ok {
			out = append(out, *pr)
		}
	}
	return out, nil
}

func (r worldRequests) GetItems(ctx context.Context, requestID int64) ([]request.Item, error) {
	return append([]request.Item(nil), r.w.items[requestID]...), nil
}

func (r worldRequests) CountOffers(ctx context.Context, requestID int64) (int, error) {
	count := 0
	for _, o := range r.w.offers {
		if o.RequestID == requestID {
			count++
		}
	}
	return count, nil
}

func (t worldRequestsTx) InsertRequest(ctx context.Context, pr request.PurchaseRequest) (int64, error) {
	if t.w.numbers[pr.RequestNumber] {
		return 0, shared.NewDuplicate("duplicate request number "+pr.RequestNumber, nil)
	}
	t.w.numbers[pr.RequestNumber] = true
	t.w.nextRequestID++
	pr.ID = t.w.nextRequestID
	t.w.requests[pr.ID] = &pr
	return pr.ID, nil
}

func (t worldRequestsTx) InsertItem(ctx context.Context, item request.Item) (int64, error) {
	t.w.nextItemID++
	item.ID = t.w.nextItemID
	t.w.items[item.RequestID] = append(t.w.items[item.RequestID], item)
	return item.ID, nil
}

func (t worldRequestsTx) DeleteItems(ctx context.Context, requestID int64) error {
	delete(t.w.items, requestID)
	return nil
}

func (t worldRequestsTx) DeleteRequest(ctx context.Context, id int64) error {
	if pr, ok := t.w.requests[id]; ok {
		delete(t.w.numbers, pr.RequestNumber)
	}
	delete(t.w.requests, id)
	return nil
}

func (t worldRequestsTx) UpdateFields(ctx context.Context, id int64, fields map[string]any) error {
	pr, ok := t.w.requests[id]
	if !ok {
		return shared.NewNotFound(fmt.Sprintf("purchase request %d not found", id))
	}
	applyRequestFields(pr, fields)
	return nil
}

func (t worldRequestsTx) SetTotalBudget(ctx context.Context, id int64, total decimal.Decimal) error {
	pr, ok := t.w.requests[id]
	if !ok {
		return shared.NewNotFound(fmt.Sprintf("purchase request %d not found", id))
	}
	pr.TotalBudget = total
	return nil
}

func (t worldRequestsTx) UpdateStatus(ctx context.Context, id int64, from, to request.Status, fields map[string]any) (bool, error) {
	pr, ok := t.w.requests[id]
	if !ok || pr.Status != from {
		return false, nil
	}
	pr.Status = to
	applyRequestFields(pr, fields)
	return true, nil
}

func applyRequestFields(pr *request.PurchaseRequest, fields map[string]any) {
	for col, v := range fields {
		switch col {
		case "title":
			pr.Title = v.(string)
		case "description":
			pr.Description = v.(string)
		case "priority":
			pr.Priority = request.Priority(v.(string))
		case "required_date":
			pr.RequiredDate = v.(time.Time)
		case "approved_by":
			pr.ApprovedBy = v.(int64)
		case "approved_at":
			at := v.(time.Time)
			pr.ApprovedAt = &at
		case "approval_notes":
			pr.ApprovalNotes = v.(string)
		case "rejection_reason":
			pr.RejectionReason = v.(string)
		case "rejected_by":
			pr.RejectedBy = v.(int64)
		case "rejected_at":
			at := v.(time.Time)
			pr.RejectedAt = &at
		}
	}
}

// --- offer port ---

type worldOffers struct{ w *world }
type worldOffersTx struct{ w *world }

func (r worldOffers) WithTx(ctx context.Context, fn func(context.Context, offer.TxRepository) error) error {
	return fn(ctx, worldOffersTx{w: r.w})
}

func (r worldOffers) GetOffer(ctx context.Context, id int64) (offer.VendorOffer, error) {
	o, ok := r.w.offers[id]
	if !ok {
		return offer.VendorOffer{}, shared.NewNotFound(fmt.Sprintf("vendor offer %d not found", id))
	}
	return *o, nil
}

func (r worldOffers) GetOfferByVendor(ctx context.Context, requestID, vendorID int64) (offer.VendorOffer, bool, error) {
	for _, o := range r.w.offers {
		if o.RequestID == requestID && o.VendorID == vendorID {
			return *o, true, nil
		}
	}
	return offer.VendorOffer{}, false, nil
}

func (r worldOffers) ListOffers(ctx context.Context, requestID int64) ([]offer.VendorOffer, error) {
	var out []offer.VendorOffer
	for id := int64(1); id <= r.w.nextOfferID; id++ {
		if o, ok := r.w.offers[id]; ok && o.RequestID == requestID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r worldOffers) GetLineItems(ctx context.Context, offerID int64) ([]offer.LineItem, error) {
	return append([]offer.LineItem(nil), r.w.lines[offerID]...), nil
}

func (r worldOffers) GetAttachments(ctx context.Context, offerID int64) ([]offer.Attachment, error) {
	return append([]offer.Attachment(nil), r.w.attachments[offerID]...), nil
}

func (r worldOffers) GetAnalysis(ctx context.Context, offerID int64) (offer.Analysis, bool, error) {
	a, ok := r.w.analyses[offerID]
	return a, ok, nil
}

func (r worldOffers) GetRequestStatus(ctx context.Context, requestID int64) (request.Status, error) {
	pr, ok := r.w.requests[requestID]
	if !ok {
		return "", shared.NewNotFound(fmt.Sprintf("purchase request %d not found", requestID))
	}
	return pr.Status, nil
}

func (r worldOffers) GetRequestItemQuantities(ctx context.Context, requestID int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, item := range r.w.items[requestID] {
		out[item.ID] = item.Quantity
	}
	return out, nil
}

func (r worldOffers) SelectedByRequestItem(ctx context.Context, requestID, excludeOfferID int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for offerID, items := range r.w.lines {
		o, ok := r.w.offers[offerID]
		if !ok || o.RequestID != requestID || offerID == excludeOfferID {
			continue
		}
		for _, item := range items {
			if item.IsSelected && item.RequestItemID != 0 {
				out[item.RequestItemID] += item.SelectedQuantity
			}
		}
	}
	return out, nil
}

func (t worldOffersTx) InsertOffer(ctx context.Context, o offer.VendorOffer) (int64, error) {
	t.w.nextOfferID++
	o.ID = t.w.nextOfferID
	t.w.offers[o.ID] = &o
	return o.ID, nil
}

func (t worldOffersTx) UpdateOffer(ctx context.Context, o offer.VendorOffer) error {
	existing, ok := t.w.offers[o.ID]
	if !ok {
		return shared.NewNotFound(fmt.Sprintf("vendor offer %d not found", o.ID))
	}
	*existing = o
	return nil
}

func (t worldOffersTx) DeleteLineItems(ctx context.Context, offerID int64) error {
	delete(t.w.lines, offerID)
	return nil
}

func (t worldOffersTx) InsertLineItem(ctx context.Context, item offer.LineItem) (int64, error) {
	t.w.nextLineID++
	item.ID = t.w.nextLineID
	t.w.lines[item.OfferID] = append(t.w.lines[item.OfferID], item)
	return item.ID, nil
}

func (t worldOffersTx) DeleteAttachments(ctx context.Context, offerID int64) error {
	delete(t.w.attachments, offerID)
	return nil
}

func (t worldOffersTx) InsertAttachment(ctx context.Context, att offer.Attachment) (int64, error) {
	t.w.attachments[att.OfferID] = append(t.w.attachments[att.OfferID], att)
	return int64(len(t.w.attachments[att.OfferID])), nil
}

func (t worldOffersTx) ApplySelection(ctx context.Context, lineItemID, qty, selectorID int64, at time.Time, notes string) error {
	for offerID, items := range t.w.lines {
		for i := range items {
			if items[i].ID == lineItemID {
				items[i].IsSelected = true
				items[i].SelectedQuantity = qty
				items[i].SelectedBy = selectorID
				items[i].SelectedAt = &at
				items[i].SelectionNotes = notes
				t.w.lines[offerID] = items
				return nil
			}
		}
	}
	return shared.NewNotFound(fmt.Sprintf("offer line item %d not found", lineItemID))
}

func (t worldOffersTx) SetStatus(ctx context.Context, offerID int64, status offer.Status) error {
	o, ok := t.w.offers[offerID]
	if !ok {
		return shared.NewNotFound(fmt.Sprintf("vendor offer %d not found", offerID))
	}
	o.Status = status
	return nil
}

func (t worldOffersTx) UpsertAnalysis(ctx context.Context, a offer.Analysis) (int64, error) {
	a.ID = a.OfferID
	t.w.analyses[a.OfferID] = a
	return a.ID, nil
}

// --- order port ---

type worldOrders struct{ w *world }
type worldOrdersTx struct{ w *world }

func (r worldOrders) WithTx(ctx context.Context, fn func(context.Context, order.TxRepository) error) error {
	return fn(ctx, worldOrdersTx{w: r.w})
}

func (r worldOrders) GetOrder(ctx context.Context, id int64) (order.VendorOrder, error) {
	o, ok := r.w.orders[id]
	if !ok {
		return order.VendorOrder{}, shared.NewNotFound(fmt.Sprintf("vendor order %d not found", id))
	}
	return *o, nil
}

func (r worldOrders) ListByRequest(ctx context.Context, requestID int64) ([]order.VendorOrder, error) {
	var out []order.VendorOrder
	for id := int64(1); id <= r.w.nextOrderID; id++ {
		if o, ok := r.w.orders[id]; ok && o.RequestID == requestID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r worldOrders) ListByVendor(ctx context.Context, vendorID int64) ([]order.VendorOrder, error) {
	var out []order.VendorOrder
	for id := int64(1); id <= r.w.nextOrderID; id++ {
		if o, ok := r.w.orders[id]; ok && o.VendorID == vendorID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r worldOrders) GetHistory(ctx context.Context, orderID int64) ([]order.StatusHistory, error) {
	return append([]order.StatusHistory(nil), r.w.orderHistory[orderID]...), nil
}

func (r worldOrders) GetRequestStatus(ctx context.Context, requestID int64) (request.Status, error) {
	pr, ok := r.w.requests[requestID]
	if !ok {
		return "", shared.NewNotFound(fmt.Sprintf("purchase request %d not found", requestID))
	}
	return pr.Status, nil
}

func (t worldOrdersTx) InsertOrder(ctx context.Context, o order.VendorOrder) (int64, error) {
	if t.w.orderNumbers[o.OrderNumber] {
		return 0, shared.NewDuplicate("order number already exists", nil)
	}
	t.w.orderNumbers[o.OrderNumber] = true
	t.w.nextOrderID++
	o.ID = t.w.nextOrderID
	t.w.orders[o.ID] = &o
	return o.ID, nil
}

func (t worldOrdersTx) UpdateStatus(ctx context.Context, id int64, from, to order.Status, fields map[string]any) (bool, error) {
	o, ok := t.w.orders[id]
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
		case "vendor_notes":
			o.VendorNotes = v.(string)
		case "tracking_number":
			o.TrackingNumber = v.(string)
		}
	}
	return true, nil
}

func (t worldOrdersTx) InsertHistory(ctx context.Context, h order.StatusHistory) error {
	h.ID = int64(len(t.w.orderHistory[h.OrderID]) + 1)
	t.w.orderHistory[h.OrderID] = append(t.w.orderHistory[h.OrderID], h)
	return nil
}

// --- budget port ---

type worldBudget struct{ w *world }
type worldBudgetTx struct{ w *world }

func (r worldBudget) WithTx(ctx context.Context, fn func(context.Context, budget.TxRepository) error) error {
	return fn(ctx, worldBudgetTx{w: r.w})
}

func (r worldBudget) GetTracking(ctx context.Context, departmentID int64, year int, category string) (budget.Tracking, error) {
	t, ok := r.w.tracking[trackingKey(departmentID, year, category)]
	if !ok {
		return budget.Tracking{}, shared.NewNotFound("budget tracking record not found")
	}
	return t, nil
}

func (r worldBudget) GetReservation(ctx context.Context, requestID int64) (budget.Reservation, error) {
	res, ok := r.w.reservations[requestID]
	if !ok {
		return budget.Reservation{}, shared.NewNotFound("budget reservation not found")
	}
	return res, nil
}

func (t worldBudgetTx) InsertReservation(ctx context.Context, res budget.Reservation) (bool, error) {
	if _, ok := t.w.reservations[res.RequestID]; ok {
		return false, nil
	}
	t.w.reservations[res.RequestID] = res
	return true, nil
}

func (t worldBudgetTx) DeleteReservation(ctx context.Context, requestID int64) (budget.Reservation, bool, error) {
	res, ok := t.w.reservations[requestID]
	if !ok {
		return budget.Reservation{}, false, nil
	}
	delete(t.w.reservations, requestID)
	return res, true, nil
}

func (t worldBudgetTx) AddReserved(ctx context.Context, departmentID int64, year int, category string, delta decimal.Decimal) (bool, error) {
	key := trackingKey(departmentID, year, category)
	tr, ok := t.w.tracking[key]
	if !ok {
		return false, nil
	}
	tr.Reserved = tr.Reserved.Add(delta)
	t.w.tracking[key] = tr
	return true, nil
}

func (t worldBudgetTx) AddSpent(ctx context.Context, departmentID int64, year int, category string, delta decimal.Decimal) (bool, error) {
	key := trackingKey(departmentID, year, category)
	tr, ok := t.w.tracking[key]
	if !ok {
		return false, nil
	}
	tr.Spent = tr.Spent.Add(delta)
	t.w.tracking[key] = tr
	return true, nil
}

type worldIdem struct{ w *world }

func (i worldIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if i.w.idemKeys[key] {
		return shared.ErrIdempotencyConflict
	}
	i.w.idemKeys[key] = true
	return nil
}

func (i worldIdem) Delete(ctx context.Context, key string) error {
	delete(i.w.idemKeys, key)
	return nil
}

type collectingNotifier struct {
	events []notify.Event
}

func (c *collectingNotifier) Notify(ctx context.Context, evt notify.Event) error {
	c.events = append(c.events, evt)
	return nil
}

type stack struct {
	world    *world
	requests *request.Service
	offers   *offer.Service
	orders   *order.Service
	notifier *collectingNotifier
}

func newStack() *stack {
	w := newWorld()
	logger := slog.Default()
	notifier := &collectingNotifier{}
	ledger := budget.NewLedger(worldBudget{w: w}, logger)
	deadlines := timeline.NewCalculator(timeline.DefaultTiers())
	requestSvc := request.NewService(worldRequests{w: w}, ledger, deadlines, notifier, nil, nil, logger)
	offerSvc := offer.NewService(worldOffers{w: w}, nil, logger)
	orderSvc := order.NewService(worldOrders{w: w}, offerSvc, worldIdem{w: w}, notifier, nil, logger)
	return &stack{world: w, requests: requestSvc, offers: offerSvc, orders: orderSvc, notifier: notifier}
}

func price(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestProcurementFlowSplitAward(t *testing.T) {
	s := newStack()
	ctx := context.Background()
	year := time.Now().Year()
	s.world.seedTracking(2, year, "GENERAL", 50000)

	pr, items, err := s.requests.Create(ctx, request.CreateInput{
		RequesterID:  1,
		DepartmentID: 2,
		Title:        "workstation refresh",
		Items: []request.ItemInput{
			{ProductID: 11, Quantity: 10, UnitPrice: price(1000)},
			{ProductID: 12, Quantity: 5, UnitPrice: price(2000)},
		},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.True(t, pr.TotalBudget.Equal(dec(20000)))

	tr := s.world.tracking[trackingKey(2, year, "GENERAL")]
	require.True(t, tr.Reserved.Equal(dec(20000)))
	require.True(t, tr.Available().Equal(dec(30000)))

	_, err = s.requests.Submit(ctx, pr.ID, 1)
	require.NoError(t, err)
	_, err = s.requests.StartVendorUpload(ctx, pr.ID, 9)
	require.NoError(t, err)

	offerA, _, err := s.offers.Submit(ctx, offer.SubmitInput{
		RequestID: pr.ID,
		VendorID:  5,
		LineItems: []offer.LineItemInput{
			{RequestItemID: items[0].ID, VendorUnitPrice: dec(950), VendorQuantity: 10},
			{RequestItemID: items[1].ID, VendorUnitPrice: dec(1900), VendorQuantity: 5},
		},
	})
	require.NoError(t, err)
	offerB, _, err := s.offers.Submit(ctx, offer.SubmitInput{
		RequestID: pr.ID,
		VendorID:  6,
		LineItems: []offer.LineItemInput{
			{RequestItemID: items[0].ID, VendorUnitPrice: dec(900), VendorQuantity: 10},
		},
	})
	require.NoError(t, err)

	_, err = s.requests.StartAnalysis(ctx, pr.ID, 9)
	require.NoError(t, err)
	require.NoError(t, s.offers.BeginReview(ctx, pr.ID))

	linesA := s.world.lines[offerA.ID]
	linesB := s.world.lines[offerB.ID]

	// Item 1 split across vendors: 6 from the cheaper offer, 4 from the
	// other; item 2 fully from vendor 5.
	_, _, err = s.offers.SelectLineItems(ctx, offer.SelectInput{
		OfferID:    offerB.ID,
		SelectorID: 9,
		Selections: []offer.Selection{{LineItemID: linesB[0].ID, SelectedQuantity: 6}},
	})
	require.NoError(t, err)
	_, _, err = s.offers.SelectLineItems(ctx, offer.SelectInput{
		OfferID:    offerA.ID,
		SelectorID: 9,
		Selections: []offer.Selection{
			{LineItemID: linesA[0].ID, SelectedQuantity: 4},
			{LineItemID: linesA[1].ID, SelectedQuantity: 5},
		},
	})
	require.NoError(t, err)

	// A fifth unit from vendor B would exceed the requested quantity.
	_, _, err = s.offers.SelectLineItems(ctx, offer.SelectInput{
		OfferID:    offerB.ID,
		SelectorID: 9,
		Selections: []offer.Selection{{LineItemID: linesB[0].ID, SelectedQuantity: 7}},
	})
	require.Error(t, err)
	require.True(t, shared.IsKind(err, shared.KindValidation))

	approved, err := s.requests.Approve(ctx, request.ApproveInput{RequestID: pr.ID, ApproverID: 7, Notes: "split award"})
	require.NoError(t, err)
	require.Equal(t, request.StatusApproved, approved.Status)

	tr = s.world.tracking[trackingKey(2, year, "GENERAL")]
	require.True(t, tr.Reserved.IsZero())
	require.True(t, tr.Spent.Equal(dec(20000)))

	require.NoError(t, s.offers.FinalizeStatuses(ctx, pr.ID))
	require.Equal(t, offer.StatusSelected, s.world.offers[offerA.ID].Status)
	require.Equal(t, offer.StatusSelected, s.world.offers[offerB.ID].Status)

	result, err := s.orders.CreateFromApproval(ctx, order.CreateFromApprovalInput{RequestID: pr.ID, CreatorID: 9})
	require.NoError(t, err)
	require.Equal(t, 2, result.OrdersCreated)
	require.Empty(t, result.Failures)

	byVendor := map[int64]order.VendorOrder{}
	for _, o := range result.Orders {
		byVendor[o.VendorID] = o
	}
	// Vendor 5: 4 x 950 + 5 x 1900 = 13300 over 9 units.
	require.True(t, byVendor[5].TotalPrice.Equal(dec(13300)))
	require.Equal(t, int64(9), byVendor[5].OrderedQuantity)
	require.True(t, byVendor[5].UnitPrice.Equal(decimal.RequireFromString("1477.78")))
	// Vendor 6: 6 x 900.
	require.True(t, byVendor[6].TotalPrice.Equal(dec(5400)))
	require.True(t, byVendor[6].UnitPrice.Equal(dec(900)))

	// Retrying the creation skips both vendors instead of duplicating.
	retry, err := s.orders.CreateFromApproval(ctx, order.CreateFromApprovalInput{RequestID: pr.ID, CreatorID: 9})
	require.NoError(t, err)
	require.Equal(t, 0, retry.OrdersCreated)
	require.Len(t, retry.SkippedVendors, 2)

	confirmed, err := s.orders.Confirm(ctx, order.ConfirmInput{OrderID: byVendor[5].ID, VendorID: 5, Notes: "stock ready"})
	require.NoError(t, err)
	require.Equal(t, order.StatusConfirmed, confirmed.Status)

	_, err = s.orders.Confirm(ctx, order.ConfirmInput{OrderID: byVendor[5].ID, VendorID: 5})
	require.Error(t, err)
	require.Contains(t, err.Error(), "requires status PENDING_CONFIRMATION")

	var created int
	for _, evt := range s.notifier.events {
		if evt.Type == notify.EventOrderCreated {
			created++
		}
	}
	require.Equal(t, 2, created)
}

func TestProcurementFlowRejectReleasesBudget(t *testing.T) {
	s := newStack()
	ctx := context.Background()
	year := time.Now().Year()
	s.world.seedTracking(2, year, "GENERAL", 10000)

	pr, _, err := s.requests.Create(ctx, request.CreateInput{
		RequesterID:  1,
		DepartmentID: 2,
		Title:        "spare parts",
		Items:        []request.ItemInput{{ProductID: 11, Quantity: 4, UnitPrice: price(2000)}},
	})
	require.NoError(t, err)

	tr := s.world.tracking[trackingKey(2, year, "GENERAL")]
	require.True(t, tr.Available().Equal(dec(2000)))

	// A second request cannot claim what the first reserved.
	_, _, err = s.requests.Create(ctx, request.CreateInput{
		RequesterID:  1,
		DepartmentID: 2,
		Title:        "too much",
		Items:        []request.ItemInput{{ProductID: 12, Quantity: 1, UnitPrice: price(5000)}},
	})
	require.Error(t, err)
	require.True(t, shared.IsKind(err, shared.KindBudget))

	_, err = s.requests.Submit(ctx, pr.ID, 1)
	require.NoError(t, err)
	rejected, err := s.requests.Reject(ctx, request.RejectInput{RequestID: pr.ID, RejectedBy: 7, Reason: "postponed"})
	require.NoError(t, err)
	require.Equal(t, request.StatusRejected, rejected.Status)

	tr = s.world.tracking[trackingKey(2, year, "GENERAL")]
	require.True(t, tr.Reserved.IsZero())
	require.True(t, tr.Available().Equal(dec(10000)))
	require.Empty(t, s.world.reservations)
}
