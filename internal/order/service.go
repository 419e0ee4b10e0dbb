package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurehub/internal/notify"
	"github.com/odyssey-erp/procurehub/internal/offer"
	"github.com/odyssey-erp/procurehub/internal/request"
	"github.com/odyssey-erp/procurehub/internal/shared"
)

const idempotencyModule = "VENDOR_ORDERS"

// RepositoryPort describes storage operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (VendorOrder, error)
	ListByRequest(ctx context.Context, requestID int64) ([]VendorOrder, error)
	ListByVendor(ctx context.Context, vendorID int64) ([]VendorOrder, error)
	GetHistory(ctx context.Context, orderID int64) ([]StatusHistory, error)
	GetRequestStatus(ctx context.Context, requestID int64) (request.Status, error)
}

// TxRepository exposes transactional order mutations. UpdateStatus is a
// compare-and-set on the current status.
type TxRepository interface {
	InsertOrder(ctx context.Context, o VendorOrder) (int64, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status, fields map[string]any) (bool, error)
	InsertHistory(ctx context.Context, h StatusHistory) error
}

// SelectionSource supplies the selected offer lines an approval turns
// into orders. Satisfied by *offer.Service.
type SelectionSource interface {
	SelectedLineItems(ctx context.Context, requestID int64) ([]offer.SelectedLine, error)
}

// IdempotencyPort guards repeated order creation per vendor. Satisfied
// by *shared.IdempotencyStore.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service drives the vendor order workflow.
type Service struct {
	repo       RepositoryPort
	selections SelectionSource
	idem       IdempotencyPort
	notifier   notify.Notifier
	audit      *shared.AuditLogger
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the order Service. idem, notifier and audit may
// be nil.
func NewService(
	repo RepositoryPort,
	selections SelectionSource,
	idem IdempotencyPort,
	notifier notify.Notifier,
	audit *shared.AuditLogger,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		selections: selections,
		idem:       idem,
		notifier:   notifier,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

type vendorGroup struct {
	vendorID    int64
	quantity    int64
	total       decimal.Decimal
	description []string
}

// CreateFromApproval groups the request's selected offer lines by vendor
// and creates one aggregated order per vendor. Vendors are independent:
// one failure never aborts the others, and the result reports both
// sides. A vendor whose order already exists from an earlier call is
// skipped, not failed.
func (s *Service) CreateFromApproval(ctx context.Context, in CreateFromApprovalInput) (CreationResult, error) {
	status, err := s.repo.GetRequestStatus(ctx, in.RequestID)
	if err != nil {
		return CreationResult{}, err
	}
	if status != request.StatusApproved {
		return CreationResult{}, shared.NewTransition("order creation", string(request.StatusApproved), string(status))
	}
	lines, err := s.selections.SelectedLineItems(ctx, in.RequestID)
	if err != nil {
		return CreationResult{}, err
	}
	if len(lines) == 0 {
		return CreationResult{}, shared.NewValidation(fmt.Sprintf("request %d has no selected line items", in.RequestID))
	}

	groups := map[int64]*vendorGroup{}
	for _, line := range lines {
		g, ok := groups[line.VendorID]
		if !ok {
			g = &vendorGroup{vendorID: line.VendorID, total: decimal.Zero}
			groups[line.VendorID] = g
		}
		g.quantity += line.Quantity
		g.total = g.total.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
		desc := line.Specifications
		if desc == "" {
			desc = line.Brand
		}
		if desc == "" {
			desc = fmt.Sprintf("request item %d", line.RequestItemID)
		}
		g.description = append(g.description, fmt.Sprintf("%s x%d", desc, line.Quantity))
	}
	vendorIDs := make([]int64, 0, len(groups))
	for vendorID := range groups {
		vendorIDs = append(vendorIDs, vendorID)
	}
	sort.Slice(vendorIDs, func(i, j int) bool { return vendorIDs[i] < vendorIDs[j] })

	now := s.now()
	var result CreationResult
	for _, vendorID := range vendorIDs {
		g := groups[vendorID]
		key := fmt.Sprintf("ORDERS:%d:%d", in.RequestID, vendorID)
		if s.idem != nil {
			if err := s.idem.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					s.logger.Info("order already created for vendor, skipping",
						slog.Int64("request_id", in.RequestID), slog.Int64("vendor_id", vendorID))
					result.SkippedVendors = append(result.SkippedVendors, vendorID)
					continue
				}
				result.Failures = append(result.Failures, VendorFailure{VendorID: vendorID, Reason: err.Error()})
				continue
			}
		}
		created, err := s.createVendorOrder(ctx, in, g, now)
		if err != nil {
			s.logger.Error("create vendor order",
				slog.Int64("request_id", in.RequestID), slog.Int64("vendor_id", vendorID), slog.Any("error", err))
			result.Failures = append(result.Failures, VendorFailure{VendorID: vendorID, Reason: err.Error()})
			if s.idem != nil {
				if delErr := s.idem.Delete(ctx, key); delErr != nil {
					s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
				}
			}
			continue
		}
		result.Orders = append(result.Orders, created)
		result.OrdersCreated++
		if s.notifier != nil {
			evt := notify.Event{
				Type:      notify.EventOrderCreated,
				VendorID:  vendorID,
				RequestID: in.RequestID,
				OrderID:   created.ID,
				Amount:    created.TotalPrice,
				Message:   fmt.Sprintf("order %s placed", created.OrderNumber),
			}
			if err := s.notifier.Notify(ctx, evt); err != nil {
				s.logger.Warn("notify order created", slog.Int64("order_id", created.ID), slog.Any("error", err))
			}
		}
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  in.CreatorID,
		Action:   "vendor_order.create_from_approval",
		Entity:   "purchase_request",
		EntityID: fmt.Sprintf("%d", in.RequestID),
		Meta: map[string]any{
			"orders_created": result.OrdersCreated,
			"failures":       len(result.Failures),
			"skipped":        len(result.SkippedVendors),
		},
	})
	return result, nil
}

func (s *Service) createVendorOrder(ctx context.Context, in CreateFromApprovalInput, g *vendorGroup, now time.Time) (VendorOrder, error) {
	unitPrice := decimal.Zero
	if g.quantity > 0 {
		unitPrice = g.total.DivRound(decimal.NewFromInt(g.quantity), 2)
	}
	o := VendorOrder{
		RequestID:       in.RequestID,
		VendorID:        g.vendorID,
		ItemDescription: strings.Join(g.description, "; "),
		OrderedQuantity: g.quantity,
		UnitPrice:       unitPrice,
		TotalPrice:      g.total,
		Status:          StatusPendingConfirmation,
		CreatedBy:       in.CreatorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for attempt := 0; ; attempt++ {
		o.ReferenceID = shared.ReferenceID()
		if attempt < shared.MaxDocNumberRetries {
			o.OrderNumber = shared.DocNumber("ORD", now)
		} else {
			o.OrderNumber = shared.FallbackDocNumber("ORD", now)
		}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			id, err := tx.InsertOrder(ctx, o)
			if err != nil {
				return err
			}
			o.ID = id
			return tx.InsertHistory(ctx, StatusHistory{
				OrderID:   id,
				NewStatus: StatusPendingConfirmation,
				ChangedBy: in.CreatorID,
				Notes:     "order created from approval",
				ChangedAt: now,
			})
		})
		if err == nil {
			return o, nil
		}
		if shared.IsKind(err, shared.KindDuplicate) && attempt < shared.MaxDocNumberRetries {
			s.logger.Warn("order number collision, retrying",
				slog.String("order_number", o.OrderNumber), slog.Int("attempt", attempt+1))
			continue
		}
		return VendorOrder{}, err
	}
}

// Confirm records the owning vendor's acceptance of a pending order.
func (s *Service) Confirm(ctx context.Context, in ConfirmInput) (VendorOrder, error) {
	o, err := s.repo.GetOrder(ctx, in.OrderID)
	if err != nil {
		return VendorOrder{}, err
	}
	if o.VendorID != in.VendorID {
		return VendorOrder{}, shared.NewValidation(fmt.Sprintf("order %d belongs to another vendor", in.OrderID))
	}
	if o.Status != StatusPendingConfirmation {
		return VendorOrder{}, shared.NewTransition("vendor order confirmation", string(StatusPendingConfirmation), string(o.Status))
	}
	now := s.now()
	fields := map[string]any{
		"confirmed_at":        now,
		"confirmed_by_vendor": true,
	}
	if in.Notes != "" {
		fields["vendor_notes"] = in.Notes
	}
	if err := s.transition(ctx, &o, StatusConfirmed, in.VendorID, in.Notes, fields); err != nil {
		return VendorOrder{}, err
	}
	o.ConfirmedAt = &now
	o.ConfirmedByVendor = true
	if in.Notes != "" {
		o.VendorNotes = in.Notes
	}
	if s.notifier != nil {
		evt := notify.Event{
			Type:      notify.EventOrderConfirmed,
			RequestID: o.RequestID,
			OrderID:   o.ID,
			Message:   fmt.Sprintf("vendor confirmed order %s", o.OrderNumber),
		}
		if err := s.notifier.Notify(ctx, evt); err != nil {
			s.logger.Warn("notify order confirmed", slog.Int64("order_id", o.ID), slog.Any("error", err))
		}
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  in.VendorID,
		Action:   "vendor_order.confirm",
		Entity:   "vendor_order",
		EntityID: o.ReferenceID,
	})
	return o, nil
}

// UpdateStatus moves an order along the transition table, stamping the
// matching timestamp and appending history.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) (VendorOrder, error) {
	if !in.NewStatus.IsValid() {
		return VendorOrder{}, shared.NewValidation(fmt.Sprintf("unknown order status %q", in.NewStatus))
	}
	o, err := s.repo.GetOrder(ctx, in.OrderID)
	if err != nil {
		return VendorOrder{}, err
	}
	if !o.Status.CanTransitionTo(in.NewStatus) {
		allowed := o.Status.AllowedNext()
		names := make([]string, 0, len(allowed))
		for _, a := range allowed {
			names = append(names, string(a))
		}
		required := strings.Join(names, " or ")
		if required == "" {
			required = "none (terminal)"
		}
		return VendorOrder{}, shared.NewTransition(
			fmt.Sprintf("vendor order transition to %s", in.NewStatus), required, string(o.Status))
	}
	now := s.now()
	fields := map[string]any{}
	switch in.NewStatus {
	case StatusConfirmed:
		fields["confirmed_at"] = now
		o.ConfirmedAt = &now
	case StatusProcessing:
		fields["processing_started_at"] = now
		o.ProcessingStartedAt = &now
	case StatusShipped:
		fields["shipped_at"] = now
		o.ShippedAt = &now
	case StatusDelivered:
		fields["delivered_at"] = now
		fields["actual_delivery_date"] = now
		o.DeliveredAt = &now
		o.ActualDeliveryDate = &now
	case StatusCompleted:
		fields["completed_at"] = now
		o.CompletedAt = &now
	case StatusCancelled:
		fields["cancelled_at"] = now
		o.CancelledAt = &now
	}
	if in.TrackingNumber != "" {
		fields["tracking_number"] = in.TrackingNumber
		o.TrackingNumber = in.TrackingNumber
	}
	if in.EstimatedDeliveryDate != nil {
		fields["estimated_delivery_date"] = *in.EstimatedDeliveryDate
		o.EstimatedDeliveryDate = in.EstimatedDeliveryDate
	}
	if err := s.transition(ctx, &o, in.NewStatus, in.UpdatedBy, in.Notes, fields); err != nil {
		return VendorOrder{}, err
	}
	if s.notifier != nil {
		evt := notify.Event{
			Type:      notify.EventOrderStatusChanged,
			VendorID:  o.VendorID,
			RequestID: o.RequestID,
			OrderID:   o.ID,
			Message:   fmt.Sprintf("order %s is now %s", o.OrderNumber, o.Status.Display()),
		}
		if err := s.notifier.Notify(ctx, evt); err != nil {
			s.logger.Warn("notify status change", slog.Int64("order_id", o.ID), slog.Any("error", err))
		}
	}
	s.audit.Try(ctx, shared.AuditLog{
		ActorID:  in.UpdatedBy,
		Action:   "vendor_order.update_status",
		Entity:   "vendor_order",
		EntityID: o.ReferenceID,
		Meta:     map[string]any{"status": string(o.Status)},
	})
	return o, nil
}

// transition performs the CAS status write plus the unconditional
// history append in one transaction.
func (s *Service) transition(ctx context.Context, o *VendorOrder, to Status, actorID int64, notes string, fields map[string]any) error {
	from := o.Status
	var moved bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		moved, err = tx.UpdateStatus(ctx, o.ID, from, to, fields)
		if err != nil || !moved {
			return err
		}
		return tx.InsertHistory(ctx, StatusHistory{
			OrderID:   o.ID,
			OldStatus: from,
			NewStatus: to,
			ChangedBy: actorID,
			Notes:     notes,
			ChangedAt: s.now(),
		})
	})
	if err != nil {
		return err
	}
	if !moved {
		return shared.NewConflict(fmt.Sprintf("vendor order %d was modified concurrently", o.ID))
	}
	o.Status = to
	o.UpdatedAt = s.now()
	return nil
}

// Get loads one order.
func (s *Service) Get(ctx context.Context, id int64) (VendorOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListByRequest returns the request's orders.
func (s *Service) ListByRequest(ctx context.Context, requestID int64) ([]VendorOrder, error) {
	return s.repo.ListByRequest(ctx, requestID)
}

// ListByVendor returns a vendor's orders.
func (s *Service) ListByVendor(ctx context.Context, vendorID int64) ([]VendorOrder, error) {
	return s.repo.ListByVendor(ctx, vendorID)
}

// History returns the order's append-only transition log.
func (s *Service) History(ctx context.Context, orderID int64) ([]StatusHistory, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.GetHistory(ctx, orderID)
}
