package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurehub/internal/platform/db"
	"github.com/odyssey-erp/procurehub/internal/request"
	"github.com/odyssey-erp/procurehub/internal/shared"
)

// Repository is the pgx-backed store for vendor orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const orderColumns = `id, order_number, reference_id, request_id, vendor_id, item_description,
	ordered_quantity, unit_price::text, total_price::text, status,
	confirmed_at, confirmed_by_vendor, processing_started_at, shipped_at, delivered_at,
	completed_at, cancelled_at, tracking_number, estimated_delivery_date, actual_delivery_date,
	vendor_notes, admin_notes, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (VendorOrder, error) {
	var (
		o           VendorOrder
		unitPrice   string
		totalPrice  string
		status      string
		tracking    *string
		vendorNotes *string
		adminNotes  *string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.ReferenceID, &o.RequestID, &o.VendorID, &o.ItemDescription,
		&o.OrderedQuantity, &unitPrice, &totalPrice, &status,
		&o.ConfirmedAt, &o.ConfirmedByVendor, &o.ProcessingStartedAt, &o.ShippedAt, &o.DeliveredAt,
		&o.CompletedAt, &o.CancelledAt, &tracking, &o.EstimatedDeliveryDate, &o.ActualDeliveryDate,
		&vendorNotes, &adminNotes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return VendorOrder{}, err
	}
	o.Status = Status(status)
	o.UnitPrice, err = decimal.NewFromString(unitPrice)
	if err != nil {
		return VendorOrder{}, fmt.Errorf("order: parse unit_price: %w", err)
	}
	o.TotalPrice, err = decimal.NewFromString(totalPrice)
	if err != nil {
		return VendorOrder{}, fmt.Errorf("order: parse total_price: %w", err)
	}
	if tracking != nil {
		o.TrackingNumber = *tracking
	}
	if vendorNotes != nil {
		o.VendorNotes = *vendorNotes
	}
	if adminNotes != nil {
		o.AdminNotes = *adminNotes
	}
	return o, nil
}

// GetOrder loads one order by id.
func (r *Repository) GetOrder(ctx context.Context, id int64) (VendorOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM vendor_orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorOrder{}, shared.NewNotFound(fmt.Sprintf("vendor order %d not found", id))
		}
		return VendorOrder{}, shared.NewPersistence("get vendor order", err)
	}
	return o, nil
}

func (r *Repository) list(ctx context.Context, where string, arg any) ([]VendorOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM vendor_orders WHERE `+where+` ORDER BY created_at ASC, id ASC`, arg)
	if err != nil {
		return nil, shared.NewPersistence("list vendor orders", err)
	}
	defer rows.Close()
	var out []VendorOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, shared.NewPersistence("scan vendor order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistence("list vendor orders", err)
	}
	return out, nil
}

// ListByRequest returns the request's orders, oldest first.
func (r *Repository) ListByRequest(ctx context.Context, requestID int64) ([]VendorOrder, error) {
	return r.list(ctx, "request_id = $1", requestID)
}

// ListByVendor returns a vendor's orders, oldest first.
func (r *Repository) ListByVendor(ctx context.Context, vendorID int64) ([]VendorOrder, error) {
	return r.list(ctx, "vendor_id = $1", vendorID)
}

// GetHistory returns the order's transition log in change order.
func (r *Repository) GetHistory(ctx context.Context, orderID int64) ([]StatusHistory, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, old_status, new_status, changed_by, notes, changed_at
FROM order_status_history WHERE order_id = $1 ORDER BY changed_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, shared.NewPersistence("get order history", err)
	}
	defer rows.Close()
	var out []StatusHistory
	for rows.Next() {
		var (
			h         StatusHistory
			oldStatus *string
			newStatus string
			notes     *string
		)
		if err := rows.Scan(&h.ID, &h.OrderID, &oldStatus, &newStatus, &h.ChangedBy, &notes, &h.ChangedAt); err != nil {
			return nil, shared.NewPersistence("scan order history", err)
		}
		if oldStatus != nil {
			h.OldStatus = Status(*oldStatus)
		}
		h.NewStatus = Status(newStatus)
		if notes != nil {
			h.Notes = *notes
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistence("get order history", err)
	}
	return out, nil
}

// GetRequestStatus reads the parent request's current status.
func (r *Repository) GetRequestStatus(ctx context.Context, requestID int64) (request.Status, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM purchase_requests WHERE id = $1`, requestID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.NewNotFound(fmt.Sprintf("purchase request %d not found", requestID))
		}
		return "", shared.NewPersistence("get request status", err)
	}
	return request.Status(status), nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) InsertOrder(ctx context.Context, o VendorOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendor_orders
	(order_number, reference_id, request_id, vendor_id, item_description,
	 ordered_quantity, unit_price, total_price, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9, $10, $11, $11)
RETURNING id`,
		o.OrderNumber, o.ReferenceID, o.RequestID, o.VendorID, o.ItemDescription,
		o.OrderedQuantity, o.UnitPrice.String(), o.TotalPrice.String(), string(o.Status),
		o.CreatedBy, o.CreatedAt).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, shared.NewDuplicate("order number already exists", err)
		}
		return 0, shared.NewPersistence("insert vendor order", err)
	}
	return id, nil
}

// UpdateStatus is guarded by the expected current status.
func (t *txRepo) UpdateStatus(ctx context.Context, id int64, from, to Status, fields map[string]any) (bool, error) {
	set := "status = $1, updated_at = NOW()"
	args := []any{string(to)}
	if len(fields) > 0 {
		cols := make([]string, 0, len(fields))
		for col := range fields {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			args = append(args, normalizeArg(fields[col]))
			set += fmt.Sprintf(", %s = $%d", col, len(args))
		}
	}
	args = append(args, id, string(from))
	query := fmt.Sprintf(`UPDATE vendor_orders SET %s WHERE id = $%d AND status = $%d`,
		set, len(args)-1, len(args))
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return false, shared.NewPersistence("update order status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) InsertHistory(ctx context.Context, h StatusHistory) error {
	var oldStatus *string
	if h.OldStatus != "" {
		s := string(h.OldStatus)
		oldStatus = &s
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO order_status_history
	(order_id, old_status, new_status, changed_by, notes, changed_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		h.OrderID, oldStatus, string(h.NewStatus), h.ChangedBy, h.Notes, h.ChangedAt)
	if err != nil {
		return shared.NewPersistence("insert order history", err)
	}
	return nil
}

func normalizeArg(v any) any {
	if t, ok := v.(time.Time); ok && t.IsZero() {
		return nil
	}
	return v
}
