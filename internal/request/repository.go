package request

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurehub/internal/platform/db"
	"github.com/odyssey-erp/procurehub/internal/shared"
)

// Repository is the pgx-backed store for purchase requests.
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

const requestColumns = `id, reference_id, request_number, requester_id, department_id, title, description,
	total_budget::text, required_date, priority, status, budget_year, budget_category,
	vendor_upload_deadline, analysis_deadline, approval_deadline,
	approval_notes, approved_by, approved_at, rejection_reason, rejected_by, rejected_at,
	created_at, updated_at`

func scanRequest(row pgx.Row) (PurchaseRequest, error) {
	var (
		pr          PurchaseRequest
		total       string
		priority    string
		status      string
		description *string
		notes       *string
		approvedBy  *int64
		reason      *string
		rejectedBy  *int64
	)
	err := row.Scan(&pr.ID, &pr.ReferenceID, &pr.RequestNumber, &pr.RequesterID, &pr.DepartmentID,
		&pr.Title, &description, &total, &pr.RequiredDate, &priority, &status,
		&pr.BudgetYear, &pr.BudgetCategory,
		&pr.VendorUploadDeadline, &pr.AnalysisDeadline, &pr.ApprovalDeadline,
		&notes, &approvedBy, &pr.ApprovedAt, &reason, &rejectedBy, &pr.RejectedAt,
		&pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return PurchaseRequest{}, err
	}
	pr.TotalBudget, err = decimal.NewFromString(total)
	if err != nil {
		return PurchaseRequest{}, fmt.Errorf("request: parse total_budget: %w", err)
	}
	pr.Priority = Priority(priority)
	pr.Status = Status(status)
	if description != nil {
		pr.Description = *description
	}
	if notes != nil {
		pr.ApprovalNotes = *notes
	}
	if approvedBy != nil {
		pr.ApprovedBy = *approvedBy
	}
	if reason != nil {
		pr.RejectionReason = *reason
	}
	if rejectedBy != nil {
		pr.RejectedBy = *rejectedBy
	}
	return pr, nil
}

// GetRequest loads one request by id.
func (r *Repository) GetRequest(ctx context.Context, id int64) (PurchaseRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM purchase_requests WHERE id = $1`, id)
	pr, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRequest{}, shared.NewNotFound(fmt.Sprintf("purchase request %d not found", id))
		}
		return PurchaseRequest{}, shared.NewPersistence("get purchase request", err)
	}
	return pr, nil
}

// ListRequests returns requests matching the filters, newest first.
func (r *Repository) ListRequests(ctx context.Context, filters ListFilters) ([]PurchaseRequest, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.Status != "" {
		where = append(where, "status = "+arg(string(filters.Status)))
	}
	if filters.DepartmentID > 0 {
		where = append(where, "department_id = "+arg(filters.DepartmentID))
	}
	if filters.RequesterID > 0 {
		where = append(where, "requester_id = "+arg(filters.RequesterID))
	}
	if filters.Search != "" {
		p := arg("%" + filters.Search + "%")
		where = append(where, "(title ILIKE "+p+" OR request_number ILIKE "+p+")")
	}
	query := `SELECT ` + requestColumns + ` FROM purchase_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(filters.Limit) + " OFFSET " + arg(filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.NewPersistence("list purchase requests", err)
	}
	defer rows.Close()
	var out []PurchaseRequest
	for rows.Next() {
		pr, err := scanRequest(rows)
		if err != nil {
			return nil, shared.NewPersistence("scan purchase request", err)
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistence("list purchase requests", err)
	}
	return out, nil
}

// GetItems loads the items of a request in insertion order.
func (r *Repository) GetItems(ctx context.Context, requestID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, product_id, quantity, unit_price::text, total_price::text, specification
FROM purchase_request_items WHERE request_id = $1 ORDER BY id ASC`, requestID)
	if err != nil {
		return nil, shared.NewPersistence("get request items", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var (
			item      Item
			unitPrice *string
			total     string
			spec      *string
		)
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ProductID, &item.Quantity, &unitPrice, &total, &spec); err != nil {
			return nil, shared.NewPersistence("scan request item", err)
		}
		if unitPrice != nil {
			price, err := decimal.NewFromString(*unitPrice)
			if err != nil {
				return nil, shared.NewPersistence("parse unit_price", err)
			}
			item.UnitPrice = &price
		}
		item.TotalPrice, err = decimal.NewFromString(total)
		if err != nil {
			return nil, shared.NewPersistence("parse total_price", err)
		}
		if spec != nil {
			item.Specification = *spec
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewPersistence("get request items", err)
	}
	return items, nil
}

// CountOffers counts submitted vendor offers attached to the request.
func (r *Repository) CountOffers(ctx context.Context, requestID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendor_offers WHERE request_id = $1`, requestID).Scan(&count)
	if err != nil {
		return 0, shared.NewPersistence("count offers", err)
	}
	return count, nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) InsertRequest(ctx context.Context, pr PurchaseRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_requests
	(reference_id, request_number, requester_id, department_id, title, description,
	 total_budget, required_date, priority, status, budget_year, budget_category,
	 vendor_upload_deadline, analysis_deadline, approval_deadline, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
RETURNING id`,
		pr.ReferenceID, pr.RequestNumber, pr.RequesterID, pr.DepartmentID, pr.Title, pr.Description,
		pr.TotalBudget.String(), pr.RequiredDate, string(pr.Priority), string(pr.Status),
		pr.BudgetYear, pr.BudgetCategory,
		pr.VendorUploadDeadline, pr.AnalysisDeadline, pr.ApprovalDeadline, pr.CreatedAt).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, shared.NewDuplicate("request number already exists", err)
		}
		return 0, shared.NewPersistence("insert purchase request", err)
	}
	return id, nil
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var unitPrice *string
	if item.UnitPrice != nil {
		s := item.UnitPrice.String()
		unitPrice = &s
	}
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_request_items
	(request_id, product_id, quantity, unit_price, total_price, specification)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
RETURNING id`,
		item.RequestID, item.ProductID, item.Quantity, unitPrice, item.TotalPrice.String(), item.Specification).Scan(&id)
	if err != nil {
		return 0, shared.NewPersistence("insert request item", err)
	}
	return id, nil
}

func (t *txRepo) DeleteItems(ctx context.Context, requestID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_request_items WHERE request_id = $1`, requestID); err != nil {
		return shared.NewPersistence("delete request items", err)
	}
	return nil
}

func (t *txRepo) DeleteRequest(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM purchase_requests WHERE id = $1`, id); err != nil {
		return shared.NewPersistence("delete purchase request", err)
	}
	return nil
}

func (t *txRepo) UpdateFields(ctx context.Context, id int64, fields map[string]any) error {
	set, args := buildSet(fields)
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE purchase_requests SET %s, updated_at = NOW() WHERE id = $%d`, set, len(args))
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return shared.NewPersistence("update purchase request", err)
	}
	return nil
}

func (t *txRepo) SetTotalBudget(ctx context.Context, id int64, total decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_requests SET total_budget = $2::numeric, updated_at = NOW() WHERE id = $1`,
		id, total.String())
	if err != nil {
		return shared.NewPersistence("set total budget", err)
	}
	return nil
}

// UpdateStatus is guarded by the expected current status; zero affected
// rows means another writer moved the row first.
func (t *txRepo) UpdateStatus(ctx context.Context, id int64, from, to Status, fields map[string]any) (bool, error) {
	set := "status = $1, updated_at = NOW()"
	args := []any{string(to)}
	if len(fields) > 0 {
		extra, extraArgs := buildSetFrom(fields, len(args))
		set += ", " + extra
		args = append(args, extraArgs...)
	}
	args = append(args, id, string(from))
	query := fmt.Sprintf(`UPDATE purchase_requests SET %s WHERE id = $%d AND status = $%d`,
		set, len(args)-1, len(args))
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return false, shared.NewPersistence("update request status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func buildSet(fields map[string]any) (string, []any) {
	return buildSetFrom(fields, 0)
}

// buildSetFrom renders "col = $n" pairs with stable ordering so queries
// stay deterministic across runs.
func buildSetFrom(fields map[string]any, offset int) (string, []any) {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		args = append(args, normalizeArg(fields[col]))
		parts = append(parts, fmt.Sprintf("%s = $%d", col, offset+len(args)))
	}
	return strings.Join(parts, ", "), args
}

func normalizeArg(v any) any {
	if t, ok := v.(time.Time); ok && t.IsZero() {
		return nil
	}
	return v
}

