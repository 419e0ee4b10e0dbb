package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurehub/internal/platform/db"
	"github.com/odyssey-erp/procurehub/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetTracking returns the budget record for department/year/category.
func (r *Repository) GetTracking(ctx context.Context, departmentID int64, year int, category string) (Tracking, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, department_id, budget_year, budget_category,
		allocated::text, reserved::text, spent::text
	FROM budget_tracking WHERE department_id=$1 AND budget_year=$2 AND budget_category=$3`,
		departmentID, year, category)
	var (
		t                          Tracking
		allocated, reserved, spent string
	)
	if err := row.Scan(&t.ID, &t.DepartmentID, &t.BudgetYear, &t.Category, &allocated, &reserved, &spent); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tracking{}, shared.NewNotFound("budget tracking record not found")
		}
		return Tracking{}, err
	}
	var err error
	if t.Allocated, err = decimal.NewFromString(allocated); err != nil {
		return Tracking{}, fmt.Errorf("budget: parse allocated: %w", err)
	}
	if t.Reserved, err = decimal.NewFromString(reserved); err != nil {
		return Tracking{}, fmt.Errorf("budget: parse reserved: %w", err)
	}
	if t.Spent, err = decimal.NewFromString(spent); err != nil {
		return Tracking{}, fmt.Errorf("budget: parse spent: %w", err)
	}
	return t, nil
}

// GetReservation returns the reservation held by a request.
func (r *Repository) GetReservation(ctx context.Context, requestID int64) (Reservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, request_id, department_id, budget_year, budget_category,
		amount::text, created_at
	FROM budget_reservations WHERE request_id=$1`, requestID)
	var (
		res    Reservation
		amount string
	)
	if err := row.Scan(&res.ID, &res.RequestID, &res.DepartmentID, &res.BudgetYear, &res.Category, &amount, &res.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, shared.NewNotFound("budget reservation not found")
		}
		return Reservation{}, err
	}
	var err error
	if res.Amount, err = decimal.NewFromString(amount); err != nil {
		return Reservation{}, fmt.Errorf("budget: parse amount: %w", err)
	}
	return res, nil
}

func (tx *txRepo) InsertReservation(ctx context.Context, res Reservation) (bool, error) {
	tag, err := tx.tx.Exec(ctx, `INSERT INTO budget_reservations
		(request_id, department_id, budget_year, budget_category, amount, created_at)
	VALUES ($1, $2, $3, $4, $5::numeric, NOW())
	ON CONFLICT (request_id) DO NOTHING`,
		res.RequestID, res.DepartmentID, res.BudgetYear, res.Category, res.Amount.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (tx *txRepo) DeleteReservation(ctx context.Context, requestID int64) (Reservation, bool, error) {
	row := tx.tx.QueryRow(ctx, `DELETE FROM budget_reservations WHERE request_id=$1
	RETURNING id, request_id, department_id, budget_year, budget_category, amount::text, created_at`, requestID)
	var (
		res    Reservation
		amount string
	)
	if err := row.Scan(&res.ID, &res.RequestID, &res.DepartmentID, &res.BudgetYear, &res.Category, &amount, &res.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, false, nil
		}
		return Reservation{}, false, err
	}
	var err error
	if res.Amount, err = decimal.NewFromString(amount); err != nil {
		return Reservation{}, false, fmt.Errorf("budget: parse amount: %w", err)
	}
	return res, true, nil
}

func (tx *txRepo) AddReserved(ctx context.Context, departmentID int64, year int, category string, delta decimal.Decimal) (bool, error) {
	tag, err := tx.tx.Exec(ctx, `UPDATE budget_tracking SET reserved = reserved + $4::numeric, updated_at = NOW()
	WHERE department_id=$1 AND budget_year=$2 AND budget_category=$3`,
		departmentID, year, category, delta.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (tx *txRepo) AddSpent(ctx context.Context, departmentID int64, year int, category string, delta decimal.Decimal) (bool, error) {
	tag, err := tx.tx.Exec(ctx, `UPDATE budget_tracking SET spent = spent + $4::numeric, updated_at = NOW()
	WHERE department_id=$1 AND budget_year=$2 AND budget_category=$3`,
		departmentID, year, category, delta.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
