package budget

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/procurehub/internal/shared"
)

// RepositoryPort describes repository operations used by Ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTracking(ctx context.Context, departmentID int64, year int, category string) (Tracking, error)
	GetReservation(ctx context.Context, requestID int64) (Reservation, error)
}

// TxRepository exposes transactional ledger mutations. Increments must be
// atomic in SQL, never read-modify-write.
type TxRepository interface {
	InsertReservation(ctx context.Context, res Reservation) (bool, error)
	DeleteReservation(ctx context.Context, requestID int64) (Reservation, bool, error)
	AddReserved(ctx context.Context, departmentID int64, year int, category string, delta decimal.Decimal) (bool, error)
	AddSpent(ctx context.Context, departmentID int64, year int, category string, delta decimal.Decimal) (bool, error)
}

// Ledger performs department/year/category budget accounting.
type Ledger struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewLedger constructs the budget ledger.
func NewLedger(repo RepositoryPort, logger *slog.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// ValidateInput carries the key and amount to check.
type ValidateInput struct {
	DepartmentID int64
	Amount       decimal.Decimal
	Year         int
	Category     string
}

// ReserveInput carries a reservation. RequestID keys idempotency.
type ReserveInput struct {
	DepartmentID int64
	Amount       decimal.Decimal
	RequestID    int64
	Year         int
	Category     string
}

// Validate checks the amount against the available budget. A missing
// tracking record is not an error: installations without budget setup
// must keep working, so the check passes with a warning.
func (l *Ledger) Validate(ctx context.Context, in ValidateInput) (ValidationResult, error) {
	tracking, err := l.repo.GetTracking(ctx, in.DepartmentID, in.Year, in.Category)
	if err != nil {
		if shared.IsKind(err, shared.KindNotFound) {
			l.logger.Warn("no budget tracking record, allowing without validation",
				slog.Int64("department_id", in.DepartmentID), slog.Int("year", in.Year))
			return ValidationResult{Valid: true, Tracked: false}, nil
		}
		return ValidationResult{}, fmt.Errorf("budget: get tracking: %w", err)
	}
	available := tracking.Available()
	if in.Amount.GreaterThan(available) {
		return ValidationResult{
			Valid:     false,
			Tracked:   true,
			Reason:    fmt.Sprintf("amount %s exceeds available budget %s", in.Amount, available),
			Available: available,
		}, nil
	}
	return ValidationResult{Valid: true, Tracked: true, Available: available}, nil
}

// Reserve increments the reserved total for the key. Reserving the same
// request id twice adds the amount exactly once.
func (l *Ledger) Reserve(ctx context.Context, in ReserveInput) error {
	return l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertReservation(ctx, Reservation{
			RequestID:    in.RequestID,
			DepartmentID: in.DepartmentID,
			BudgetYear:   in.Year,
			Category:     in.Category,
			Amount:       in.Amount,
		})
		if err != nil {
			return fmt.Errorf("budget: insert reservation: %w", err)
		}
		if !inserted {
			l.logger.Info("budget already reserved for request", slog.Int64("request_id", in.RequestID))
			return nil
		}
		tracked, err := tx.AddReserved(ctx, in.DepartmentID, in.Year, in.Category, in.Amount)
		if err != nil {
			return fmt.Errorf("budget: add reserved: %w", err)
		}
		if !tracked {
			l.logger.Warn("no budget tracking record, reservation recorded without ledger adjustment",
				slog.Int64("department_id", in.DepartmentID), slog.Int("year", in.Year))
		}
		return nil
	})
}

// Release decrements the reserved total on rejection. Releasing a request
// that holds no reservation is a logged no-op.
func (l *Ledger) Release(ctx context.Context, in ReserveInput) error {
	return l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, deleted, err := tx.DeleteReservation(ctx, in.RequestID)
		if err != nil {
			return fmt.Errorf("budget: delete reservation: %w", err)
		}
		if !deleted {
			l.logger.Warn("no reservation to release", slog.Int64("request_id", in.RequestID))
			return nil
		}
		tracked, err := tx.AddReserved(ctx, res.DepartmentID, res.BudgetYear, res.Category, res.Amount.Neg())
		if err != nil {
			return fmt.Errorf("budget: subtract reserved: %w", err)
		}
		if !tracked {
			l.logger.Warn("no budget tracking record on release", slog.Int64("request_id", in.RequestID))
		}
		return nil
	})
}

// Commit moves the reserved amount to spent on approval, consuming the
// reservation. Idempotent the same way Release is.
func (l *Ledger) Commit(ctx context.Context, in ReserveInput) error {
	return l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, deleted, err := tx.DeleteReservation(ctx, in.RequestID)
		if err != nil {
			return fmt.Errorf("budget: delete reservation: %w", err)
		}
		if !deleted {
			l.logger.Warn("no reservation to commit", slog.Int64("request_id", in.RequestID))
			return nil
		}
		tracked, err := tx.AddReserved(ctx, res.DepartmentID, res.BudgetYear, res.Category, res.Amount.Neg())
		if err != nil {
			return fmt.Errorf("budget: subtract reserved: %w", err)
		}
		if !tracked {
			return nil
		}
		if _, err := tx.AddSpent(ctx, res.DepartmentID, res.BudgetYear, res.Category, res.Amount); err != nil {
			return fmt.Errorf("budget: add spent: %w", err)
		}
		return nil
	})
}

// Reserved reports the amount currently reserved for a request, zero when
// no reservation exists.
func (l *Ledger) Reserved(ctx context.Context, requestID int64) (decimal.Decimal, error) {
	res, err := l.repo.GetReservation(ctx, requestID)
	if err != nil {
		if shared.IsKind(err, shared.KindNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return res.Amount, nil
}
