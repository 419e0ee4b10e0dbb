package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tracking is one department/year/category budget record. Many requests
// reserve against the same record.
type Tracking struct {
	ID           int64
	DepartmentID int64
	BudgetYear   int
	Category     string
	Allocated    decimal.Decimal
	Reserved     decimal.Decimal
	Spent        decimal.Decimal
}

// Available returns allocated minus reserved minus spent.
func (t Tracking) Available() decimal.Decimal {
	return t.Allocated.Sub(t.Reserved).Sub(t.Spent)
}

// Reservation marks that a purchase request has reserved budget. One row
// per request id; its presence makes reserve/release/commit idempotent.
type Reservation struct {
	ID           int64
	RequestID    int64
	DepartmentID int64
	BudgetYear   int
	Category     string
	Amount       decimal.Decimal
	CreatedAt    time.Time
}

// ValidationResult reports whether an amount fits the available budget.
type ValidationResult struct {
	Valid     bool
	Tracked   bool
	Reason    string
	Available decimal.Decimal
}
