package request

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemInput is one line in a create or update payload.
type ItemInput struct {
	ProductID     int64            `json:"product_id" validate:"required,gt=0"`
	Quantity      int64            `json:"quantity" validate:"required,gt=0"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Specification string           `json:"specification,omitempty"`
}

// CreateInput is the payload to open a new purchase request.
type CreateInput struct {
	RequesterID    int64       `json:"requester_id" validate:"required,gt=0"`
	DepartmentID   int64       `json:"department_id" validate:"required,gt=0"`
	Title          string      `json:"title" validate:"required,min=3,max=255"`
	Description    string      `json:"description,omitempty"`
	RequiredDate   time.Time   `json:"required_date,omitempty"`
	Priority       Priority    `json:"priority,omitempty"`
	BudgetYear     int         `json:"budget_year,omitempty"`
	BudgetCategory string      `json:"budget_category,omitempty"`
	Items          []ItemInput `json:"items" validate:"omitempty,dive"`
}

// UpdateInput mutates an editable request. Nil fields are untouched;
// a non-nil Items slice replaces the full item set.
type UpdateInput struct {
	Title        *string     `json:"title,omitempty" validate:"omitempty,min=3,max=255"`
	Description  *string     `json:"description,omitempty"`
	RequiredDate *time.Time  `json:"required_date,omitempty"`
	Priority     *Priority   `json:"priority,omitempty"`
	Items        []ItemInput `json:"items,omitempty" validate:"omitempty,dive"`
}

// ApproveInput carries approval metadata.
type ApproveInput struct {
	RequestID  int64  `json:"-"`
	ApproverID int64  `json:"approver_id" validate:"required,gt=0"`
	Notes      string `json:"notes,omitempty"`
}

// RejectInput carries rejection metadata. Reason is mandatory.
type RejectInput struct {
	RequestID  int64  `json:"-"`
	RejectedBy int64  `json:"rejected_by" validate:"required,gt=0"`
	Reason     string `json:"reason" validate:"required,min=3"`
}

// ActorInput identifies who drove a plain transition.
type ActorInput struct {
	ActorID int64 `json:"actor_id" validate:"required,gt=0"`
}

// ListFilters narrows List results.
type ListFilters struct {
	Status       Status
	DepartmentID int64
	RequesterID  int64
	Search       string
	Limit        int
	Offset       int
}
