package order

import "time"

// CreateFromApprovalInput triggers order creation for an approved
// request.
type CreateFromApprovalInput struct {
	RequestID int64 `json:"-"`
	CreatorID int64 `json:"creator_id" validate:"required,gt=0"`
}

// VendorFailure names one vendor whose order could not be created.
type VendorFailure struct {
	VendorID int64  `json:"vendor_id"`
	Reason   string `json:"reason"`
}

// CreationResult is the structured partial-success outcome: failures are
// reported alongside the orders that did get created.
type CreationResult struct {
	OrdersCreated  int             `json:"orders_created"`
	Orders         []VendorOrder   `json:"-"`
	Failures       []VendorFailure `json:"failures,omitempty"`
	SkippedVendors []int64         `json:"skipped_vendors,omitempty"`
}

// ConfirmInput is the owning vendor's acceptance.
type ConfirmInput struct {
	OrderID  int64  `json:"-"`
	VendorID int64  `json:"vendor_id" validate:"required,gt=0"`
	Notes    string `json:"notes,omitempty"`
}

// UpdateStatusInput moves an order along the transition table.
type UpdateStatusInput struct {
	OrderID               int64      `json:"-"`
	NewStatus             Status     `json:"new_status" validate:"required"`
	UpdatedBy             int64      `json:"updated_by" validate:"required,gt=0"`
	TrackingNumber        string     `json:"tracking_number,omitempty"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
}
