// Package request owns the purchase request lifecycle.
package request

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the purchase request lifecycle state.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusSubmitted       Status = "SUBMITTED"
	StatusVendorUploading Status = "VENDOR_UPLOADING"
	StatusUnderAnalysis   Status = "UNDER_ANALYSIS"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusVendorUploading, StatusUnderAnalysis, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the lifecycle has ended.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanEdit checks if the request or its items may still be mutated.
func (s Status) CanEdit() bool {
	return s == StatusDraft || s == StatusSubmitted
}

// CanDelete checks if hard deletion is permitted.
func (s Status) CanDelete() bool {
	return s == StatusDraft
}

// Priority of a purchase request.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// IsValid checks if the priority is known.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// PurchaseRequest domain model. TotalBudget is derived from items and
// recomputed on every item mutation.
type PurchaseRequest struct {
	ID                   int64
	ReferenceID          string
	RequestNumber        string
	RequesterID          int64
	DepartmentID         int64
	Title                string
	Description          string
	TotalBudget          decimal.Decimal
	RequiredDate         time.Time
	Priority             Priority
	Status               Status
	BudgetYear           int
	BudgetCategory       string
	VendorUploadDeadline time.Time
	AnalysisDeadline     time.Time
	ApprovalDeadline     time.Time
	ApprovalNotes        string
	ApprovedBy           int64
	ApprovedAt           *time.Time
	RejectionReason      string
	RejectedBy           int64
	RejectedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Item is one requested line, owned exclusively by its request.
type Item struct {
	ID            int64
	RequestID     int64
	ProductID     int64
	Quantity      int64
	UnitPrice     *decimal.Decimal
	TotalPrice    decimal.Decimal
	Specification string
}

// LineTotal is quantity times unit price, zero when unpriced.
func (i Item) LineTotal() decimal.Decimal {
	if i.UnitPrice == nil {
		return decimal.Zero
	}
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// ItemsTotal sums line totals over current items.
func ItemsTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
