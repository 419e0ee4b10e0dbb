// Package order owns vendor orders created from approved purchase
// requests and their delivery lifecycle.
package order

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Status of a vendor order.
type Status string

const (
	StatusPendingConfirmation Status = "PENDING_CONFIRMATION"
	StatusConfirmed           Status = "CONFIRMED"
	StatusProcessing          Status = "PROCESSING"
	StatusShipped             Status = "SHIPPED"
	StatusDelivered           Status = "DELIVERED"
	StatusCompleted           Status = "COMPLETED"
	StatusCancelled           Status = "CANCELLED"
)

// transitions is the authoritative table. Role gating happens at the
// caller; the table itself is role-agnostic.
var transitions = map[Status][]Status{
	StatusPendingConfirmation: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:           {StatusProcessing, StatusCancelled},
	StatusProcessing:          {StatusShipped, StatusCancelled},
	StatusShipped:             {StatusDelivered, StatusCancelled},
	StatusDelivered:           {StatusCompleted},
	StatusCompleted:           {},
	StatusCancelled:           {},
}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo checks the transition table.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedNext returns the legal successor statuses.
func (s Status) AllowedNext() []Status {
	return append([]Status(nil), transitions[s]...)
}

// Terminal reports whether no further transition exists.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Display returns the human label for the status.
func (s Status) Display() string {
	switch s {
	case StatusPendingConfirmation:
		return "Menunggu Konfirmasi"
	case StatusConfirmed:
		return "Dikonfirmasi"
	case StatusProcessing:
		return "Diproses"
	case StatusShipped:
		return "Dikirim"
	case StatusDelivered:
		return "Diterima"
	case StatusCompleted:
		return "Selesai"
	case StatusCancelled:
		return "Dibatalkan"
	default:
		return string(s)
	}
}

// Color returns the presentation tag for the status.
func (s Status) Color() string {
	switch s {
	case StatusPendingConfirmation:
		return "warning"
	case StatusConfirmed, StatusProcessing:
		return "info"
	case StatusShipped:
		return "primary"
	case StatusDelivered, StatusCompleted:
		return "success"
	case StatusCancelled:
		return "danger"
	default:
		return "secondary"
	}
}

// VendorOrder aggregates one vendor's selected line items for one
// request: one order per vendor per request.
type VendorOrder struct {
	ID                    int64
	OrderNumber           string
	ReferenceID           string
	RequestID             int64
	VendorID              int64
	ItemDescription       string
	OrderedQuantity       int64
	UnitPrice             decimal.Decimal
	TotalPrice            decimal.Decimal
	Status                Status
	ConfirmedAt           *time.Time
	ConfirmedByVendor     bool
	ProcessingStartedAt   *time.Time
	ShippedAt             *time.Time
	DeliveredAt           *time.Time
	CompletedAt           *time.Time
	CancelledAt           *time.Time
	TrackingNumber        string
	EstimatedDeliveryDate *time.Time
	ActualDeliveryDate    *time.Time
	VendorNotes           string
	AdminNotes            string
	CreatedBy             int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// StatusHistory is one append-only transition record.
type StatusHistory struct {
	ID        int64
	OrderID   int64
	OldStatus Status
	NewStatus Status
	ChangedBy int64
	Notes     string
	ChangedAt time.Time
}

// TimelineEvent is one point in the order's chronological progress.
type TimelineEvent struct {
	Status Status    `json:"status"`
	Label  string    `json:"label"`
	At     time.Time `json:"at"`
}

// TimelineEvents rebuilds the chronology purely from the order's
// timestamp fields.
func (o VendorOrder) TimelineEvents() []TimelineEvent {
	events := []TimelineEvent{{Status: StatusPendingConfirmation, Label: StatusPendingConfirmation.Display(), At: o.CreatedAt}}
	add := func(status Status, at *time.Time) {
		if at != nil {
			events = append(events, TimelineEvent{Status: status, Label: status.Display(), At: *at})
		}
	}
	add(StatusConfirmed, o.ConfirmedAt)
	add(StatusProcessing, o.ProcessingStartedAt)
	add(StatusShipped, o.ShippedAt)
	add(StatusDelivered, o.DeliveredAt)
	add(StatusCompleted, o.CompletedAt)
	add(StatusCancelled, o.CancelledAt)
	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })
	return events
}
