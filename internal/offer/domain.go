// Package offer records and scores vendor submissions against purchase
// requests.
package offer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a vendor offer. Selection states are derived from line
// items, never set directly.
type Status string

const (
	StatusSubmitted         Status = "SUBMITTED"
	StatusUnderReview       Status = "UNDER_REVIEW"
	StatusSelected          Status = "SELECTED"
	StatusPartiallySelected Status = "PARTIALLY_SELECTED"
	StatusRejected          Status = "REJECTED"
)

// RecommendationLevel grades a scored offer.
type RecommendationLevel string

const (
	StronglyRecommend RecommendationLevel = "STRONGLY_RECOMMEND"
	Recommend         RecommendationLevel = "RECOMMEND"
	Consider          RecommendationLevel = "CONSIDER"
	NotRecommend      RecommendationLevel = "NOT_RECOMMEND"
)

// IsValid checks if the recommendation level is known.
func (r RecommendationLevel) IsValid() bool {
	switch r {
	case StronglyRecommend, Recommend, Consider, NotRecommend:
		return true
	default:
		return false
	}
}

// VendorOffer is one vendor's quotation for a request. At most one live
// offer per vendor per request; re-submission while still SUBMITTED
// replaces the contents.
type VendorOffer struct {
	ID               int64
	ReferenceID      string
	RequestID        int64
	VendorID         int64
	Status           Status
	TotalQuotedPrice decimal.Decimal
	DeliveryTimeDays int
	PaymentTerms     string
	QualityRating    int
	Notes            string
	SubmittedAt      time.Time
	UpdatedAt        time.Time
}

// LineItem is one quoted line, optionally linked to a request item.
// SelectedQuantity is zero or in (0, VendorQuantity]; partial selection
// lets one logical item be split across vendors.
type LineItem struct {
	ID               int64
	OfferID          int64
	RequestItemID    int64
	VendorUnitPrice  decimal.Decimal
	VendorQuantity   int64
	VendorTotalPrice decimal.Decimal
	Specifications   string
	Brand            string
	Category         string
	IsSelected       bool
	SelectedQuantity int64
	SelectedBy       int64
	SelectedAt       *time.Time
	SelectionNotes   string
}

// Attachment references an uploaded offer document. Content lives in the
// file store; only metadata is kept here.
type Attachment struct {
	ID         int64
	OfferID    int64
	FileName   string
	FilePath   string
	FileSize   int64
	Checksum   string
	UploadedAt time.Time
}

// Analysis stores component scores for one offer. Scores are 0 to 100;
// the total is derived. The scoring method is the caller's choice.
type Analysis struct {
	ID              int64
	OfferID         int64
	PriceScore      int
	QualityScore    int
	DeliveryScore   int
	ReputationScore int
	PaymentScore    int
	TotalScore      decimal.Decimal
	Recommendation  RecommendationLevel
	Method          string
	Notes           string
	CreatedBy       int64
	CreatedAt       time.Time
}

// DeriveStatus recomputes the offer status from its line items.
// requestClosed marks the parent request as approved or rejected; an
// untouched offer only falls to REJECTED once the request has closed.
func DeriveStatus(current Status, items []LineItem, requestClosed bool) Status {
	if len(items) == 0 {
		if requestClosed {
			return StatusRejected
		}
		return current
	}
	selected := 0
	for _, item := range items {
		if item.IsSelected {
			selected++
		}
	}
	switch {
	case selected == len(items):
		return StatusSelected
	case selected > 0:
		return StatusPartiallySelected
	case requestClosed:
		return StatusRejected
	default:
		return current
	}
}

// SelectedTotal sums quantity-weighted selected value across line items.
func SelectedTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.IsSelected && item.SelectedQuantity > 0 {
			total = total.Add(item.VendorUnitPrice.Mul(decimal.NewFromInt(item.SelectedQuantity)))
		}
	}
	return total
}
