// Package timeline maps purchase amounts to procurement deadlines.
package timeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Default day counts applied when no configured tier matches the amount.
const (
	DefaultVendorUploadDays = 7
	DefaultAnalysisDays     = 2
	DefaultApprovalDays     = 1
)

// Tier binds an amount range to day offsets. MaxAmount zero means
// open-ended.
type Tier struct {
	MinAmount        decimal.Decimal `json:"min_amount"`
	MaxAmount        decimal.Decimal `json:"max_amount"`
	VendorUploadDays int             `json:"vendor_upload_days"`
	AnalysisDays     int             `json:"analysis_days"`
	ApprovalDays     int             `json:"approval_days"`
}

func (t Tier) matches(amount decimal.Decimal) bool {
	if amount.LessThan(t.MinAmount) {
		return false
	}
	if !t.MaxAmount.IsZero() && amount.GreaterThanOrEqual(t.MaxAmount) {
		return false
	}
	return true
}

// Deadlines are cumulative offsets from the request creation timestamp.
type Deadlines struct {
	VendorUpload time.Time
	Analysis     time.Time
	Approval     time.Time
}

// Calculator is a pure amount→deadlines mapping. Deterministic given
// inputs; safe for concurrent use.
type Calculator struct {
	tiers []Tier
}

// NewCalculator builds a calculator over the configured tiers.
func NewCalculator(tiers []Tier) *Calculator {
	return &Calculator{tiers: tiers}
}

// DefaultTiers returns the standard amount bands: small purchases close
// fast, larger ones get a longer vendor window and analysis period.
func DefaultTiers() []Tier {
	return []Tier{
		{MinAmount: decimal.Zero, MaxAmount: decimal.NewFromInt(10_000_000), VendorUploadDays: 7, AnalysisDays: 2, ApprovalDays: 1},
		{MinAmount: decimal.NewFromInt(10_000_000), MaxAmount: decimal.NewFromInt(50_000_000), VendorUploadDays: 10, AnalysisDays: 3, ApprovalDays: 2},
		{MinAmount: decimal.NewFromInt(50_000_000), MaxAmount: decimal.Zero, VendorUploadDays: 14, AnalysisDays: 5, ApprovalDays: 3},
	}
}

// ParseTiers decodes the TIMELINE_TIERS JSON configuration.
func ParseTiers(raw string) ([]Tier, error) {
	var tiers []Tier
	if err := json.Unmarshal([]byte(raw), &tiers); err != nil {
		return nil, fmt.Errorf("timeline: parse tiers: %w", err)
	}
	for i, tier := range tiers {
		if tier.VendorUploadDays < 0 || tier.AnalysisDays < 0 || tier.ApprovalDays < 0 {
			return nil, fmt.Errorf("timeline: tier %d has negative day count", i)
		}
	}
	return tiers, nil
}

// Calculate resolves the tier for amount and derives the three deadlines
// from now: vendor upload, then analysis, then approval.
func (c *Calculator) Calculate(amount decimal.Decimal, now time.Time) Deadlines {
	uploadDays, analysisDays, approvalDays := DefaultVendorUploadDays, DefaultAnalysisDays, DefaultApprovalDays
	for _, tier := range c.tiers {
		if tier.matches(amount) {
			uploadDays, analysisDays, approvalDays = tier.VendorUploadDays, tier.AnalysisDays, tier.ApprovalDays
			break
		}
	}
	upload := now.AddDate(0, 0, uploadDays)
	analysis := upload.AddDate(0, 0, analysisDays)
	approval := analysis.AddDate(0, 0, approvalDays)
	return Deadlines{VendorUpload: upload, Analysis: analysis, Approval: approval}
}
