package timeline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCalculateDefaultTier(t *testing.T) {
	calc := NewCalculator(DefaultTiers())
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	d := calc.Calculate(decimal.NewFromInt(20000), now)
	require.Equal(t, now.AddDate(0, 0, 7), d.VendorUpload)
	require.Equal(t, now.AddDate(0, 0, 9), d.Analysis)
	require.Equal(t, now.AddDate(0, 0, 10), d.Approval)
}

func TestCalculateHigherTiers(t *testing.T) {
	calc := NewCalculator(DefaultTiers())
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	mid := calc.Calculate(decimal.NewFromInt(25_000_000), now)
	require.Equal(t, now.AddDate(0, 0, 10), mid.VendorUpload)
	require.Equal(t, now.AddDate(0, 0, 13), mid.Analysis)
	require.Equal(t, now.AddDate(0, 0, 15), mid.Approval)

	top := calc.Calculate(decimal.NewFromInt(80_000_000), now)
	require.Equal(t, now.AddDate(0, 0, 14), top.VendorUpload)
	require.Equal(t, now.AddDate(0, 0, 19), top.Analysis)
	require.Equal(t, now.AddDate(0, 0, 22), top.Approval)
}

func TestCalculateFallbackWhenNoTierMatches(t *testing.T) {
	calc := NewCalculator([]Tier{
		{MinAmount: decimal.NewFromInt(1000), MaxAmount: decimal.NewFromInt(2000), VendorUploadDays: 3, AnalysisDays: 1, ApprovalDays: 1},
	})
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	d := calc.Calculate(decimal.NewFromInt(5000), now)
	require.Equal(t, now.AddDate(0, 0, DefaultVendorUploadDays), d.VendorUpload)
	require.Equal(t, now.AddDate(0, 0, DefaultVendorUploadDays+DefaultAnalysisDays), d.Analysis)
	require.Equal(t, now.AddDate(0, 0, DefaultVendorUploadDays+DefaultAnalysisDays+DefaultApprovalDays), d.Approval)
}

func TestDeadlineMonotonicity(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tiers := append(DefaultTiers(),
		Tier{MinAmount: decimal.Zero, MaxAmount: decimal.Zero, VendorUploadDays: 1, AnalysisDays: 0, ApprovalDays: 0},
	)
	calc := NewCalculator(tiers)

	for _, amount := range []int64{0, 100, 9_999_999, 10_000_000, 49_999_999, 50_000_000, 1_000_000_000} {
		d := calc.Calculate(decimal.NewFromInt(amount), now)
		require.True(t, d.VendorUpload.After(now), "amount %d", amount)
		require.False(t, d.Analysis.Before(d.VendorUpload), "amount %d", amount)
		require.False(t, d.Approval.Before(d.Analysis), "amount %d", amount)
	}
}

func TestParseTiers(t *testing.T) {
	raw := `[{"min_amount":"0","max_amount":"1000","vendor_upload_days":5,"analysis_days":2,"approval_days":1}]`
	tiers, err := ParseTiers(raw)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	require.Equal(t, 5, tiers[0].VendorUploadDays)

	_, err = ParseTiers(`[{"vendor_upload_days":-1}]`)
	require.Error(t, err)

	_, err = ParseTiers(`not json`)
	require.Error(t, err)
}
