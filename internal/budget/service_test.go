package budget

import (
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/procurehub/internal/shared"
)

type trackingKey struct {
	department int64
	year       int
	category   string
}

type memoryLedgerRepo struct {
	tracking     map[trackingKey]Tracking
	reservations map[int64]Reservation
	nextID       int64
}

type memoryLedgerTx struct {
	repo *memoryLedgerRepo
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		tracking:     make(map[trackingKey]Tracking),
		reservations: make(map[int64]Reservation),
	}
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryLedgerTx{repo: r})
}

func (r *memoryLedgerRepo) GetTracking(ctx context.Context, departmentID int64, year int, category string) (Tracking, error) {
	t, ok := r.tracking[trackingKey{departmentID, year, category}]
	if !ok {
		return Tracking{}, shared.NewNotFound("budget tracking record not found")
	}
	return t, nil
}

func (r *memoryLedgerRepo) GetReservation(ctx context.Context, requestID int64) (Reservation, error) {
	res, ok := r.reservations[requestID]
	if !ok {
		return Reservation{}, shared.NewNotFound("budget reservation not found")
	}
	return res, nil
}

func (tx *memoryLedgerTx) InsertReservation(ctx context.Context, res Reservation) (bool, error) {
	if _, ok := tx.repo.reservations[res.RequestID]; ok {
		return false, nil
	}
	tx.repo.nextID++
	res.ID = tx.repo.nextID
	tx.repo.reservations[res.RequestID] = res
	return true, nil
}

func (tx *memoryLedgerTx) DeleteReservation(ctx context.Context, requestID int64) (Reservation, bool, error) {
	res, ok := tx.repo.reservations[requestID]
	if !ok {
		return Reservation{}, false, nil
	}
	delete(tx.repo.reservations, requestID)
	return res, true, nil
}

func (tx *memoryLedgerTx) AddReserved(ctx context.Context, departmentID int64, year int, category string, delta decimal.Decimal) (bool, error) {
	key := trackingKey{departmentID, year, category}
	t, ok := tx.repo.tracking[key]
	if !ok {
		return false, nil
	}
	t.Reserved = t.Reserved.Add(delta)
	tx.repo.tracking[key] = t
	return true, nil
}

func (tx *memoryLedgerTx) AddSpent(ctx context.Context, departmentID int64, year int, category string, delta decimal.Decimal) (bool, error) {
	key := trackingKey{departmentID, year, category}
	t, ok := tx.repo.tracking[key]
	if !ok {
		return false, nil
	}
	t.Spent = t.Spent.Add(delta)
	tx.repo.tracking[key] = t
	return true, nil
}

func seedTracking(repo *memoryLedgerRepo, department int64, year int, category string, allocated int64) {
	repo.tracking[trackingKey{department, year, category}] = Tracking{
		ID:           1,
		DepartmentID: department,
		BudgetYear:   year,
		Category:     category,
		Allocated:    decimal.NewFromInt(allocated),
	}
}

func TestValidateInsufficientBudget(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedTracking(repo, 7, 2025, "OPEX", 10000)
	ledger := NewLedger(repo, slog.Default())

	res, err := ledger.Validate(context.Background(), ValidateInput{
		DepartmentID: 7, Amount: decimal.NewFromInt(15000), Year: 2025, Category: "OPEX",
	})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.True(t, res.Tracked)
	require.True(t, res.Available.Equal(decimal.NewFromInt(10000)))
}

func TestValidateMissingRecordAllows(t *testing.T) {
	ledger := NewLedger(newMemoryLedgerRepo(), slog.Default())

	res, err := ledger.Validate(context.Background(), ValidateInput{
		DepartmentID: 7, Amount: decimal.NewFromInt(999999), Year: 2025, Category: "OPEX",
	})
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.False(t, res.Tracked)
}

func TestReserveIsIdempotentPerRequest(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedTracking(repo, 7, 2025, "OPEX", 10000)
	ledger := NewLedger(repo, slog.Default())
	ctx := context.Background()

	in := ReserveInput{DepartmentID: 7, Amount: decimal.NewFromInt(5000), RequestID: 42, Year: 2025, Category: "OPEX"}
	require.NoError(t, ledger.Reserve(ctx, in))
	require.NoError(t, ledger.Reserve(ctx, in))
	require.NoError(t, ledger.Reserve(ctx, in))

	tracking := repo.tracking[trackingKey{7, 2025, "OPEX"}]
	require.True(t, tracking.Reserved.Equal(decimal.NewFromInt(5000)), "reserved = %s", tracking.Reserved)
}

func TestReserveWithoutTrackingIsNoOp(t *testing.T) {
	repo := newMemoryLedgerRepo()
	ledger := NewLedger(repo, slog.Default())

	err := ledger.Reserve(context.Background(), ReserveInput{
		DepartmentID: 7, Amount: decimal.NewFromInt(5000), RequestID: 42, Year: 2025, Category: "OPEX",
	})
	require.NoError(t, err)
	require.Len(t, repo.reservations, 1)
}

func TestReleaseReturnsReservedAmount(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedTracking(repo, 7, 2025, "OPEX", 10000)
	ledger := NewLedger(repo, slog.Default())
	ctx := context.Background()

	in := ReserveInput{DepartmentID: 7, Amount: decimal.NewFromInt(5000), RequestID: 42, Year: 2025, Category: "OPEX"}
	require.NoError(t, ledger.Reserve(ctx, in))
	require.NoError(t, ledger.Release(ctx, in))

	tracking := repo.tracking[trackingKey{7, 2025, "OPEX"}]
	require.True(t, tracking.Reserved.IsZero(), "reserved = %s", tracking.Reserved)

	// Releasing again is a no-op, not a double subtraction.
	require.NoError(t, ledger.Release(ctx, in))
	tracking = repo.tracking[trackingKey{7, 2025, "OPEX"}]
	require.True(t, tracking.Reserved.IsZero())
}

func TestCommitMovesReservedToSpent(t *testing.T) {
	repo := newMemoryLedgerRepo()
	seedTracking(repo, 7, 2025, "OPEX", 10000)
	ledger := NewLedger(repo, slog.Default())
	ctx := context.Background()

	in := ReserveInput{DepartmentID: 7, Amount: decimal.NewFromInt(4000), RequestID: 42, Year: 2025, Category: "OPEX"}
	require.NoError(t, ledger.Reserve(ctx, in))
	require.NoError(t, ledger.Commit(ctx, in))

	tracking := repo.tracking[trackingKey{7, 2025, "OPEX"}]
	require.True(t, tracking.Reserved.IsZero())
	require.True(t, tracking.Spent.Equal(decimal.NewFromInt(4000)))

	reserved, err := ledger.Reserved(ctx, 42)
	require.NoError(t, err)
	require.True(t, reserved.IsZero())
}
