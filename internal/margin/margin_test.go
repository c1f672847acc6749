package margin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsbot/internal/xerr"
)

func fixedSync(total float64) SyncFunc {
	return func(ctx context.Context) (float64, error) { return total, nil }
}

// Scenario 3: total=1000, allocate BTC 0.6 (600), then allocate ETH
// Amount(500) must fail with InsufficientFreeMargin(400) and leave the book
// unchanged.
func TestAllocateRejectsOverBudget(t *testing.T) {
	book := NewBook(fixedSync(1000))
	ctx := context.Background()

	require.NoError(t, book.Allocate(ctx, "BTC", AllocFraction(0.6)))
	assert.InDelta(t, 600.0, book.Used(), 1e-9)
	assert.InDelta(t, 400.0, book.Free(), 1e-9)

	err := book.Allocate(ctx, "ETH", AllocAmount(500))
	require.Error(t, err)
	var insufficient *xerr.InsufficientFreeMargin
	require.True(t, errors.As(err, &insufficient))
	assert.InDelta(t, 400.0, insufficient.Free, 1e-9)

	assert.InDelta(t, 600.0, book.Used(), 1e-9, "book unchanged after a rejected allocation")
}

func TestAllocateAcceptsWithinBudget(t *testing.T) {
	book := NewBook(fixedSync(1000))
	ctx := context.Background()

	require.NoError(t, book.Allocate(ctx, "BTC", AllocFraction(0.6)))
	require.NoError(t, book.Allocate(ctx, "ETH", AllocAmount(300)))
	assert.InDelta(t, 900.0, book.Used(), 1e-9)
	assert.InDelta(t, 100.0, book.Free(), 1e-9)
}

func TestUpdateAssetAllowsGrowingOwnAllocation(t *testing.T) {
	book := NewBook(fixedSync(1000))
	ctx := context.Background()
	require.NoError(t, book.Allocate(ctx, "BTC", AllocAmount(600)))

	require.NoError(t, book.UpdateAsset("BTC", 650))
	assert.InDelta(t, 650.0, book.Used(), 1e-9)
}

func TestUpdateAssetRejectsOverTotal(t *testing.T) {
	book := NewBook(fixedSync(1000))
	ctx := context.Background()
	require.NoError(t, book.Allocate(ctx, "BTC", AllocAmount(600)))
	require.NoError(t, book.Allocate(ctx, "ETH", AllocAmount(300)))

	err := book.UpdateAsset("BTC", 800)
	require.Error(t, err)
	assert.InDelta(t, 600.0, book.Used()-300, 1e-9, "ETH's slice untouched by the rejected update")
}

func TestRemoveFreesAllocation(t *testing.T) {
	book := NewBook(fixedSync(1000))
	ctx := context.Background()
	require.NoError(t, book.Allocate(ctx, "BTC", AllocAmount(600)))
	book.Remove("BTC")
	assert.Equal(t, 0.0, book.Used())
	assert.Equal(t, 1000.0, book.Free())
}

func TestUsedNeverExceedsTotalAtEquilibrium(t *testing.T) {
	book := NewBook(fixedSync(1000))
	ctx := context.Background()
	require.NoError(t, book.Allocate(ctx, "BTC", AllocFraction(0.5)))
	require.NoError(t, book.Allocate(ctx, "ETH", AllocFraction(0.5)))
	assert.LessOrEqual(t, book.Used(), book.TotalOnChain())
}

func TestExposureGuardBlocksBeyondMaxConcurrent(t *testing.T) {
	g := NewExposureGuard(2, 10000, time.Minute)
	assert.True(t, g.CanEnter("BTC", 100))
	g.RegisterTrade("BTC", 100)
	assert.True(t, g.CanEnter("ETH", 100))
	g.RegisterTrade("ETH", 100)

	assert.False(t, g.CanEnter("SOL", 100))
}

func TestExposureGuardBlocksBeyondTotalLimit(t *testing.T) {
	g := NewExposureGuard(5, 500, time.Minute)
	assert.True(t, g.CanEnter("BTC", 300))
	g.RegisterTrade("BTC", 300)

	assert.False(t, g.CanEnter("ETH", 300))
}

func TestExposureGuardCooldownAfterRejection(t *testing.T) {
	g := NewExposureGuard(1, 10000, time.Minute)
	now := time.Now()
	g.clock = func() time.Time { return now }

	g.RegisterTrade("BTC", 100)
	assert.False(t, g.CanEnter("ETH", 50))

	now = now.Add(30 * time.Second)
	assert.False(t, g.CanEnter("ETH", 50), "still within cooldown")

	now = now.Add(31 * time.Second)
	g.ReleaseTrade("BTC")
	assert.True(t, g.CanEnter("ETH", 50), "cooldown elapsed and slot freed")
}

func TestExposureGuardReleaseTradeFreesSlot(t *testing.T) {
	g := NewExposureGuard(1, 10000, time.Minute)
	g.RegisterTrade("BTC", 100)
	g.ReleaseTrade("BTC")
	assert.Equal(t, 0, g.ActiveCount())
	assert.True(t, g.CanEnter("ETH", 100))
}
