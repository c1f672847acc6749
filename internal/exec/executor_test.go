package exec

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsbot/internal/core"
)

type fakeClient struct {
	nextOid       uint64
	marketStatus  OrderStatus
	limitStatus   OrderStatus
	cancelResults map[uint64]error
	cancelCalls   map[uint64]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		nextOid:       1,
		marketStatus:  StatusFilled,
		limitStatus:   StatusResting,
		cancelResults: make(map[uint64]error),
		cancelCalls:   make(map[uint64]int),
	}
}

func (f *fakeClient) oid() uint64 {
	oid := f.nextOid
	f.nextOid++
	return oid
}

func (f *fakeClient) SubmitMarket(ctx context.Context, isBuy bool, sz float64, reduceOnly bool) (OrderResult, error) {
	return OrderResult{Status: f.marketStatus, Oid: f.oid()}, nil
}

func (f *fakeClient) SubmitLimit(ctx context.Context, isBuy bool, sz, limitPx float64, reduceOnly bool, tif core.Tif) (OrderResult, error) {
	return OrderResult{Status: f.limitStatus, Oid: f.oid()}, nil
}

func (f *fakeClient) SubmitTrigger(ctx context.Context, isBuy bool, sz, triggerPx float64, reduceOnly bool, trigger TriggerOrder) (OrderResult, error) {
	return OrderResult{Status: f.limitStatus, Oid: f.oid()}, nil
}

func (f *fakeClient) Cancel(ctx context.Context, oid uint64) error {
	f.cancelCalls[oid]++
	return f.cancelResults[oid]
}

type fakeUpdater struct {
	positions []*OpenPosition
	trades    []TradeInfo
}

func (u *fakeUpdater) UpdatePosition(pos *OpenPosition) { u.positions = append(u.positions, pos) }
func (u *fakeUpdater) UpdateTrade(info TradeInfo)       { u.trades = append(u.trades, info) }

func testLogger() *log.Logger { return log.New(os.Stderr, "[test] ", 0) }

// Scenario 1: happy long round-trip via market open, limit close.
func TestHappyLongRoundTripMarket(t *testing.T) {
	client := newFakeClient()
	updater := &fakeUpdater{}
	e := NewExecutor("BTC", 3, client, updater, testLogger())
	ctx := context.Background()

	e.Dispatch(ctx, OrderCommand(EngineOrder{Action: core.OpenLong, Size: 1.0, RefPrice: 100.0}))
	e.Dispatch(ctx, EventCommand(FillEvent(TradeFill{
		Oid: 1, Price: 100.0, Sz: 1.0, Fee: 0.05, Side: core.Long, Intent: core.OpenLong, FillType: core.FillMarket,
	})))
	require.NotNil(t, e.Position())
	assert.Equal(t, 100.0, e.Position().EntryPx)

	e.Dispatch(ctx, OrderCommand(EngineOrder{
		Action: core.Close, Size: 1.0, RefPrice: 100.3,
		Limit: &Limit{LimitPx: 100.3, Tif: core.Gtc},
	}))
	e.Dispatch(ctx, EventCommand(FillEvent(TradeFill{
		Oid: 2, Price: 100.3, Sz: 1.0, Fee: 0.03, Side: core.Short, Intent: core.Close, FillType: core.FillLimit,
	})))

	require.Nil(t, e.Position())
	require.Len(t, updater.trades, 1)
	trade := updater.trades[0]
	assert.InDelta(t, 0.22, trade.Pnl, 1e-9)
	assert.Equal(t, 1.0, trade.Size)
	assert.Equal(t, 100.0, trade.Open.Price)
	assert.Equal(t, 100.3, trade.Close.Price)
	assert.Equal(t, 0, e.RestingCount())
}

// Scenario 2: partial close then full close.
func TestPartialCloseThenFullClose(t *testing.T) {
	client := newFakeClient()
	updater := &fakeUpdater{}
	e := NewExecutor("BTC", 3, client, updater, testLogger())
	ctx := context.Background()

	e.Dispatch(ctx, OrderCommand(EngineOrder{Action: core.OpenLong, Size: 2.0, RefPrice: 50.0}))
	e.Dispatch(ctx, EventCommand(FillEvent(TradeFill{
		Oid: 1, Price: 50.0, Sz: 2.0, Fee: 0, Side: core.Long, Intent: core.OpenLong, FillType: core.FillMarket,
	})))

	info := e.applyFill(ctx, TradeFill{Oid: 99, Price: 51.0, Sz: 0.5, Fee: 0.02, Side: core.Short, Intent: core.Close, FillType: core.FillLimit})
	require.Nil(t, info)
	require.NotNil(t, e.Position())
	assert.InDelta(t, 0.48, e.Position().RealisedPnl, 1e-9)
	assert.InDelta(t, 1.5, e.Position().Size, 1e-9)

	info = e.applyFill(ctx, TradeFill{Oid: 99, Price: 52.0, Sz: 1.5, Fee: 0.05, Side: core.Short, Intent: core.Close, FillType: core.FillLimit})
	require.NotNil(t, info)
	assert.InDelta(t, 3.43, info.Pnl, 1e-9)
	assert.Nil(t, e.Position())
}

// Scenario 6: cancel retry exhaustion.
func TestCancelRetryExhaustion(t *testing.T) {
	ctx := context.Background()
	client2 := newFakeClient()
	client2.cancelResults[1] = assertErr{}
	updater2 := &fakeUpdater{}
	e2 := NewExecutor("BTC", 3, client2, updater2, testLogger())
	e2.Dispatch(ctx, OrderCommand(EngineOrder{Action: core.OpenLong, Size: 1.0, RefPrice: 100.0}))
	e2.Dispatch(ctx, EventCommand(FillEvent(TradeFill{Oid: 1, Price: 100.0, Sz: 1.0, Side: core.Long, Intent: core.OpenLong, FillType: core.FillMarket})))
	e2.Dispatch(ctx, OrderCommand(EngineOrder{
		Action: core.Close, Size: 1.0, RefPrice: 100.0,
		Limit: &Limit{LimitPx: 101.0, Tif: core.Gtc},
	}))
	require.Equal(t, 1, e2.RestingCount())

	client2.cancelResults[2] = assertErr{}
	terminal := e2.Dispatch(ctx, ControlCommand(ControlKill))
	assert.True(t, terminal)
	assert.GreaterOrEqual(t, client2.cancelCalls[2], CancelRetryRounds+1)
}

type assertErr struct{}

func (assertErr) Error() string { return "cancel rejected" }

func TestManualFillAcceptedAsOpen(t *testing.T) {
	client := newFakeClient()
	updater := &fakeUpdater{}
	e := NewExecutor("BTC", 3, client, updater, testLogger())
	ctx := context.Background()

	info := e.applyFill(ctx, TradeFill{Oid: 777, Price: 40.0, Sz: 1.0, Side: core.Long, Intent: core.OpenLong, FillType: core.FillMarket})
	assert.Nil(t, info)
	require.NotNil(t, e.Position())
	assert.Equal(t, 40.0, e.Position().EntryPx)
}

func TestManualCloseTriggersCancelSweep(t *testing.T) {
	client := newFakeClient()
	updater := &fakeUpdater{}
	e := NewExecutor("BTC", 3, client, updater, testLogger())
	ctx := context.Background()

	e.Dispatch(ctx, OrderCommand(EngineOrder{Action: core.OpenLong, Size: 1.0, RefPrice: 100.0}))
	e.Dispatch(ctx, EventCommand(FillEvent(TradeFill{Oid: 1, Price: 100.0, Sz: 1.0, Side: core.Long, Intent: core.OpenLong, FillType: core.FillMarket})))
	e.Dispatch(ctx, OrderCommand(EngineOrder{
		Action: core.Close, Size: 0.3, RefPrice: 101.0,
		Limit: &Limit{LimitPx: 101.0, Tif: core.Gtc},
	}))
	require.Equal(t, 1, e.RestingCount())

	info := e.applyFill(ctx, TradeFill{Oid: 9999, Price: 105.0, Sz: 1.0, Side: core.Short, Intent: core.Close, FillType: core.FillLiquidation})
	require.NotNil(t, info)
	assert.Equal(t, 0, e.RestingCount(), "manual/authoritative close sweeps local resting orders")
}

type fakeGuard struct {
	allow     bool
	entered   []string
	released  []string
}

func (g *fakeGuard) CanEnter(asset string, notional float64) bool { return g.allow }
func (g *fakeGuard) RegisterTrade(asset string, notional float64) { g.entered = append(g.entered, asset) }
func (g *fakeGuard) ReleaseTrade(asset string)                    { g.released = append(g.released, asset) }

func TestGuardDeclinesOpeningOrder(t *testing.T) {
	client := newFakeClient()
	updater := &fakeUpdater{}
	e := NewExecutor("BTC", 3, client, updater, testLogger())
	guard := &fakeGuard{allow: false}
	e.SetGuard(guard)
	ctx := context.Background()

	e.Dispatch(ctx, OrderCommand(EngineOrder{Action: core.OpenLong, Size: 1.0, RefPrice: 100.0}))

	assert.Nil(t, e.Position())
	assert.Equal(t, 0, e.RestingCount())
}

func TestGuardRegistersOnOpenAndReleasesOnFullClose(t *testing.T) {
	client := newFakeClient()
	updater := &fakeUpdater{}
	e := NewExecutor("BTC", 3, client, updater, testLogger())
	guard := &fakeGuard{allow: true}
	e.SetGuard(guard)
	ctx := context.Background()

	e.Dispatch(ctx, OrderCommand(EngineOrder{Action: core.OpenLong, Size: 1.0, RefPrice: 100.0}))
	e.Dispatch(ctx, EventCommand(FillEvent(TradeFill{
		Oid: 1, Price: 100.0, Sz: 1.0, Side: core.Long, Intent: core.OpenLong, FillType: core.FillMarket,
	})))
	require.Equal(t, []string{"BTC"}, guard.entered)
	require.Empty(t, guard.released)

	e.Dispatch(ctx, OrderCommand(EngineOrder{Action: core.Close, Size: 1.0, RefPrice: 100.0}))
	e.Dispatch(ctx, EventCommand(FillEvent(TradeFill{
		Oid: 2, Price: 100.0, Sz: 1.0, Side: core.Short, Intent: core.Close, FillType: core.FillMarket,
	})))

	assert.Equal(t, []string{"BTC"}, guard.released)
}
