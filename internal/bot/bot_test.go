package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsbot/internal/core"
	"perpsbot/internal/exec"
	"perpsbot/internal/margin"
	"perpsbot/internal/market"
	"perpsbot/internal/strategy"
)

func fixedSync(total float64) margin.SyncFunc {
	return func(ctx context.Context) (float64, error) { return total, nil }
}

type fakeExchange struct{ oid uint64 }

func (f *fakeExchange) SubmitMarket(ctx context.Context, isBuy bool, sz float64, reduceOnly bool) (exec.OrderResult, error) {
	f.oid++
	return exec.OrderResult{Status: exec.StatusFilled, Oid: f.oid}, nil
}
func (f *fakeExchange) SubmitLimit(ctx context.Context, isBuy bool, sz, limitPx float64, reduceOnly bool, tif core.Tif) (exec.OrderResult, error) {
	f.oid++
	return exec.OrderResult{Status: exec.StatusResting, Oid: f.oid}, nil
}
func (f *fakeExchange) SubmitTrigger(ctx context.Context, isBuy bool, sz, triggerPx float64, reduceOnly bool, trigger exec.TriggerOrder) (exec.OrderResult, error) {
	f.oid++
	return exec.OrderResult{Status: exec.StatusResting, Oid: f.oid}, nil
}
func (f *fakeExchange) Cancel(ctx context.Context, oid uint64) error { return nil }

type fakeLoader struct{}

func (fakeLoader) LoadCandles(ctx context.Context, asset string, tf core.TimeFrame, count int) ([]core.Price, error) {
	return []core.Price{{Open: 1, High: 1, Low: 1, Close: 1, Vlm: 1}}, nil
}

type fakeLeverage struct{}

func (fakeLeverage) SetLeverage(ctx context.Context, asset string, lev int) error { return nil }

type fakeStream struct{ ch chan core.Price }

func (f *fakeStream) Subscribe(ctx context.Context, asset string, tf core.TimeFrame) (<-chan core.Price, error) {
	return f.ch, nil
}

func buildMarket(asset string) *market.Supervisor {
	return buildMarketWithGuard(asset, nil)
}

func buildMarketWithGuard(asset string, guard exec.Guard) *market.Supervisor {
	return market.New(market.Config{
		Asset:       asset,
		MaxLeverage: 20,
		Leverage:    10,
		TimeFrame:   core.Min1,
		SzDecimals:  3,
		Strategy:    strategy.NewRsiEmaScalp(),
		Client:      &fakeExchange{},
		Loader:      fakeLeverage{},
		Candles:     fakeLoader{},
		Stream:      &fakeStream{ch: make(chan core.Price, 4)},
		Guard:       guard,
	})
}

func newTestSupervisor(total float64) *Supervisor {
	return New(margin.NewBook(fixedSync(total)), nil)
}

func TestAddMarketAllocatesMarginAndRegisters(t *testing.T) {
	s := newTestSupervisor(1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	built := make(chan float64, 1)
	s.Events() <- AddMarketEvent(AddMarketInfo{
		Asset:       "BTC",
		MarginAlloc: margin.AllocAmount(400),
		Build: func(freeMargin float64) *market.Supervisor {
			built <- freeMargin
			return buildMarket("BTC")
		},
	})

	select {
	case free := <-built:
		assert.InDelta(t, 400, free, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("market was never built")
	}

	require.Eventually(t, func() bool {
		return len(s.Markets()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 400, s.book.Used(), 1e-9)
}

func TestAddMarketRejectedOverBudgetNeverRegisters(t *testing.T) {
	s := newTestSupervisor(1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Events() <- AddMarketEvent(AddMarketInfo{
		Asset:       "BTC",
		MarginAlloc: margin.AllocAmount(2000),
		Build: func(freeMargin float64) *market.Supervisor {
			t.Fatal("Build must not be called when the allocation is rejected")
			return nil
		},
	})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, s.Markets())
	assert.InDelta(t, 0, s.book.Used(), 1e-9)
}

func TestAddMarketDuplicateAssetRejected(t *testing.T) {
	s := newTestSupervisor(1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	calls := 0
	build := func(freeMargin float64) *market.Supervisor {
		calls++
		return buildMarket("BTC")
	}
	s.Events() <- AddMarketEvent(AddMarketInfo{Asset: "btc", MarginAlloc: margin.AllocAmount(100), Build: build})
	require.Eventually(t, func() bool { return len(s.Markets()) == 1 }, time.Second, 5*time.Millisecond)

	s.Events() <- AddMarketEvent(AddMarketInfo{Asset: "BTC", MarginAlloc: margin.AllocAmount(100), Build: build})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, calls)
	assert.InDelta(t, 100, s.book.Used(), 1e-9)
}

func TestLiquidationFramesGroupedByCoinAndRoutedPerMarket(t *testing.T) {
	s := newTestSupervisor(1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	btcCmds := make(chan market.Command, 4)
	ethCmds := make(chan market.Command, 4)
	s.markets["BTC"] = registeredMarket{cmds: btcCmds}
	s.markets["ETH"] = registeredMarket{cmds: ethCmds}

	go s.Run(ctx)

	s.Liquidations() <- []RawLiquidation{
		{Coin: "BTC", Fill: exec.RawFill{Oid: 1, Coin: "BTC", Side: core.Long, Intent: core.Close, Price: 100, Size: 1, IsLiquidation: true}},
		{Coin: "ETH", Fill: exec.RawFill{Oid: 2, Coin: "ETH", Side: core.Short, Intent: core.Close, Price: 50, Size: 2, IsLiquidation: true}},
	}

	var btcCmd, ethCmd market.Command
	select {
	case btcCmd = <-btcCmds:
	case <-time.After(time.Second):
		t.Fatal("BTC market never received its liquidation command")
	}
	select {
	case ethCmd = <-ethCmds:
	case <-time.After(time.Second):
		t.Fatal("ETH market never received its liquidation command")
	}

	require.Equal(t, market.CmdReceiveFill, btcCmd.Kind)
	require.Equal(t, market.CmdReceiveFill, ethCmd.Kind)
	assert.Equal(t, core.FillLiquidation, btcCmd.Fill.FillType)
	assert.InDelta(t, 100, btcCmd.Fill.Price, 1e-9)
	assert.InDelta(t, 50, ethCmd.Fill.Price, 1e-9)

	assert.Empty(t, btcCmds)
	assert.Empty(t, ethCmds)
}

func TestLiquidationPrioritizedOverQueuedEvents(t *testing.T) {
	s := newTestSupervisor(1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	btcCmds := make(chan market.Command, 4)
	s.markets["BTC"] = registeredMarket{cmds: btcCmds}

	s.events <- PauseAllEvent()
	s.liquidations <- []RawLiquidation{
		{Coin: "BTC", Fill: exec.RawFill{Oid: 1, Coin: "BTC", Side: core.Long, Intent: core.Close, Price: 10, Size: 1, IsLiquidation: true}},
	}

	go s.Run(ctx)

	select {
	case cmd := <-btcCmds:
		assert.Equal(t, market.CmdReceiveFill, cmd.Kind)
	case <-time.After(time.Second):
		t.Fatal("liquidation command never dispatched")
	}
}

func TestToggleMarketFlipsPauseResume(t *testing.T) {
	s := newTestSupervisor(1000)
	cmds := make(chan market.Command, 4)
	s.markets["BTC"] = registeredMarket{cmds: cmds}

	s.toggleMarket("btc")
	assert.Equal(t, market.CmdPause, (<-cmds).Kind)

	s.toggleMarket("BTC")
	assert.Equal(t, market.CmdResume, (<-cmds).Kind)
}

func TestRemoveMarketSendsCloseAndLeavesMarginUntilMarketExits(t *testing.T) {
	s := newTestSupervisor(1000)
	require.NoError(t, s.book.Allocate(context.Background(), "BTC", margin.AllocAmount(300)))
	cmds := make(chan market.Command, 4)
	s.markets["BTC"] = registeredMarket{cmds: cmds}

	s.removeMarket("BTC")

	assert.Equal(t, market.CmdClose, (<-cmds).Kind)
	// removeMarket only asks the market to close; only the addMarket
	// goroutine's post-Run cleanup deregisters it and frees its margin.
	assert.Contains(t, s.Markets(), "BTC")
	assert.InDelta(t, 300, s.book.Used(), 1e-9)
}

func TestCloseAllResetsMarginBook(t *testing.T) {
	s := newTestSupervisor(1000)
	require.NoError(t, s.book.Allocate(context.Background(), "BTC", margin.AllocAmount(300)))
	cmds := make(chan market.Command, 4)
	s.markets["BTC"] = registeredMarket{cmds: cmds}

	s.closeAll()

	assert.Equal(t, market.CmdClose, (<-cmds).Kind)
	assert.Empty(t, s.Markets())
	assert.InDelta(t, 0, s.book.TotalOnChain(), 1e-9)
}

func TestMarketCommRoutesToRegisteredAssetOnly(t *testing.T) {
	s := newTestSupervisor(1000)
	btcCmds := make(chan market.Command, 4)
	ethCmds := make(chan market.Command, 4)
	s.markets["BTC"] = registeredMarket{cmds: btcCmds}
	s.markets["ETH"] = registeredMarket{cmds: ethCmds}

	s.sendTo("BTC", market.UpdateLeverageCommand(5))

	assert.Equal(t, market.CmdUpdateLeverage, (<-btcCmds).Kind)
	assert.Empty(t, ethCmds)
}

func TestGuardIsNilWhenSupervisorBuiltWithoutOne(t *testing.T) {
	s := newTestSupervisor(1000)
	assert.Nil(t, s.Guard())
}

func TestGuardIsSharedAcrossMarketsBuiltFromIt(t *testing.T) {
	guard := margin.NewExposureGuard(1, 1_000_000, time.Minute)
	s := New(margin.NewBook(fixedSync(1000)), guard)

	got := s.Guard()
	require.NotNil(t, got)
	assert.Same(t, guard, got.(*margin.ExposureGuard))
}
