package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsbot/internal/core"
	"perpsbot/internal/exec"
	"perpsbot/internal/strategy"
)

// stubStrat fires an OpenMarketIntent on the tick whose Indicators map is
// non-empty, and never again.
type stubStrat struct {
	fired bool
}

func (s *stubStrat) Name() string { return "stub" }
func (s *stubStrat) RequiredIndicators() []core.IndexId {
	return []core.IndexId{{Kind: core.Sma(1), TimeFrame: core.Min1}}
}
func (s *stubStrat) OnTick(ctx strategy.StratContext) *strategy.Intent {
	if s.fired || len(ctx.Indicators) == 0 {
		return nil
	}
	s.fired = true
	return strategy.OpenMarketIntent(core.Long, strategy.Absolute(1.0), nil)
}

type fakeIndicatorUpdater struct {
	calls int
	last  map[core.IndexId]core.Value
}

func (u *fakeIndicatorUpdater) UpdateIndicatorData(data map[core.IndexId]core.Value) {
	u.calls++
	u.last = data
}

func bar2(ms int64, px float64) core.Price {
	return core.Price{Open: px, High: px, Low: px, Close: px, Vlm: 1, OpenTimeMs: ms}
}

func TestEngineDispatchesOrderOnIntent(t *testing.T) {
	strat := &stubStrat{}
	tradeTx := make(chan exec.ExecCommand, 1)
	updater := &fakeIndicatorUpdater{}
	e := NewEngine(strat, nil, tradeTx, updater, 5)

	// Backfill two bars: Load commits the first, so the SMA(1) indicator is
	// ready on the very first live tick.
	e.Load(core.Min1, []core.Price{bar2(0, 100), bar2(60_000, 100)})

	e.Dispatch(UpdatePriceCommand(bar2(60_000, 101), 60_000))

	select {
	case cmd := <-tradeTx:
		require.Equal(t, exec.CmdOrder, cmd.Kind)
		assert.Equal(t, core.OpenLong, cmd.Order.Action)
	default:
		t.Fatal("expected an order command to be dispatched")
	}
}

func TestEngineRendezvousDropsWhenChannelFull(t *testing.T) {
	strat := &stubStrat{}
	tradeTx := make(chan exec.ExecCommand) // unbuffered, nobody reading
	e := NewEngine(strat, nil, tradeTx, nil, 5)
	e.Load(core.Min1, []core.Price{bar2(0, 100), bar2(60_000, 100)})

	// Must not block even though nothing drains tradeTx.
	e.Dispatch(UpdatePriceCommand(bar2(60_000, 101), 60_000))
	assert.True(t, strat.fired)
}

func TestEngineEditIndicatorsAddsTrackerAndBackfills(t *testing.T) {
	strat := &stubStrat{}
	tradeTx := make(chan exec.ExecCommand, 1)
	updater := &fakeIndicatorUpdater{}
	e := NewEngine(strat, nil, tradeTx, updater, 5)

	id := core.IndexId{Kind: core.Sma(3), TimeFrame: core.Min5}
	priceData := map[core.TimeFrame][]core.Price{
		core.Min5: {bar2(0, 10), bar2(300_000, 11), bar2(600_000, 12)},
	}
	e.Dispatch(EditIndicatorsCommand([]Entry{{Id: id, Edit: EditAdd}}, priceData))

	require.Contains(t, e.trackers, core.Min5)
	assert.Equal(t, 3, e.trackers[core.Min5].RingLen())
	assert.Equal(t, 1, updater.calls)
}

func TestEngineUpdateExecParamsAppliesMarginLevAndPosition(t *testing.T) {
	strat := &stubStrat{}
	e := NewEngine(strat, nil, make(chan exec.ExecCommand, 1), nil, 3)

	e.Dispatch(UpdateExecParamsCommand(MarginParam(500)))
	e.Dispatch(UpdateExecParamsCommand(LevParam(10)))
	pos := &strategy.OpenPositionInfo{Side: core.Long, Size: 1, EntryPx: 100}
	e.Dispatch(UpdateExecParamsCommand(OpenPositionParam(pos)))

	assert.Equal(t, 500.0, e.freeMargin)
	assert.Equal(t, 10, e.lev)
	assert.Equal(t, pos, e.openPos)
}

func TestEngineStopCommandTerminatesRun(t *testing.T) {
	strat := &stubStrat{}
	e := NewEngine(strat, nil, make(chan exec.ExecCommand, 1), nil, 3)
	assert.False(t, e.Dispatch(StopCommand()))
}

func TestEngineFlattenLimitIntentRequiresOpenPosition(t *testing.T) {
	e := NewEngine(&stubStrat{}, nil, make(chan exec.ExecCommand, 1), nil, 5)
	ctx := strategy.StratContext{LastPrice: 100}
	_, ok := e.toOrder(strategy.FlattenLimitIntent(101, 1000), ctx)
	assert.False(t, ok, "no open position means flatten has nothing to close")
}

func TestEngineSetSlIntentProducesTriggerCloseOrder(t *testing.T) {
	e := NewEngine(&stubStrat{}, nil, make(chan exec.ExecCommand, 1), nil, 5)
	ctx := strategy.StratContext{
		LastPrice: 100,
		OpenPos:   &strategy.OpenPositionInfo{Side: core.Long, Size: 2, EntryPx: 100},
	}
	order, ok := e.toOrder(strategy.SetSlIntent(95), ctx)
	require.True(t, ok)
	assert.Equal(t, core.Close, order.Action)
	assert.Equal(t, 2.0, order.Size)
	require.NotNil(t, order.Limit)
	require.NotNil(t, order.Limit.Trigger)
	assert.Equal(t, core.Sl, order.Limit.Trigger.Kind)
	assert.True(t, order.Limit.Trigger.IsMarket)
}
