package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsbot/internal/core"
)

func ctxWith(ind map[core.IndexId]core.Value, now int64, openPos *OpenPositionInfo) StratContext {
	return StratContext{FreeMargin: 1000, Lev: 5, LastPrice: 100, Indicators: ind, NowMs: now, OpenPos: openPos}
}

func TestRsiEmaScalpArmsAndFiresOnCrossUp(t *testing.T) {
	s := NewRsiEmaScalp()
	ids := RsiEmaScalpIndicators()

	// tick 1: oversold, no cross yet -> arms the window, no intent.
	ind := map[core.IndexId]core.Value{
		ids[0]: {Kind: ids[0].Kind, Scalar: 25},
		ids[1]: {Kind: ids[1].Kind, CrossUp: false},
		ids[2]: {Kind: ids[2].Kind, Scalar: 40},
	}
	got := s.OnTick(ctxWith(ind, 1000, nil))
	assert.Nil(t, got)
	require.NotNil(t, s.activeWindowStart)

	// tick 2: cross flips up while window active -> opens market long.
	ind[ids[1]] = core.Value{Kind: ids[1].Kind, CrossUp: true}
	got = s.OnTick(ctxWith(ind, 2000, nil))
	require.NotNil(t, got)
	assert.Equal(t, IntentOpenMarket, got.Kind)
	assert.Equal(t, core.Long, got.Side)
}

func TestRsiEmaScalpFlattensOnRsiReclaim(t *testing.T) {
	s := NewRsiEmaScalp()
	ids := RsiEmaScalpIndicators()
	pos := &OpenPositionInfo{Side: core.Long, Size: 1, EntryPx: 90, OpenTimeMs: 0}

	ind := map[core.IndexId]core.Value{
		ids[0]: {Kind: ids[0].Kind, Scalar: 45},
		ids[1]: {Kind: ids[1].Kind, CrossUp: true},
		ids[2]: {Kind: ids[2].Kind, Scalar: 55}, // >= 50 triggers the limit close
	}
	got := s.OnTick(ctxWith(ind, 5000, pos))
	require.NotNil(t, got)
	assert.Equal(t, IntentFlattenLimit, got.Kind)
	assert.InDelta(t, 100*1.003, got.Price, 1e-9)
}

func TestSrsiAdxScalpArmsOnlyWhenAdxStrongAndRsiBelowSma(t *testing.T) {
	s := NewSrsiAdxScalp()
	ids := SrsiAdxScalpIndicators()

	ind := map[core.IndexId]core.Value{
		ids[0]: {Kind: ids[0].Kind, Scalar: 40}, // rsi
		ids[1]: {Kind: ids[1].Kind, Scalar: 50}, // sma(rsi) above rsi
		ids[2]: {Kind: ids[2].Kind, Scalar: 49}, // adx
	}
	s.OnTick(ctxWith(ind, 0, nil))
	require.NotNil(t, s.activeWindowStart)
}

func TestSrsiAdxScalpSetsSlImmediatelyOnOpenPosition(t *testing.T) {
	s := NewSrsiAdxScalp()
	ids := SrsiAdxScalpIndicators()
	pos := &OpenPositionInfo{Side: core.Long, Size: 1, EntryPx: 100, OpenTimeMs: 0}

	ind := map[core.IndexId]core.Value{
		ids[0]: {Kind: ids[0].Kind, Scalar: 40},
		ids[1]: {Kind: ids[1].Kind, Scalar: 45},
		ids[2]: {Kind: ids[2].Kind, Scalar: 10},
	}
	got := s.OnTick(ctxWith(ind, 0, pos))
	require.NotNil(t, got)
	assert.Equal(t, IntentSetSl, got.Kind)
	assert.True(t, s.slSet)
	// SL delta 0.3 capped at 1.0 is a no-op cap here; lev=5 => d=0.06
	assert.InDelta(t, 100*(1.0-0.3/5.0), got.Price, 1e-9)
}

func TestEntryAndExitPriceLeverageNormalization(t *testing.T) {
	assert.InDelta(t, 100*(1.0-0.3/5.0), EntryPrice(core.Long, 100, 0.3, 5), 1e-9)
	assert.InDelta(t, 100*(1.0+0.3/5.0), EntryPrice(core.Short, 100, 0.3, 5), 1e-9)
	assert.InDelta(t, 100*(1.0+0.003/5.0), ExitPrice(core.Long, core.Tp, 100, 0.003, 5), 1e-9)
	// SL delta above 1.0 is capped before normalization.
	assert.InDelta(t, 100*(1.0-1.0/5.0), ExitPrice(core.Long, core.Sl, 100, 5.0, 5), 1e-9)
}

func TestSizeSpecResolve(t *testing.T) {
	assert.Equal(t, 2.5, Absolute(2.5).Resolve(1000, 5, 100))
	// free=1000, pct=50, lev=5, price=100 -> (1000*0.5*5)/100 = 25
	assert.InDelta(t, 25.0, MarginPct(50).Resolve(1000, 5, 100), 1e-9)
}
