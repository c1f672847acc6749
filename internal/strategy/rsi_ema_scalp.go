package strategy

import "perpsbot/internal/core"

// RsiEmaScalp arms a long window when the 1h RSI is oversold and the 15m
// fast/slow EMA pair is not yet in an uptrend, then fires a market long the
// moment the EMA cross flips up while still inside the window. Exits on a
// 15m RSI reclaim of 50, a stalled trade with a fading 1h RSI, or never
// (closed externally) otherwise.
type RsiEmaScalp struct {
	rsi1h       core.IndexId
	emaCross15m core.IndexId
	rsi15m      core.IndexId

	activeWindowStart *int64
	prevFastAbove     *bool
	limitCloseSet     bool
}

func NewRsiEmaScalp() *RsiEmaScalp {
	ids := RsiEmaScalpIndicators()
	return &RsiEmaScalp{rsi1h: ids[0], emaCross15m: ids[1], rsi15m: ids[2]}
}

func RsiEmaScalpIndicators() []core.IndexId {
	return []core.IndexId{
		{Kind: core.Rsi(12), TimeFrame: core.Hour1},
		{Kind: core.EmaCross(9, 21), TimeFrame: core.Min15},
		{Kind: core.Rsi(14), TimeFrame: core.Min15},
	}
}

func (s *RsiEmaScalp) Name() string                    { return "rsi_ema_scalp" }
func (s *RsiEmaScalp) RequiredIndicators() []core.IndexId { return RsiEmaScalpIndicators() }

func (s *RsiEmaScalp) OnTick(ctx StratContext) *Intent {
	maxSize := (ctx.FreeMargin * float64(ctx.Lev)) / ctx.LastPrice

	rsi1h, ok := ctx.Indicators[s.rsi1h]
	if !ok {
		return nil
	}
	rsi15m, ok := ctx.Indicators[s.rsi15m]
	if !ok {
		return nil
	}
	cross, ok := ctx.Indicators[s.emaCross15m]
	if !ok {
		return nil
	}
	uptrend := cross.CrossUp

	order := s.evaluate(ctx, maxSize, rsi1h.Scalar, rsi15m.Scalar, uptrend)

	if s.activeWindowStart == nil && ctx.OpenPos == nil && rsi1h.Scalar < 30.0 && !uptrend {
		start := ctx.NowMs
		s.activeWindowStart = &start
	}
	prev := uptrend
	s.prevFastAbove = &prev
	return order
}

func (s *RsiEmaScalp) evaluate(ctx StratContext, maxSize, rsi1h, rsi15m float64, uptrend bool) *Intent {
	if ctx.OpenPos != nil {
		stalled := ctx.NowMs-ctx.OpenPos.OpenTimeMs > core.TimeDelta(core.Min15, 1) && rsi1h < 35.0
		if !s.limitCloseSet && (rsi15m >= 50.0 || stalled) {
			s.activeWindowStart = nil
			s.limitCloseSet = true
			return FlattenLimitIntent(ctx.LastPrice*1.003, 0)
		}
	} else {
		s.limitCloseSet = false
	}

	if s.activeWindowStart == nil {
		return nil
	}
	start := *s.activeWindowStart
	if ctx.NowMs-start >= core.TimeDelta(core.Hour1, 3) {
		s.activeWindowStart = nil
		return nil
	}

	if s.prevFastAbove == nil {
		return nil
	}
	prevUp := *s.prevFastAbove
	if prevUp || !uptrend {
		return nil
	}

	if ctx.OpenPos == nil {
		if maxSize*ctx.LastPrice < MinOrderValue {
			return nil
		}
		s.activeWindowStart = nil
		size := maxSize * 0.9
		return OpenMarketIntent(core.Long, Absolute(size), nil)
	}
	return nil
}
