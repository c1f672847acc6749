package strategy

import "perpsbot/internal/core"

// SrsiAdxScalp arms a long window when 15m ADX signals a strong trend and
// the 1h RSI is still below its own SMA (trend not yet exhausted), enters a
// limit long on the first RSI/SMA flip above inside the window, sets an SL
// immediately on fill, and takes profit via limit close once RSI pushes
// above 60 and stops gaining ground on its SMA.
type SrsiAdxScalp struct {
	rsi1h    core.IndexId
	smaRsi1h core.IndexId
	adx15m   core.IndexId

	prevRsiAboveSma   *bool
	activeWindowStart *int64
	slSet             bool
	closing           bool
}

func NewSrsiAdxScalp() *SrsiAdxScalp {
	ids := SrsiAdxScalpIndicators()
	return &SrsiAdxScalp{rsi1h: ids[0], smaRsi1h: ids[1], adx15m: ids[2]}
}

func SrsiAdxScalpIndicators() []core.IndexId {
	return []core.IndexId{
		{Kind: core.Rsi(14), TimeFrame: core.Hour1},
		{Kind: core.SmaOnRsi(14, 10), TimeFrame: core.Hour1},
		{Kind: core.Adx(10, 10), TimeFrame: core.Min15},
	}
}

func (s *SrsiAdxScalp) Name() string                      { return "srsi_adx_scalp" }
func (s *SrsiAdxScalp) RequiredIndicators() []core.IndexId { return SrsiAdxScalpIndicators() }

func (s *SrsiAdxScalp) OnTick(ctx StratContext) *Intent {
	maxSize := (ctx.FreeMargin * float64(ctx.Lev)) / ctx.LastPrice

	rsi1h, ok := ctx.Indicators[s.rsi1h]
	if !ok {
		return nil
	}
	smaRsi1h, ok := ctx.Indicators[s.smaRsi1h]
	if !ok {
		return nil
	}
	adx15m, ok := ctx.Indicators[s.adx15m]
	if !ok {
		return nil
	}
	rsiAboveSma := rsi1h.Scalar > smaRsi1h.Scalar

	order := s.evaluate(ctx, maxSize, rsi1h.Scalar, smaRsi1h.Scalar, rsiAboveSma)

	if s.activeWindowStart == nil && ctx.OpenPos == nil {
		s.closing = false
		s.slSet = false
		if adx15m.Scalar > 48.0 && !rsiAboveSma {
			start := ctx.NowMs
			s.activeWindowStart = &start
		}
	}

	prev := rsiAboveSma
	s.prevRsiAboveSma = &prev
	return order
}

func (s *SrsiAdxScalp) evaluate(ctx StratContext, maxSize, rsi1h, smaRsi1h float64, rsiAboveSma bool) *Intent {
	if s.closing {
		return nil
	}

	if ctx.OpenPos != nil {
		if !s.slSet {
			slPx := ExitPrice(ctx.OpenPos.Side, core.Sl, ctx.OpenPos.EntryPx, 0.3, ctx.Lev)
			s.slSet = true
			return SetSlIntent(slPx)
		}
		if rsi1h > 60.0 && (rsi1h-smaRsi1h < rsi1h*0.1) {
			limitPx := ExitPrice(ctx.OpenPos.Side, core.Tp, ctx.OpenPos.EntryPx, 0.003, ctx.Lev)
			s.closing = true
			return FlattenLimitIntent(limitPx, 0)
		}
	}

	if s.activeWindowStart == nil {
		return nil
	}
	start := *s.activeWindowStart
	if ctx.NowMs-start >= core.TimeDelta(core.Min15, 3) {
		s.activeWindowStart = nil
		return nil
	}

	if s.prevRsiAboveSma == nil {
		return nil
	}
	prevAbove := *s.prevRsiAboveSma
	if prevAbove || !rsiAboveSma {
		return nil
	}

	if ctx.OpenPos == nil {
		size := maxSize * 0.95
		if size*ctx.LastPrice < MinOrderValue {
			return nil
		}
		s.activeWindowStart = nil
		limitPx := EntryPrice(core.Long, ctx.LastPrice, 0.3, ctx.Lev)
		return OpenLimitIntent(core.Long, Absolute(size), limitPx, 0, nil)
	}
	return nil
}
