// Package strategy implements the pure policy layer: strategies observe an
// indicator snapshot plus execution context and emit at most one Intent per
// tick. Strategies never touch the exchange directly.
package strategy

import "perpsbot/internal/core"

// MinOrderValue is the minimum notional (quote-currency units) a strategy
// may open; below this an intent is suppressed rather than submitted.
const MinOrderValue = 10.0

// SizeKind distinguishes an absolute quantity from a margin-percentage spec.
type SizeKind int

const (
	SizeAbsolute SizeKind = iota
	SizeMarginPct
)

// SizeSpec mirrors the source's SizeSpec enum: Absolute(qty) or
// MarginPct(0..100).
type SizeSpec struct {
	Kind SizeKind
	Qty  float64 // SizeAbsolute
	Pct  float64 // SizeMarginPct, 0..100
}

func Absolute(qty float64) SizeSpec { return SizeSpec{Kind: SizeAbsolute, Qty: qty} }
func MarginPct(pct float64) SizeSpec { return SizeSpec{Kind: SizeMarginPct, Pct: pct} }

// Resolve converts a SizeSpec into a concrete quantity.
func (s SizeSpec) Resolve(freeMargin float64, lev int, lastPrice float64) float64 {
	switch s.Kind {
	case SizeAbsolute:
		return s.Qty
	case SizeMarginPct:
		return (freeMargin * s.Pct / 100.0 * float64(lev)) / lastPrice
	default:
		return 0
	}
}

// IntentKind enumerates the variants of Intent.
type IntentKind int

const (
	IntentArm IntentKind = iota
	IntentDisarm
	IntentOpenMarket
	IntentOpenLimit
	IntentFlattenMarket
	IntentFlattenLimit
	IntentSetTp
	IntentSetSl
)

// TpSl carries optional take-profit/stop-loss trigger prices attached to an
// opening order.
type TpSl struct {
	Tp *float64
	Sl *float64
}

// Intent is a strategy-emitted instruction; the executor is free to reject
// it if state disallows (e.g. paused, no open position to flatten).
type Intent struct {
	Kind IntentKind

	TtlMs int64 // Arm, OpenLimit, FlattenLimit

	Side core.Side // OpenMarket, OpenLimit
	Size SizeSpec  // OpenMarket, OpenLimit

	Price float64 // OpenLimit/FlattenLimit limit_px, or SetTp/SetSl trigger price
	TpSl  *TpSl   // OpenMarket, OpenLimit
}

func ArmIntent(ttlMs int64) *Intent  { return &Intent{Kind: IntentArm, TtlMs: ttlMs} }
func DisarmIntent() *Intent          { return &Intent{Kind: IntentDisarm} }
func FlattenMarketIntent() *Intent   { return &Intent{Kind: IntentFlattenMarket} }

func OpenMarketIntent(side core.Side, size SizeSpec, tpsl *TpSl) *Intent {
	return &Intent{Kind: IntentOpenMarket, Side: side, Size: size, TpSl: tpsl}
}

func OpenLimitIntent(side core.Side, size SizeSpec, limitPx float64, ttlMs int64, tpsl *TpSl) *Intent {
	return &Intent{Kind: IntentOpenLimit, Side: side, Size: size, Price: limitPx, TtlMs: ttlMs, TpSl: tpsl}
}

func FlattenLimitIntent(limitPx float64, ttlMs int64) *Intent {
	return &Intent{Kind: IntentFlattenLimit, Price: limitPx, TtlMs: ttlMs}
}

func SetTpIntent(price float64) *Intent { return &Intent{Kind: IntentSetTp, Price: price} }
func SetSlIntent(price float64) *Intent { return &Intent{Kind: IntentSetSl, Price: price} }

// OpenPositionInfo is the read-only view of the executor's open position a
// strategy is allowed to observe.
type OpenPositionInfo struct {
	Side       core.Side
	Size       float64
	EntryPx    float64
	OpenTimeMs int64
}

// StratContext is the full observation a strategy receives each tick.
type StratContext struct {
	FreeMargin float64
	Lev        int
	LastPrice  float64
	Indicators map[core.IndexId]core.Value
	NowMs      int64
	OpenPos    *OpenPositionInfo
}

// Strat is the capability-based strategy contract: a static set of required
// indicators plus a pure tick function over an observation, returning at
// most one Intent.
type Strat interface {
	Name() string
	RequiredIndicators() []core.IndexId
	OnTick(ctx StratContext) *Intent
}
