package strategy

import "perpsbot/internal/core"

// EntryPrice computes a leverage-normalized limit-entry offset from a
// reference price: delta is a fraction of notional, divided by leverage,
// then applied below refPx for a long entry and above it for a short entry
// (a resting limit buy sits below the market, a resting limit sell above
// it).
func EntryPrice(side core.Side, refPx, delta float64, lev int) float64 {
	if lev <= 0 || refPx <= 0 {
		return refPx
	}
	if delta < 0 {
		delta = 0
	}
	d := delta / float64(lev)
	if side == core.Long {
		return refPx * (1.0 - d)
	}
	return refPx * (1.0 + d)
}

// ExitPrice computes a leverage-normalized TP/SL trigger price from the
// position's entry price. SL deltas are capped at 1.0 (100% of notional)
// before leverage normalization; TP deltas are not.
func ExitPrice(side core.Side, kind core.TriggerKind, entryPx, delta float64, lev int) float64 {
	if lev <= 0 || entryPx <= 0 {
		return entryPx
	}
	if delta < 0 {
		delta = 0
	}
	if kind == core.Sl && delta > 1.0 {
		delta = 1.0
	}
	d := delta / float64(lev)
	switch {
	case side == core.Long && kind == core.Tp:
		return entryPx * (1.0 + d)
	case side == core.Long && kind == core.Sl:
		return entryPx * (1.0 - d)
	case side == core.Short && kind == core.Tp:
		return entryPx * (1.0 - d)
	default: // Short, Sl
		return entryPx * (1.0 + d)
	}
}

// TriggerPrice is the general form used outside a position context (e.g. a
// strategy arming a conditional order off the last traded price rather than
// an entry price): same leverage-normalized offset as ExitPrice, without the
// SL-specific 1.0 cap.
func TriggerPrice(side core.Side, kind core.TriggerKind, refPx, delta float64, lev int) float64 {
	if lev <= 0 || refPx <= 0 {
		return refPx
	}
	if delta < 0 {
		delta = 0
	}
	d := delta / float64(lev)
	switch {
	case side == core.Long && kind == core.Tp:
		return refPx * (1.0 + d)
	case side == core.Long && kind == core.Sl:
		return refPx * (1.0 - d)
	case side == core.Short && kind == core.Tp:
		return refPx * (1.0 - d)
	default: // Short, Sl
		return refPx * (1.0 + d)
	}
}
