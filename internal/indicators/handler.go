// Package indicators implements the streaming technical-analysis family:
// RSI, SMA, EMA, EMA-cross, Stoch-RSI, SMA-on-RSI, ADX, ATR and Vol-MA.
// Every indicator shares the same two-phase update contract described in
// spec.md §4.1: update_before_close is an idempotent, non-advancing peek at
// the currently-forming bar; update_after_close finalises it and advances
// the indicator's internal windows.
package indicators

import "perpsbot/internal/core"

// Handler is the minimal interface every concrete indicator implements. It
// corresponds to the spec's {update_before_close, update_after_close,
// get_value, load, reset, is_ready} contract — a sum type over a small,
// rarely-growing set of concrete types rather than a deep interface
// hierarchy, per spec.md §9's "indicator plurality" design note.
type Handler interface {
	Kind() core.IndicatorKind

	// UpdateBeforeClose computes a tentative reading as if the bar closed
	// at price, without advancing any committed window. Safe to call any
	// number of times for the same still-open bar.
	UpdateBeforeClose(price core.Price)

	// UpdateAfterClose finalises the bar: advances committed windows and
	// recomputes the current value from the new committed state.
	UpdateAfterClose(price core.Price)

	// Value returns the last computed reading (tentative or committed,
	// whichever is more recent) and whether enough samples have been
	// absorbed for the reading to be meaningful.
	Value() (core.Value, bool)

	// Load replays history: after_close on prices[0:n-1], then
	// before_close on prices[n-1].
	Load(prices []core.Price)

	Reset()

	IsReady() bool
}

// Load is the shared replay algorithm every concrete indicator's Load
// method delegates to, parameterized over the two phase functions — it
// exists once here so the "after_close on all-but-last, before_close on
// last" rule can't drift between indicators.
func Load(prices []core.Price, afterClose, beforeClose func(core.Price)) {
	if len(prices) == 0 {
		return
	}
	for _, p := range prices[:len(prices)-1] {
		afterClose(p)
	}
	beforeClose(prices[len(prices)-1])
}

// New constructs the concrete Handler for kind.
func New(kind core.IndicatorKind) Handler {
	switch kind.Name {
	case "rsi":
		return NewRSI(kind.Length)
	case "sma":
		return NewSMA(kind.Length)
	case "ema":
		return NewEMA(kind.Length)
	case "ema_cross":
		return NewEmaCross(kind.ShortLength, kind.LongLength)
	case "vol_ma":
		return NewVolMa(kind.Length)
	case "atr":
		return NewATR(kind.Length)
	case "adx":
		return NewADX(kind.Periods, kind.DiLength)
	case "sma_on_rsi":
		return NewSmaOnRsi(kind.Periods, kind.Smoothing)
	case "stoch_rsi":
		return NewStochRsi(kind.Periods, kind.KSmoothing, kind.DSmoothing)
	default:
		panic("indicators: unknown kind " + kind.Name)
	}
}
