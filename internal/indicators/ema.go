package indicators

import "perpsbot/internal/core"

// EMA is the exponential moving average, seeded with the SMA of the first
// `length` closes and smoothed thereafter with alpha = 2/(length+1) — the
// same seeding convention trend_analyzer.go's calculateEMA uses for a batch
// series, adapted here to stream one bar at a time.
type EMA struct {
	length  int
	alpha   float64
	seed    *window
	seeded  bool
	ema     float64
	current float64
}

func NewEMA(length int) *EMA {
	return &EMA{length: length, alpha: 2.0 / float64(length+1), seed: newWindow(length)}
}

func (e *EMA) Kind() core.IndicatorKind { return core.Ema(e.length) }

func (e *EMA) UpdateAfterClose(price core.Price) {
	if !e.seeded {
		e.seed.commitPush(price.Close)
		if m, ok := e.seed.mean(); ok {
			e.ema = m
			e.seeded = true
			e.current = m
		}
		return
	}
	e.ema = price.Close*e.alpha + e.ema*(1-e.alpha)
	e.current = e.ema
}

func (e *EMA) UpdateBeforeClose(price core.Price) {
	if !e.seeded {
		if m, ok := e.seed.tentativeMean(price.Close); ok {
			e.current = m
		}
		return
	}
	e.current = price.Close*e.alpha + e.ema*(1-e.alpha)
}

func (e *EMA) Value() (core.Value, bool) {
	if !e.seeded {
		return core.Value{}, false
	}
	return core.Value{Kind: e.Kind(), Scalar: e.current}, true
}

func (e *EMA) Load(prices []core.Price) { Load(prices, e.UpdateAfterClose, e.UpdateBeforeClose) }

func (e *EMA) Reset() { e.seed.reset(); e.seeded = false; e.ema = 0; e.current = 0 }

func (e *EMA) IsReady() bool { return e.seeded }
