package indicators

import "perpsbot/internal/core"

// EmaCross wraps a short- and long-period EMA and reports whether the short
// EMA currently sits above the long EMA (an uptrend), matching
// trend_analyzer.go's EMA9-vs-EMA21 bullish/bearish classification.
type EmaCross struct {
	shortLen, longLen int
	short, long       *EMA
}

func NewEmaCross(short, long int) *EmaCross {
	return &EmaCross{shortLen: short, longLen: long, short: NewEMA(short), long: NewEMA(long)}
}

func (c *EmaCross) Kind() core.IndicatorKind { return core.EmaCross(c.shortLen, c.longLen) }

func (c *EmaCross) UpdateAfterClose(price core.Price) {
	c.short.UpdateAfterClose(price)
	c.long.UpdateAfterClose(price)
}

func (c *EmaCross) UpdateBeforeClose(price core.Price) {
	c.short.UpdateBeforeClose(price)
	c.long.UpdateBeforeClose(price)
}

func (c *EmaCross) Value() (core.Value, bool) {
	sv, sok := c.short.Value()
	lv, lok := c.long.Value()
	if !sok || !lok {
		return core.Value{}, false
	}
	return core.Value{
		Kind:       c.Kind(),
		CrossShort: sv.Scalar,
		CrossLong:  lv.Scalar,
		CrossUp:    sv.Scalar > lv.Scalar,
	}, true
}

func (c *EmaCross) Load(prices []core.Price) {
	Load(prices, c.UpdateAfterClose, c.UpdateBeforeClose)
}

func (c *EmaCross) Reset() { c.short.Reset(); c.long.Reset() }

func (c *EmaCross) IsReady() bool { return c.short.IsReady() && c.long.IsReady() }
