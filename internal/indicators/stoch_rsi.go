package indicators

import "perpsbot/internal/core"

// StochRsi is the Stochastic oscillator applied to an RSI series: %K raw =
// (rsi - min)/(max - min) * 100 over a `periods`-bar lookback, then %K and
// %D are each further smoothed with their own SMA windows.
type StochRsi struct {
	periods, kSm, dSm int

	rsi       *RSI
	rsiWindow *window // rolling window of raw RSI values, for min/max
	kWindow   *window // smooths raw %K into %K
	dWindow   *window // smooths %K into %D

	currentK, currentD float64
}

func NewStochRsi(periods, kSm, dSm int) *StochRsi {
	return &StochRsi{
		periods:   periods,
		kSm:       kSm,
		dSm:       dSm,
		rsi:       NewRSI(periods),
		rsiWindow: newWindow(periods),
		kWindow:   newWindow(kSm),
		dWindow:   newWindow(dSm),
	}
}

func (s *StochRsi) Kind() core.IndicatorKind { return core.StochRsi(s.periods, s.kSm, s.dSm) }

func rawK(rsi, lo, hi float64) float64 {
	if hi == lo {
		return 50.0
	}
	return (rsi - lo) / (hi - lo) * 100.0
}

func (s *StochRsi) UpdateAfterClose(price core.Price) {
	s.rsi.UpdateAfterClose(price)
	rv, ok := s.rsi.Value()
	if !ok {
		return
	}
	s.rsiWindow.commitPush(rv.Scalar)
	lo, hi, ok := s.rsiWindow.minMax()
	if !ok {
		return
	}
	k := rawK(rv.Scalar, lo, hi)
	s.kWindow.commitPush(k)
	kSmoothed, ok := s.kWindow.mean()
	if !ok {
		return
	}
	s.currentK = kSmoothed
	s.dWindow.commitPush(kSmoothed)
	if d, ok := s.dWindow.mean(); ok {
		s.currentD = d
	}
}

func (s *StochRsi) UpdateBeforeClose(price core.Price) {
	s.rsi.UpdateBeforeClose(price)
	rv, ok := s.rsi.Value()
	if !ok {
		return
	}
	lo, hi, ok := s.rsiWindow.tentativeMinMax(rv.Scalar)
	if !ok {
		return
	}
	k := rawK(rv.Scalar, lo, hi)
	kSmoothed, ok := s.kWindow.tentativeMean(k)
	if !ok {
		return
	}
	s.currentK = kSmoothed
	if d, ok := s.dWindow.tentativeMean(kSmoothed); ok {
		s.currentD = d
	}
}

func (s *StochRsi) Value() (core.Value, bool) {
	if !s.dWindow.full() {
		return core.Value{}, false
	}
	return core.Value{Kind: s.Kind(), StochK: s.currentK, StochD: s.currentD}, true
}

func (s *StochRsi) Load(prices []core.Price) { Load(prices, s.UpdateAfterClose, s.UpdateBeforeClose) }

func (s *StochRsi) Reset() {
	s.rsi.Reset()
	s.rsiWindow.reset()
	s.kWindow.reset()
	s.dWindow.reset()
	s.currentK, s.currentD = 0, 0
}

func (s *StochRsi) IsReady() bool { return s.dWindow.full() }
