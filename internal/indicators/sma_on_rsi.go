package indicators

import "perpsbot/internal/core"

// SmaOnRsi smooths an RSI series with a simple moving average — a second
// derived layer on top of RSI, the way the strategy files (e.g.
// srsi_adx_scalp.rs) use `SmaOnRsi{periods, smoothing_length}` as an RSI
// trend filter.
type SmaOnRsi struct {
	periods, smoothing int
	rsi                *RSI
	smaWindow          *window
	current            float64
}

func NewSmaOnRsi(periods, smoothing int) *SmaOnRsi {
	return &SmaOnRsi{periods: periods, smoothing: smoothing, rsi: NewRSI(periods), smaWindow: newWindow(smoothing)}
}

func (s *SmaOnRsi) Kind() core.IndicatorKind { return core.SmaOnRsi(s.periods, s.smoothing) }

func (s *SmaOnRsi) UpdateAfterClose(price core.Price) {
	s.rsi.UpdateAfterClose(price)
	if rv, ok := s.rsi.Value(); ok {
		s.smaWindow.commitPush(rv.Scalar)
		if m, ok := s.smaWindow.mean(); ok {
			s.current = m
		}
	}
}

func (s *SmaOnRsi) UpdateBeforeClose(price core.Price) {
	// Peek the RSI tentatively (pure: RSI.UpdateBeforeClose never mutates
	// its committed state), then fold that tentative reading into a
	// tentative SMA without mutating the SMA window either.
	s.rsi.UpdateBeforeClose(price)
	rv, ok := s.rsi.Value()
	if !ok {
		return
	}
	if m, ok := s.smaWindow.tentativeMean(rv.Scalar); ok {
		s.current = m
	}
}

func (s *SmaOnRsi) Value() (core.Value, bool) {
	if !s.smaWindow.full() {
		return core.Value{}, false
	}
	return core.Value{Kind: s.Kind(), Scalar: s.current}, true
}

func (s *SmaOnRsi) Load(prices []core.Price) { Load(prices, s.UpdateAfterClose, s.UpdateBeforeClose) }

func (s *SmaOnRsi) Reset() { s.rsi.Reset(); s.smaWindow.reset(); s.current = 0 }

func (s *SmaOnRsi) IsReady() bool { return s.smaWindow.full() }
