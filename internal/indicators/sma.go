package indicators

import "perpsbot/internal/core"

// SMA is the arithmetic mean over a fixed window of closes.
type SMA struct {
	length  int
	w       *window
	current float64
}

func NewSMA(length int) *SMA {
	return &SMA{length: length, w: newWindow(length)}
}

func (s *SMA) Kind() core.IndicatorKind { return core.Sma(s.length) }

func (s *SMA) UpdateAfterClose(price core.Price) {
	s.w.commitPush(price.Close)
	if v, ok := s.w.mean(); ok {
		s.current = v
	}
}

func (s *SMA) UpdateBeforeClose(price core.Price) {
	if v, ok := s.w.tentativeMean(price.Close); ok {
		s.current = v
	}
}

func (s *SMA) Value() (core.Value, bool) {
	if !s.w.full() {
		return core.Value{}, false
	}
	return core.Value{Kind: s.Kind(), Scalar: s.current}, true
}

func (s *SMA) Load(prices []core.Price) { Load(prices, s.UpdateAfterClose, s.UpdateBeforeClose) }

func (s *SMA) Reset() { s.w.reset(); s.current = 0 }

func (s *SMA) IsReady() bool { return s.w.full() }
