package indicators

import "perpsbot/internal/core"

// VolMa is the arithmetic mean over a fixed window of bar volumes.
type VolMa struct {
	length  int
	w       *window
	current float64
}

func NewVolMa(length int) *VolMa {
	return &VolMa{length: length, w: newWindow(length)}
}

func (v *VolMa) Kind() core.IndicatorKind { return core.VolMa(v.length) }

func (v *VolMa) UpdateAfterClose(price core.Price) {
	v.w.commitPush(price.Vlm)
	if m, ok := v.w.mean(); ok {
		v.current = m
	}
}

func (v *VolMa) UpdateBeforeClose(price core.Price) {
	if m, ok := v.w.tentativeMean(price.Vlm); ok {
		v.current = m
	}
}

func (v *VolMa) Value() (core.Value, bool) {
	if !v.w.full() {
		return core.Value{}, false
	}
	return core.Value{Kind: v.Kind(), Scalar: v.current}, true
}

func (v *VolMa) Load(prices []core.Price) { Load(prices, v.UpdateAfterClose, v.UpdateBeforeClose) }

func (v *VolMa) Reset() { v.w.reset(); v.current = 0 }

func (v *VolMa) IsReady() bool { return v.w.full() }
