package indicators

import "perpsbot/internal/core"

// RSI is Wilder's Relative Strength Index.
type RSI struct {
	length   int
	gain     *wilderAvg
	loss     *wilderAvg
	hasPrev  bool
	prevClose float64
	current  float64
	ready    bool
}

func NewRSI(length int) *RSI {
	return &RSI{length: length, gain: newWilderAvg(length), loss: newWilderAvg(length)}
}

func (r *RSI) Kind() core.IndicatorKind { return core.Rsi(r.length) }

func rsiFromAvgs(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) UpdateAfterClose(price core.Price) {
	if !r.hasPrev {
		r.prevClose = price.Close
		r.hasPrev = true
		return
	}
	change := price.Close - r.prevClose
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	avgGain := r.gain.commit(gain)
	avgLoss := r.loss.commit(loss)
	r.prevClose = price.Close
	if r.gain.ready {
		r.current = rsiFromAvgs(avgGain, avgLoss)
		r.ready = true
	}
}

func (r *RSI) UpdateBeforeClose(price core.Price) {
	if !r.hasPrev {
		return
	}
	change := price.Close - r.prevClose
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	tg, ok := r.gain.tentative(gain)
	if !ok {
		return
	}
	tl, _ := r.loss.tentative(loss)
	r.current = rsiFromAvgs(tg, tl)
}

func (r *RSI) Value() (core.Value, bool) {
	if !r.ready {
		return core.Value{}, false
	}
	return core.Value{Kind: r.Kind(), Scalar: r.current}, true
}

func (r *RSI) Load(prices []core.Price) { Load(prices, r.UpdateAfterClose, r.UpdateBeforeClose) }

func (r *RSI) Reset() {
	r.gain.reset()
	r.loss.reset()
	r.hasPrev = false
	r.current = 0
	r.ready = false
}

func (r *RSI) IsReady() bool { return r.ready }
