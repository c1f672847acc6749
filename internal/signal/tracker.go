// Package signal implements the Tracker and Signal Engine: the streaming
// multi-timeframe indicator pipeline that turns a price tick into a
// strategy-ready snapshot.
package signal

import (
	"perpsbot/internal/core"
	"perpsbot/internal/indicators"
)

// MaxHistory is the bounded ring capacity per tracker (original_source's
// consts.rs MAX_HISTORY).
const MaxHistory = 20000

// handlerEntry pairs an indicator with its active flag (spec.md §3
// Handler: inactive indicators keep updating but are omitted from
// snapshots).
type handlerEntry struct {
	h        indicators.Handler
	isActive bool
}

// Tracker owns the price ring and indicator set for one timeframe, and
// aligns bar-close boundaries from wall-clock time.
type Tracker struct {
	tf          core.TimeFrame
	ring        []core.Price
	handlers    map[core.IndicatorKind]*handlerEntry
	nextCloseMs int64
	initialized bool
}

func NewTracker(tf core.TimeFrame) *Tracker {
	return &Tracker{tf: tf, handlers: make(map[core.IndicatorKind]*handlerEntry)}
}

func (t *Tracker) TimeFrame() core.TimeFrame { return t.tf }

// AddIndicator constructs a Handler for kind; if backfill is true and the
// ring is non-empty, it is seeded via Load before being attached.
func (t *Tracker) AddIndicator(kind core.IndicatorKind, backfill bool) {
	h := indicators.New(kind)
	if backfill && len(t.ring) > 0 {
		h.Load(t.ring)
	}
	t.handlers[kind] = &handlerEntry{h: h, isActive: true}
}

func (t *Tracker) RemoveIndicator(kind core.IndicatorKind) {
	delete(t.handlers, kind)
}

func (t *Tracker) ToggleIndicator(kind core.IndicatorKind) {
	if e, ok := t.handlers[kind]; ok {
		e.isActive = !e.isActive
	}
}

func (t *Tracker) HasIndicator(kind core.IndicatorKind) bool {
	_, ok := t.handlers[kind]
	return ok
}

// Digest routes one price tick through the bar-close-alignment algorithm
// (spec.md §4.2): on the very first tick it initialises next_close_ms from
// wall-clock and treats the tick as before_close; once now passes
// next_close_ms the tick finalises the bar (after_close) and the ring
// grows; otherwise it is a provisional before_close peek and the ring is
// left untouched.
func (t *Tracker) Digest(now int64, price core.Price) {
	switch {
	case !t.initialized:
		t.updateBeforeClose(price)
		// The very first tick arrives at an arbitrary offset into an
		// already-running bar whose start we never observed, so the
		// tracker cannot yet treat the *next* boundary as a real close —
		// doing so would finalise a bar built from a single, possibly
		// mid-bar, sample. It skips one full width ahead instead, so the
		// first bar it ever finalises is one it watched form from here
		// forward (see spec.md §8 scenario 4: now=119_500, width=60_000
		// ⇒ next_close=180_000, not the usual +1 width 120_000).
		t.nextCloseMs = t.tf.NextClose(now) + t.tf.ToMillis()
		t.initialized = true
		t.push(price)
	case now >= t.nextCloseMs:
		t.updateAfterClose(price)
		t.nextCloseMs = t.tf.NextClose(now)
		t.push(price)
	default:
		t.updateBeforeClose(price)
	}
}

func (t *Tracker) push(price core.Price) {
	t.ring = append(t.ring, price)
	if len(t.ring) > MaxHistory {
		t.ring = t.ring[len(t.ring)-MaxHistory:]
	}
}

func (t *Tracker) updateBeforeClose(price core.Price) {
	for _, e := range t.handlers {
		e.h.UpdateBeforeClose(price)
	}
}

func (t *Tracker) updateAfterClose(price core.Price) {
	for _, e := range t.handlers {
		e.h.UpdateAfterClose(price)
	}
}

// Load replays historical bars into every attached indicator (used when a
// timeframe is freshly backfilled) and seeds the ring.
func (t *Tracker) Load(prices []core.Price) {
	for _, e := range t.handlers {
		e.h.Load(prices)
	}
	for _, p := range prices {
		t.push(p)
	}
}

// ActiveValues returns the current reading of every active, ready
// indicator, keyed by IndexId.
func (t *Tracker) ActiveValues() map[core.IndexId]core.Value {
	out := make(map[core.IndexId]core.Value)
	for kind, e := range t.handlers {
		if !e.isActive {
			continue
		}
		if v, ok := e.h.Value(); ok {
			out[core.IndexId{Kind: kind, TimeFrame: t.tf}] = v
		}
	}
	return out
}

// AllData returns every handler's reading regardless of active state, for
// frontend indicator-data snapshots.
func (t *Tracker) AllData() map[core.IndexId]core.Value {
	out := make(map[core.IndexId]core.Value)
	for kind, e := range t.handlers {
		if v, ok := e.h.Value(); ok {
			out[core.IndexId{Kind: kind, TimeFrame: t.tf}] = v
		}
	}
	return out
}

func (t *Tracker) NextCloseMs() int64 { return t.nextCloseMs }

func (t *Tracker) RingLen() int { return len(t.ring) }
