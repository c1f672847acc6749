package margin

import (
	"sync"
	"time"
)

// ExposureGuard bounds how many markets may hold an open position
// concurrently and how much aggregate notional they may carry, independent
// of whatever free margin the Book reports. A market that gets rejected is
// put on a short cooldown so it cannot immediately retry the same entry on
// the next tick.
type ExposureGuard struct {
	mu sync.Mutex

	maxConcurrent int
	totalLimit    float64
	cooldown      time.Duration

	active       map[string]float64
	blockedUntil map[string]time.Time

	clock func() time.Time
}

func NewExposureGuard(maxConcurrent int, totalLimit float64, cooldown time.Duration) *ExposureGuard {
	return &ExposureGuard{
		maxConcurrent: maxConcurrent,
		totalLimit:    totalLimit,
		cooldown:      cooldown,
		active:        make(map[string]float64),
		blockedUntil:  make(map[string]time.Time),
		clock:         time.Now,
	}
}

// CanEnter reports whether asset may open a position of the given notional
// right now. A false result also arms a cooldown for asset so repeated
// rejected attempts don't spam the guard every tick.
func (g *ExposureGuard) CanEnter(asset string, notional float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	if until, blocked := g.blockedUntil[asset]; blocked && now.Before(until) {
		return false
	}

	if _, already := g.active[asset]; !already && len(g.active) >= g.maxConcurrent {
		g.blockedUntil[asset] = now.Add(g.cooldown)
		return false
	}

	sum := notional
	for a, n := range g.active {
		if a == asset {
			continue
		}
		sum += n
	}
	if sum > g.totalLimit {
		g.blockedUntil[asset] = now.Add(g.cooldown)
		return false
	}

	return true
}

// RegisterTrade records asset as holding an open position of the given
// notional, counting against MaxConcurrent and TotalLimit until released.
func (g *ExposureGuard) RegisterTrade(asset string, notional float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[asset] = notional
}

// ReleaseTrade clears asset's exposure once its position is flat.
func (g *ExposureGuard) ReleaseTrade(asset string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, asset)
}

func (g *ExposureGuard) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

func (g *ExposureGuard) TotalNotional() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var sum float64
	for _, n := range g.active {
		sum += n
	}
	return sum
}
