// Package bot implements the Bot Supervisor: the process-wide actor that
// owns every running Market Supervisor, allocates and frees margin as
// markets come and go, fans operator commands out to the right market, and
// groups incoming liquidation fills by coin before injecting them straight
// into their market's Executor.
package bot

import (
	"context"
	"log"
	"strings"
	"sync"

	"perpsbot/internal/exec"
	"perpsbot/internal/logx"
	"perpsbot/internal/margin"
	"perpsbot/internal/market"
	"perpsbot/internal/metrics"
)

// EventKind enumerates Event variants.
type EventKind int

const (
	EvtAddMarket EventKind = iota
	EvtToggleMarket
	EvtRemoveMarket
	EvtMarketComm
	EvtManualUpdateMargin
	EvtResumeAll
	EvtPauseAll
	EvtCloseAll
)

// Builder constructs the Market Supervisor for a newly added asset once its
// margin allocation has been approved. freeMargin is the amount the Bot
// Supervisor reserved for it in the Margin Book.
type Builder func(freeMargin float64) *market.Supervisor

// AddMarketInfo is everything needed to stand up a new Market Supervisor.
type AddMarketInfo struct {
	Asset       string
	MarginAlloc margin.Allocation
	Build       Builder
}

// BotToMarket routes a single market.Command to one asset, mirroring the
// {asset, cmd} pair an operator sends through MarketComm.
type BotToMarket struct {
	Asset string
	Cmd   market.Command
}

// Event is the Bot Supervisor's single operator-facing inbound message
// type.
type Event struct {
	Kind EventKind

	AddMarket AddMarketInfo
	Asset     string
	MarketComm BotToMarket

	ManualMarginAsset string
	ManualMarginAlloc margin.Allocation
}

func AddMarketEvent(info AddMarketInfo) Event { return Event{Kind: EvtAddMarket, AddMarket: info} }
func ToggleMarketEvent(asset string) Event    { return Event{Kind: EvtToggleMarket, Asset: asset} }
func RemoveMarketEvent(asset string) Event    { return Event{Kind: EvtRemoveMarket, Asset: asset} }
func MarketCommEvent(asset string, cmd market.Command) Event {
	return Event{Kind: EvtMarketComm, MarketComm: BotToMarket{Asset: asset, Cmd: cmd}}
}
func ManualUpdateMarginEvent(asset string, alloc margin.Allocation) Event {
	return Event{Kind: EvtManualUpdateMargin, ManualMarginAsset: asset, ManualMarginAlloc: alloc}
}
func ResumeAllEvent() Event { return Event{Kind: EvtResumeAll} }
func PauseAllEvent() Event  { return Event{Kind: EvtPauseAll} }
func CloseAllEvent() Event  { return Event{Kind: EvtCloseAll} }

// RawLiquidation is one exchange-reported fill leg known to be a
// liquidation, carrying the coin it belongs to so a frame of user fills can
// be grouped by market before dispatch.
type RawLiquidation struct {
	Coin string
	Fill exec.RawFill
}

type registeredMarket struct {
	cmds   chan<- market.Command
	paused bool
}

// Supervisor is the Bot Supervisor. It has no public fields; every
// interaction goes through Events or Liquidations so all state
// mutation is serialized on a single goroutine in Run.
type Supervisor struct {
	mu      sync.Mutex
	markets map[string]registeredMarket

	book  *margin.Book
	guard *margin.ExposureGuard

	events       chan Event
	liquidations chan []RawLiquidation

	log *log.Logger
}

// New builds a Bot Supervisor backed by the given Margin Book and exposure
// guard. guard may be nil, in which case markets built through Guard() get
// no extra exposure cap beyond what the Margin Book enforces.
func New(book *margin.Book, guard *margin.ExposureGuard) *Supervisor {
	return &Supervisor{
		markets:      make(map[string]registeredMarket),
		book:         book,
		guard:        guard,
		events:       make(chan Event, 16),
		liquidations: make(chan []RawLiquidation, 16),
		log:          logx.New("bot", ""),
	}
}

// Guard returns the shared exposure guard this Bot Supervisor was built
// with, for Build callbacks to wire into each Market Supervisor's Config.
// Returns a nil exec.Guard interface (not a typed nil pointer) if none was
// configured; callers pass it straight into market.Config.Guard either way.
func (s *Supervisor) Guard() exec.Guard {
	if s.guard == nil {
		return nil
	}
	return s.guard
}

// Events returns the channel used to send the Bot Supervisor operator
// commands.
func (s *Supervisor) Events() chan<- Event { return s.events }

// Liquidations returns the channel a user-fill listener pushes raw,
// already-liquidation-filtered fill legs onto, one slice per exchange
// update frame.
func (s *Supervisor) Liquidations() chan<- []RawLiquidation { return s.liquidations }

// Markets returns the currently registered asset symbols.
func (s *Supervisor) Markets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	assets := make([]string, 0, len(s.markets))
	for asset := range s.markets {
		assets = append(assets, asset)
	}
	return assets
}

// Run drives the Bot Supervisor until ctx is cancelled. Liquidation frames
// are drained ahead of operator events on every iteration, mirroring the
// exchange's own priority: a liquidation is an authoritative exchange fact
// that must never queue behind a UI click.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case fills := <-s.liquidations:
			s.dispatchLiquidations(ctx, fills)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return

		case fills := <-s.liquidations:
			s.dispatchLiquidations(ctx, fills)

		case evt := <-s.events:
			s.handle(ctx, evt)
		}
	}
}

func (s *Supervisor) dispatchLiquidations(ctx context.Context, fills []RawLiquidation) {
	byCoin := make(map[string][]exec.RawFill)
	for _, f := range fills {
		byCoin[f.Coin] = append(byCoin[f.Coin], f.Fill)
	}
	for coin, legs := range byCoin {
		fill, err := exec.AggregateFills(legs)
		if err != nil {
			s.log.Printf("dropping liquidation batch for %s: %v", coin, err)
			continue
		}
		metrics.IncLiquidation(coin)
		s.sendTo(coin, market.ReceiveLiquidationCommand(fill))
	}
}

func (s *Supervisor) handle(ctx context.Context, evt Event) {
	switch evt.Kind {
	case EvtAddMarket:
		s.addMarket(ctx, evt.AddMarket)

	case EvtToggleMarket:
		s.toggleMarket(evt.Asset)

	case EvtRemoveMarket:
		s.removeMarket(evt.Asset)

	case EvtMarketComm:
		s.sendTo(evt.MarketComm.Asset, evt.MarketComm.Cmd)

	case EvtManualUpdateMargin:
		if err := s.book.UpdateAsset(evt.ManualMarginAsset, resolveAlloc(s.book, evt.ManualMarginAlloc)); err != nil {
			s.log.Printf("manual margin update rejected for %s: %v", evt.ManualMarginAsset, err)
			return
		}

	case EvtResumeAll:
		s.log.Printf("resuming all markets")
		s.forEachMarket(func(asset string, cmds chan<- market.Command) {
			cmds <- market.ResumeCommand()
		})

	case EvtPauseAll:
		s.log.Printf("pausing all markets")
		s.forEachMarket(func(asset string, cmds chan<- market.Command) {
			cmds <- market.PauseCommand()
		})

	case EvtCloseAll:
		s.closeAll()
	}
}

func (s *Supervisor) addMarket(ctx context.Context, info AddMarketInfo) {
	asset := strings.ToUpper(strings.TrimSpace(info.Asset))

	s.mu.Lock()
	if _, exists := s.markets[asset]; exists {
		s.mu.Unlock()
		s.log.Printf("add market %s rejected: already running", asset)
		return
	}
	s.mu.Unlock()

	if err := s.book.Allocate(ctx, asset, info.MarginAlloc); err != nil {
		s.log.Printf("add market %s rejected: %v", asset, err)
		return
	}

	sup := info.Build(resolveAlloc(s.book, info.MarginAlloc))
	cmds := sup.Commands()

	s.mu.Lock()
	s.markets[asset] = registeredMarket{cmds: cmds}
	s.mu.Unlock()
	s.reportMarginMetrics()

	go func() {
		if err := sup.Run(ctx); err != nil {
			s.log.Printf("market %s exited with error: %v", asset, err)
		}
		s.mu.Lock()
		delete(s.markets, asset)
		s.mu.Unlock()
		s.book.Remove(asset)
		s.reportMarginMetrics()
	}()
}

// removeMarket only asks the market to close; the margin slot is freed by
// the addMarket goroutine once sup.Run actually returns, so a market's
// outstanding flatten order is never cut off mid-close.
func (s *Supervisor) removeMarket(asset string) {
	asset = strings.ToUpper(strings.TrimSpace(asset))

	s.mu.Lock()
	m, exists := s.markets[asset]
	s.mu.Unlock()

	if !exists {
		s.log.Printf("remove market %s failed: doesn't exist", asset)
		return
	}
	m.cmds <- market.CloseCommand()
}

func (s *Supervisor) toggleMarket(asset string) {
	asset = strings.ToUpper(strings.TrimSpace(asset))

	s.mu.Lock()
	m, exists := s.markets[asset]
	if !exists {
		s.mu.Unlock()
		s.log.Printf("toggle market %s failed: doesn't exist", asset)
		return
	}
	m.paused = !m.paused
	s.markets[asset] = m
	s.mu.Unlock()

	if m.paused {
		m.cmds <- market.PauseCommand()
	} else {
		m.cmds <- market.ResumeCommand()
	}
}

func (s *Supervisor) sendTo(asset string, cmd market.Command) {
	asset = strings.ToUpper(strings.TrimSpace(asset))

	s.mu.Lock()
	m, exists := s.markets[asset]
	s.mu.Unlock()

	if !exists {
		s.log.Printf("command for %s dropped: market doesn't exist", asset)
		return
	}
	m.cmds <- cmd
}

func (s *Supervisor) forEachMarket(fn func(asset string, cmds chan<- market.Command)) {
	s.mu.Lock()
	snapshot := make(map[string]chan<- market.Command, len(s.markets))
	for asset, m := range s.markets {
		snapshot[asset] = m.cmds
	}
	s.mu.Unlock()

	for asset, cmds := range snapshot {
		fn(asset, cmds)
	}
}

func (s *Supervisor) closeAll() {
	s.log.Printf("closing all markets")
	s.mu.Lock()
	snapshot := make(map[string]chan<- market.Command, len(s.markets))
	for asset, m := range s.markets {
		snapshot[asset] = m.cmds
	}
	s.markets = make(map[string]registeredMarket)
	s.mu.Unlock()

	for _, cmds := range snapshot {
		cmds <- market.CloseCommand()
	}
	s.book.Reset()
	s.reportMarginMetrics()
}

// reportMarginMetrics refreshes the margin and exposure gauges after any
// change to the set of running markets.
func (s *Supervisor) reportMarginMetrics() {
	metrics.SetMarginUsed(s.book.Used())
	metrics.SetMarginFree(s.book.Free())
	if s.guard != nil {
		metrics.SetExposureActive(s.guard.ActiveCount())
	}
}

// resolveAlloc re-expresses a manual margin edit as an absolute amount so
// UpdateAsset's free-margin check (which works in absolute amounts) sees a
// concrete number regardless of
// whether the operator expressed the edit as a fraction or a fixed amount.
func resolveAlloc(book *margin.Book, alloc margin.Allocation) float64 {
	if alloc.Kind == margin.Fraction {
		return alloc.Value * book.TotalOnChain()
	}
	return alloc.Value
}
