// Package market implements the Market Supervisor: the per-asset actor that
// owns one Signal Engine and one Executor, wires the live candle stream
// between them, and is the sole point where a Bot Supervisor or operator
// reaches a running market.
package market

import (
	"context"
	"log"
	"sync"
	"time"

	"perpsbot/internal/core"
	"perpsbot/internal/exec"
	"perpsbot/internal/logx"
	"perpsbot/internal/signal"
	"perpsbot/internal/strategy"
)

// BackfillBars is how many historical candles are loaded per timeframe at
// startup and whenever a new timeframe is added live.
const BackfillBars = 3000

// CandleLoader fetches historical OHLCV bars for a (asset, timeframe) pair.
type CandleLoader interface {
	LoadCandles(ctx context.Context, asset string, tf core.TimeFrame, count int) ([]core.Price, error)
}

// CandleStream subscribes to the live candle feed for a (asset, timeframe)
// pair. The returned channel is closed, and cleanup invoked, once ctx is
// cancelled.
type CandleStream interface {
	Subscribe(ctx context.Context, asset string, tf core.TimeFrame) (<-chan core.Price, error)
}

// LeverageSetter pushes a leverage change to the exchange.
type LeverageSetter interface {
	SetLeverage(ctx context.Context, asset string, lev int) error
}

// Frontend is an optional sink for state the Market Supervisor produces but
// does not itself need — a UI layer, if one existed, would implement it.
type Frontend interface {
	UpdateIndicatorData(asset string, data map[core.IndexId]core.Value)
	UpdatePosition(asset string, pos *exec.OpenPosition)
	UpdateTrade(asset string, info exec.TradeInfo)
}

// CommandKind enumerates Command variants.
type CommandKind int

const (
	CmdUpdateLeverage CommandKind = iota
	CmdUpdateStrategy
	CmdEditIndicators
	CmdUpdateTimeFrame
	CmdPause
	CmdResume
	CmdClose
	CmdReceiveFill
)

// Command is the Market Supervisor's single inbound message type.
type Command struct {
	Kind CommandKind

	Lev int

	Strategy strategy.Strat

	Indicators []signal.Entry

	TimeFrame core.TimeFrame

	Fill exec.TradeFill
}

func UpdateLeverageCommand(lev int) Command     { return Command{Kind: CmdUpdateLeverage, Lev: lev} }
func UpdateStrategyCommand(s strategy.Strat) Command {
	return Command{Kind: CmdUpdateStrategy, Strategy: s}
}
func EditIndicatorsCommand(entries []signal.Entry) Command {
	return Command{Kind: CmdEditIndicators, Indicators: entries}
}
func UpdateTimeFrameCommand(tf core.TimeFrame) Command {
	return Command{Kind: CmdUpdateTimeFrame, TimeFrame: tf}
}

// ReceiveFillCommand injects an exchange-confirmed fill straight into the
// market's Executor, keyed by oid against whatever order is resting (or
// treated as a manual/authoritative fill if none is). Used for every fill
// the user-data stream reports for this asset, forced liquidations included
// — a liquidation is just a fill the strategy never decided on.
func ReceiveFillCommand(fill exec.TradeFill) Command {
	return Command{Kind: CmdReceiveFill, Fill: fill}
}

// ReceiveLiquidationCommand is ReceiveFillCommand under the name the Bot
// Supervisor's liquidation dispatch uses, since that's the one case where
// the caller already knows the fill is a forced liquidation rather than
// one of this market's own resting orders.
func ReceiveLiquidationCommand(fill exec.TradeFill) Command {
	return ReceiveFillCommand(fill)
}
func PauseCommand() Command  { return Command{Kind: CmdPause} }
func ResumeCommand() Command { return Command{Kind: CmdResume} }
func CloseCommand() Command  { return Command{Kind: CmdClose} }

// internal self-messages, serialized through the same loop as Command so
// fill-driven state mutation never races the public command surface.
type selfMsgKind int

const (
	selfReceiveTrade selfMsgKind = iota
	selfUpdatePosition
)

type selfMsg struct {
	kind  selfMsgKind
	trade exec.TradeInfo
	pos   *exec.OpenPosition
}

// Supervisor owns one asset's Signal Engine and Executor.
type Supervisor struct {
	asset       string
	maxLeverage int
	timeFrame   core.TimeFrame
	activeTfs   map[core.TimeFrame]bool

	leverage   int
	margin     float64
	pnl        float64
	tradeCount int

	// hasPosition mirrors whether the Executor currently holds an open
	// position, tracked from selfUpdatePosition messages so CmdClose knows
	// whether it must wait for a flatten fill before terminating.
	hasPosition bool

	// closing is set once Close has queued a Kill with a position still
	// open; the run loop keeps draining cmds/self as normal until the
	// resulting flatten fill's TradeInfo arrives, instead of terminating
	// out from under it.
	closing bool

	engine   *signal.Engine
	executor *exec.Executor

	engineCmds chan signal.EngineCommand
	execCmds   chan exec.ExecCommand
	cmds       chan Command
	self       chan selfMsg

	loader LeverageSetter
	candle CandleLoader
	stream CandleStream
	front  Frontend

	log *log.Logger
}

// Config bundles a Supervisor's construction-time dependencies.
type Config struct {
	Asset       string
	MaxLeverage int
	Leverage    int
	Margin      float64
	TimeFrame   core.TimeFrame
	SzDecimals  int
	Strategy    strategy.Strat
	ExtraIndicators []core.IndexId
	Client   exec.ExchangeClient
	Loader   LeverageSetter
	Candles  CandleLoader
	Stream   CandleStream
	Frontend Frontend

	// Guard is an optional process-wide exposure cap, owned by the Bot
	// Supervisor and shared across every market it runs.
	Guard exec.Guard
}

// New builds a Supervisor wired to the given strategy, recording timeFrame
// plus every extra indicator's timeframe as an active one to backfill.
func New(cfg Config) *Supervisor {
	s := &Supervisor{
		asset:       cfg.Asset,
		maxLeverage: cfg.MaxLeverage,
		timeFrame:   cfg.TimeFrame,
		activeTfs:   make(map[core.TimeFrame]bool),
		leverage:    cfg.Leverage,
		margin:      cfg.Margin,
		engineCmds:  make(chan signal.EngineCommand, 32),
		execCmds:    make(chan exec.ExecCommand, 32),
		cmds:        make(chan Command, 8),
		self:        make(chan selfMsg, 8),
		loader:      cfg.Loader,
		candle:      cfg.Candles,
		stream:      cfg.Stream,
		front:       cfg.Frontend,
		log:         logx.New("market", cfg.Asset),
	}
	s.activeTfs[cfg.TimeFrame] = true
	for _, id := range cfg.Strategy.RequiredIndicators() {
		s.activeTfs[id.TimeFrame] = true
	}
	for _, id := range cfg.ExtraIndicators {
		s.activeTfs[id.TimeFrame] = true
	}

	s.engine = signal.NewEngine(cfg.Strategy, cfg.ExtraIndicators, s.execCmds, indicatorAdapter{s}, s.leverage)
	s.executor = exec.NewExecutor(cfg.Asset, cfg.SzDecimals, cfg.Client, updaterAdapter{s}, s.log)
	if cfg.Guard != nil {
		s.executor.SetGuard(cfg.Guard)
	}
	return s
}

// Commands returns the channel used to send this market live commands.
func (s *Supervisor) Commands() chan<- Command { return s.cmds }

// indicatorAdapter and updaterAdapter exist only so Supervisor itself can
// satisfy signal.IndicatorUpdater and exec.Updater without exposing those
// method names on its own public surface (Run, Commands are the only
// externally meaningful operations).
type indicatorAdapter struct{ s *Supervisor }

func (a indicatorAdapter) UpdateIndicatorData(data map[core.IndexId]core.Value) {
	if a.s.front != nil {
		a.s.front.UpdateIndicatorData(a.s.asset, data)
	}
}

type updaterAdapter struct{ s *Supervisor }

func (a updaterAdapter) UpdatePosition(pos *exec.OpenPosition) {
	a.s.self <- selfMsg{kind: selfUpdatePosition, pos: pos}
}

func (a updaterAdapter) UpdateTrade(info exec.TradeInfo) {
	a.s.self <- selfMsg{kind: selfReceiveTrade, trade: info}
}

// Run initializes the market (leverage clamp, candle backfill) then drives
// the engine, executor, candle stream, and command loop until ctx is
// cancelled or a Close command is processed.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.init(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	engineCtx, cancelEngine := context.WithCancel(ctx)
	defer cancelEngine()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.executor.Run(engineCtx, s.execCmds)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.engine.Run(engineCtx, s.engineCmds)
	}()

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	prices, err := s.stream.Subscribe(streamCtx, s.asset, s.timeFrame)
	if err != nil {
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for price := range prices {
			select {
			case s.engineCmds <- signal.UpdatePriceCommand(price, time.Now().UnixMilli()):
			case <-engineCtx.Done():
				return
			}
		}
	}()

	s.loop(ctx, cancelEngine, cancelStream)
	wg.Wait()
	s.log.Printf("stopped, %d trades, pnl=%.4f", s.tradeCount, s.pnl)
	return nil
}

func (s *Supervisor) init(ctx context.Context) error {
	lev := s.leverage
	if lev > s.maxLeverage {
		lev = s.maxLeverage
	}
	if lev != s.leverage {
		if err := s.loader.SetLeverage(ctx, s.asset, lev); err != nil {
			return err
		}
		s.leverage = lev
		s.engineCmds <- signal.UpdateExecParamsCommand(signal.LevParam(lev))
	}

	for tf := range s.activeTfs {
		prices, err := s.candle.LoadCandles(ctx, s.asset, tf, BackfillBars)
		if err != nil {
			return err
		}
		s.engine.Load(tf, prices)
	}
	s.log.Printf("initialized, lev=%d margin=%.4f", s.leverage, s.margin)
	return nil
}

func (s *Supervisor) loop(ctx context.Context, cancelEngine, cancelStream context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-s.self:
			s.handleSelf(msg)
			if s.closing && msg.kind == selfReceiveTrade {
				cancelEngine()
				return
			}

		case cmd := <-s.cmds:
			if !s.handle(ctx, cmd, cancelEngine, cancelStream) {
				return
			}
		}
	}
}

func (s *Supervisor) handleSelf(msg selfMsg) {
	switch msg.kind {
	case selfReceiveTrade:
		s.pnl += msg.trade.Pnl
		s.margin += msg.trade.Pnl
		s.tradeCount++
		s.engineCmds <- signal.UpdateExecParamsCommand(signal.MarginParam(s.margin))
		if s.front != nil {
			s.front.UpdateTrade(s.asset, msg.trade)
		}

	case selfUpdatePosition:
		s.hasPosition = msg.pos != nil
		var info *strategy.OpenPositionInfo
		if msg.pos != nil {
			info = &strategy.OpenPositionInfo{
				Side:       msg.pos.Side,
				Size:       msg.pos.Size,
				EntryPx:    msg.pos.EntryPx,
				OpenTimeMs: msg.pos.OpenTimeMs,
			}
		}
		s.engineCmds <- signal.UpdateExecParamsCommand(signal.OpenPositionParam(info))
		if s.front != nil {
			s.front.UpdatePosition(s.asset, msg.pos)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, cmd Command, cancelEngine, cancelStream context.CancelFunc) bool {
	switch cmd.Kind {
	case CmdUpdateLeverage:
		lev := cmd.Lev
		if lev > s.maxLeverage {
			lev = s.maxLeverage
		}
		if lev == s.leverage {
			return true
		}
		if err := s.loader.SetLeverage(ctx, s.asset, lev); err != nil {
			s.log.Printf("leverage update failed: %v", err)
			return true
		}
		s.leverage = lev
		s.engineCmds <- signal.UpdateExecParamsCommand(signal.LevParam(lev))

	case CmdUpdateStrategy:
		s.engineCmds <- signal.UpdateStrategyCommand(cmd.Strategy)

	case CmdEditIndicators:
		priceData := make(map[core.TimeFrame][]core.Price)
		for _, entry := range cmd.Indicators {
			if entry.Edit == signal.EditAdd && !s.activeTfs[entry.Id.TimeFrame] {
				prices, err := s.candle.LoadCandles(ctx, s.asset, entry.Id.TimeFrame, BackfillBars)
				if err != nil {
					s.log.Printf("failed to backfill %s for new indicator: %v", entry.Id.TimeFrame, err)
					continue
				}
				priceData[entry.Id.TimeFrame] = prices
				s.activeTfs[entry.Id.TimeFrame] = true
			}
		}
		var pd map[core.TimeFrame][]core.Price
		if len(priceData) > 0 {
			pd = priceData
		}
		s.engineCmds <- signal.EditIndicatorsCommand(cmd.Indicators, pd)

	case CmdUpdateTimeFrame:
		// Changing the primary candle-stream timeframe only takes effect on
		// the next Run; live re-subscription would tear down the in-flight
		// stream goroutine and is handled by restarting the market instead.
		s.timeFrame = cmd.TimeFrame

	case CmdPause:
		s.execCmds <- exec.ControlCommand(exec.ControlPause)

	case CmdResume:
		s.execCmds <- exec.ControlCommand(exec.ControlResume)

	case CmdReceiveFill:
		s.execCmds <- exec.EventCommand(exec.FillEvent(cmd.Fill))

	case CmdClose:
		s.log.Printf("closing market")
		cancelStream()
		s.engineCmds <- signal.StopCommand()
		if !s.hasPosition {
			s.execCmds <- exec.ControlCommand(exec.ControlKill)
			cancelEngine()
			return false
		}
		// A position is still open: ForceClose cancels resting orders and
		// queues a flatten order without stopping the Executor. Keep the loop
		// running (so the flatten fill's CmdReceiveFill can still reach the
		// Executor over execCmds) until its selfReceiveTrade lands; the
		// cancelEngine call that follows it then stops the Executor.
		s.execCmds <- exec.ControlCommand(exec.ControlForceClose)
		s.closing = true
	}
	return true
}
