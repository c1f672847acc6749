package signal

import (
	"context"

	"github.com/google/uuid"

	"perpsbot/internal/core"
	"perpsbot/internal/exec"
	"perpsbot/internal/strategy"
)

// EditType enumerates the ways a live indicator set can be mutated at
// runtime (spec.md §4.3 EditIndicators).
type EditType int

const (
	EditAdd EditType = iota
	EditRemove
	EditToggle
)

// Entry is one indicator edit instruction.
type Entry struct {
	Id   core.IndexId
	Edit EditType
}

// ExecParamKind enumerates ExecParam variants.
type ExecParamKind int

const (
	ParamMargin ExecParamKind = iota
	ParamLev
	ParamOpenPosition
)

// ExecParam is a push from the Market Supervisor telling the engine about a
// change to the execution context a strategy observes (free margin,
// leverage, the currently open position).
type ExecParam struct {
	Kind     ExecParamKind
	Margin   float64
	Lev      int
	OpenPos  *strategy.OpenPositionInfo
}

func MarginParam(m float64) ExecParam                       { return ExecParam{Kind: ParamMargin, Margin: m} }
func LevParam(l int) ExecParam                               { return ExecParam{Kind: ParamLev, Lev: l} }
func OpenPositionParam(p *strategy.OpenPositionInfo) ExecParam { return ExecParam{Kind: ParamOpenPosition, OpenPos: p} }

// CommandKind enumerates EngineCommand variants.
type CommandKind int

const (
	CmdUpdatePrice CommandKind = iota
	CmdUpdateStrategy
	CmdEditIndicators
	CmdUpdateExecParams
	CmdStop
)

// EngineCommand is the Signal Engine's single inbound message type.
type EngineCommand struct {
	Kind CommandKind

	Price core.Price
	NowMs int64

	Strategy strategy.Strat

	Indicators []Entry
	PriceData  map[core.TimeFrame][]core.Price

	Param ExecParam
}

func UpdatePriceCommand(price core.Price, nowMs int64) EngineCommand {
	return EngineCommand{Kind: CmdUpdatePrice, Price: price, NowMs: nowMs}
}
func UpdateStrategyCommand(s strategy.Strat) EngineCommand {
	return EngineCommand{Kind: CmdUpdateStrategy, Strategy: s}
}
func EditIndicatorsCommand(entries []Entry, priceData map[core.TimeFrame][]core.Price) EngineCommand {
	return EngineCommand{Kind: CmdEditIndicators, Indicators: entries, PriceData: priceData}
}
func UpdateExecParamsCommand(p ExecParam) EngineCommand {
	return EngineCommand{Kind: CmdUpdateExecParams, Param: p}
}
func StopCommand() EngineCommand { return EngineCommand{Kind: CmdStop} }

// IndicatorUpdater relays a periodic snapshot of every tracked indicator
// (active or not) to the owning Market Supervisor, for frontend display.
type IndicatorUpdater interface {
	UpdateIndicatorData(data map[core.IndexId]core.Value)
}

// Engine is the Signal Engine: one multi-timeframe indicator pipeline plus
// one active strategy, driving an asset's Executor through non-blocking
// order dispatch.
type Engine struct {
	trackers map[core.TimeFrame]*Tracker
	strategy strategy.Strat

	freeMargin float64
	lev        int
	openPos    *strategy.OpenPositionInfo

	tradeTx   chan<- exec.ExecCommand
	updater   IndicatorUpdater
	tick      uint64
}

// NewEngine builds the tracker set from the strategy's required indicators
// plus any extra indicators requested by config, one Tracker per distinct
// timeframe.
func NewEngine(strat strategy.Strat, extra []core.IndexId, tradeTx chan<- exec.ExecCommand, updater IndicatorUpdater, lev int) *Engine {
	e := &Engine{
		trackers: make(map[core.TimeFrame]*Tracker),
		strategy: strat,
		lev:      lev,
		tradeTx:  tradeTx,
		updater:  updater,
	}

	seen := make(map[core.IndexId]bool)
	add := func(id core.IndexId) {
		if seen[id] {
			return
		}
		seen[id] = true
		e.trackerFor(id.TimeFrame).AddIndicator(id.Kind, false)
	}
	for _, id := range strat.RequiredIndicators() {
		add(id)
	}
	for _, id := range extra {
		add(id)
	}
	return e
}

func (e *Engine) trackerFor(tf core.TimeFrame) *Tracker {
	if t, ok := e.trackers[tf]; ok {
		return t
	}
	t := NewTracker(tf)
	e.trackers[tf] = t
	return t
}

// Load replays historical bars for one timeframe into every tracker
// watching it, used at startup and when a new timeframe is added live.
func (e *Engine) Load(tf core.TimeFrame, prices []core.Price) {
	if t, ok := e.trackers[tf]; ok {
		t.Load(prices)
	}
}

func (e *Engine) addIndicator(id core.IndexId) { e.trackerFor(id.TimeFrame).AddIndicator(id.Kind, true) }

func (e *Engine) removeIndicator(id core.IndexId) {
	if t, ok := e.trackers[id.TimeFrame]; ok {
		t.RemoveIndicator(id.Kind)
	}
}

func (e *Engine) toggleIndicator(id core.IndexId) {
	if t, ok := e.trackers[id.TimeFrame]; ok {
		t.ToggleIndicator(id.Kind)
	}
}

func (e *Engine) activeValues() map[core.IndexId]core.Value {
	out := make(map[core.IndexId]core.Value)
	for _, t := range e.trackers {
		for id, v := range t.ActiveValues() {
			out[id] = v
		}
	}
	return out
}

func (e *Engine) allData() map[core.IndexId]core.Value {
	out := make(map[core.IndexId]core.Value)
	for _, t := range e.trackers {
		for id, v := range t.AllData() {
			out[id] = v
		}
	}
	return out
}

func (e *Engine) digest(nowMs int64, price core.Price) {
	for _, t := range e.trackers {
		t.Digest(nowMs, price)
	}
}

// Run drains cmds until the channel closes, ctx is cancelled, or a Stop
// command is received.
func (e *Engine) Run(ctx context.Context, cmds <-chan EngineCommand) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			if !e.Dispatch(cmd) {
				return
			}
		}
	}
}

// Dispatch handles one command, returning false once a Stop command has
// been processed.
func (e *Engine) Dispatch(cmd EngineCommand) bool {
	switch cmd.Kind {
	case CmdUpdatePrice:
		e.onPrice(cmd.Price, cmd.NowMs)

	case CmdUpdateStrategy:
		e.strategy = cmd.Strategy

	case CmdEditIndicators:
		for _, entry := range cmd.Indicators {
			switch entry.Edit {
			case EditAdd:
				e.addIndicator(entry.Id)
			case EditRemove:
				e.removeIndicator(entry.Id)
			case EditToggle:
				e.toggleIndicator(entry.Id)
			}
		}
		for tf, prices := range cmd.PriceData {
			e.Load(tf, prices)
		}
		if e.updater != nil {
			e.updater.UpdateIndicatorData(e.allData())
		}

	case CmdUpdateExecParams:
		switch cmd.Param.Kind {
		case ParamMargin:
			e.freeMargin = cmd.Param.Margin
		case ParamLev:
			e.lev = cmd.Param.Lev
		case ParamOpenPosition:
			e.openPos = cmd.Param.OpenPos
		}

	case CmdStop:
		return false
	}
	return true
}

func (e *Engine) onPrice(price core.Price, nowMs int64) {
	e.digest(nowMs, price)

	data := e.allData()
	if len(data) == 0 {
		return
	}

	if e.tick%2 == 0 && e.updater != nil {
		e.updater.UpdateIndicatorData(data)
	}

	ctx := strategy.StratContext{
		FreeMargin: e.freeMargin,
		Lev:        e.lev,
		LastPrice:  price.Close,
		Indicators: e.activeValues(),
		NowMs:      nowMs,
		OpenPos:    e.openPos,
	}

	if intent := e.strategy.OnTick(ctx); intent != nil {
		if order, ok := e.toOrder(intent, ctx); ok {
			order.OrderID = uuid.NewString()
			// Non-blocking dispatch: never block the digest loop waiting for
			// the executor, matching the original's try_send semantics — a
			// full channel means the executor is behind and the tick's
			// intent is dropped.
			select {
			case e.tradeTx <- exec.OrderCommand(order):
			default:
			}
		}
	}

	e.tick++
}

// toOrder translates a strategy's pure Intent into an exec.EngineOrder.
// Arm/Disarm intents carry no order (they are strategy-internal armed-window
// bookkeeping, already applied by the strategy itself) and are dropped here.
func (e *Engine) toOrder(intent *strategy.Intent, ctx strategy.StratContext) (exec.EngineOrder, bool) {
	switch intent.Kind {
	case strategy.IntentArm, strategy.IntentDisarm:
		return exec.EngineOrder{}, false

	case strategy.IntentOpenMarket:
		size := intent.Size.Resolve(ctx.FreeMargin, ctx.Lev, ctx.LastPrice)
		return exec.EngineOrder{
			Action:   openAction(intent.Side),
			Size:     size,
			RefPrice: ctx.LastPrice,
		}, true

	case strategy.IntentOpenLimit:
		size := intent.Size.Resolve(ctx.FreeMargin, ctx.Lev, ctx.LastPrice)
		return exec.EngineOrder{
			Action:   openAction(intent.Side),
			Size:     size,
			Limit:    &exec.Limit{LimitPx: intent.Price, Tif: core.Gtc},
			RefPrice: ctx.LastPrice,
		}, true

	case strategy.IntentFlattenMarket:
		if ctx.OpenPos == nil {
			return exec.EngineOrder{}, false
		}
		return exec.EngineOrder{Action: core.Close, Size: ctx.OpenPos.Size, RefPrice: ctx.LastPrice}, true

	case strategy.IntentFlattenLimit:
		if ctx.OpenPos == nil {
			return exec.EngineOrder{}, false
		}
		return exec.EngineOrder{
			Action:   core.Close,
			Size:     ctx.OpenPos.Size,
			Limit:    &exec.Limit{LimitPx: intent.Price, Tif: core.Gtc},
			RefPrice: ctx.LastPrice,
		}, true

	case strategy.IntentSetTp, strategy.IntentSetSl:
		if ctx.OpenPos == nil {
			return exec.EngineOrder{}, false
		}
		kind := core.Tp
		if intent.Kind == strategy.IntentSetSl {
			kind = core.Sl
		}
		return exec.EngineOrder{
			Action: core.Close,
			Size:   ctx.OpenPos.Size,
			Limit: &exec.Limit{
				LimitPx: intent.Price,
				Tif:     core.Gtc,
				Trigger: &exec.TriggerOrder{Kind: kind, IsMarket: true},
			},
			RefPrice: ctx.LastPrice,
		}, true

	default:
		return exec.EngineOrder{}, false
	}
}

func openAction(side core.Side) core.PositionOp {
	if side == core.Long {
		return core.OpenLong
	}
	return core.OpenShort
}
