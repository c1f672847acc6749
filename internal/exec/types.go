// Package exec implements the Execution State Machine: the stateful bridge
// between strategy intents and exchange orders, fills, and the locally held
// open position.
package exec

import "perpsbot/internal/core"

const (
	// MaxDecimals is the exchange-wide ceiling on combined size+price
	// decimal precision.
	MaxDecimals = 6

	MinLimitMult = 0.05
	MaxLimitMult = 15.0

	CancelRetryRounds = 5
)

// PxFix returns the asset-specific price-decimal fixup subtracted (along
// with size decimals) from MaxDecimals to get the price decimal count.
func PxFix(asset string) int {
	if asset == "SOL" {
		return 2
	}
	return 1
}

// CommandKind enumerates ExecCommand variants.
type CommandKind int

const (
	CmdOrder CommandKind = iota
	CmdControl
	CmdEvent
)

type ControlKind int

const (
	ControlKill ControlKind = iota
	ControlPause
	ControlResume
	ControlForceClose
)

// ExecCommand is the executor's single inbound message type, delivered over
// a buffered channel (market.New sizes it at 32) from the Signal Engine
// (orders) and from the Market Supervisor (control, fill/funding events).
// The channel is not a rendezvous: the Signal Engine's non-blocking send
// queues an order whenever buffer space is free.
type ExecCommand struct {
	Kind    CommandKind
	Order   EngineOrder
	Control ControlKind
	Event   ExecEvent
}

func OrderCommand(o EngineOrder) ExecCommand    { return ExecCommand{Kind: CmdOrder, Order: o} }
func ControlCommand(c ControlKind) ExecCommand  { return ExecCommand{Kind: CmdControl, Control: c} }
func EventCommand(e ExecEvent) ExecCommand      { return ExecCommand{Kind: CmdEvent, Event: e} }

// TriggerOrder describes a conditional (TP/SL) order payload.
type TriggerOrder struct {
	Kind     core.TriggerKind
	IsMarket bool
}

// Limit is a resting-order specification: a plain limit (with a
// time-in-force) or a conditional trigger order.
type Limit struct {
	LimitPx float64
	Tif     core.Tif
	Trigger *TriggerOrder
}

func (l Limit) IsTpSl() (core.TriggerKind, bool) {
	if l.Trigger == nil {
		return 0, false
	}
	return l.Trigger.Kind, true
}

// EngineOrder is a strategy's resolved order instruction, ready for the
// executor to round, validate, and submit. RefPrice is the last traded
// price observed by the engine at intent time, carried along so the
// executor can sanity-check a limit/trigger price without needing its own
// price feed.
type EngineOrder struct {
	Action   core.PositionOp
	Size     float64
	Limit    *Limit
	RefPrice float64

	// OrderID correlates this order through the executor's logs and its
	// resting-order bookkeeping, from intent to fill or cancel.
	OrderID string
}

func (o EngineOrder) IsTpSl() (core.TriggerKind, bool) {
	if o.Limit == nil {
		return 0, false
	}
	return o.Limit.IsTpSl()
}

// EventKind enumerates ExecEvent variants.
type EventKind int

const (
	EventFill EventKind = iota
	EventFunding
)

type ExecEvent struct {
	Kind    EventKind
	Fill    TradeFill
	Funding float64
}

func FillEvent(f TradeFill) ExecEvent      { return ExecEvent{Kind: EventFill, Fill: f} }
func FundingEvent(amount float64) ExecEvent { return ExecEvent{Kind: EventFunding, Funding: amount} }

// TradeFill is one reconciled exchange fill (already aggregated if it
// arrived as a batch under one oid).
type TradeFill struct {
	Oid      uint64
	Price    float64
	Sz       float64
	Fee      float64
	Side     core.Side
	Intent   core.PositionOp
	FillType core.FillType
}

// RestingOrder tracks an order the exchange accepted but has not yet fully
// filled.
type RestingOrder struct {
	Oid     uint64
	OrderID string
	LimitPx *float64
	Sz      float64
	Side    core.Side
	Intent  core.PositionOp
	Tpsl    *core.TriggerKind
}

// FillInfo is the open or close leg of a completed round-trip.
type FillInfo struct {
	TimeMs   int64
	Price    float64
	FillType core.FillType
}

// TradeInfo is a closed round-trip, emitted once a close fill reduces the
// open position's size to zero.
type TradeInfo struct {
	Side    core.Side
	Size    float64
	Pnl     float64
	Fees    float64
	Funding float64
	Open    FillInfo
	Close   FillInfo
}
