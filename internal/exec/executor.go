package exec

import (
	"context"
	"fmt"
	"log"
	"time"

	"perpsbot/internal/core"
	"perpsbot/internal/metrics"
)

const CancelRetryDelay = 100 * time.Millisecond

// Executor is the Execution State Machine for one asset: it translates
// engine orders into exchange submissions, tracks resting orders by oid,
// applies fills, and maintains the authoritative open-position record.
type Executor struct {
	asset      string
	szDecimals int
	pxDecimals int

	client  ExchangeClient
	updater Updater
	guard   Guard
	log     *log.Logger
	clock   func() int64

	paused   bool
	resting  map[uint64]*RestingOrder
	position *OpenPosition
}

func NewExecutor(asset string, szDecimals int, client ExchangeClient, updater Updater, logger *log.Logger) *Executor {
	return &Executor{
		asset:      asset,
		szDecimals: szDecimals,
		pxDecimals: MaxDecimals - szDecimals - PxFix(asset),
		client:     client,
		updater:    updater,
		log:        logger,
		clock:      func() int64 { return time.Now().UnixMilli() },
		resting:    make(map[uint64]*RestingOrder),
	}
}

// SetGuard attaches a process-wide exposure guard, consulted before every
// opening order and updated as positions open and close. Optional; a nil
// guard (the default) imposes no extra restriction beyond the Margin Book.
func (e *Executor) SetGuard(g Guard) { e.guard = g }

// Position returns the currently held position, or nil.
func (e *Executor) Position() *OpenPosition { return e.position }

// RestingCount returns the number of orders currently tracked as resting.
func (e *Executor) RestingCount() int { return len(e.resting) }

// Run drains cmds until it closes, ctx is cancelled, or a Kill control
// command terminates the loop.
func (e *Executor) Run(ctx context.Context, cmds <-chan ExecCommand) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			if e.Dispatch(ctx, cmd) {
				return
			}
		}
	}
}

// Dispatch processes one command and reports whether the executor should
// terminate (a Kill control command was received).
func (e *Executor) Dispatch(ctx context.Context, cmd ExecCommand) (terminal bool) {
	switch cmd.Kind {
	case CmdOrder:
		if e.paused {
			return false
		}
		e.handleOrder(ctx, cmd.Order)
	case CmdControl:
		switch cmd.Control {
		case ControlKill:
			e.kill(ctx)
			return true
		case ControlPause:
			e.kill(ctx)
			e.paused = true
		case ControlResume:
			e.paused = false
		case ControlForceClose:
			e.kill(ctx)
		}
	case CmdEvent:
		e.handleEvent(ctx, cmd.Event)
	}
	return false
}

func (e *Executor) handleEvent(ctx context.Context, event ExecEvent) {
	switch event.Kind {
	case EventFill:
		fill := event.Fill
		switch fill.Intent {
		case core.OpenLong, core.OpenShort:
			e.applyFill(ctx, fill)
		case core.Close:
			if info := e.applyFill(ctx, fill); info != nil {
				e.updater.UpdateTrade(*info)
			}
		}
	case EventFunding:
		if e.position != nil {
			e.position.Funding += event.Funding
			e.updater.UpdatePosition(e.position)
		} else {
			e.log.Printf("received funding update with no open position")
		}
	}
}

func (e *Executor) handleOrder(ctx context.Context, order EngineOrder) {
	side, size, ok := e.resolveOrderParams(order)
	if !ok {
		return
	}

	size = roundHalfAwayFromZero(size, e.szDecimals)
	if size <= 0 {
		return
	}

	isOpen := order.Action == core.OpenLong || order.Action == core.OpenShort
	if isOpen && e.guard != nil && !e.guard.CanEnter(e.asset, size*order.RefPrice) {
		e.log.Printf("rejecting open order %s: exposure guard declined %s", order.OrderID, e.asset)
		metrics.IncOrderRejected(e.asset, "exposure_guard")
		return
	}

	limit := order.Limit
	if limit != nil {
		rounded := *limit
		rounded.LimitPx = roundHalfAwayFromZero(limit.LimitPx, e.pxDecimals)
		// validateIntentPrice's TP/SL check is written in terms of the
		// position's own side, not the order side submitted to flatten it
		// — a long position's SL order sells (order side Short) but still
		// means "long SL", so invert back for a Close.
		posSide := side
		if order.Action == core.Close {
			posSide = side.Opposite()
		}
		if err := validateIntentPrice(rounded, posSide, order.RefPrice); err != nil {
			e.log.Printf("rejecting order: %v", err)
			return
		}
		limit = &rounded
	}

	_, isTpSl := order.IsTpSl()
	reduceOnly := order.Action == core.Close || isTpSl

	var (
		res OrderResult
		err error
	)
	switch {
	case limit == nil:
		res, err = e.client.SubmitMarket(ctx, side == core.Long, size, reduceOnly)
	case limit.Trigger != nil:
		res, err = e.client.SubmitTrigger(ctx, side == core.Long, size, limit.LimitPx, reduceOnly, *limit.Trigger)
	default:
		res, err = e.client.SubmitLimit(ctx, side == core.Long, size, limit.LimitPx, reduceOnly, limit.Tif)
	}
	if err != nil {
		e.log.Printf("order %s submission failed: %v", order.OrderID, err)
		metrics.IncOrderRejected(e.asset, "submission_error")
		return
	}

	switch res.Status {
	case StatusResting, StatusFilled:
		var limitPx *float64
		var tpsl *core.TriggerKind
		if limit != nil {
			px := limit.LimitPx
			limitPx = &px
			if k, ok := limit.IsTpSl(); ok {
				tpsl = &k
			}
		}
		e.resting[res.Oid] = &RestingOrder{Oid: res.Oid, OrderID: order.OrderID, LimitPx: limitPx, Sz: size, Side: side, Intent: order.Action, Tpsl: tpsl}
		metrics.IncOrderSubmitted(e.asset, order.Action.String())
		metrics.SetRestingOrders(e.asset, len(e.resting))
	case StatusError:
		e.log.Printf("exchange rejected order %s for %s: %s", order.OrderID, e.asset, res.ErrMsg)
		metrics.IncOrderRejected(e.asset, "exchange_rejected")
	}
}

func (e *Executor) resolveOrderParams(order EngineOrder) (core.Side, float64, bool) {
	switch order.Action {
	case core.OpenLong:
		return core.Long, order.Size, true
	case core.OpenShort:
		return core.Short, order.Size, true
	case core.Close:
		if e.position == nil {
			return core.Long, 0, false
		}
		size := order.Size
		if size > e.position.Size {
			size = e.position.Size
		}
		return e.position.Side.Opposite(), size, true
	default:
		return core.Long, 0, false
	}
}

func (e *Executor) applyFill(ctx context.Context, fill TradeFill) *TradeInfo {
	cleanUp := false

	if resting, ok := e.resting[fill.Oid]; ok {
		if resting.Intent != fill.Intent {
			e.log.Printf("fill intent %v does not match resting order %s intent %v for oid %d", fill.Intent, resting.OrderID, resting.Intent, fill.Oid)
		}
		if resting.LimitPx != nil && resting.Tpsl == nil {
			switch resting.Side {
			case core.Long:
				if fill.Price > *resting.LimitPx {
					e.log.Printf("fill price %.8f above resting long limit %.8f", fill.Price, *resting.LimitPx)
				}
			case core.Short:
				if fill.Price < *resting.LimitPx {
					e.log.Printf("fill price %.8f below resting short limit %.8f", fill.Price, *resting.LimitPx)
				}
			}
		}
		resting.Sz -= fill.Sz
		if roundHalfAwayFromZero(resting.Sz, e.szDecimals) == 0 {
			cleanUp = true
		}
	} else if fill.Intent != core.Close {
		e.log.Printf("manual trade opened by the user, will be tracked")
	}

	if cleanUp {
		delete(e.resting, fill.Oid)
	}
	metrics.SetRestingOrders(e.asset, len(e.resting))
	metrics.IncFillApplied(e.asset, fill.Intent.String())

	var tradeInfo *TradeInfo
	switch fill.Intent {
	case core.OpenLong, core.OpenShort:
		if e.position != nil {
			if err := e.position.ApplyOpenFill(fill); err != nil {
				e.log.Printf("%v", err)
			}
		} else {
			e.position = NewOpenPosition(fill, e.clock())
		}
		if e.guard != nil && e.position != nil {
			e.guard.RegisterTrade(e.asset, e.position.Size*e.position.EntryPx)
		}
	case core.Close:
		if e.position != nil {
			if info := e.position.ApplyCloseFill(fill, e.szDecimals, e.clock()); info != nil {
				tradeInfo = info
				e.position = nil
				metrics.IncTradeClosed(e.asset, info.Pnl)
			}
		}
		if e.guard != nil && e.position == nil {
			e.guard.ReleaseTrade(e.asset)
		}
	}
	e.updater.UpdatePosition(e.position)

	if tradeInfo != nil && !cleanUp {
		e.log.Printf("trade closed manually on the exchange, canceling local resting orders...")
		if err := e.cancelAllResting(ctx); err != nil {
			e.log.Printf("%v", err)
		}
	}

	return tradeInfo
}

func (e *Executor) kill(ctx context.Context) {
	if err := e.cancelAllResting(ctx); err != nil {
		e.log.Printf("%v", err)
	}

	if e.position == nil {
		return
	}
	side := e.position.Side.Opposite()
	size := e.position.Size

	res, err := e.client.SubmitMarket(ctx, side == core.Long, size, true)
	if err != nil {
		e.log.Printf("kill: flatten order failed: %v", err)
		return
	}
	if res.Status == StatusError {
		e.log.Printf("kill: flatten order rejected: %s", res.ErrMsg)
		return
	}
	e.resting[res.Oid] = &RestingOrder{Oid: res.Oid, Sz: size, Side: side, Intent: core.Close}
}

// cancelAllResting issues a cancel for every tracked resting order, retrying
// failures up to CancelRetryRounds times with CancelRetryDelay spacing.
func (e *Executor) cancelAllResting(ctx context.Context) error {
	failed := make(map[uint64]struct{})
	for oid := range e.resting {
		if err := e.client.Cancel(ctx, oid); err != nil {
			failed[oid] = struct{}{}
		}
	}
	e.resting = make(map[uint64]*RestingOrder)

	retries := 0
	for len(failed) > 0 {
		retries++
		for oid := range failed {
			if err := e.client.Cancel(ctx, oid); err == nil {
				delete(failed, oid)
			}
		}
		if len(failed) == 0 {
			break
		}
		if retries >= CancelRetryRounds {
			return fmt.Errorf("exec: failed to cancel resting order for %s market, please cancel manually on the exchange UI", e.asset)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(CancelRetryDelay):
		}
	}
	return nil
}
