package exchange

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"

	"perpsbot/internal/core"
	"perpsbot/internal/exec"
)

// OrderClient is the per-asset exec.ExchangeClient view of a shared
// Exchange. szDecimals/pxDecimals are looked up from the SymbolProfile
// that FetchExchangeInfo cached, on every format call.
type OrderClient struct {
	exch  *Exchange
	asset string
}

func (c *OrderClient) symbol() string { return Symbol(c.asset) }

func (c *OrderClient) formatQty(sz float64) string {
	return strconv.FormatFloat(sz, 'f', c.exch.Profile(c.asset).SzDecimals(), 64)
}

func (c *OrderClient) formatPx(px float64) string {
	return strconv.FormatFloat(px, 'f', c.exch.Profile(c.asset).PxDecimals(), 64)
}

func side(isBuy bool) futures.SideType {
	if isBuy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func toResult(res *futures.CreateOrderResponse, err error) (exec.OrderResult, error) {
	if err != nil {
		return exec.OrderResult{Status: exec.StatusError, ErrMsg: err.Error()}, nil
	}
	status := exec.StatusResting
	if res.Status == futures.OrderStatusTypeFilled {
		status = exec.StatusFilled
	}
	return exec.OrderResult{Status: status, Oid: uint64(res.OrderID)}, nil
}

// SubmitMarket places a market order, reduceOnly set on every closing order.
func (c *OrderClient) SubmitMarket(ctx context.Context, isBuy bool, sz float64, reduceOnly bool) (exec.OrderResult, error) {
	svc := c.exch.client.NewCreateOrderService().
		Symbol(c.symbol()).
		Side(side(isBuy)).
		Type(futures.OrderTypeMarket).
		Quantity(c.formatQty(sz)).
		ReduceOnly(reduceOnly)
	res, err := svc.Do(ctx)
	return toResult(res, err)
}

// SubmitLimit places a resting limit order with the given time-in-force.
func (c *OrderClient) SubmitLimit(ctx context.Context, isBuy bool, sz, limitPx float64, reduceOnly bool, tif core.Tif) (exec.OrderResult, error) {
	svc := c.exch.client.NewCreateOrderService().
		Symbol(c.symbol()).
		Side(side(isBuy)).
		Type(futures.OrderTypeLimit).
		TimeInForce(toTif(tif)).
		Price(c.formatPx(limitPx)).
		Quantity(c.formatQty(sz)).
		ReduceOnly(reduceOnly)
	res, err := svc.Do(ctx)
	return toResult(res, err)
}

// SubmitTrigger places a conditional TP/SL order, market or limit execution
// at the trigger price depending on trigger.IsMarket.
func (c *OrderClient) SubmitTrigger(ctx context.Context, isBuy bool, sz, triggerPx float64, reduceOnly bool, trigger exec.TriggerOrder) (exec.OrderResult, error) {
	orderType := triggerOrderType(trigger)
	svc := c.exch.client.NewCreateOrderService().
		Symbol(c.symbol()).
		Side(side(isBuy)).
		Type(orderType).
		StopPrice(c.formatPx(triggerPx)).
		WorkingType(futures.WorkingTypeMarkPrice).
		ReduceOnly(reduceOnly)
	if !trigger.IsMarket {
		svc = svc.Price(c.formatPx(triggerPx)).TimeInForce(futures.TimeInForceTypeGTC)
	}
	svc = svc.Quantity(c.formatQty(sz))
	res, err := svc.Do(ctx)
	return toResult(res, err)
}

// Cancel cancels a resting order by exchange order id.
func (c *OrderClient) Cancel(ctx context.Context, oid uint64) error {
	_, err := c.exch.client.NewCancelOrderService().Symbol(c.symbol()).OrderID(int64(oid)).Do(ctx)
	if err != nil {
		return fmt.Errorf("exchange: cancel %s oid %d: %w", c.asset, oid, err)
	}
	return nil
}

func toTif(tif core.Tif) futures.TimeInForceType {
	switch tif {
	case core.Alo:
		return futures.TimeInForceTypeGTX
	case core.Ioc:
		return futures.TimeInForceTypeIOC
	default:
		return futures.TimeInForceTypeGTC
	}
}

func triggerOrderType(trigger exec.TriggerOrder) futures.OrderType {
	switch {
	case trigger.Kind == core.Tp && trigger.IsMarket:
		return futures.OrderTypeTakeProfitMarket
	case trigger.Kind == core.Tp:
		return futures.OrderTypeTakeProfit
	case trigger.IsMarket:
		return futures.OrderTypeStopMarket
	default:
		return futures.OrderTypeStop
	}
}
