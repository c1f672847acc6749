package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"perpsbot/internal/core"
	"perpsbot/internal/exec"
)

// UserFill is one exchange-reported fill leg, tagged with the asset it
// belongs to. Binance's user-data stream reports fills one order-trade
// update at a time rather than batched into a single frame across coins,
// so each fill reaches callers on its own; cmd/bot forwards each liquidation
// leg to the Bot Supervisor as a one-leg frame without grouping.
type UserFill struct {
	Asset         string
	Fill          exec.RawFill
	IsLiquidation bool
}

// StreamUserFills starts the account's user-data stream and forwards every
// order fill leg as it arrives, re-dialing with backoff on disconnect until
// ctx is cancelled. The underlying listen key is kept alive in the
// background for as long as ctx remains open.
func (e *Exchange) StreamUserFills(ctx context.Context) (<-chan UserFill, error) {
	listenKey, err := e.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: starting user data stream: %w", err)
	}

	out := make(chan UserFill, 64)
	go e.keepAliveUserStream(ctx, listenKey)
	go e.runUserDataStream(ctx, listenKey, out)
	return out, nil
}

func (e *Exchange) keepAliveUserStream(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				e.log.Printf("user data stream keepalive failed: %v", err)
			}
		}
	}
}

func (e *Exchange) runUserDataStream(ctx context.Context, listenKey string, out chan<- UserFill) {
	defer close(out)
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: true}

	for {
		if ctx.Err() != nil {
			return
		}

		doneC, stopC, err := futures.WsUserDataServe(listenKey, func(event *futures.WsUserDataEvent) {
			e.handleUserDataEvent(ctx, event, out)
		}, func(err error) {
			e.log.Printf("user data stream error: %v", err)
		})
		if err != nil {
			e.log.Printf("user data stream dial failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.Duration()):
				continue
			}
		}
		b.Reset()

		select {
		case <-ctx.Done():
			close(stopC)
			return
		case <-doneC:
			e.log.Printf("user data stream disconnected, reconnecting")
		}
	}
}

func (e *Exchange) handleUserDataEvent(ctx context.Context, event *futures.WsUserDataEvent, out chan<- UserFill) {
	if event.Event != futures.UserDataEventTypeOrderTradeUpdate {
		return
	}
	upd := event.OrderTradeUpdate
	if upd.ExecutionType != futures.OrderExecutionTypeTrade {
		return
	}

	price, err := strconv.ParseFloat(upd.LastFilledPrice, 64)
	if err != nil {
		return
	}
	size, err := strconv.ParseFloat(upd.LastFilledQty, 64)
	if err != nil {
		return
	}
	fee, _ := strconv.ParseFloat(upd.Commission, 64)

	asset := stripQuote(upd.Symbol)
	isLiquidation := upd.Type == futures.OrderType("LIQUIDATION")
	fill := exec.RawFill{
		Oid:           uint64(upd.ID),
		Coin:          asset,
		Side:          fillSide(upd),
		Intent:        fillIntent(upd),
		Price:         price,
		Size:          size,
		Fee:           fee,
		IsMarket:      upd.Type == futures.OrderTypeMarket,
		IsLiquidation: isLiquidation,
	}

	select {
	case out <- UserFill{Asset: asset, Fill: fill, IsLiquidation: isLiquidation}:
	case <-ctx.Done():
	}
}

func stripQuote(symbol string) string {
	return strings.TrimSuffix(symbol, "USDT")
}

func fillSide(upd futures.WsOrderTradeUpdate) core.Side {
	if upd.Side == futures.SideTypeBuy {
		return core.Long
	}
	return core.Short
}

// fillIntent infers whether a fill opens or closes a position from the
// order's reduce-only flag and side: a reduce-only fill always closes,
// regardless of which side placed it; everything else opens in that side's
// direction.
func fillIntent(upd futures.WsOrderTradeUpdate) core.PositionOp {
	if upd.IsReduceOnly {
		return core.Close
	}
	if upd.Side == futures.SideTypeBuy {
		return core.OpenLong
	}
	return core.OpenShort
}
