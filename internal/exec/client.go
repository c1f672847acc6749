package exec

import (
	"context"

	"perpsbot/internal/core"
)

// OrderStatus mirrors the exchange's reported order-placement outcome.
type OrderStatus int

const (
	StatusResting OrderStatus = iota
	StatusFilled
	StatusError
)

// OrderResult is the exchange's immediate response to an order submission.
type OrderResult struct {
	Status OrderStatus
	Oid    uint64
	ErrMsg string
}

// ExchangeClient is everything the executor needs from the exchange: order
// submission and cancellation. The concrete implementation (internal/exchange)
// wraps the Binance USDM futures REST client; tests use a fake.
type ExchangeClient interface {
	SubmitMarket(ctx context.Context, isBuy bool, sz float64, reduceOnly bool) (OrderResult, error)
	SubmitLimit(ctx context.Context, isBuy bool, sz, limitPx float64, reduceOnly bool, tif core.Tif) (OrderResult, error)
	SubmitTrigger(ctx context.Context, isBuy bool, sz, triggerPx float64, reduceOnly bool, trigger TriggerOrder) (OrderResult, error)
	Cancel(ctx context.Context, oid uint64) error
}

// Updater relays executor-side state changes to the owning Market Supervisor.
type Updater interface {
	UpdatePosition(pos *OpenPosition)
	UpdateTrade(info TradeInfo)
}
