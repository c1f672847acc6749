package exec

import (
	"fmt"

	"perpsbot/internal/core"
)

// validateTpsl rejects a TP/SL price that sits on the wrong side of the
// current market — a conditional order must refer to a future price move,
// never one that would trigger immediately.
func validateTpsl(trigger core.TriggerKind, side core.Side, limitPx, lastPrice float64) error {
	switch {
	case side == core.Long && trigger == core.Tp && limitPx <= lastPrice:
		return fmt.Errorf("tpsl: long TP must be strictly above last price %.8f, got %.8f", lastPrice, limitPx)
	case side == core.Long && trigger == core.Sl && limitPx >= lastPrice:
		return fmt.Errorf("tpsl: long SL must be strictly below last price %.8f, got %.8f", lastPrice, limitPx)
	case side == core.Short && trigger == core.Tp && limitPx >= lastPrice:
		return fmt.Errorf("tpsl: short TP must be strictly below last price %.8f, got %.8f", lastPrice, limitPx)
	case side == core.Short && trigger == core.Sl && limitPx <= lastPrice:
		return fmt.Errorf("tpsl: short SL must be strictly above last price %.8f, got %.8f", lastPrice, limitPx)
	default:
		return nil
	}
}

// validateIntentPrice validates any limit (plain or conditional) before
// submission: TP/SL sanity, positivity, and a sane distance from the last
// traded price (MIN_LIMIT_MULT..MAX_LIMIT_MULT of last_price).
func validateIntentPrice(limit Limit, side core.Side, lastPrice float64) error {
	if trigger, ok := limit.IsTpSl(); ok {
		if err := validateTpsl(trigger, side, limit.LimitPx, lastPrice); err != nil {
			return err
		}
	}

	if limit.LimitPx <= 0 {
		return fmt.Errorf("exec: invalid limit price: must be positive, got %.8f", limit.LimitPx)
	}

	if limit.LimitPx < MinLimitMult*lastPrice || limit.LimitPx > MaxLimitMult*lastPrice {
		return fmt.Errorf("exec: unreasonable limit price %.8f for last price %.8f", limit.LimitPx, lastPrice)
	}

	return nil
}
