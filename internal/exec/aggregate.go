package exec

import (
	"perpsbot/internal/core"
	"perpsbot/internal/xerr"
)

// RawFill is one exchange-reported fill leg, before it has been reconciled
// into a single TradeFill. A single oid can report as several legs (partial
// fills at different prices within one matching pass); AggregateFills
// collapses a same-oid batch into one size-weighted TradeFill.
type RawFill struct {
	Oid         uint64
	Coin        string
	Side        core.Side
	Intent      core.PositionOp
	Price       float64
	Size        float64
	Fee         float64
	IsMarket    bool
	IsLiquidation bool
}

// AggregateFills reconciles a batch of same-oid fill legs into one TradeFill
// with a size-weighted average price. Every leg must agree on oid, coin,
// side, and intent — a batch that doesn't is rejected rather than silently
// picking one leg's view (mirrors the original source's reconciliation of
// a raw exchange fill batch). A batch mixing open and close legs is
// rejected by the intent check; FillType only classifies the first leg.
func AggregateFills(fills []RawFill) (TradeFill, error) {
	if len(fills) == 0 {
		return TradeFill{}, &xerr.GenericParse{Msg: "AggregateFills called with an empty batch"}
	}

	first := fills[0]
	for _, f := range fills {
		if f.Oid != first.Oid {
			return TradeFill{}, &xerr.Custom{Msg: "mismatched oid in fill batch"}
		}
		if f.Coin != first.Coin {
			return TradeFill{}, &xerr.Custom{Msg: "mismatched coin in fill batch"}
		}
		if f.Side != first.Side {
			return TradeFill{}, &xerr.Custom{Msg: "mismatched side in fill batch"}
		}
		if f.Intent != first.Intent {
			return TradeFill{}, &xerr.GenericParse{Msg: "mismatched intent in fill batch"}
		}
	}

	fillType := FillType(first)

	var totalSz, weightedPx, totalFee float64
	for _, f := range fills {
		totalSz += f.Size
		weightedPx += f.Price * f.Size
		totalFee += f.Fee
	}
	if totalSz <= 0 {
		return TradeFill{}, &xerr.GenericParse{Msg: "aggregated fill size is zero"}
	}

	return TradeFill{
		Oid:      first.Oid,
		Price:    weightedPx / totalSz,
		Sz:       totalSz,
		Fee:      totalFee,
		Side:     first.Side,
		Intent:   first.Intent,
		FillType: fillType,
	}, nil
}

// FillType derives the coarse fill-type classification from a single leg:
// any liquidation leg dominates, then any market (crossed) leg, else limit.
// Exported so a batch-level aggregation can classify the whole batch by its
// first leg's kind (AggregateFills assumes a batch never mixes liquidation,
// market, and limit legs under one oid).
func FillType(f RawFill) core.FillType {
	switch {
	case f.IsLiquidation:
		return core.FillLiquidation
	case f.IsMarket:
		return core.FillMarket
	default:
		return core.FillLimit
	}
}
