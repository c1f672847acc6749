package exec

import (
	"fmt"

	"perpsbot/internal/core"
)

// OpenPosition is the executor's authoritative record of the currently held
// position for its asset. Side is fixed for the position's lifetime; it is
// destroyed once a close fill reduces size to zero (rounded to the asset's
// size decimals).
type OpenPosition struct {
	OpenTimeMs  int64
	Size        float64
	EntryPx     float64
	Side        core.Side
	Fees        float64
	Funding     float64
	RealisedPnl float64
	FillType    core.FillType
}

func NewOpenPosition(fill TradeFill, nowMs int64) *OpenPosition {
	return &OpenPosition{
		OpenTimeMs:  nowMs,
		Size:        fill.Sz,
		EntryPx:     fill.Price,
		Side:        fill.Side,
		Fees:        fill.Fee,
		RealisedPnl: -fill.Fee,
		FillType:    fill.FillType,
	}
}

// ApplyOpenFill folds an additional same-side open fill into a weighted
// average entry price.
func (p *OpenPosition) ApplyOpenFill(fill TradeFill) error {
	if p.Side != fill.Side {
		return fmt.Errorf("exec: open fill side %s does not match position side %s", fill.Side, p.Side)
	}
	oldSize := p.Size
	newSize := oldSize + fill.Sz
	p.EntryPx = (p.EntryPx*oldSize + fill.Price*fill.Sz) / newSize
	p.Size = newSize
	p.Fees += fill.Fee
	p.RealisedPnl -= fill.Fee
	return nil
}

// ApplyCloseFill books a (partial) close's chunk PnL. It returns a non-nil
// TradeInfo only once the position's remaining size rounds to zero at
// szDecimals, signalling the round-trip is complete.
func (p *OpenPosition) ApplyCloseFill(fill TradeFill, szDecimals int, nowMs int64) *TradeInfo {
	var priceDiff float64
	if p.Side == core.Long {
		priceDiff = fill.Price - p.EntryPx
	} else {
		priceDiff = p.EntryPx - fill.Price
	}

	partialPnl := priceDiff * fill.Sz
	netChunk := partialPnl - fill.Fee

	p.RealisedPnl += netChunk
	p.Size -= fill.Sz
	p.Fees += fill.Fee

	if roundHalfAwayFromZero(p.Size, szDecimals) > 0.0 {
		return nil
	}

	return &TradeInfo{
		Side:    p.Side,
		Size:    fill.Sz,
		Pnl:     p.RealisedPnl + p.Funding,
		Fees:    p.Fees,
		Funding: p.Funding,
		Open: FillInfo{
			TimeMs:   p.OpenTimeMs,
			Price:    p.EntryPx,
			FillType: p.FillType,
		},
		Close: FillInfo{
			TimeMs:   nowMs,
			Price:    fill.Price,
			FillType: fill.FillType,
		},
	}
}
