package exec

// Guard is an optional process-wide risk gate consulted before an opening
// order is submitted, independent of whether the Margin Book has free
// collateral for it — the Margin Book answers "can the wallet afford this",
// Guard answers "should the bot run this many concurrent positions at all".
type Guard interface {
	CanEnter(asset string, notional float64) bool
	RegisterTrade(asset string, notional float64)
	ReleaseTrade(asset string)
}
