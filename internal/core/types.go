package core

// Price is one OHLCV bar. Immutable once closed.
type Price struct {
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Vlm         float64
	OpenTimeMs  int64
}

// Side is a position or fill direction.
type Side int

const (
	Long Side = iota
	Short
)

// Opposite flips the side, mirroring the original source's `Not` impl — used
// to compute the closing side of a position.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

func (s Side) String() string {
	if s == Long {
		return "Long"
	}
	return "Short"
}

// TriggerKind distinguishes take-profit from stop-loss trigger orders.
type TriggerKind int

const (
	Tp TriggerKind = iota
	Sl
)

func (k TriggerKind) String() string {
	if k == Tp {
		return "Tp"
	}
	return "Sl"
}

// Tif is the time-in-force of a resting limit order.
type Tif int

const (
	Alo Tif = iota // Add-Liquidity-Only (post-only)
	Ioc
	Gtc
)

// PositionOp is the intent direction a fill or order is applied against.
type PositionOp int

const (
	OpenLong PositionOp = iota
	OpenShort
	Close
)

func (p PositionOp) String() string {
	switch p {
	case OpenLong:
		return "OpenLong"
	case OpenShort:
		return "OpenShort"
	default:
		return "Close"
	}
}

// FillType records how a fill was produced.
type FillType int

const (
	FillMarket FillType = iota
	FillLimit
	FillTriggerTp
	FillTriggerSl
	FillLiquidation
)

func (f FillType) String() string {
	switch f {
	case FillMarket:
		return "Market"
	case FillLimit:
		return "Limit"
	case FillTriggerTp:
		return "Trigger(Tp)"
	case FillTriggerSl:
		return "Trigger(Sl)"
	default:
		return "Liquidation"
	}
}

// IndicatorKind is a hashable, parameter-keyed indicator identity.
type IndicatorKind struct {
	Name string // "rsi", "sma_on_rsi", "stoch_rsi", "adx", "atr", "ema", "ema_cross", "sma", "vol_ma"

	// Parameters — only the ones relevant to Name are meaningful; zero
	// value elsewhere. Kept flat (rather than a Go interface-per-variant)
	// because IndicatorKind must be a plain comparable map key, the same
	// tradeoff the original source makes with a derive(Hash, Eq) enum.
	Length      int
	Periods     int
	Smoothing   int
	KSmoothing  int
	DSmoothing  int
	DiLength    int
	ShortLength int
	LongLength  int
}

func Rsi(length int) IndicatorKind { return IndicatorKind{Name: "rsi", Length: length} }

func SmaOnRsi(periods, smoothing int) IndicatorKind {
	return IndicatorKind{Name: "sma_on_rsi", Periods: periods, Smoothing: smoothing}
}

func StochRsi(periods, kSm, dSm int) IndicatorKind {
	return IndicatorKind{Name: "stoch_rsi", Periods: periods, KSmoothing: kSm, DSmoothing: dSm}
}

func Adx(periods, diLength int) IndicatorKind {
	return IndicatorKind{Name: "adx", Periods: periods, DiLength: diLength}
}

func Atr(length int) IndicatorKind { return IndicatorKind{Name: "atr", Length: length} }

func Ema(length int) IndicatorKind { return IndicatorKind{Name: "ema", Length: length} }

func EmaCross(short, long int) IndicatorKind {
	return IndicatorKind{Name: "ema_cross", ShortLength: short, LongLength: long}
}

func Sma(length int) IndicatorKind { return IndicatorKind{Name: "sma", Length: length} }

func VolMa(length int) IndicatorKind { return IndicatorKind{Name: "vol_ma", Length: length} }

// IndexId is the unique key of one indicator instance: its kind on one
// timeframe.
type IndexId struct {
	Kind      IndicatorKind
	TimeFrame TimeFrame
}

// Value carries the last emitted output of an indicator. Exactly one field
// group is meaningful, selected by Kind — a tagged union modeled as a
// struct-of-optionals rather than a Go interface, since Value must be cheap
// to copy into a snapshot map on every tick.
type Value struct {
	Kind IndicatorKind

	Scalar float64 // Rsi, SmaOnRsi, Adx, Atr, Ema, Sma, VolMa

	// EmaCross
	CrossShort float64
	CrossLong  float64
	CrossUp    bool

	// StochRsi
	StochK float64
	StochD float64
}
