// Package exchange wraps the Binance USDM futures REST/WS APIs behind the
// interfaces internal/exec, internal/market, and internal/bot depend on:
// order submission, leverage changes, historical/live candles, and the
// user-data fill stream.
package exchange

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2/futures"

	"perpsbot/internal/logx"
)

// SymbolProfile holds the exchange-reported precision filters for one
// symbol, needed to format order price/quantity without tripping Binance's
// -1111 precision rejection.
type SymbolProfile struct {
	TickSize float64
	StepSize float64
}

// SzDecimals derives the quantity decimal count the Execution State
// Machine rounds to, from this symbol's LOT_SIZE stepSize.
func (p SymbolProfile) SzDecimals() int { return decimalsOf(p.StepSize) }

func (p SymbolProfile) PxDecimals() int { return decimalsOf(p.TickSize) }

func decimalsOf(step float64) int {
	if step <= 0 || step >= 1 {
		return 0
	}
	return int(math.Ceil(-math.Log10(step)))
}

// Exchange is the shared Binance USDM futures client. One Exchange backs
// every market's per-asset OrderClient and the shared candle/leverage
// surface.
type Exchange struct {
	client *futures.Client

	mu      sync.RWMutex
	symbols map[string]SymbolProfile

	log *log.Logger
}

// New builds an Exchange. testnet mirrors the teacher's BINANCE_TESTNET
// env-gated futures.UseTestnet toggle.
func New(apiKey, apiSecret string, testnet bool) *Exchange {
	if testnet {
		futures.UseTestnet = true
	}
	return &Exchange{
		client:  futures.NewClient(apiKey, apiSecret),
		symbols: make(map[string]SymbolProfile),
		log:     logx.New("exchange", ""),
	}
}

// FetchExchangeInfo loads every tracked symbol's PRICE_FILTER/LOT_SIZE
// precision, the way FetchExchangeInfo does it to avoid -1111 precision
// rejections. Must run once before any OrderClient submits an order.
func (e *Exchange) FetchExchangeInfo(ctx context.Context) error {
	info, err := e.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("exchange: fetching exchange info: %w", err)
	}

	profiles := make(map[string]SymbolProfile, len(info.Symbols))
	for _, s := range info.Symbols {
		tickSize, stepSize := 0.01, 0.001
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "PRICE_FILTER":
				if v, ok := f["tickSize"].(string); ok {
					if parsed, err := strconv.ParseFloat(v, 64); err == nil {
						tickSize = parsed
					}
				}
			case "LOT_SIZE":
				if v, ok := f["stepSize"].(string); ok {
					if parsed, err := strconv.ParseFloat(v, 64); err == nil {
						stepSize = parsed
					}
				}
			}
		}
		profiles[s.Symbol] = SymbolProfile{TickSize: tickSize, StepSize: stepSize}
	}

	e.mu.Lock()
	e.symbols = profiles
	e.mu.Unlock()
	e.log.Printf("loaded precision data for %d symbols", len(profiles))
	return nil
}

// Profile returns the cached precision filters for asset, or the zero value
// if FetchExchangeInfo hasn't run or the symbol is unknown.
func (e *Exchange) Profile(asset string) SymbolProfile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.symbols[Symbol(asset)]
}

// AccountValue reports the account's total USDT wallet balance, the
// Margin Book's margin.SyncFunc.
func (e *Exchange) AccountValue(ctx context.Context) (float64, error) {
	res, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("exchange: fetching account value: %w", err)
	}
	for _, a := range res.Assets {
		if a.Asset == "USDT" {
			val, err := strconv.ParseFloat(a.WalletBalance, 64)
			if err != nil {
				return 0, fmt.Errorf("exchange: parsing USDT wallet balance: %w", err)
			}
			return val, nil
		}
	}
	return 0, fmt.Errorf("exchange: no USDT asset in account response")
}

// SetLeverage changes asset's account-wide leverage.
func (e *Exchange) SetLeverage(ctx context.Context, asset string, lev int) error {
	_, err := e.client.NewChangeLeverageService().Symbol(Symbol(asset)).Leverage(lev).Do(ctx)
	if err != nil {
		return fmt.Errorf("exchange: set leverage for %s: %w", asset, err)
	}
	return nil
}

// OrderClient returns a per-asset exec.ExchangeClient view of this Exchange.
func (e *Exchange) OrderClient(asset string) *OrderClient {
	return &OrderClient{exch: e, asset: asset}
}

// Symbol appends the USDT quote asset the way the teacher's
// NormalizeSymbol does, the wire convention every USDM perpetual uses.
func Symbol(asset string) string {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if strings.HasSuffix(asset, "USDT") {
		return asset
	}
	return asset + "USDT"
}
