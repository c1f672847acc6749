// Command bot is the process entrypoint: it loads credentials and the
// per-market YAML layout, wires the shared Exchange, Margin Book, and
// Exposure Guard, starts every configured market under one Bot Supervisor,
// and routes the exchange's user-data fill stream back into whichever
// market owns each fill.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"perpsbot/internal/bot"
	"perpsbot/internal/config"
	"perpsbot/internal/core"
	"perpsbot/internal/exchange"
	"perpsbot/internal/exec"
	"perpsbot/internal/margin"
	"perpsbot/internal/market"
	"perpsbot/internal/metrics"
	"perpsbot/internal/strategy"
)

const exposureCooldown = 30 * time.Second

func main() {
	marketsPath := flag.String("markets", "markets.yaml", "path to the per-market YAML layout")
	flag.Parse()

	creds := config.LoadCredentials()
	marketsFile, err := config.LoadMarkets(*marketsPath)
	if err != nil {
		log.Fatalf("loading markets file: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	exch := exchange.New(creds.APIKey, creds.APISecret, creds.IsTestnet)
	if err := exch.FetchExchangeInfo(ctx); err != nil {
		log.Fatalf("fetching exchange info: %v", err)
	}

	book := margin.NewBook(exch.AccountValue)
	if err := book.Sync(ctx); err != nil {
		log.Fatalf("initial margin sync: %v", err)
	}
	go book.RunSyncLoop(ctx, 500*time.Millisecond, func(free float64) {
		log.Printf("margin book synced, free=%.4f", free)
	})

	guard := margin.NewExposureGuard(creds.MaxConcurrent, creds.TotalNotionalLimit, exposureCooldown)
	supervisor := bot.New(book, guard)

	startMetricsServer(creds.MetricsPort)

	for _, spec := range marketsFile.Markets {
		info, err := buildAddMarketInfo(spec, exch, supervisor)
		if err != nil {
			log.Printf("skipping market %s: %v", spec.Asset, err)
			continue
		}
		supervisor.Events() <- bot.AddMarketEvent(info)
	}

	go supervisor.Run(ctx)

	fills, err := exch.StreamUserFills(ctx)
	if err != nil {
		log.Fatalf("starting user-data stream: %v", err)
	}
	go routeFills(ctx, fills, supervisor)

	<-ctx.Done()
	log.Println("shutdown signal received, closing all markets")
	supervisor.Events() <- bot.CloseAllEvent()
	time.Sleep(2 * time.Second)
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics server exited: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
}

// buildAddMarketInfo resolves one YAML market spec into a bot.AddMarketInfo,
// deferring Market Supervisor construction to its Build closure so the Bot
// Supervisor's margin allocation happens first.
func buildAddMarketInfo(spec config.MarketSpec, exch *exchange.Exchange, supervisor *bot.Supervisor) (bot.AddMarketInfo, error) {
	strat, err := resolveStrategy(spec.Strategy)
	if err != nil {
		return bot.AddMarketInfo{}, err
	}

	tf, err := core.ParseTimeFrame(spec.TimeFrame)
	if err != nil {
		return bot.AddMarketInfo{}, fmt.Errorf("parsing timeframe %q: %w", spec.TimeFrame, err)
	}

	extra, err := resolveIndicators(spec.Indicators)
	if err != nil {
		return bot.AddMarketInfo{}, err
	}

	profile := exch.Profile(spec.Asset)
	asset := spec.Asset

	build := func(freeMargin float64) *market.Supervisor {
		return market.New(market.Config{
			Asset:           asset,
			MaxLeverage:     spec.Leverage,
			Leverage:        spec.Leverage,
			Margin:          freeMargin,
			TimeFrame:       tf,
			SzDecimals:      profile.SzDecimals(),
			Strategy:        strat,
			ExtraIndicators: extra,
			Client:          exch.OrderClient(asset),
			Loader:          exch,
			Candles:         exch,
			Stream:          exch,
			Guard:           supervisor.Guard(),
		})
	}

	return bot.AddMarketInfo{
		Asset:       asset,
		MarginAlloc: margin.AllocFraction(spec.MarginAlloc),
		Build:       build,
	}, nil
}

func resolveStrategy(name string) (strategy.Strat, error) {
	switch name {
	case "rsi_ema_scalp":
		return strategy.NewRsiEmaScalp(), nil
	case "srsi_adx_scalp":
		return strategy.NewSrsiAdxScalp(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func resolveIndicators(specs []config.IndicatorSpec) ([]core.IndexId, error) {
	ids := make([]core.IndexId, 0, len(specs))
	for _, s := range specs {
		tf, err := core.ParseTimeFrame(s.TimeFrame)
		if err != nil {
			return nil, fmt.Errorf("parsing indicator timeframe %q: %w", s.TimeFrame, err)
		}

		var kind core.IndicatorKind
		switch s.Kind {
		case "rsi":
			kind = core.Rsi(s.Length)
		case "sma":
			kind = core.Sma(s.Length)
		case "ema":
			kind = core.Ema(s.Length)
		case "ema_cross":
			kind = core.EmaCross(s.Short, s.Long)
		case "vol_ma":
			kind = core.VolMa(s.Length)
		case "atr":
			kind = core.Atr(s.Length)
		case "adx":
			kind = core.Adx(s.Periods, s.DiLength)
		case "sma_on_rsi":
			kind = core.SmaOnRsi(s.Periods, s.Smoothing)
		case "stoch_rsi":
			kind = core.StochRsi(s.Periods, s.KSm, s.DSm)
		default:
			return nil, fmt.Errorf("unknown indicator kind %q", s.Kind)
		}
		ids = append(ids, core.IndexId{Kind: kind, TimeFrame: tf})
	}
	return ids, nil
}

// routeFills drains the exchange's user-data fill stream, sending each
// liquidation fill to the Bot Supervisor as its own one-leg frame and every
// other fill straight to its market.
func routeFills(ctx context.Context, fills <-chan exchange.UserFill, supervisor *bot.Supervisor) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-fills:
			if !ok {
				return
			}
			if f.IsLiquidation {
				supervisor.Liquidations() <- []bot.RawLiquidation{{Coin: f.Asset, Fill: f.Fill}}
				continue
			}
			tradeFill, err := exec.AggregateFills([]exec.RawFill{f.Fill})
			if err != nil {
				log.Printf("dropping unaggregatable fill for %s: %v", f.Asset, err)
				continue
			}
			supervisor.Events() <- bot.MarketCommEvent(f.Asset, market.ReceiveFillCommand(tradeFill))
		}
	}
}
