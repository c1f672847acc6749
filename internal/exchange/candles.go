package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"perpsbot/internal/core"
)

// klineLimit is the REST endpoint's per-request cap; LoadCandles pages
// backwards past it when a caller backfills more than this many bars.
const klineLimit = 1000

// LoadCandles fetches count historical closed candles for (asset, tf),
// oldest first, paging backwards in klineLimit-sized REST calls.
func (e *Exchange) LoadCandles(ctx context.Context, asset string, tf core.TimeFrame, count int) ([]core.Price, error) {
	symbol := Symbol(asset)
	interval := tf.String()

	var out []core.Price
	endTime := int64(0)

	for len(out) < count {
		remaining := count - len(out)
		want := remaining
		if want > klineLimit {
			want = klineLimit
		}

		svc := e.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(want)
		if endTime > 0 {
			svc = svc.EndTime(endTime)
		}
		klines, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("exchange: loading %s %s candles: %w", symbol, interval, err)
		}
		if len(klines) == 0 {
			break
		}

		page := make([]core.Price, 0, len(klines))
		for _, k := range klines {
			price, err := klineToPrice(k.Open, k.High, k.Low, k.Close, k.Volume, k.OpenTime)
			if err != nil {
				return nil, err
			}
			page = append(page, price)
		}

		out = append(page, out...)
		endTime = klines[0].OpenTime - 1

		if len(klines) < want {
			break
		}
	}

	if len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

func klineToPrice(open, high, low, close, volume string, openTimeMs int64) (core.Price, error) {
	o, err := strconv.ParseFloat(open, 64)
	if err != nil {
		return core.Price{}, fmt.Errorf("exchange: parsing kline open: %w", err)
	}
	h, err := strconv.ParseFloat(high, 64)
	if err != nil {
		return core.Price{}, fmt.Errorf("exchange: parsing kline high: %w", err)
	}
	l, err := strconv.ParseFloat(low, 64)
	if err != nil {
		return core.Price{}, fmt.Errorf("exchange: parsing kline low: %w", err)
	}
	c, err := strconv.ParseFloat(close, 64)
	if err != nil {
		return core.Price{}, fmt.Errorf("exchange: parsing kline close: %w", err)
	}
	v, err := strconv.ParseFloat(volume, 64)
	if err != nil {
		return core.Price{}, fmt.Errorf("exchange: parsing kline volume: %w", err)
	}
	return core.Price{Open: o, High: h, Low: l, Close: c, Vlm: v, OpenTimeMs: openTimeMs}, nil
}

// Subscribe opens the live kline stream for (asset, tf) and forwards every
// update — including in-progress, not-yet-closed bars — as a core.Price,
// matching the Tracker's own bar-close detection rather than relying on the
// stream's IsFinal flag. The connection is re-dialed with exponential
// backoff on every disconnect until ctx is cancelled.
func (e *Exchange) Subscribe(ctx context.Context, asset string, tf core.TimeFrame) (<-chan core.Price, error) {
	symbol := Symbol(asset)
	interval := tf.String()
	out := make(chan core.Price, 64)

	go func() {
		defer close(out)

		b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: true}

		for {
			if ctx.Err() != nil {
				return
			}

			stopC, doneC, err := e.dialKlineStream(ctx, symbol, interval, out)
			if err != nil {
				e.log.Printf("kline stream %s %s dial failed: %v", symbol, interval, err)
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
				e.log.Printf("kline stream %s %s disconnected, reconnecting", symbol, interval)
			}
		}
	}()

	return out, nil
}

func (e *Exchange) dialKlineStream(ctx context.Context, symbol, interval string, out chan<- core.Price) (chan struct{}, chan struct{}, error) {
	handler := func(event *futures.WsKlineEvent) {
		price, err := klineToPrice(event.Kline.Open, event.Kline.High, event.Kline.Low, event.Kline.Close, event.Kline.Volume, event.Kline.StartTime)
		if err != nil {
			return
		}
		select {
		case out <- price:
		case <-ctx.Done():
		}
	}
	errHandler := func(err error) {
		e.log.Printf("kline stream %s %s error: %v", symbol, interval, err)
	}

	doneC, stopC, err := futures.WsKlineServe(symbol, interval, handler, errHandler)
	if err != nil {
		return nil, nil, err
	}
	return stopC, doneC, nil
}
