// Package core holds the domain types shared by every subsystem: timeframes,
// sides, indicator identities, and the streaming price bar.
package core

import "fmt"

// TimeFrame is a candle width. The zero value is Min1.
type TimeFrame int

const (
	Min1 TimeFrame = iota
	Min3
	Min5
	Min15
	Min30
	Hour1
	Hour2
	Hour4
	Hour12
	Day1
	Day3
	Week1
	Month1
)

var timeframeMs = map[TimeFrame]int64{
	Min1:   60_000,
	Min3:   180_000,
	Min5:   300_000,
	Min15:  900_000,
	Min30:  1_800_000,
	Hour1:  3_600_000,
	Hour2:  7_200_000,
	Hour4:  14_400_000,
	Hour12: 43_200_000,
	Day1:   86_400_000,
	Day3:   259_200_000,
	Week1:  604_800_000,
	Month1: 2_592_000_000, // 30 days, matching the original's fixed-width month
}

var timeframeStr = map[TimeFrame]string{
	Min1:   "1m",
	Min3:   "3m",
	Min5:   "5m",
	Min15:  "15m",
	Min30:  "30m",
	Hour1:  "1h",
	Hour2:  "2h",
	Hour4:  "4h",
	Hour12: "12h",
	Day1:   "1d",
	Day3:   "3d",
	Week1:  "1w",
	Month1: "1M",
}

// ToMillis returns the bar width in milliseconds.
func (t TimeFrame) ToMillis() int64 {
	ms, ok := timeframeMs[t]
	if !ok {
		panic(fmt.Sprintf("core: unknown timeframe %d", int(t)))
	}
	return ms
}

// NextClose returns the first bar-close boundary strictly after now,
// ((now/width)+1)*width.
func (t TimeFrame) NextClose(nowMs int64) int64 {
	width := t.ToMillis()
	return ((nowMs / width) + 1) * width
}

func (t TimeFrame) String() string {
	s, ok := timeframeStr[t]
	if !ok {
		return "unknown"
	}
	return s
}

// ParseTimeFrame parses the exchange wire representation ("1m", "4h", ...).
func ParseTimeFrame(s string) (TimeFrame, error) {
	for tf, str := range timeframeStr {
		if str == s {
			return tf, nil
		}
	}
	return 0, fmt.Errorf("core: invalid timeframe %q", s)
}

// TimeDelta returns n*tf in milliseconds — a readable stand-in for the
// original source's timedelta! macro.
func TimeDelta(tf TimeFrame, n int64) int64 {
	return tf.ToMillis() * n
}
