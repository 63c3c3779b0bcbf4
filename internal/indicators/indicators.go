// Package indicators computes the technical-analysis values the baseline
// signal producer reacts to (§4.6). Wraps go-talib for the well-known
// transforms and gonum/stat for the one the spec defines slightly
// differently than talib's internal implementation (Bollinger stdev).
package indicators

import (
	"math"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// RSI returns the standard Wilder-free simple-average RSI over the last
// period deltas of closes (§4.6): 50 if there isn't enough data, 100 if
// avg_loss is zero.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}
	var gainSum, lossSum float64
	start := len(closes) - period - 1
	for i := start + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// EMA computes the exponential moving average series, seeded by the SMA of
// the first p samples (§4.6). Returns the final value; callers needing the
// full series use talib.Ema directly.
func EMA(values []float64, period int) float64 {
	if len(values) < period {
		return avg(values)
	}
	series := talib.Ema(values, period)
	return series[len(series)-1]
}

// MACD returns the current macd line and its signal line, the mean of the
// last signalPeriod macd values (§4.6 — talib's own signal smoothing uses
// an EMA; the specification calls for a plain mean, so we recompute it
// ourselves from talib's macd line).
func MACD(closes []float64, fast, slow, signalPeriod int) (macdLine, signalLine float64) {
	if len(closes) < slow {
		return 0, 0
	}
	macd, _, _ := talib.Macd(closes, fast, slow, signalPeriod)
	macdLine = macd[len(macd)-1]

	n := signalPeriod
	if n > len(macd) {
		n = len(macd)
	}
	tail := macd[len(macd)-n:]
	signalLine = avg(tail)
	return macdLine, signalLine
}

// BollingerBands returns mid/upper/lower using talib's SMA for the
// midline and gonum/stat for the standard deviation (§4.6:
// upper/lower = mid ± std_dev_mult * stdev).
func BollingerBands(closes []float64, period int, stdDevMult float64) (mid, upper, lower float64) {
	if len(closes) < period {
		return 0, 0, 0
	}
	window := closes[len(closes)-period:]
	sma := talib.Sma(closes, period)
	mid = sma[len(sma)-1]
	sd := stat.StdDev(window, nil)
	upper = mid + stdDevMult*sd
	lower = mid - stdDevMult*sd
	return mid, upper, lower
}

// ATR wraps talib's Average True Range (§4.5, §4.6).
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0
	}
	series := talib.Atr(highs, lows, closes, period)
	return series[len(series)-1]
}

// MOM wraps talib's raw price momentum (§4.5, §4.7): close[t] - close[t-period].
func MOM(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 0
	}
	series := talib.Mom(closes, period)
	return series[len(series)-1]
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Clip bounds v into [lo, hi].
func Clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
