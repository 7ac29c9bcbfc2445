package features

import (
	"math"

	"OptEdge/internal/domain/models"

	"github.com/markcheno/go-talib"
)

// Closes extracts the close series from a bar history, oldest first.
func Closes(bars []models.Bar) []float64 {
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		out = append(out, b.Close)
	}
	return out
}

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(closes)-1, or nil if insufficient data.
func ComputeLogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		cur := closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RollingVolatility returns the sample standard deviation of the latest
// window of log returns, or 0 when there is not enough history.
func RollingVolatility(logReturns []float64, window int) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// LastSMA returns the latest simple moving average over period, or 0 when
// the history is shorter than the period.
func LastSMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	sma := talib.Sma(closes, period)
	return sma[len(sma)-1]
}

// LastRSI returns the latest RSI over period, or 0 when the history is too
// short. talib needs period+1 points to produce a value.
func LastRSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 0
	}
	rsi := talib.Rsi(closes, period)
	return rsi[len(rsi)-1]
}

// Momentum returns the relative price change over period bars, or 0 when
// the history is too short.
func Momentum(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 0
	}
	prev := closes[len(closes)-1-period]
	if prev == 0 {
		return 0
	}
	return closes[len(closes)-1]/prev - 1
}

// PricePosition locates the latest close inside the high/low range of the
// last window bars: 0 at the range low, 1 at the range high.
func PricePosition(bars []models.Bar, window int) float64 {
	if window <= 0 || len(bars) < window {
		return 0
	}
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, b := range bars[len(bars)-window:] {
		lo = math.Min(lo, b.Low)
		hi = math.Max(hi, b.High)
	}
	if hi <= lo {
		return 0
	}
	return (bars[len(bars)-1].Close - lo) / (hi - lo)
}
