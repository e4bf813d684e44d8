package indicator

import (
	"errors"
	"math"

	"TradeSentinel/internal/model"
)

var nan = math.NaN()

// SMA computes the simple moving average of the last `period` values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// EMASeries computes an exponential moving average over the whole series.
// Entries before the warm-up period hold NaN.
func EMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = nan
	}
	if period <= 0 || len(values) < period {
		return out
	}
	// Seed with the SMA of the first `period` values.
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev
	alpha := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// RSISeries computes the Wilder-smoothed RSI over the whole series.
func RSISeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = nan
	}
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// ATRSeries computes the Wilder-smoothed average true range.
func ATRSeries(candles []model.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	for i := range out {
		out[i] = nan
	}
	if period <= 0 || len(candles) < period+1 {
		return out
	}

	tr := make([]float64, len(candles))
	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < len(candles); i++ {
		hl := candles[i].High - candles[i].Low
		hc := math.Abs(candles[i].High - candles[i-1].Close)
		lc := math.Abs(candles[i].Low - candles[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	prev := sum / float64(period)
	out[period] = prev
	for i := period + 1; i < len(candles); i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// MACDSeries computes the MACD line, signal line and histogram (12, 26, 9).
func MACDSeries(closes []float64) (line, signal, hist []float64) {
	fast := EMASeries(closes, 12)
	slow := EMASeries(closes, 26)

	line = make([]float64, len(closes))
	for i := range line {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) {
			line[i] = nan
		} else {
			line[i] = fast[i] - slow[i]
		}
	}

	// Signal is the 9-period EMA of the defined part of the MACD line.
	signal = make([]float64, len(closes))
	hist = make([]float64, len(closes))
	for i := range signal {
		signal[i] = nan
		hist[i] = nan
	}
	start := -1
	for i, v := range line {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 {
		return line, signal, hist
	}
	sub := EMASeries(line[start:], 9)
	for i, v := range sub {
		signal[start+i] = v
		if !math.IsNaN(v) {
			hist[start+i] = line[start+i] - v
		}
	}
	return line, signal, hist
}

// MomentumSeries computes the n-period close difference.
func MomentumSeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		if i < period {
			out[i] = nan
		} else {
			out[i] = closes[i] - closes[i-period]
		}
	}
	return out
}

// BollingerSeries computes the 20-period, 2-sigma Bollinger bands.
func BollingerSeries(closes []float64, period int, width float64) (upper, middle, lower []float64) {
	upper = make([]float64, len(closes))
	middle = make([]float64, len(closes))
	lower = make([]float64, len(closes))
	for i := range closes {
		if i+1 < period {
			upper[i], middle[i], lower[i] = nan, nan, nan
			continue
		}
		sum := 0.0
		for j := i + 1 - period; j <= i; j++ {
			sum += closes[j]
		}
		mean := sum / float64(period)
		varSum := 0.0
		for j := i + 1 - period; j <= i; j++ {
			d := closes[j] - mean
			varSum += d * d
		}
		sd := math.Sqrt(varSum / float64(period))
		middle[i] = mean
		upper[i] = mean + width*sd
		lower[i] = mean - width*sd
	}
	return upper, middle, lower
}

// BuildWindow assembles a read-only analysis window from closed candles,
// computing every indicator series the strategy catalog consumes.
func BuildWindow(symbol string, candles []model.Candle) *model.Window {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	w := &model.Window{Symbol: symbol, Candles: candles}
	w.EMAFast = EMASeries(closes, 10)
	w.EMASlow = EMASeries(closes, 50)
	w.EMA200 = EMASeries(closes, 200)
	w.RSI = RSISeries(closes, 14)
	w.ATR = ATRSeries(candles, 14)
	w.MACDLine, w.MACDSignal, w.MACDHist = MACDSeries(closes)
	w.Momentum = MomentumSeries(closes, 10)
	w.BBUpper, w.BBMiddle, w.BBLower = BollingerSeries(closes, 20, 2.0)
	return w
}
