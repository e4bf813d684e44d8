package model

import "time"

// Candle represents a single closed OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Body returns the absolute size of the candle body.
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-low span of the candle.
func (c Candle) Range() float64 { return c.High - c.Low }

// UpperShadow returns the wick above the body.
func (c Candle) UpperShadow() float64 {
	if c.Close > c.Open {
		return c.High - c.Close
	}
	return c.High - c.Open
}

// LowerShadow returns the wick below the body.
func (c Candle) LowerShadow() float64 {
	if c.Close > c.Open {
		return c.Open - c.Low
	}
	return c.Close - c.Low
}

// Window is the rolling read-only view of recent candles plus the indicator
// series computed over them. All series are aligned with Candles; entries
// before an indicator's warm-up period hold NaN.
type Window struct {
	Symbol  string
	Candles []Candle

	EMAFast []float64 // EMA 10
	EMASlow []float64 // EMA 50
	EMA200  []float64
	RSI     []float64 // RSI 14, Wilder
	ATR     []float64 // ATR 14, Wilder

	MACDLine   []float64
	MACDSignal []float64
	MACDHist   []float64

	Momentum []float64 // 10-period close difference

	BBUpper  []float64
	BBMiddle []float64
	BBLower  []float64
}

// Len returns the number of candles in the window.
func (w *Window) Len() int { return len(w.Candles) }

// Last returns the most recent closed candle.
func (w *Window) Last() Candle { return w.Candles[len(w.Candles)-1] }

// Prev returns the candle before the most recent one.
func (w *Window) Prev() Candle { return w.Candles[len(w.Candles)-2] }

// Closes extracts the close series.
func (w *Window) Closes() []float64 {
	closes := make([]float64, len(w.Candles))
	for i, c := range w.Candles {
		closes[i] = c.Close
	}
	return closes
}

// LastATR returns the most recent ATR value, or 0 when not yet available.
func (w *Window) LastATR() float64 {
	if len(w.ATR) == 0 {
		return 0
	}
	v := w.ATR[len(w.ATR)-1]
	if v != v { // NaN
		return 0
	}
	return v
}
