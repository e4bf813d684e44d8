package strategy

import (
	"math"

	"TradeSentinel/internal/model"
)

// Indicator-based strategies. Each reads the window's precomputed series for
// the last closed candle and returns a direction, or "" when flat.

func at(series []float64, i int) (float64, bool) {
	if i < 0 || i >= len(series) {
		return 0, false
	}
	v := series[i]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// forexMACrossover signals on the fast EMA crossing the slow EMA.
func forexMACrossover(w *model.Window) model.Direction {
	i := w.Len() - 1
	fast, ok1 := at(w.EMAFast, i)
	slow, ok2 := at(w.EMASlow, i)
	fastPrev, ok3 := at(w.EMAFast, i-1)
	slowPrev, ok4 := at(w.EMASlow, i-1)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return ""
	}
	if fast > slow && fastPrev <= slowPrev {
		return model.Long
	}
	if fast < slow && fastPrev >= slowPrev {
		return model.Short
	}
	return ""
}

// forexMomentumRSIMACD trades with the EMA-200 trend when MACD and RSI agree.
func forexMomentumRSIMACD(w *model.Window) model.Direction {
	i := w.Len() - 1
	if i < 1 {
		return ""
	}
	ema200, ok1 := at(w.EMA200, i)
	rsi, ok2 := at(w.RSI, i)
	rsiPrev, ok3 := at(w.RSI, i-1)
	macd, ok4 := at(w.MACDLine, i)
	sig, ok5 := at(w.MACDSignal, i)
	macdPrev, ok6 := at(w.MACDLine, i-1)
	sigPrev, ok7 := at(w.MACDSignal, i-1)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 {
		return ""
	}
	price := w.Last().Close

	if price > ema200 {
		bullish := macd > sig
		inZone := rsi > 40 && rsi < 70
		if bullish && inZone {
			crossUp := macdPrev <= sigPrev
			gaining := rsi > rsiPrev
			if crossUp || gaining {
				return model.Long
			}
		}
	}
	if price < ema200 {
		bearish := macd < sig
		inZone := rsi < 60 && rsi > 30
		if bearish && inZone {
			crossDown := macdPrev >= sigPrev
			losing := rsi < rsiPrev
			if crossDown || losing {
				return model.Short
			}
		}
	}
	return ""
}

// forexBollingerBreakout signals when the close escapes the bands after a
// candle inside them.
func forexBollingerBreakout(w *model.Window) model.Direction {
	i := w.Len() - 1
	if i < 1 {
		return ""
	}
	upper, ok1 := at(w.BBUpper, i)
	lower, ok2 := at(w.BBLower, i)
	upperPrev, ok3 := at(w.BBUpper, i-1)
	lowerPrev, ok4 := at(w.BBLower, i-1)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return ""
	}
	close := w.Last().Close
	closePrev := w.Prev().Close

	wasInside := closePrev <= upperPrev && closePrev >= lowerPrev
	if wasInside && close > upper {
		return model.Long
	}
	if wasInside && close < lower {
		return model.Short
	}
	return ""
}

// forexMomentumBurst signals on a strong momentum reading aligned with the
// fast/slow EMA order.
func forexMomentumBurst(w *model.Window) model.Direction {
	i := w.Len() - 1
	mom, ok1 := at(w.Momentum, i)
	momPrev, ok2 := at(w.Momentum, i-1)
	fast, ok3 := at(w.EMAFast, i)
	slow, ok4 := at(w.EMASlow, i)
	atr, ok5 := at(w.ATR, i)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || atr <= 0 {
		return ""
	}
	// Momentum must exceed one ATR and be accelerating.
	if mom > atr && mom > momPrev && fast > slow {
		return model.Long
	}
	if mom < -atr && mom < momPrev && fast < slow {
		return model.Short
	}
	return ""
}
