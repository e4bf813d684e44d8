package strategy

import (
	"math"

	"TradeSentinel/internal/model"
)

// Candle-pattern detectors. Each inspects the last closed candle of the
// window (plus its predecessors for multi-candle patterns) and returns the
// trade direction it implies, or "" when the pattern is absent.
//
// Trend and momentum filters reuse the window's precomputed EMA/RSI series.

func lastEMASlow(w *model.Window) (float64, bool) {
	i := w.Len() - 1
	if i < 0 || i >= len(w.EMASlow) {
		return 0, false
	}
	v := w.EMASlow[i]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func lastRSI(w *model.Window) (float64, bool) {
	i := w.Len() - 1
	if i < 0 || i >= len(w.RSI) {
		return 0, false
	}
	v := w.RSI[i]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// patternHammer: long lower shadow in a downtrend with oversold RSI.
func patternHammer(w *model.Window) model.Direction {
	if w.Len() < 51 {
		return ""
	}
	c := w.Last()
	body := c.Body()
	if body == 0 {
		return ""
	}
	ema, okEMA := lastEMASlow(w)
	rsi, okRSI := lastRSI(w)
	if !okEMA || !okRSI {
		return ""
	}
	isShape := c.LowerShadow() >= 2*body && c.UpperShadow() < body*0.5
	isDowntrend := c.Close < ema
	isOversold := rsi < 35
	if isShape && isDowntrend && isOversold {
		return model.Long
	}
	return ""
}

// patternShootingStar: long upper shadow after a bullish candle.
func patternShootingStar(w *model.Window) model.Direction {
	if w.Len() < 2 {
		return ""
	}
	c := w.Last()
	body := c.Body()
	if body == 0 {
		return ""
	}
	if c.UpperShadow() >= 2*body && c.LowerShadow() < body*0.5 && w.Prev().Bullish() {
		return model.Short
	}
	return ""
}

// patternMarubozu: full-body candle confirmed by the slow EMA trend.
func patternMarubozu(w *model.Window) model.Direction {
	if w.Len() < 51 {
		return ""
	}
	c := w.Last()
	rng := c.Range()
	if rng <= 0 || c.Body()/rng <= 0.98 {
		return ""
	}
	ema, ok := lastEMASlow(w)
	if !ok {
		return ""
	}
	if c.Bullish() && c.Close > ema {
		return model.Long
	}
	if c.Bearish() && c.Close < ema {
		return model.Short
	}
	return ""
}

// patternDragonflyDoji: doji with a dominant lower shadow after a down candle.
func patternDragonflyDoji(w *model.Window) model.Direction {
	if w.Len() < 2 {
		return ""
	}
	c := w.Last()
	rng := c.Range()
	if rng <= 0 || c.Body()/rng >= 0.15 {
		return ""
	}
	upper := c.High - math.Max(c.Close, c.Open)
	if upper/rng < 0.20 && w.Prev().Bearish() {
		return model.Long
	}
	return ""
}

// patternGravestoneDoji: doji with a dominant upper shadow in an uptrend.
func patternGravestoneDoji(w *model.Window) model.Direction {
	if w.Len() < 51 {
		return ""
	}
	c := w.Last()
	rng := c.Range()
	if rng <= 0 || c.Body()/rng >= 0.15 {
		return ""
	}
	lower := math.Min(c.Close, c.Open) - c.Low
	ema, ok := lastEMASlow(w)
	if !ok {
		return ""
	}
	if lower/rng < 0.20 && c.Close > ema {
		return model.Short
	}
	return ""
}

// patternEngulfing: last body fully engulfs the previous opposite body.
func patternEngulfing(w *model.Window) model.Direction {
	if w.Len() < 2 {
		return ""
	}
	c, p := w.Last(), w.Prev()
	if c.Bullish() && p.Bearish() && c.Open < p.Close && c.Close > p.Open {
		return model.Long
	}
	if c.Bearish() && p.Bullish() && c.Open > p.Close && c.Close < p.Open {
		return model.Short
	}
	return ""
}

// patternPiercingLine: bullish close past the midpoint of a prior down candle.
func patternPiercingLine(w *model.Window) model.Direction {
	if w.Len() < 2 {
		return ""
	}
	c, p := w.Last(), w.Prev()
	if !p.Bearish() || !c.Bullish() {
		return ""
	}
	mid := (p.Open + p.Close) / 2
	if c.Open < p.Close && c.Close > mid && c.Close < p.Open {
		return model.Long
	}
	return ""
}

// patternDarkCloudCover: bearish close past the midpoint of a prior up candle.
func patternDarkCloudCover(w *model.Window) model.Direction {
	if w.Len() < 2 {
		return ""
	}
	c, p := w.Last(), w.Prev()
	if !p.Bullish() || !c.Bearish() {
		return ""
	}
	mid := (p.Open + p.Close) / 2
	if c.Open > p.Close && c.Close < mid && c.Close > p.Open {
		return model.Short
	}
	return ""
}

// patternMorningStar: down candle, small-bodied star, strong up candle.
func patternMorningStar(w *model.Window) model.Direction {
	if w.Len() < 3 {
		return ""
	}
	n := w.Len()
	first := w.Candles[n-3]
	star := w.Candles[n-2]
	last := w.Candles[n-1]
	if !first.Bearish() || !last.Bullish() {
		return ""
	}
	if star.Body() < first.Body()*0.3 && last.Close > (first.Open+first.Close)/2 {
		return model.Long
	}
	return ""
}

// patternEveningStar: up candle, small-bodied star, strong down candle.
func patternEveningStar(w *model.Window) model.Direction {
	if w.Len() < 3 {
		return ""
	}
	n := w.Len()
	first := w.Candles[n-3]
	star := w.Candles[n-2]
	last := w.Candles[n-1]
	if !first.Bullish() || !last.Bearish() {
		return ""
	}
	if star.Body() < first.Body()*0.3 && last.Close < (first.Open+first.Close)/2 {
		return model.Short
	}
	return ""
}

// patternThreeWhiteSoldiers: three consecutive rising bullish candles.
func patternThreeWhiteSoldiers(w *model.Window) model.Direction {
	if w.Len() < 3 {
		return ""
	}
	n := w.Len()
	a, b, c := w.Candles[n-3], w.Candles[n-2], w.Candles[n-1]
	if a.Bullish() && b.Bullish() && c.Bullish() &&
		b.Close > a.Close && c.Close > b.Close &&
		b.Open > a.Open && c.Open > b.Open {
		return model.Long
	}
	return ""
}

// patternThreeBlackCrows: three consecutive falling bearish candles.
func patternThreeBlackCrows(w *model.Window) model.Direction {
	if w.Len() < 3 {
		return ""
	}
	n := w.Len()
	a, b, c := w.Candles[n-3], w.Candles[n-2], w.Candles[n-1]
	if a.Bearish() && b.Bearish() && c.Bearish() &&
		b.Close < a.Close && c.Close < b.Close &&
		b.Open < a.Open && c.Open < b.Open {
		return model.Short
	}
	return ""
}
