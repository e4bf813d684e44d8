package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"TradeSentinel/internal/indicator"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/strategy"
)

// warmupBars skips the head of the series where the slower indicators are
// still NaN and the deepest pattern lookback has no data.
const warmupBars = 60

// Trade is one simulated round trip: enter on a signal candle's close, exit
// at the close a fixed number of candles later.
type Trade struct {
	Strategy  string
	Direction model.Direction
	EntryTime time.Time
	Entry     float64
	Exit      float64
	Pips      float64
	Profit    float64
}

// Result aggregates the simulated trades of one strategy.
type Result struct {
	Strategy     string
	Trades       int
	Wins         int
	Losses       int
	WinRate      float64 // percent
	GrossProfit  float64
	GrossLoss    float64 // positive magnitude
	Net          float64
	ProfitFactor float64
	AvgPips      float64
	StdDevPips   float64
}

// Summary is a full backtest run: per-strategy results in catalog order plus
// the flat trade list for deeper analysis.
type Summary struct {
	Results []Result
	Trades  []Trade
}

// Engine replays each catalog strategy over a candle series with idealized
// execution: fills at the close, no spread, no slippage, a fixed hold
// horizon. It measures signal quality, not achievable returns.
type Engine struct {
	Catalog  []strategy.Spec
	Hold     int     // exit this many candles after entry
	PipSize  float64 // price size of one pip
	PipValue float64 // account value of one pip per lot
}

func New(catalog []strategy.Spec, hold int, pipSize, pipValue float64) *Engine {
	return &Engine{Catalog: catalog, Hold: hold, PipSize: pipSize, PipValue: pipValue}
}

// Run simulates the catalog over the series.
func (e *Engine) Run(candles []model.Candle) (*Summary, error) {
	if e.Hold < 1 {
		return nil, fmt.Errorf("hold horizon must be at least 1, got %d", e.Hold)
	}
	if e.PipSize <= 0 {
		return nil, fmt.Errorf("pip size must be positive, got %v", e.PipSize)
	}
	if len(candles) <= warmupBars+e.Hold {
		return nil, fmt.Errorf("need more than %d candles, got %d", warmupBars+e.Hold, len(candles))
	}

	w := indicator.BuildWindow("", candles)
	perStrategy := make(map[string][]Trade, len(e.Catalog))
	var all []Trade

	for i := warmupBars; i < len(candles)-e.Hold; i++ {
		view := sliceWindow(w, i)
		for _, spec := range e.Catalog {
			dir := spec.Evaluate(view)
			if dir != model.Long && dir != model.Short {
				continue
			}
			entry := candles[i].Close
			exit := candles[i+e.Hold].Close
			pips := (exit - entry) / e.PipSize
			if dir == model.Short {
				pips = -pips
			}
			tr := Trade{
				Strategy:  spec.Name,
				Direction: dir,
				EntryTime: candles[i].Time,
				Entry:     entry,
				Exit:      exit,
				Pips:      pips,
				Profit:    pips * e.PipValue,
			}
			perStrategy[spec.Name] = append(perStrategy[spec.Name], tr)
			all = append(all, tr)
		}
	}

	summary := &Summary{Trades: all}
	for _, spec := range e.Catalog {
		summary.Results = append(summary.Results, summarize(spec.Name, perStrategy[spec.Name]))
	}
	sort.SliceStable(summary.Results, func(a, b int) bool {
		return summary.Results[a].Net > summary.Results[b].Net
	})
	return summary, nil
}

func summarize(name string, trades []Trade) Result {
	r := Result{Strategy: name, Trades: len(trades)}
	if len(trades) == 0 {
		return r
	}

	pips := make([]float64, len(trades))
	for i, tr := range trades {
		pips[i] = tr.Pips
		switch {
		case tr.Profit > 0:
			r.Wins++
			r.GrossProfit += tr.Profit
		case tr.Profit < 0:
			r.Losses++
			r.GrossLoss += -tr.Profit
		}
		r.Net += tr.Profit
	}
	r.WinRate = float64(r.Wins) / float64(len(trades)) * 100

	if r.GrossLoss > 0 {
		r.ProfitFactor = r.GrossProfit / r.GrossLoss
	} else if r.GrossProfit > 0 {
		r.ProfitFactor = math.Inf(1)
	}

	if mean, err := stats.Mean(pips); err == nil {
		r.AvgPips = mean
	}
	if sd, err := stats.StandardDeviation(pips); err == nil {
		r.StdDevPips = sd
	}
	return r
}

// sliceWindow exposes the series as it looked when candle i had just closed.
// All indicator slices are index-aligned with the candles, so plain slicing
// preserves the invariants the strategies rely on.
func sliceWindow(w *model.Window, i int) *model.Window {
	n := i + 1
	return &model.Window{
		Symbol:     w.Symbol,
		Candles:    w.Candles[:n],
		EMAFast:    w.EMAFast[:n],
		EMASlow:    w.EMASlow[:n],
		EMA200:     w.EMA200[:n],
		RSI:        w.RSI[:n],
		ATR:        w.ATR[:n],
		MACDLine:   w.MACDLine[:n],
		MACDSignal: w.MACDSignal[:n],
		MACDHist:   w.MACDHist[:n],
		Momentum:   w.Momentum[:n],
		BBUpper:    w.BBUpper[:n],
		BBMiddle:   w.BBMiddle[:n],
		BBLower:    w.BBLower[:n],
	}
}
