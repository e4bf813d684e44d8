package backtest

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"TradeSentinel/internal/model"
	"TradeSentinel/internal/strategy"
)

// risingCandles closes one pip higher every bar.
func risingCandles(n int) []model.Candle {
	base := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		c := 1.1000 + float64(i)*0.0001
		out[i] = model.Candle{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: c - 0.00005, High: c + 0.0001, Low: c - 0.0001, Close: c,
		}
	}
	return out
}

// every5th fires on every fifth candle.
func every5th(dir model.Direction) strategy.EvalFunc {
	return func(w *model.Window) model.Direction {
		if w.Len()%5 == 0 {
			return dir
		}
		return ""
	}
}

func TestRunAccountsPerfectForesight(t *testing.T) {
	catalog := []strategy.Spec{
		{Name: "probe_long", Kind: strategy.KindForex, Evaluate: every5th(model.Long)},
	}
	e := New(catalog, 10, 0.0001, 10)

	summary, err := e.Run(risingCandles(200))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(summary.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(summary.Results))
	}
	r := summary.Results[0]
	if r.Trades == 0 {
		t.Fatal("no trades simulated")
	}
	// Rising one pip per bar with a 10-bar hold: every long earns 10 pips.
	if r.Wins != r.Trades || r.Losses != 0 {
		t.Errorf("wins/losses = %d/%d over %d trades", r.Wins, r.Losses, r.Trades)
	}
	if math.Abs(r.AvgPips-10) > 1e-9 {
		t.Errorf("AvgPips = %v, want 10", r.AvgPips)
	}
	wantNet := float64(r.Trades) * 100 // 10 pips * 10 per pip
	if math.Abs(r.Net-wantNet) > 1e-6 {
		t.Errorf("Net = %v, want %v", r.Net, wantNet)
	}
	if !math.IsInf(r.ProfitFactor, 1) {
		t.Errorf("ProfitFactor = %v, want +inf with no losses", r.ProfitFactor)
	}
	if r.WinRate != 100 {
		t.Errorf("WinRate = %v, want 100", r.WinRate)
	}
}

func TestRunShortsLoseInRisingMarket(t *testing.T) {
	catalog := []strategy.Spec{
		{Name: "probe_short", Kind: strategy.KindForex, Evaluate: every5th(model.Short)},
	}
	e := New(catalog, 10, 0.0001, 10)

	summary, err := e.Run(risingCandles(200))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	r := summary.Results[0]
	if r.Wins != 0 || r.Losses != r.Trades {
		t.Errorf("wins/losses = %d/%d over %d trades", r.Wins, r.Losses, r.Trades)
	}
	if r.GrossLoss <= 0 {
		t.Errorf("GrossLoss = %v, want positive magnitude", r.GrossLoss)
	}
	if r.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0", r.ProfitFactor)
	}
}

func TestRunExitsExactlyAtHoldHorizon(t *testing.T) {
	catalog := []strategy.Spec{
		{Name: "probe_long", Kind: strategy.KindForex, Evaluate: every5th(model.Long)},
	}
	e := New(catalog, 3, 0.0001, 10)

	summary, err := e.Run(risingCandles(120))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, tr := range summary.Trades {
		if math.Abs(tr.Exit-tr.Entry-3*0.0001) > 1e-9 {
			t.Fatalf("trade %+v did not exit 3 bars later", tr)
		}
	}
}

func TestRunRejectsShortSeries(t *testing.T) {
	e := New(nil, 10, 0.0001, 10)
	if _, err := e.Run(risingCandles(50)); err == nil {
		t.Error("Run() error = nil, want too-few-candles error")
	}
}

func TestRunSilentStrategyListedWithZeroTrades(t *testing.T) {
	catalog := []strategy.Spec{
		{Name: "silent", Kind: strategy.KindPattern, Evaluate: func(*model.Window) model.Direction { return "" }},
	}
	e := New(catalog, 10, 0.0001, 10)

	summary, err := e.Run(risingCandles(120))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(summary.Results) != 1 || summary.Results[0].Trades != 0 {
		t.Errorf("results = %+v, want silent strategy with zero trades", summary.Results)
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	data := strings.Join([]string{
		"time,open,high,low,close,tick_volume",
		"2025-01-06 00:00:00,1.1000,1.1005,1.0995,1.1002,120",
		"2025-01-06 00:01:00,1.1002,1.1008,1.1000,1.1006,98",
	}, "\n")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	candles, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV() error = %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	if candles[0].Close != 1.1002 || candles[1].Volume != 98 {
		t.Errorf("candles = %+v", candles)
	}
	if candles[0].Time.Minute() != 0 || candles[1].Time.Minute() != 1 {
		t.Errorf("timestamps not parsed: %v, %v", candles[0].Time, candles[1].Time)
	}
}

func TestLoadCSVRejectsBadTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	data := "time,open,high,low,close,tick_volume\nnot-a-time,1,1,1,1,0\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCSV(path); err == nil {
		t.Error("LoadCSV() error = nil, want timestamp error")
	}
}

func TestWriteReportRendersTotals(t *testing.T) {
	catalog := []strategy.Spec{
		{Name: "probe_long", Kind: strategy.KindForex, Evaluate: every5th(model.Long)},
		{Name: "silent", Kind: strategy.KindPattern, Evaluate: func(*model.Window) model.Direction { return "" }},
	}
	e := New(catalog, 10, 0.0001, 10)
	summary, err := e.Run(risingCandles(200))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var buf bytes.Buffer
	WriteReport(&buf, summary)
	out := buf.String()
	for _, want := range []string{"probe_long", "silent", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
