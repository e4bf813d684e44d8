package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"TradeSentinel/internal/broker"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/indicator"
	"TradeSentinel/internal/ledger"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/monitor"
	"TradeSentinel/internal/risk"
	"TradeSentinel/internal/strategy"
	"TradeSentinel/internal/trade"
)

// historyDepth is how many candles the engine pulls per tick. Enough for the
// EMA200 to warm up with room to spare.
const historyDepth = 300

// Engine runs the entry pipeline once per closed candle: build the indicator
// window, collect dual-confirmed signals, push the survivors through the risk
// gate, and open what is admitted. Every decision, including the negative
// ones, lands in the audit ledger.
type Engine struct {
	cfg      *config.Config
	source   broker.CandleSource
	gw       broker.Gateway
	analyzer *strategy.Analyzer
	riskMgr  *risk.Manager
	trades   *trade.Manager
	monitor  *monitor.Monitor
	audit    ledger.Ledger

	mu         sync.Mutex // serializes ticks; guards lastCandle
	lastCandle time.Time
}

func New(cfg *config.Config, source broker.CandleSource, gw broker.Gateway, analyzer *strategy.Analyzer, riskMgr *risk.Manager, trades *trade.Manager, mon *monitor.Monitor, audit ledger.Ledger) *Engine {
	return &Engine{
		cfg:      cfg,
		source:   source,
		gw:       gw,
		analyzer: analyzer,
		riskMgr:  riskMgr,
		trades:   trades,
		monitor:  mon,
		audit:    audit,
	}
}

// Tick fetches history and, when a new candle has closed since the last
// call, evaluates it. Safe to call more often than candles close; concurrent
// calls run one at a time so a candle is never evaluated twice.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	symbol := e.cfg.Session.Symbol
	candles, err := e.source.Candles(symbol, historyDepth)
	if err != nil {
		log.Printf("[WARN] engine: candle fetch failed: %v", err)
		return
	}
	if len(candles) < 3 {
		return
	}
	last := candles[len(candles)-1].Time
	if !last.After(e.lastCandle) {
		return // no new closed candle yet
	}
	prevSeen := e.lastCandle
	e.lastCandle = last

	w := indicator.BuildWindow(symbol, candles)
	e.monitor.SetWindow(w)

	// A hole in the feed means the indicator state is suspect for this bar.
	// Publish the window for exit checks but take no new entries.
	if gapped, expected := feedGap(candles, prevSeen); gapped {
		log.Printf("[WARN] engine: feed gap before %s (expected spacing %s), skipping entries", last.Format(time.RFC3339), expected)
		e.record(ledger.Event{
			Time: time.Now(), Type: ledger.EventDataGap,
			Symbol: symbol, Detail: "candle feed gap, entries skipped",
		})
		return
	}

	intents, drops := e.analyzer.Analyze(w)
	for _, d := range drops {
		e.record(ledger.Event{
			Time: time.Now(), Type: ledger.EventReject,
			Symbol: symbol, Strategy: d.Strategy,
			Direction: string(d.Direction), Reason: d.Reason,
		})
	}
	if len(intents) == 0 {
		return
	}

	for _, intent := range intents {
		intent.ID = uuid.NewString()
		e.record(ledger.Event{
			Time: time.Now(), Type: ledger.EventSignal,
			Symbol: symbol, Strategy: intent.Strategy,
			Direction: string(intent.Direction),
			Detail:    intent.ID,
		})
		e.execute(ctx, w, intent)
	}
}

// execute pushes one intent through the risk gate and opens it when admitted.
func (e *Engine) execute(ctx context.Context, w *model.Window, intent model.TradeIntent) {
	if err := ctx.Err(); err != nil {
		return
	}
	symbol := e.cfg.Session.Symbol

	acct, err := e.gw.Account()
	if err != nil {
		log.Printf("[WARN] engine: account fetch failed: %v", err)
		return
	}
	sym, err := e.gw.SymbolInfo(symbol)
	if err != nil {
		log.Printf("[WARN] engine: symbol info fetch failed: %v", err)
		return
	}
	quote, err := e.gw.Quote(symbol)
	if err != nil {
		log.Printf("[WARN] engine: quote fetch failed: %v", err)
		return
	}

	sc := e.cfg.Strategy(intent.Strategy)
	sizing, err := e.riskMgr.Admit(intent.Direction, acct, sym, quote, sc, w.LastATR())
	if err != nil {
		log.Printf("[INFO] intent %s (%s %s) rejected: %v", intent.ID, intent.Strategy, intent.Direction, err)
		e.record(ledger.Event{
			Time: time.Now(), Type: ledger.EventReject,
			Symbol: symbol, Strategy: intent.Strategy,
			Direction: string(intent.Direction),
			Reason:    err.Error(), Detail: intent.ID,
		})
		return
	}

	_, err = e.trades.Open(model.Order{
		Intent:      intent,
		Symbol:      symbol,
		Volume:      sizing.Volume,
		Direction:   intent.Direction,
		StopLoss:    sizing.StopLoss,
		TakeProfit:  sizing.TakeProfit,
		UseTrailing: sc.UseTrailingStop,
		Comment:     strategy.CommentFor(intent.Strategy),
	})
	if err != nil {
		log.Printf("[ERROR] engine: open for intent %s failed: %v", intent.ID, err)
	}
}

// feedGap reports whether the spacing before the newest candle exceeds the
// feed's recent cadence. prevSeen guards the first tick: with no prior candle
// observed there is nothing to declare a gap against.
func feedGap(candles []model.Candle, prevSeen time.Time) (bool, time.Duration) {
	if prevSeen.IsZero() {
		return false, 0
	}
	n := len(candles)
	expected := candles[n-2].Time.Sub(candles[n-3].Time)
	if expected <= 0 {
		return false, 0
	}
	gap := candles[n-1].Time.Sub(candles[n-2].Time)
	return gap > expected*3/2, expected
}

func (e *Engine) record(evt ledger.Event) {
	if err := e.audit.Record(evt); err != nil {
		log.Printf("[ERROR] audit record failed: %v", err)
	}
}
