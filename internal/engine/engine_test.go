package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"TradeSentinel/internal/broker"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/ledger"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/monitor"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/risk"
	"TradeSentinel/internal/strategy"
	"TradeSentinel/internal/trade"
)

type captureLedger struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (c *captureLedger) Record(evt ledger.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captureLedger) Close() error { return nil }

func (c *captureLedger) ofType(t ledger.EventType) []ledger.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ledger.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type nopNotifier struct{}

func (nopNotifier) Send(string) error { return nil }

type stubSource struct {
	candles []model.Candle
}

func (s *stubSource) Candles(string, int) ([]model.Candle, error) {
	return s.candles, nil
}

func minuteCandles(n int) []model.Candle {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: 1.1000, High: 1.1005, Low: 1.0995, Close: 1.1002,
		}
	}
	return out
}

func confirmedLongCatalog() []strategy.Spec {
	long := func(*model.Window) model.Direction { return model.Long }
	return []strategy.Spec{
		{Name: "trend_probe", Kind: strategy.KindForex, Evaluate: long},
		{Name: "candle_probe", Kind: strategy.KindPattern, Evaluate: long},
	}
}

type harness struct {
	engine  *Engine
	source  *stubSource
	gw      *broker.MockGateway
	audit   *captureLedger
	riskMgr *risk.Manager
}

func newHarness(t *testing.T, catalog []strategy.Spec, maxOrders int, moneyLimit float64) *harness {
	t.Helper()
	cfg := &config.Config{}
	cfg.Session.Symbol = "EURUSD"
	cfg.Session.RiskPerTradePct = 1.0
	cfg.Session.MoneyLimit = moneyLimit

	gw := broker.NewMockGateway()
	reg := position.NewRegistry()
	audit := &captureLedger{}
	riskMgr := risk.NewManager(moneyLimit, 1.0, 0)
	trades := trade.NewManager(gw, reg, audit, nopNotifier{})
	analyzer := strategy.NewAnalyzer(catalog, maxOrders)
	mon := monitor.New(cfg, gw, reg, riskMgr, trades, analyzer, audit, nopNotifier{})
	src := &stubSource{candles: minuteCandles(60)}

	return &harness{
		engine:  New(cfg, src, gw, analyzer, riskMgr, trades, mon, audit),
		source:  src,
		gw:      gw,
		audit:   audit,
		riskMgr: riskMgr,
	}
}

func TestTickOpensConfirmedIntent(t *testing.T) {
	h := newHarness(t, confirmedLongCatalog(), 1, 0)

	h.engine.Tick(context.Background())

	live, _ := h.gw.Positions("EURUSD")
	if len(live) != 1 {
		t.Fatalf("live positions = %d, want 1", len(live))
	}
	if live[0].Direction != model.Long {
		t.Errorf("direction = %s, want long", live[0].Direction)
	}
	if live[0].StopLoss == 0 {
		t.Error("opened without a stop-loss")
	}
	signals := h.audit.ofType(ledger.EventSignal)
	if len(signals) != 1 || signals[0].Detail == "" {
		t.Errorf("signal events = %v, want one with an intent id", signals)
	}
	if len(h.audit.ofType(ledger.EventOpen)) != 1 {
		t.Error("open not audited")
	}
}

func TestTickEvaluatesEachCandleOnce(t *testing.T) {
	h := newHarness(t, confirmedLongCatalog(), 1, 0)

	h.engine.Tick(context.Background())
	h.engine.Tick(context.Background()) // same history, no new candle

	live, _ := h.gw.Positions("EURUSD")
	if len(live) != 1 {
		t.Errorf("live positions = %d, want 1 (second tick must be a no-op)", len(live))
	}
}

func TestTickSkipsEntriesOnFeedGap(t *testing.T) {
	h := newHarness(t, confirmedLongCatalog(), 1, 0)

	h.engine.Tick(context.Background())

	// Next candle arrives five minutes after a one-minute feed.
	lastTime := h.source.candles[len(h.source.candles)-1].Time
	h.source.candles = append(h.source.candles, model.Candle{
		Time: lastTime.Add(5 * time.Minute),
		Open: 1.1002, High: 1.1008, Low: 1.1000, Close: 1.1006,
	})
	h.engine.Tick(context.Background())

	live, _ := h.gw.Positions("EURUSD")
	if len(live) != 1 {
		t.Errorf("live positions = %d, want 1 (gap candle takes no entries)", len(live))
	}
	if len(h.audit.ofType(ledger.EventDataGap)) != 1 {
		t.Error("feed gap not audited")
	}
}

func TestTickAuditsUnconfirmedDrops(t *testing.T) {
	catalog := []strategy.Spec{
		{Name: "trend_probe", Kind: strategy.KindForex, Evaluate: func(*model.Window) model.Direction { return model.Long }},
	}
	h := newHarness(t, catalog, 1, 0)

	h.engine.Tick(context.Background())

	live, _ := h.gw.Positions("EURUSD")
	if len(live) != 0 {
		t.Errorf("live positions = %d, want 0 without dual confirmation", len(live))
	}
	rejects := h.audit.ofType(ledger.EventReject)
	if len(rejects) != 1 || rejects[0].Reason != "no dual confirmation" {
		t.Errorf("reject events = %v", rejects)
	}
}

func TestTickAuditsRiskRejection(t *testing.T) {
	// Money limit above the mock's 10000 equity blocks every admission.
	h := newHarness(t, confirmedLongCatalog(), 1, 50000)

	h.engine.Tick(context.Background())

	live, _ := h.gw.Positions("EURUSD")
	if len(live) != 0 {
		t.Errorf("live positions = %d, want 0", len(live))
	}
	rejects := h.audit.ofType(ledger.EventReject)
	if len(rejects) != 1 || rejects[0].Detail == "" {
		t.Errorf("reject events = %v, want one carrying the intent id", rejects)
	}
}

func TestTickCapsOrdersPerCandle(t *testing.T) {
	long := func(*model.Window) model.Direction { return model.Long }
	catalog := []strategy.Spec{
		{Name: "trend_probe", Kind: strategy.KindForex, Evaluate: long},
		{Name: "candle_probe", Kind: strategy.KindPattern, Evaluate: long},
		{Name: "second_candle", Kind: strategy.KindPattern, Evaluate: long},
	}
	h := newHarness(t, catalog, 2, 0)

	h.engine.Tick(context.Background())

	live, _ := h.gw.Positions("EURUSD")
	if len(live) != 2 {
		t.Errorf("live positions = %d, want cap of 2", len(live))
	}
	rejects := h.audit.ofType(ledger.EventReject)
	if len(rejects) != 1 || rejects[0].Reason != "max orders per candle exceeded" {
		t.Errorf("reject events = %v", rejects)
	}
}
