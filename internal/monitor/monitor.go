package monitor

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"TradeSentinel/internal/broker"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/ledger"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/notifier"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/risk"
	"TradeSentinel/internal/strategy"
	"TradeSentinel/internal/trade"
)

// Monitor supervises the open book between candles: it reconciles the
// registry against the broker, enforces the day rollover and profit cap,
// advances trailing stops, and fires exit closes (protective levels, signal
// changes, pattern reversals). One Cycle runs per scheduler tick.
type Monitor struct {
	cfg      *config.Config
	gw       broker.Gateway
	registry *position.Registry
	riskMgr  *risk.Manager
	trades   *trade.Manager
	analyzer *strategy.Analyzer
	audit    ledger.Ledger
	notify   notifier.Notifier

	mu     sync.Mutex
	window *model.Window // latest closed-candle window, set by the engine
}

func New(cfg *config.Config, gw broker.Gateway, reg *position.Registry, riskMgr *risk.Manager, trades *trade.Manager, analyzer *strategy.Analyzer, audit ledger.Ledger, notify notifier.Notifier) *Monitor {
	return &Monitor{
		cfg:      cfg,
		gw:       gw,
		registry: reg,
		riskMgr:  riskMgr,
		trades:   trades,
		analyzer: analyzer,
		audit:    audit,
		notify:   notify,
	}
}

// SetWindow publishes the latest indicator window so exit checks can see the
// same view of the market the entry pipeline used.
func (m *Monitor) SetWindow(w *model.Window) {
	m.mu.Lock()
	m.window = w
	m.mu.Unlock()
}

func (m *Monitor) currentWindow() *model.Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window
}

// Cycle runs one supervision pass. Broker errors abort the pass; the next
// tick retries from scratch, so nothing here needs its own retry loop.
func (m *Monitor) Cycle(ctx context.Context) {
	acct, err := m.gw.Account()
	if err != nil {
		log.Printf("[WARN] monitor: account fetch failed: %v", err)
		return
	}
	live, err := m.gw.Positions(m.cfg.Session.Symbol)
	if err != nil {
		log.Printf("[WARN] monitor: positions fetch failed: %v", err)
		return
	}

	m.reconcile(live)

	if m.riskMgr.Rollover(time.Now(), acct.Balance) {
		log.Printf("[INFO] trading day rolled over, baseline balance %.2f", acct.Balance)
		m.record(ledger.Event{Time: time.Now(), Type: ledger.EventRollover, Symbol: m.cfg.Session.Symbol, Price: acct.Balance})
	}

	m.enforceCap(ctx, acct)
	m.superviseExits(ctx)
}

// reconcile folds the broker's live book into the registry, auditing
// positions that vanished (closed outside this session) and adopting ones it
// has never seen.
func (m *Monitor) reconcile(live []model.Position) {
	closed, adopted := m.registry.Reconcile(live)
	for _, p := range closed {
		log.Printf("[WARN] position #%d closed externally (p/l %.2f)", p.Ticket, p.Profit)
		m.record(ledger.Event{
			Time: time.Now(), Type: ledger.EventExternalClose,
			Symbol: p.Symbol, Strategy: p.Strategy, Ticket: p.Ticket,
			Volume: p.Volume, Profit: p.Profit,
		})
	}
	for _, p := range adopted {
		if name := strategy.NameFromComment(p.Comment); name != "" {
			p.Strategy = name
			m.registry.Track(p)
		}
		log.Printf("[INFO] adopted untracked position #%d (strategy=%q)", p.Ticket, p.Strategy)
		m.record(ledger.Event{
			Time: time.Now(), Type: ledger.EventAdopted,
			Symbol: p.Symbol, Strategy: p.Strategy, Ticket: p.Ticket,
			Direction: string(p.Direction), Volume: p.Volume,
			Price: p.OpenPrice, StopLoss: p.StopLoss, TakeProfit: p.TakeProfit,
			Comment: p.Comment,
		})
	}
}

// enforceCap checks the daily profit limit and closes the winning side of
// the book while it is active. The partition is re-run every tick, so losers
// kept open to recover are closed as soon as they turn profitable.
func (m *Monitor) enforceCap(ctx context.Context, acct model.AccountSnapshot) {
	wasCapped := m.riskMgr.Capped()
	snapshot := m.registry.Snapshot()
	toClose, capped := m.riskMgr.CapPartition(snapshot, acct.Equity)
	if !capped {
		return
	}
	if !wasCapped {
		kept := len(snapshot) - len(toClose)
		dayProfit := m.riskMgr.DayProfit(acct.Equity)
		log.Printf("[INFO] daily profit limit reached (+%.2f): closing %d, keeping %d", dayProfit, len(toClose), kept)
		m.record(ledger.Event{
			Time: time.Now(), Type: ledger.EventCapReached,
			Symbol: m.cfg.Session.Symbol, Profit: dayProfit,
		})
		if err := m.notify.Send(notifier.FormatCapReached(dayProfit, len(toClose), kept)); err != nil {
			log.Printf("[ERROR] cap notify failed: %v", err)
		}
	}
	for _, p := range toClose {
		if p.CloseFailed {
			continue
		}
		m.closePosition(ctx, p, "daily_limit_reached")
	}
}

// superviseExits walks the tracked book applying, in order: trailing stop
// advance, protective level touches, then strategy exit signals. The first
// rule that closes a position wins.
func (m *Monitor) superviseExits(ctx context.Context) {
	w := m.currentWindow()
	quote, quoteErr := m.gw.Quote(m.cfg.Session.Symbol)
	sym, symErr := m.gw.SymbolInfo(m.cfg.Session.Symbol)
	pricesOK := quoteErr == nil && symErr == nil

	for _, p := range m.registry.Snapshot() {
		if p.CloseFailed {
			continue
		}
		sc := m.cfg.Strategy(p.Strategy)

		if pricesOK && sc.UseTrailingStop {
			m.advanceTrailing(p, sc, quote, sym, w)
			// Re-read: the trailing move may have changed the stop we
			// are about to test.
			if updated, ok := m.registry.Get(p.Ticket); ok {
				p = updated
			}
		}

		if pricesOK && m.protectiveTouched(ctx, p, sc, quote) {
			continue
		}
		m.strategyExit(ctx, p, sc, w)
	}
}

// advanceTrailing ratchets the stop toward the market by the ATR distance.
// It only ever tightens: a stop that would loosen is left alone.
func (m *Monitor) advanceTrailing(p model.Position, sc config.StrategyConfig, quote model.Quote, sym model.SymbolInfo, w *model.Window) {
	dist := m.trailDistance(sc, sym, w)
	if dist <= 0 {
		return
	}
	var newSL float64
	switch p.Direction {
	case model.Long:
		newSL = quote.Bid - dist
		if newSL <= p.OpenPrice && !p.TrailingActive {
			return // not in profit territory yet
		}
		if p.StopLoss != 0 && newSL <= p.StopLoss {
			return
		}
	case model.Short:
		newSL = quote.Ask + dist
		if newSL >= p.OpenPrice && !p.TrailingActive {
			return
		}
		if p.StopLoss != 0 && newSL >= p.StopLoss {
			return
		}
	}
	if err := m.trades.ModifyStopLoss(p, newSL, "trailing"); err != nil {
		log.Printf("[WARN] trailing stop #%d: %v", p.Ticket, err)
	} else {
		log.Printf("[INFO] trailing stop #%d moved to %.5f", p.Ticket, newSL)
	}
}

func (m *Monitor) trailDistance(sc config.StrategyConfig, sym model.SymbolInfo, w *model.Window) float64 {
	if sc.ATRTrailMultiplier > 0 && w != nil {
		if atr := w.LastATR(); atr > 0 && !math.IsNaN(atr) {
			return atr * sc.ATRTrailMultiplier
		}
	}
	if sc.FixedSLPips > 0 {
		return sc.FixedSLPips * risk.PipSize(sym)
	}
	return 0
}

// protectiveTouched closes a position whose stop-loss or take-profit level
// has been reached. Returns true when a close was issued.
func (m *Monitor) protectiveTouched(ctx context.Context, p model.Position, sc config.StrategyConfig, quote model.Quote) bool {
	mark := quote.Bid
	if p.Direction == model.Short {
		mark = quote.Ask
	}

	if sc.UseStopLoss && p.StopLoss > 0 {
		if (p.Direction == model.Long && mark <= p.StopLoss) ||
			(p.Direction == model.Short && mark >= p.StopLoss) {
			m.closePosition(ctx, p, "stop_loss")
			return true
		}
	}
	if sc.UseTakeProfit && p.TakeProfit > 0 {
		if (p.Direction == model.Long && mark >= p.TakeProfit) ||
			(p.Direction == model.Short && mark <= p.TakeProfit) {
			m.closePosition(ctx, p, "take_profit")
			return true
		}
	}
	return false
}

// strategyExit closes a position when the market turned against it: any
// opposite confirmed signal (signal change) or an opposite candlestick
// pattern (pattern reversal), per the strategy's config.
func (m *Monitor) strategyExit(ctx context.Context, p model.Position, sc config.StrategyConfig, w *model.Window) {
	if w == nil {
		return
	}
	if sc.UseSignalChange {
		if src, ok := m.analyzer.ClosingSignal(w, p.Direction); ok {
			log.Printf("[INFO] signal change against #%d (%s)", p.Ticket, src)
			m.closePosition(ctx, p, "signal_change")
			return
		}
	}
	if sc.UsePatternReversal {
		if src, ok := m.analyzer.PatternReversal(w, p.Direction); ok {
			log.Printf("[INFO] pattern reversal against #%d (%s)", p.Ticket, src)
			m.closePosition(ctx, p, "pattern_reversal")
		}
	}
}

func (m *Monitor) closePosition(ctx context.Context, p model.Position, reason string) {
	err := m.trades.Close(ctx, p, reason)
	if err != nil && !errors.Is(err, trade.ErrCloseInFlight) {
		log.Printf("[ERROR] %s close #%d: %v", reason, p.Ticket, err)
	}
}

func (m *Monitor) record(evt ledger.Event) {
	if err := m.audit.Record(evt); err != nil {
		log.Printf("[ERROR] audit record failed: %v", err)
	}
}
