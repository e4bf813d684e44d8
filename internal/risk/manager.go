package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"TradeSentinel/internal/config"
	"TradeSentinel/internal/model"
)

// Admission rejection reasons. Callers match with errors.Is.
var (
	ErrEquityLimit        = errors.New("equity at or below money limit")
	ErrDailyCapped        = errors.New("daily profit limit reached")
	ErrVolumeBelowMinimum = errors.New("computed volume below broker minimum")
	ErrInsufficientMargin = errors.New("insufficient free margin")
	ErrInvalidStopLoss    = errors.New("stop-loss distance must be positive")
)

// Sizing is the admitted order size with its protective levels.
type Sizing struct {
	Volume     float64
	StopLoss   float64
	TakeProfit float64
}

// Manager enforces the session risk rules: the equity floor, per-trade
// position sizing, and the daily profit cap. All state transitions happen
// under one mutex so a concurrent monitor tick and admission check always
// agree on whether the day is capped.
type Manager struct {
	mu sync.Mutex

	moneyLimit float64
	riskPct    float64
	dailyLimit float64 // 0 disables the cap

	day          time.Time // anchor of the current trading day
	startBalance float64   // balance at the day rollover
	capped       bool
}

func NewManager(moneyLimit, riskPerTradePct, dailyProfitLimit float64) *Manager {
	return &Manager{
		moneyLimit: moneyLimit,
		riskPct:    riskPerTradePct,
		dailyLimit: dailyProfitLimit,
	}
}

// Rollover starts a new trading day when the calendar date of now differs
// from the current one. It resets the day's balance baseline and clears the
// cap. Calling it repeatedly within the same day is a no-op, so the monitor
// can invoke it every tick. Returns true when a new day actually started.
func (m *Manager) Rollover(now time.Time, balance float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.day.IsZero() && sameDate(m.day, now) {
		return false
	}
	m.day = now
	m.startBalance = balance
	m.capped = false
	return true
}

// sameDate compares wall-clock calendar dates, not 24h spans, so the day
// rolls over at local midnight.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Capped reports whether the daily profit cap is currently active.
func (m *Manager) Capped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capped
}

// DayProfit returns the equity gained since the day's balance baseline.
func (m *Manager) DayProfit(equity float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return equity - m.startBalance
}

// Admit gates a trade intent and sizes the order. The stop-loss distance
// comes from the strategy's ATR multipliers when available, otherwise from
// its fixed pip distances. Volume is risked capital over stop-loss exposure,
// floored to the broker's volume step.
func (m *Manager) Admit(dir model.Direction, acct model.AccountSnapshot, sym model.SymbolInfo, quote model.Quote, sc config.StrategyConfig, atr float64) (Sizing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct.Equity <= m.moneyLimit {
		return Sizing{}, fmt.Errorf("equity %.2f vs limit %.2f: %w", acct.Equity, m.moneyLimit, ErrEquityLimit)
	}
	if m.capped {
		return Sizing{}, ErrDailyCapped
	}

	// Sizing divides by the stop-loss exposure, so the distance must be
	// positive even for strategies that do not place the stop order itself.
	slDist, tpDist := protectiveDistances(sc, sym, atr)
	if slDist <= 0 {
		return Sizing{}, ErrInvalidStopLoss
	}

	riskCapital := acct.Equity * m.riskPct / 100
	volume := riskCapital / (slDist * sym.ContractSize)
	if sym.VolumeStep > 0 {
		volume = math.Floor(volume/sym.VolumeStep) * sym.VolumeStep
	}
	if volume > sym.VolumeMax {
		volume = sym.VolumeMax
	}
	if volume < sym.VolumeMin {
		return Sizing{}, fmt.Errorf("volume %.2f < min %.2f: %w", volume, sym.VolumeMin, ErrVolumeBelowMinimum)
	}
	if margin := volume * sym.MarginPerLot; margin > acct.FreeMargin {
		return Sizing{}, fmt.Errorf("margin %.2f > free %.2f: %w", margin, acct.FreeMargin, ErrInsufficientMargin)
	}

	s := Sizing{Volume: round2(volume)}
	entry := quote.Ask
	if dir == model.Short {
		entry = quote.Bid
	}
	if sc.UseStopLoss {
		if dir == model.Long {
			s.StopLoss = entry - slDist
		} else {
			s.StopLoss = entry + slDist
		}
	}
	if sc.UseTakeProfit && tpDist > 0 {
		if dir == model.Long {
			s.TakeProfit = entry + tpDist
		} else {
			s.TakeProfit = entry - tpDist
		}
	}
	return s, nil
}

// CapPartition evaluates the daily profit cap against current equity and
// splits the open positions into those that must be closed (in profit) and
// those kept open to recover (at a loss or flat). It is re-evaluated every
// monitor tick, so a kept position that later turns profitable is closed on
// a subsequent pass.
func (m *Manager) CapPartition(positions []model.Position, equity float64) (toClose []model.Position, capped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dailyLimit > 0 && equity-m.startBalance >= m.dailyLimit {
		m.capped = true
	}
	if !m.capped {
		return nil, false
	}
	for _, p := range positions {
		if p.Profit > 0 {
			toClose = append(toClose, p)
		}
	}
	return toClose, true
}

// protectiveDistances resolves the stop-loss and take-profit price distances
// for a strategy. ATR-based distances win when enabled and the ATR value is
// usable; otherwise the fixed pip distances apply.
func protectiveDistances(sc config.StrategyConfig, sym model.SymbolInfo, atr float64) (sl, tp float64) {
	if sc.UseATRForSLTP && atr > 0 && !math.IsNaN(atr) {
		return atr * sc.ATRSLMultiplier, atr * sc.ATRTPMultiplier
	}
	pip := PipSize(sym)
	return sc.FixedSLPips * pip, sc.FixedTPPips * pip
}

// PipSize returns the price size of one pip. Fractional-pip symbols
// (3 or 5 digits) quote in tenths of a pip.
func PipSize(sym model.SymbolInfo) float64 {
	if sym.Digits == 3 || sym.Digits == 5 {
		return sym.Point * 10
	}
	return sym.Point
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
