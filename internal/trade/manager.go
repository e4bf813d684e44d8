package trade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"TradeSentinel/internal/broker"
	"TradeSentinel/internal/ledger"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/notifier"
	"TradeSentinel/internal/position"
)

const (
	// attemptsPerMode bounds each fill policy before escalating to the next.
	attemptsPerMode = 5
	// minDeviationPoints is the floor on the allowed slippage per attempt.
	minDeviationPoints = 5
)

// attemptPause separates consecutive close attempts so a transient broker
// condition has a chance to clear. Variable so tests can collapse it.
var attemptPause = 250 * time.Millisecond

// ErrCloseInFlight reports that another goroutine is already running the
// close protocol for the ticket. Callers match with errors.Is and back off;
// the running protocol owns the position until it confirms or exhausts.
var ErrCloseInFlight = errors.New("close already in progress")

// Manager executes orders against the broker and keeps the registry and
// audit ledger consistent with what actually happened. Opens are a single
// attempt; closes run the full fill-mode escalation protocol.
type Manager struct {
	gw       broker.Gateway
	registry *position.Registry
	audit    ledger.Ledger
	notify   notifier.Notifier
	wg       sync.WaitGroup

	mu      sync.Mutex
	closing map[int64]struct{} // tickets with a close protocol in flight
}

func NewManager(gw broker.Gateway, reg *position.Registry, audit ledger.Ledger, notify notifier.Notifier) *Manager {
	return &Manager{gw: gw, registry: reg, audit: audit, notify: notify, closing: make(map[int64]struct{})}
}

// Wait blocks until every in-flight broker operation has finished. Called
// during shutdown so a close protocol is never abandoned mid-attempt.
func (m *Manager) Wait() { m.wg.Wait() }

// Open places a market order and tracks the resulting position. The broker
// call runs under the registry lock so a concurrent reconcile pass cannot
// observe the position before it is tracked.
func (m *Manager) Open(ord model.Order) (model.Position, error) {
	m.wg.Add(1)
	defer m.wg.Done()

	p, err := m.registry.Open(func() (model.Position, error) {
		ticket, err := m.gw.Open(broker.OpenRequest{
			Symbol:     ord.Symbol,
			Volume:     ord.Volume,
			Direction:  ord.Direction,
			StopLoss:   ord.StopLoss,
			TakeProfit: ord.TakeProfit,
			Comment:    ord.Comment,
		})
		if err != nil {
			return model.Position{}, fmt.Errorf("open %s %s: %w", ord.Direction, ord.Symbol, err)
		}
		return model.Position{
			Ticket:     ticket,
			Symbol:     ord.Symbol,
			Volume:     ord.Volume,
			Direction:  ord.Direction,
			StopLoss:   ord.StopLoss,
			TakeProfit: ord.TakeProfit,
			Comment:    ord.Comment,
			Strategy:   ord.Intent.Strategy,
			OpenedAt:   time.Now(),
		}, nil
	})
	if err != nil {
		m.record(ledger.Event{
			Time: time.Now(), Type: ledger.EventError,
			Symbol: ord.Symbol, Strategy: ord.Intent.Strategy,
			Direction: string(ord.Direction), Volume: ord.Volume,
			Detail: err.Error(),
		})
		return model.Position{}, err
	}

	log.Printf("[INFO] opened #%d %s %s %.2f (strategy=%s)", p.Ticket, p.Direction, p.Symbol, p.Volume, p.Strategy)
	m.record(ledger.OpenEvent(p))
	return p, nil
}

// Close runs the escalating close protocol for a tracked position: each fill
// policy (FOK, IOC, RETURN) gets a bounded number of attempts with a fresh
// spread-derived deviation, and every reported success is verified against
// the broker's live positions before it is believed. When all attempts are
// spent the position is flagged close-failed, left under its protective
// levels, and escalated to the operator.
func (m *Manager) Close(ctx context.Context, p model.Position, reason string) error {
	m.wg.Add(1)
	defer m.wg.Done()

	if tracked, ok := m.registry.Get(p.Ticket); ok && tracked.CloseFailed {
		return fmt.Errorf("close #%d: already flagged close-failed", p.Ticket)
	}
	if !m.beginClose(p.Ticket) {
		return fmt.Errorf("close #%d: %w", p.Ticket, ErrCloseInFlight)
	}
	defer m.endClose(p.Ticket)

	remaining := p.Volume
	attempt := 0
	for _, mode := range broker.FillModes {
		for i := 0; i < attemptsPerMode; i++ {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("close #%d interrupted: %w", p.Ticket, err)
			}
			attempt++

			req := broker.CloseRequest{
				Ticket:    p.Ticket,
				Symbol:    p.Symbol,
				Volume:    remaining,
				Direction: p.Direction,
				Mode:      mode,
				Deviation: m.deviation(p.Symbol),
				Comment:   p.Comment,
			}
			err := m.gw.Close(req)
			m.record(ledger.Event{
				Time: time.Now(), Type: ledger.EventCloseAttempt,
				Symbol: p.Symbol, Ticket: p.Ticket, Volume: remaining,
				Mode: string(mode), Attempt: attempt, Reason: reason,
				Detail: errDetail(err),
			})
			if err != nil {
				log.Printf("[WARN] close #%d attempt %d (%s) failed: %v", p.Ticket, attempt, mode, err)
				m.pause(ctx)
				continue
			}

			// The broker said yes; trust only what the position list shows.
			left, verifyErr := m.liveVolume(p.Symbol, p.Ticket)
			if verifyErr != nil {
				log.Printf("[WARN] close #%d attempt %d: verify failed: %v", p.Ticket, attempt, verifyErr)
				m.pause(ctx)
				continue
			}
			if left == 0 {
				return m.confirmClose(p, reason, attempt)
			}
			if left < remaining {
				// Partial fill. Keep working on the remainder.
				log.Printf("[INFO] close #%d partially filled, %.2f remaining", p.Ticket, left)
				remaining = left
				continue
			}
			log.Printf("[WARN] close #%d attempt %d (%s): reported success but position unchanged", p.Ticket, attempt, mode)
			m.pause(ctx)
		}
	}

	return m.exhaust(p, reason, attempt)
}

// beginClose claims the close protocol for a ticket. It returns false when
// another goroutine already holds it; concurrent callers (an overlapping
// monitor pass, an operator close-all) must not stack broker orders for the
// same position.
func (m *Manager) beginClose(ticket int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.closing[ticket]; busy {
		return false
	}
	m.closing[ticket] = struct{}{}
	return true
}

func (m *Manager) endClose(ticket int64) {
	m.mu.Lock()
	delete(m.closing, ticket)
	m.mu.Unlock()
}

// CloseAll runs the close protocol over every tracked position. Failures are
// collected, not short-circuited, so one stuck ticket does not strand the
// rest of the book.
func (m *Manager) CloseAll(ctx context.Context, reason string) error {
	var failed int
	for _, p := range m.registry.Snapshot() {
		if p.CloseFailed {
			continue
		}
		if err := m.Close(ctx, p, reason); err != nil {
			log.Printf("[ERROR] close all: #%d: %v", p.Ticket, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("close all: %d position(s) could not be closed", failed)
	}
	return nil
}

// ModifyStopLoss moves a position's stop and audits the change. reason
// "trailing" marks the trailing stop as active on replay.
func (m *Manager) ModifyStopLoss(p model.Position, stopLoss float64, reason string) error {
	m.wg.Add(1)
	defer m.wg.Done()

	if err := m.gw.ModifyStopLoss(p.Ticket, stopLoss); err != nil {
		return fmt.Errorf("modify sl #%d: %w", p.Ticket, err)
	}
	if reason == "trailing" {
		m.registry.SetTrailing(p.Ticket, stopLoss)
	} else {
		p.StopLoss = stopLoss
		m.registry.Track(p)
	}
	m.record(ledger.Event{
		Time: time.Now(), Type: ledger.EventModifySL,
		Symbol: p.Symbol, Ticket: p.Ticket, StopLoss: stopLoss, Reason: reason,
	})
	return nil
}

func (m *Manager) confirmClose(p model.Position, reason string, attempts int) error {
	m.registry.Remove(p.Ticket)
	log.Printf("[INFO] closed #%d after %d attempt(s) (%s), p/l %.2f", p.Ticket, attempts, reason, p.Profit)
	m.record(ledger.CloseEvent(p, reason))
	return nil
}

func (m *Manager) exhaust(p model.Position, reason string, attempts int) error {
	if err := m.registry.MarkCloseFailed(p.Ticket); err != nil {
		log.Printf("[WARN] %v", err)
	}
	m.record(ledger.Event{
		Time: time.Now(), Type: ledger.EventCloseFailed,
		Symbol: p.Symbol, Ticket: p.Ticket, Volume: p.Volume,
		Attempt: attempts, Reason: reason,
		Detail: "all fill modes exhausted",
	})
	log.Printf("[ERROR] close #%d exhausted after %d attempts; flagged for manual intervention", p.Ticket, attempts)
	if err := m.notify.Send(notifier.FormatCloseFailed(p, attempts)); err != nil {
		log.Printf("[ERROR] escalation notify failed: %v", err)
	}
	return fmt.Errorf("close #%d: %d attempts exhausted", p.Ticket, attempts)
}

// deviation derives the per-attempt slippage allowance from the live spread.
// A stale or failed quote falls back to the minimum.
func (m *Manager) deviation(symbol string) int {
	q, err := m.gw.Quote(symbol)
	if err != nil {
		return minDeviationPoints
	}
	sym, err := m.gw.SymbolInfo(symbol)
	if err != nil || sym.Point <= 0 {
		return minDeviationPoints
	}
	dev := int(math.Round(q.SpreadPoints(sym.Point) * 1.5))
	if dev < minDeviationPoints {
		dev = minDeviationPoints
	}
	return dev
}

// liveVolume reports the remaining volume of a ticket, 0 when it is gone.
func (m *Manager) liveVolume(symbol string, ticket int64) (float64, error) {
	live, err := m.gw.Positions(symbol)
	if err != nil {
		return 0, fmt.Errorf("list positions: %w", err)
	}
	for _, lp := range live {
		if lp.Ticket == ticket {
			return lp.Volume, nil
		}
	}
	return 0, nil
}

func (m *Manager) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(attemptPause):
	}
}

func (m *Manager) record(evt ledger.Event) {
	if err := m.audit.Record(evt); err != nil {
		log.Printf("[ERROR] audit record failed: %v", err)
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
