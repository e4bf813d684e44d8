package trade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"TradeSentinel/internal/broker"
	"TradeSentinel/internal/ledger"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/position"
)

func init() {
	attemptPause = 0 // collapse retry pauses in tests
}

// captureLedger stores events in memory for assertions.
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

// captureNotifier records escalation messages.
type captureNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureNotifier) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func newTestManager() (*Manager, *broker.MockGateway, *position.Registry, *captureLedger, *captureNotifier) {
	gw := broker.NewMockGateway()
	reg := position.NewRegistry()
	audit := &captureLedger{}
	notify := &captureNotifier{}
	return NewManager(gw, reg, audit, notify), gw, reg, audit, notify
}

func testOrder() model.Order {
	return model.Order{
		Intent:     model.TradeIntent{ID: "i-1", Strategy: "engulfing", Direction: model.Long},
		Symbol:     "EURUSD",
		Volume:     0.05,
		Direction:  model.Long,
		StopLoss:   1.0982,
		TakeProfit: 1.1042,
		Comment:    "key-9-bot",
	}
}

func trackedPosition(gw *broker.MockGateway, reg *position.Registry) model.Position {
	p := model.Position{
		Symbol: "EURUSD", Volume: 0.05, Direction: model.Long,
		OpenPrice: 1.1002, Strategy: "engulfing", OpenedAt: time.Now(),
	}
	p.Ticket = gw.AddPosition(p)
	reg.Track(p)
	return p
}

func TestOpenTracksAndAudits(t *testing.T) {
	m, _, reg, audit, _ := newTestManager()

	p, err := m.Open(testOrder())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if p.Strategy != "engulfing" || p.Comment != "key-9-bot" {
		t.Errorf("position metadata not carried: %+v", p)
	}
	if _, ok := reg.Get(p.Ticket); !ok {
		t.Error("opened position not tracked")
	}
	if got := audit.ofType(ledger.EventOpen); len(got) != 1 || got[0].Ticket != p.Ticket {
		t.Errorf("open events = %v, want one for ticket %d", got, p.Ticket)
	}
}

func TestOpenRejectionAuditsError(t *testing.T) {
	m, gw, reg, audit, _ := newTestManager()
	gw.OpenErr = broker.ErrRejected

	if _, err := m.Open(testOrder()); err == nil {
		t.Fatal("Open() error = nil, want rejection")
	}
	if reg.Len() != 0 {
		t.Error("rejected open left a tracked position")
	}
	if len(audit.ofType(ledger.EventError)) != 1 {
		t.Error("rejected open not audited")
	}
}

func TestCloseFirstAttemptConfirmed(t *testing.T) {
	m, gw, reg, audit, _ := newTestManager()
	p := trackedPosition(gw, reg)

	if err := m.Close(context.Background(), p, "take_profit"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(gw.CloseCalls) != 1 {
		t.Errorf("close calls = %d, want 1", len(gw.CloseCalls))
	}
	if gw.CloseCalls[0].Mode != broker.FillFOK {
		t.Errorf("first mode = %s, want FOK", gw.CloseCalls[0].Mode)
	}
	if reg.Len() != 0 {
		t.Error("confirmed close left the position tracked")
	}
	closes := audit.ofType(ledger.EventClose)
	if len(closes) != 1 || closes[0].Reason != "take_profit" {
		t.Errorf("close events = %v", closes)
	}
}

func TestCloseEscalatesFillModes(t *testing.T) {
	m, gw, reg, _, _ := newTestManager()
	p := trackedPosition(gw, reg)

	// All five FOK attempts and two IOC attempts fail; the third IOC fills.
	for i := 0; i < 7; i++ {
		gw.ScriptClose(broker.ErrRejected)
	}

	if err := m.Close(context.Background(), p, "signal_change"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(gw.CloseCalls) != 8 {
		t.Fatalf("close calls = %d, want 8", len(gw.CloseCalls))
	}
	for i := 0; i < 5; i++ {
		if gw.CloseCalls[i].Mode != broker.FillFOK {
			t.Errorf("call %d mode = %s, want FOK", i, gw.CloseCalls[i].Mode)
		}
	}
	for i := 5; i < 8; i++ {
		if gw.CloseCalls[i].Mode != broker.FillIOC {
			t.Errorf("call %d mode = %s, want IOC", i, gw.CloseCalls[i].Mode)
		}
	}
}

func TestCloseDistrustsFalseSuccess(t *testing.T) {
	m, gw, reg, _, _ := newTestManager()
	p := trackedPosition(gw, reg)
	gw.ScriptFalseSuccess(1)

	if err := m.Close(context.Background(), p, "stop_loss"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(gw.CloseCalls) != 2 {
		t.Errorf("close calls = %d, want 2 (false success retried)", len(gw.CloseCalls))
	}
	if reg.Len() != 0 {
		t.Error("position still tracked after verified close")
	}
}

func TestClosePartialFillContinuesWithRemainder(t *testing.T) {
	m, gw, reg, _, _ := newTestManager()
	p := trackedPosition(gw, reg)
	gw.ScriptPartial(0.02)

	if err := m.Close(context.Background(), p, "daily_limit_reached"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(gw.CloseCalls) != 2 {
		t.Fatalf("close calls = %d, want 2", len(gw.CloseCalls))
	}
	if gw.CloseCalls[0].Volume != 0.05 {
		t.Errorf("first attempt volume = %v, want 0.05", gw.CloseCalls[0].Volume)
	}
	if gw.CloseCalls[1].Volume != 0.02 {
		t.Errorf("second attempt volume = %v, want remaining 0.02", gw.CloseCalls[1].Volume)
	}
}

func TestCloseExhaustionFlagsAndEscalates(t *testing.T) {
	m, gw, reg, audit, notify := newTestManager()
	p := trackedPosition(gw, reg)

	for i := 0; i < 15; i++ {
		gw.ScriptClose(broker.ErrConnection)
	}

	err := m.Close(context.Background(), p, "signal_change")
	if err == nil {
		t.Fatal("Close() error = nil, want exhaustion")
	}
	if len(gw.CloseCalls) != 15 {
		t.Errorf("close calls = %d, want exactly 15", len(gw.CloseCalls))
	}
	got, ok := reg.Get(p.Ticket)
	if !ok || !got.CloseFailed {
		t.Errorf("position after exhaustion = %+v, %v; want tracked with CloseFailed", got, ok)
	}
	if len(audit.ofType(ledger.EventCloseFailed)) != 1 {
		t.Error("exhaustion not audited")
	}
	if len(notify.sent) != 1 || !strings.Contains(notify.sent[0], "CLOSE FAILED") {
		t.Errorf("operator escalation = %v", notify.sent)
	}
	if len(audit.ofType(ledger.EventCloseAttempt)) != 15 {
		t.Error("every attempt must be audited")
	}
}

func TestCloseRefusesAlreadyFlaggedPosition(t *testing.T) {
	m, gw, reg, _, _ := newTestManager()
	p := trackedPosition(gw, reg)
	reg.MarkCloseFailed(p.Ticket)

	if err := m.Close(context.Background(), p, "stop_loss"); err == nil {
		t.Fatal("Close() error = nil, want refusal for flagged position")
	}
	if len(gw.CloseCalls) != 0 {
		t.Errorf("close calls = %d, want 0", len(gw.CloseCalls))
	}
}

// stallGateway blocks its first Close call until released, so a test can
// overlap a second close request with one already in flight.
type stallGateway struct {
	*broker.MockGateway
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *stallGateway) Close(req broker.CloseRequest) error {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.MockGateway.Close(req)
}

func TestCloseRefusesDuplicateWhileInFlight(t *testing.T) {
	gw := &stallGateway{
		MockGateway: broker.NewMockGateway(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	reg := position.NewRegistry()
	audit := &captureLedger{}
	m := NewManager(gw, reg, audit, &captureNotifier{})
	p := trackedPosition(gw.MockGateway, reg)

	done := make(chan error, 1)
	go func() { done <- m.Close(context.Background(), p, "daily_limit_reached") }()
	<-gw.started

	// A second supervision pass over the same book must not stack another
	// broker order for the ticket.
	if err := m.Close(context.Background(), p, "daily_limit_reached"); !errors.Is(err, ErrCloseInFlight) {
		t.Errorf("overlapping Close() error = %v, want ErrCloseInFlight", err)
	}

	close(gw.release)
	if err := <-done; err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := len(audit.ofType(ledger.EventClose)); got != 1 {
		t.Errorf("close events = %d, want 1", got)
	}
	if got := len(gw.CloseCalls); got != 1 {
		t.Errorf("broker close calls = %d, want 1", got)
	}
}

func TestCloseHonorsContextCancellation(t *testing.T) {
	m, gw, reg, _, _ := newTestManager()
	p := trackedPosition(gw, reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Close(ctx, p, "shutdown"); err == nil {
		t.Fatal("Close() error = nil, want context error")
	}
	if len(gw.CloseCalls) != 0 {
		t.Errorf("close calls = %d, want 0 after cancel", len(gw.CloseCalls))
	}
}

func TestDeviationDerivesFromSpread(t *testing.T) {
	m, gw, reg, _, _ := newTestManager()
	p := trackedPosition(gw, reg)

	// Spread 0.0002 at point 0.00001 is 20 points; 20 * 1.5 = 30.
	if err := m.Close(context.Background(), p, "take_profit"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if gw.CloseCalls[0].Deviation != 30 {
		t.Errorf("deviation = %d, want 30", gw.CloseCalls[0].Deviation)
	}
}

func TestDeviationFloorsAtMinimum(t *testing.T) {
	m, gw, reg, _, _ := newTestManager()
	gw.QuoteValue = model.Quote{Bid: 1.10000, Ask: 1.10002, Time: time.Now()} // 2 points
	p := trackedPosition(gw, reg)

	if err := m.Close(context.Background(), p, "take_profit"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if gw.CloseCalls[0].Deviation != minDeviationPoints {
		t.Errorf("deviation = %d, want floor %d", gw.CloseCalls[0].Deviation, minDeviationPoints)
	}
}

func TestCloseAllSkipsFlaggedPositions(t *testing.T) {
	m, gw, reg, _, _ := newTestManager()
	a := trackedPosition(gw, reg)
	b := trackedPosition(gw, reg)
	reg.MarkCloseFailed(a.Ticket)

	if err := m.CloseAll(context.Background(), "shutdown"); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}
	if len(gw.CloseCalls) != 1 || gw.CloseCalls[0].Ticket != b.Ticket {
		t.Errorf("close calls = %v, want only ticket %d", gw.CloseCalls, b.Ticket)
	}
}

func TestModifyStopLossTrailingMarksRegistry(t *testing.T) {
	m, gw, reg, audit, _ := newTestManager()
	p := trackedPosition(gw, reg)

	if err := m.ModifyStopLoss(p, 1.0995, "trailing"); err != nil {
		t.Fatalf("ModifyStopLoss() error = %v", err)
	}
	got, _ := reg.Get(p.Ticket)
	if !got.TrailingActive || got.StopLoss != 1.0995 {
		t.Errorf("position after trailing modify = %+v", got)
	}
	evts := audit.ofType(ledger.EventModifySL)
	if len(evts) != 1 || evts[0].Reason != "trailing" {
		t.Errorf("modify events = %v", evts)
	}
}
