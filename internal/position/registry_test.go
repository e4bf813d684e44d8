package position

import (
	"errors"
	"testing"

	"TradeSentinel/internal/model"
)

func TestOpenTracksUnderLock(t *testing.T) {
	r := NewRegistry()

	p, err := r.Open(func() (model.Position, error) {
		return model.Position{Ticket: 42, Symbol: "EURUSD", Strategy: "engulfing"}, nil
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, ok := r.Get(p.Ticket)
	if !ok || got.Strategy != "engulfing" {
		t.Errorf("Get(42) = %+v, %v; want tracked engulfing position", got, ok)
	}
}

func TestOpenFailureTracksNothing(t *testing.T) {
	r := NewRegistry()

	_, err := r.Open(func() (model.Position, error) {
		return model.Position{}, errors.New("rejected")
	})
	if err == nil {
		t.Fatal("Open() error = nil, want rejection passed through")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after failed open", r.Len())
	}
}

func TestReconcileDetectsExternalClose(t *testing.T) {
	r := NewRegistry()
	r.Track(model.Position{Ticket: 1, Strategy: "hammer"})
	r.Track(model.Position{Ticket: 2, Strategy: "ma_crossover"})

	closed, adopted := r.Reconcile([]model.Position{{Ticket: 2, Profit: 12.5}})
	if len(closed) != 1 || closed[0].Ticket != 1 {
		t.Fatalf("closed = %v, want ticket 1", closed)
	}
	if closed[0].Strategy != "hammer" {
		t.Errorf("closed position lost its metadata: %+v", closed[0])
	}
	if adopted != nil {
		t.Errorf("adopted = %v, want none", adopted)
	}
	got, _ := r.Get(2)
	if got.Profit != 12.5 {
		t.Errorf("live profit not refreshed: %v", got.Profit)
	}
	if got.Strategy != "ma_crossover" {
		t.Errorf("refresh overwrote session metadata: %+v", got)
	}
}

func TestReconcileAdoptsUnknownPositions(t *testing.T) {
	r := NewRegistry()

	closed, adopted := r.Reconcile([]model.Position{{Ticket: 7, Comment: "key-5-bot"}})
	if closed != nil {
		t.Errorf("closed = %v, want none", closed)
	}
	if len(adopted) != 1 || adopted[0].Ticket != 7 {
		t.Fatalf("adopted = %v, want ticket 7", adopted)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want adopted position tracked", r.Len())
	}
}

func TestMarkCloseFailed(t *testing.T) {
	r := NewRegistry()
	r.Track(model.Position{Ticket: 3})

	if err := r.MarkCloseFailed(3); err != nil {
		t.Fatalf("MarkCloseFailed() error = %v", err)
	}
	p, _ := r.Get(3)
	if !p.CloseFailed {
		t.Error("CloseFailed flag not set")
	}
	if err := r.MarkCloseFailed(99); err == nil {
		t.Error("MarkCloseFailed(99) error = nil, want unknown ticket error")
	}
}

func TestSetTrailingRatchet(t *testing.T) {
	r := NewRegistry()
	r.Track(model.Position{Ticket: 4, StopLoss: 1.0950})

	r.SetTrailing(4, 1.0980)
	p, _ := r.Get(4)
	if !p.TrailingActive || p.StopLoss != 1.0980 {
		t.Errorf("position after SetTrailing = %+v", p)
	}
}
