package position

import (
	"fmt"
	"sync"

	"TradeSentinel/internal/model"
)

// Registry is the in-memory book of positions this session manages. The
// broker remains the source of truth for what is live; the registry carries
// the session-side metadata (strategy, trailing state, close-failed flags)
// that the broker does not store.
type Registry struct {
	mu        sync.Mutex
	positions map[int64]model.Position
}

func NewRegistry() *Registry {
	return &Registry{positions: make(map[int64]model.Position)}
}

// Open runs the broker call under the registry lock and tracks the result.
// Holding the lock across the call keeps a concurrent Reconcile from seeing
// the new live position before it is tracked and mis-adopting it.
func (r *Registry) Open(open func() (model.Position, error)) (model.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := open()
	if err != nil {
		return model.Position{}, err
	}
	r.positions[p.Ticket] = p
	return p, nil
}

// Track adds or replaces a position.
func (r *Registry) Track(p model.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[p.Ticket] = p
}

// Remove drops a position and returns it. ok is false for unknown tickets.
func (r *Registry) Remove(ticket int64) (model.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[ticket]
	if ok {
		delete(r.positions, ticket)
	}
	return p, ok
}

func (r *Registry) Get(ticket int64) (model.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[ticket]
	return p, ok
}

// Snapshot returns a copy of every tracked position.
func (r *Registry) Snapshot() []model.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, p)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

// MarkCloseFailed flags a position whose close protocol was exhausted so the
// monitor stops issuing further close attempts for it.
func (r *Registry) MarkCloseFailed(ticket int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[ticket]
	if !ok {
		return fmt.Errorf("mark close failed: ticket %d not tracked", ticket)
	}
	p.CloseFailed = true
	r.positions[ticket] = p
	return nil
}

// SetTrailing records that the trailing stop has activated for a position.
func (r *Registry) SetTrailing(ticket int64, stopLoss float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.positions[ticket]; ok {
		p.TrailingActive = true
		p.StopLoss = stopLoss
		r.positions[ticket] = p
	}
}

// Reconcile aligns the registry with the broker's live positions. Tracked
// positions missing from the live set were closed outside this session and
// are returned in closed. Live positions the registry has never seen are
// adopted (tracked as-is) and returned in adopted so the caller can decode
// their strategy and audit the adoption. Live data (profit, volume,
// protective levels) refreshes the tracked copies.
func (r *Registry) Reconcile(live []model.Position) (closed, adopted []model.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[int64]bool, len(live))
	for _, lp := range live {
		seen[lp.Ticket] = true
		tracked, ok := r.positions[lp.Ticket]
		if !ok {
			r.positions[lp.Ticket] = lp
			adopted = append(adopted, lp)
			continue
		}
		tracked.Profit = lp.Profit
		tracked.Volume = lp.Volume
		tracked.StopLoss = lp.StopLoss
		tracked.TakeProfit = lp.TakeProfit
		r.positions[lp.Ticket] = tracked
	}
	for ticket, p := range r.positions {
		if !seen[ticket] {
			closed = append(closed, p)
			delete(r.positions, ticket)
		}
	}
	return closed, adopted
}
