package strategy

import (
	"TradeSentinel/internal/model"
)

// Drop records a signal that was evaluated but not turned into an intent.
// The engine reports every drop to the audit ledger.
type Drop struct {
	Strategy  string
	Direction model.Direction
	Reason    string
}

// Analyzer turns a candle window into ranked trade intents using the
// dual-confirmation rule: an intent is emitted only when a forex-kind and a
// pattern-kind strategy agree on direction within the same candle.
type Analyzer struct {
	catalog   []Spec
	maxOrders int
}

// NewAnalyzer builds an analyzer over a priority-ordered catalog subset.
func NewAnalyzer(catalog []Spec, maxOrders int) *Analyzer {
	return &Analyzer{catalog: catalog, maxOrders: maxOrders}
}

type rawSignal struct {
	spec      Spec
	direction model.Direction
}

// Analyze evaluates the catalog against the window's last closed candle.
// Pure and deterministic: same window, same output. Intents are ranked by
// catalog priority and bounded by the per-candle order cap; everything
// evaluated but not emitted comes back as a Drop.
func (a *Analyzer) Analyze(w *model.Window) ([]model.TradeIntent, []Drop) {
	if w == nil || w.Len() < 2 {
		return nil, nil
	}

	var signals []rawSignal
	for _, spec := range a.catalog {
		if dir := spec.Evaluate(w); dir == model.Long || dir == model.Short {
			signals = append(signals, rawSignal{spec: spec, direction: dir})
		}
	}
	if len(signals) == 0 {
		return nil, nil
	}

	// A direction is actionable only when both families agree on it. When
	// both directions qualify, the highest-priority signal decides.
	winner := model.Direction("")
	for _, s := range signals {
		if a.confirmedBy(signals, s) {
			winner = s.direction
			break
		}
	}
	if winner == "" {
		drops := make([]Drop, 0, len(signals))
		for _, s := range signals {
			drops = append(drops, Drop{
				Strategy:  s.spec.Name,
				Direction: s.direction,
				Reason:    "no dual confirmation",
			})
		}
		return nil, drops
	}

	candleTime := w.Last().Time
	var intents []model.TradeIntent
	var drops []Drop
	for _, s := range signals {
		if s.direction != winner {
			drops = append(drops, Drop{
				Strategy:  s.spec.Name,
				Direction: s.direction,
				Reason:    "conflicting direction resolved by priority",
			})
			continue
		}
		confirmer, ok := a.firstOtherFamily(signals, s)
		if !ok {
			drops = append(drops, Drop{
				Strategy:  s.spec.Name,
				Direction: s.direction,
				Reason:    "no dual confirmation",
			})
			continue
		}
		intents = append(intents, model.TradeIntent{
			Strategy:      s.spec.Name,
			Direction:     winner,
			CandleTime:    candleTime,
			Confirmations: []string{s.spec.Name, confirmer},
		})
	}

	if a.maxOrders > 0 && len(intents) > a.maxOrders {
		for _, in := range intents[a.maxOrders:] {
			drops = append(drops, Drop{
				Strategy:  in.Strategy,
				Direction: in.Direction,
				Reason:    "max orders per candle exceeded",
			})
		}
		intents = intents[:a.maxOrders]
	}
	return intents, drops
}

// confirmedBy reports whether a signal has an agreeing signal from the other
// strategy family.
func (a *Analyzer) confirmedBy(signals []rawSignal, s rawSignal) bool {
	_, ok := a.firstOtherFamily(signals, s)
	return ok
}

func (a *Analyzer) firstOtherFamily(signals []rawSignal, s rawSignal) (string, bool) {
	for _, other := range signals {
		if other.spec.Kind != s.spec.Kind && other.direction == s.direction {
			return other.spec.Name, true
		}
	}
	return "", false
}

// ClosingSignal reports whether the catalog confirms a direction opposite to
// an open position, used by the monitor's signal-change close rule. It only
// needs a single-family signal: leaving a position is cheaper than entering.
func (a *Analyzer) ClosingSignal(w *model.Window, positionDir model.Direction) (string, bool) {
	if w == nil || w.Len() < 2 {
		return "", false
	}
	opposite := positionDir.Opposite()
	for _, spec := range a.catalog {
		if spec.Evaluate(w) == opposite {
			return spec.Name, true
		}
	}
	return "", false
}

// PatternReversal reports whether any pattern-kind strategy signals the
// direction opposite to an open position.
func (a *Analyzer) PatternReversal(w *model.Window, positionDir model.Direction) (string, bool) {
	if w == nil || w.Len() < 2 {
		return "", false
	}
	opposite := positionDir.Opposite()
	for _, spec := range a.catalog {
		if spec.Kind != KindPattern {
			continue
		}
		if spec.Evaluate(w) == opposite {
			return spec.Name, true
		}
	}
	return "", false
}
