package ledger

import (
	"sort"

	"TradeSentinel/internal/model"
)

// ReplayPositions folds an event stream into the set of positions that were
// still open when the stream ended. It lets a restarted session rebuild its
// registry, strategy attribution included, from the audit log alone.
func ReplayPositions(events []Event) []model.Position {
	open := make(map[int64]model.Position)
	for _, evt := range events {
		switch evt.Type {
		case EventOpen, EventAdopted:
			open[evt.Ticket] = model.Position{
				Ticket:     evt.Ticket,
				Symbol:     evt.Symbol,
				Volume:     evt.Volume,
				Direction:  model.Direction(evt.Direction),
				OpenPrice:  evt.Price,
				StopLoss:   evt.StopLoss,
				TakeProfit: evt.TakeProfit,
				Comment:    evt.Comment,
				Strategy:   evt.Strategy,
				OpenedAt:   evt.Time,
			}
		case EventClose, EventExternalClose:
			delete(open, evt.Ticket)
		case EventCloseFailed:
			if p, ok := open[evt.Ticket]; ok {
				p.CloseFailed = true
				open[evt.Ticket] = p
			}
		case EventModifySL:
			if p, ok := open[evt.Ticket]; ok {
				p.StopLoss = evt.StopLoss
				if evt.Reason == "trailing" {
					p.TrailingActive = true
				}
				open[evt.Ticket] = p
			}
		}
	}

	out := make([]model.Position, 0, len(open))
	for _, p := range open {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}
