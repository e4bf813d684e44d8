package ledger

import (
	"time"

	"TradeSentinel/internal/model"
)

// EventType names every auditable action the engine and monitor take.
type EventType string

const (
	EventSignal        EventType = "signal"
	EventReject        EventType = "reject"
	EventOpen          EventType = "open"
	EventCloseAttempt  EventType = "close_attempt"
	EventClose         EventType = "close"
	EventCloseFailed   EventType = "close_failed"
	EventModifySL      EventType = "modify_sl"
	EventExternalClose EventType = "external_close"
	EventAdopted       EventType = "adopted"
	EventRollover      EventType = "rollover"
	EventCapReached    EventType = "cap_reached"
	EventDataGap       EventType = "data_gap"
	EventError         EventType = "error"
)

// Event is one audit record. Fields are sparse: each event type fills only
// what it has, and zero values are omitted on the wire.
type Event struct {
	Time       time.Time `json:"time"`
	Type       EventType `json:"type"`
	Symbol     string    `json:"symbol,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	Ticket     int64     `json:"ticket,omitempty"`
	Direction  string    `json:"direction,omitempty"`
	Volume     float64   `json:"volume,omitempty"`
	Price      float64   `json:"price,omitempty"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Profit     float64   `json:"profit,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Ledger persists audit events. Implementations must be safe for use from
// the engine and the monitor concurrently.
type Ledger interface {
	Record(evt Event) error
	Close() error
}

// OpenEvent builds the audit record for a freshly opened position.
func OpenEvent(p model.Position) Event {
	return Event{
		Time:       time.Now(),
		Type:       EventOpen,
		Symbol:     p.Symbol,
		Strategy:   p.Strategy,
		Ticket:     p.Ticket,
		Direction:  string(p.Direction),
		Volume:     p.Volume,
		Price:      p.OpenPrice,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Comment:    p.Comment,
	}
}

// CloseEvent builds the audit record for a confirmed close.
func CloseEvent(p model.Position, reason string) Event {
	return Event{
		Time:      time.Now(),
		Type:      EventClose,
		Symbol:    p.Symbol,
		Strategy:  p.Strategy,
		Ticket:    p.Ticket,
		Direction: string(p.Direction),
		Volume:    p.Volume,
		Profit:    p.Profit,
		Reason:    reason,
	}
}

// NoopLedger discards everything. Used when no sink is configured.
type NoopLedger struct{}

func NewNoopLedger() *NoopLedger { return &NoopLedger{} }

func (n *NoopLedger) Record(Event) error { return nil }
func (n *NoopLedger) Close() error       { return nil }

// MultiLedger fans each event out to every sink. Record returns the first
// sink error but still writes to the remaining sinks.
type MultiLedger struct {
	sinks []Ledger
}

func NewMultiLedger(sinks ...Ledger) *MultiLedger {
	return &MultiLedger{sinks: sinks}
}

func (m *MultiLedger) Record(evt Event) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Record(evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiLedger) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
