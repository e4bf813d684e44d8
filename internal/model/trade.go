package model

import "time"

// Direction is the side of a trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Opposite returns the reverse side.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// TradeIntent is a confirmed signal produced by the analyzer for one candle.
// It is consumed exactly once by the risk gate and then discarded.
type TradeIntent struct {
	ID            string
	Strategy      string
	Direction     Direction
	CandleTime    time.Time
	Confirmations []string // signal sources; at least two (one forex, one pattern)
}

// Order is a risk-admitted, fully sized open request.
type Order struct {
	Intent      TradeIntent
	Symbol      string
	Volume      float64
	Direction   Direction
	StopLoss    float64 // absolute price, 0 = none
	TakeProfit  float64 // absolute price, 0 = none
	UseTrailing bool
	Comment     string
}

// Position is a live broker position tracked by the registry.
type Position struct {
	Ticket         int64
	Symbol         string
	Volume         float64
	Direction      Direction
	OpenPrice      float64
	StopLoss       float64
	TakeProfit     float64
	Profit         float64 // unrealized P/L, refreshed by the monitor
	Comment        string
	Strategy       string
	TrailingActive bool
	CloseFailed    bool
	OpenedAt       time.Time
}
