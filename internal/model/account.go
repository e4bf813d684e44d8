package model

import "time"

// AccountSnapshot is a point-in-time view of the broker account.
type AccountSnapshot struct {
	Balance    float64
	Equity     float64
	Margin     float64
	FreeMargin float64
}

// Quote is the latest bid/ask for a symbol.
type Quote struct {
	Bid  float64
	Ask  float64
	Time time.Time
}

// SpreadPoints returns the bid/ask spread expressed in points.
func (q Quote) SpreadPoints(point float64) float64 {
	if point <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / point
}

// SymbolInfo describes the broker's trading parameters for a symbol.
type SymbolInfo struct {
	Name         string
	Point        float64 // smallest price increment
	Digits       int
	VolumeMin    float64
	VolumeMax    float64
	VolumeStep   float64
	ContractSize float64 // units per lot
	MarginPerLot float64 // required margin for one lot
}
