package broker

import (
	"errors"

	"TradeSentinel/internal/model"
)

// ErrRejected is returned when the broker refuses an order outright
// (insufficient funds, invalid volume). Opens are never retried on it.
var ErrRejected = errors.New("order rejected by broker")

// ErrConnection is returned when the gateway cannot be reached after the
// connection layer's bounded retries.
var ErrConnection = errors.New("broker gateway unreachable")

// FillMode is the broker-side order-matching mode for close orders.
type FillMode string

const (
	FillFOK    FillMode = "FOK"
	FillIOC    FillMode = "IOC"
	FillReturn FillMode = "RETURN"
)

// FillModes is the fixed order the close protocol tries modes in.
var FillModes = []FillMode{FillFOK, FillIOC, FillReturn}

// OpenRequest describes a market open order.
type OpenRequest struct {
	Symbol     string          `json:"symbol"`
	Volume     float64         `json:"volume"`
	Direction  model.Direction `json:"direction"`
	StopLoss   float64         `json:"stop_loss,omitempty"`
	TakeProfit float64         `json:"take_profit,omitempty"`
	Comment    string          `json:"comment,omitempty"`
}

// CloseRequest describes one close attempt against a live position.
type CloseRequest struct {
	Ticket    int64           `json:"ticket"`
	Symbol    string          `json:"symbol"`
	Volume    float64         `json:"volume"`
	Direction model.Direction `json:"direction"` // direction of the position being closed
	Mode      FillMode        `json:"fill_mode"`
	Deviation int             `json:"deviation"` // tolerated price deviation in points
	Comment   string          `json:"comment,omitempty"`
}

// Gateway is the brokerage execution endpoint. All calls block, bounded by
// the implementation's timeout.
type Gateway interface {
	Open(req OpenRequest) (int64, error)
	Close(req CloseRequest) error
	ModifyStopLoss(ticket int64, stopLoss float64) error
	Positions(symbol string) ([]model.Position, error)
	Account() (model.AccountSnapshot, error)
	Quote(symbol string) (model.Quote, error)
	SymbolInfo(symbol string) (model.SymbolInfo, error)
	Name() string
}

// CandleSource supplies closed-candle history. Separate from Gateway so the
// backtester can run from a CSV file while still using a Gateway simulator.
type CandleSource interface {
	Candles(symbol string, count int) ([]model.Candle, error)
}
