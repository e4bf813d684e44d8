package broker

import (
	"sync"
	"time"

	"TradeSentinel/internal/model"
)

// MockGateway is a scriptable in-memory Gateway used by tests and dry runs.
// Close behavior is driven by a script of per-attempt errors so the retry
// protocol can be exercised deterministically.
type MockGateway struct {
	mu sync.Mutex

	nextTicket int64
	positions  map[int64]model.Position

	AccountInfo model.AccountSnapshot
	QuoteValue  model.Quote
	Symbol      model.SymbolInfo

	OpenErr error // returned by the next Open when set

	// closeScript is consumed one entry per Close call: nil succeeds,
	// anything else fails the attempt. An empty script always succeeds.
	closeScript []error
	// falseSuccesses makes Close report success without removing the
	// position for the first N successful attempts.
	falseSuccesses int
	// partialRemain, when positive, makes the next successful close fill
	// only partially, leaving this volume live.
	partialRemain float64

	// CandleData backs the Candles history endpoint for dry runs.
	CandleData []model.Candle

	CloseCalls  []CloseRequest
	ModifyCalls []int64
}

// NewMockGateway returns a gateway preloaded with sane EURUSD parameters.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		nextTicket: 1000,
		positions:  make(map[int64]model.Position),
		AccountInfo: model.AccountSnapshot{
			Balance: 10000, Equity: 10000, FreeMargin: 10000,
		},
		QuoteValue: model.Quote{Bid: 1.1000, Ask: 1.1002, Time: time.Now()},
		Symbol: model.SymbolInfo{
			Name:         "EURUSD",
			Point:        0.00001,
			Digits:       5,
			VolumeMin:    0.01,
			VolumeMax:    100,
			VolumeStep:   0.01,
			ContractSize: 100000,
			MarginPerLot: 1000,
		},
	}
}

func (m *MockGateway) Name() string { return "mock" }

// ScriptClose programs the outcome of upcoming close attempts.
func (m *MockGateway) ScriptClose(attempts ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeScript = append(m.closeScript, attempts...)
}

// ScriptFalseSuccess makes the next n successful closes leave the position
// visible, simulating a broker that reports success before filling.
func (m *MockGateway) ScriptFalseSuccess(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.falseSuccesses = n
}

// ScriptPartial makes the next successful close a partial fill leaving
// remain lots live.
func (m *MockGateway) ScriptPartial(remain float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partialRemain = remain
}

// AddPosition seeds a live position and returns its ticket.
func (m *MockGateway) AddPosition(p model.Position) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Ticket == 0 {
		m.nextTicket++
		p.Ticket = m.nextTicket
	}
	m.positions[p.Ticket] = p
	return p.Ticket
}

// RemovePosition drops a position, simulating an external/manual close.
func (m *MockGateway) RemovePosition(ticket int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, ticket)
}

// SetProfit updates the unrealized P/L of a live position.
func (m *MockGateway) SetProfit(ticket int64, profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[ticket]; ok {
		p.Profit = profit
		m.positions[ticket] = p
	}
}

// SetAccount replaces the account snapshot.
func (m *MockGateway) SetAccount(snap model.AccountSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AccountInfo = snap
}

func (m *MockGateway) Open(req OpenRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		err := m.OpenErr
		m.OpenErr = nil
		return 0, err
	}
	m.nextTicket++
	price := m.QuoteValue.Ask
	if req.Direction == model.Short {
		price = m.QuoteValue.Bid
	}
	m.positions[m.nextTicket] = model.Position{
		Ticket:     m.nextTicket,
		Symbol:     req.Symbol,
		Volume:     req.Volume,
		Direction:  req.Direction,
		OpenPrice:  price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Comment:    req.Comment,
		OpenedAt:   time.Now(),
	}
	return m.nextTicket, nil
}

func (m *MockGateway) Close(req CloseRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls = append(m.CloseCalls, req)

	if len(m.closeScript) > 0 {
		err := m.closeScript[0]
		m.closeScript = m.closeScript[1:]
		if err != nil {
			return err
		}
	}
	if m.falseSuccesses > 0 {
		m.falseSuccesses--
		return nil // reported success, position stays visible
	}
	if m.partialRemain > 0 {
		if p, ok := m.positions[req.Ticket]; ok {
			p.Volume = m.partialRemain
			m.positions[req.Ticket] = p
		}
		m.partialRemain = 0
		return nil
	}
	delete(m.positions, req.Ticket)
	return nil
}

func (m *MockGateway) ModifyStopLoss(ticket int64, stopLoss float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModifyCalls = append(m.ModifyCalls, ticket)
	p, ok := m.positions[ticket]
	if !ok {
		return ErrRejected
	}
	p.StopLoss = stopLoss
	m.positions[ticket] = p
	return nil
}

func (m *MockGateway) Positions(symbol string) ([]model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Position
	for _, p := range m.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockGateway) Account() (model.AccountSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AccountInfo, nil
}

func (m *MockGateway) Quote(symbol string) (model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.QuoteValue, nil
}

func (m *MockGateway) Candles(symbol string, count int) ([]model.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.CandleData) > count {
		return m.CandleData[len(m.CandleData)-count:], nil
	}
	return m.CandleData, nil
}

func (m *MockGateway) SymbolInfo(symbol string) (model.SymbolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Symbol, nil
}
