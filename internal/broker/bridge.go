package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"TradeSentinel/internal/model"
)

// BridgeClient implements Gateway against a REST terminal bridge. Connection
// failures are retried a bounded number of times per request; beyond that the
// error is surfaced as ErrConnection and the caller decides whether to halt.
type BridgeClient struct {
	BaseURL string
	APIKey  string
	Retries int
	Client  *http.Client
}

// NewBridgeClient creates a gateway client with optional proxy support.
func NewBridgeClient(baseURL, apiKey, proxyURL string, retries int) *BridgeClient {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if retries <= 0 {
		retries = 3
	}
	return &BridgeClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Retries: retries,
		Client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

func (b *BridgeClient) Name() string { return "bridge" }

type bridgePosition struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Volume     float64 `json:"volume"`
	Type       string  `json:"type"` // "long" or "short"
	OpenPrice  float64 `json:"open_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Profit     float64 `json:"profit"`
	Comment    string  `json:"comment"`
	OpenedAt   int64   `json:"opened_at"`
}

type bridgeOpenResult struct {
	Ticket  int64  `json:"ticket"`
	Retcode int    `json:"retcode"`
	Message string `json:"message"`
}

// Open submits a market order. A broker-side refusal maps to ErrRejected.
func (b *BridgeClient) Open(req OpenRequest) (int64, error) {
	var res bridgeOpenResult
	if err := b.post("/api/v1/orders/open", req, &res); err != nil {
		return 0, err
	}
	if res.Retcode != 0 {
		return 0, fmt.Errorf("%w: %s (retcode %d)", ErrRejected, res.Message, res.Retcode)
	}
	return res.Ticket, nil
}

// Close submits one close attempt with the given filling mode and deviation.
func (b *BridgeClient) Close(req CloseRequest) error {
	var res bridgeOpenResult
	if err := b.post("/api/v1/orders/close", req, &res); err != nil {
		return err
	}
	if res.Retcode != 0 {
		return fmt.Errorf("%w: %s (retcode %d)", ErrRejected, res.Message, res.Retcode)
	}
	return nil
}

// ModifyStopLoss updates the protective stop of a live position.
func (b *BridgeClient) ModifyStopLoss(ticket int64, stopLoss float64) error {
	payload := map[string]any{"ticket": ticket, "stop_loss": stopLoss}
	var res bridgeOpenResult
	if err := b.post("/api/v1/orders/modify_sl", payload, &res); err != nil {
		return err
	}
	if res.Retcode != 0 {
		return fmt.Errorf("%w: %s (retcode %d)", ErrRejected, res.Message, res.Retcode)
	}
	return nil
}

// Positions lists the live positions for a symbol.
func (b *BridgeClient) Positions(symbol string) ([]model.Position, error) {
	var raw []bridgePosition
	endpoint := fmt.Sprintf("/api/v1/positions?symbol=%s", url.QueryEscape(symbol))
	if err := b.get(endpoint, &raw); err != nil {
		return nil, err
	}
	positions := make([]model.Position, 0, len(raw))
	for _, p := range raw {
		dir := model.Long
		if p.Type == "short" {
			dir = model.Short
		}
		positions = append(positions, model.Position{
			Ticket:     p.Ticket,
			Symbol:     p.Symbol,
			Volume:     p.Volume,
			Direction:  dir,
			OpenPrice:  p.OpenPrice,
			StopLoss:   p.StopLoss,
			TakeProfit: p.TakeProfit,
			Profit:     p.Profit,
			Comment:    p.Comment,
			OpenedAt:   time.Unix(p.OpenedAt, 0),
		})
	}
	return positions, nil
}

// Account returns the current account snapshot.
func (b *BridgeClient) Account() (model.AccountSnapshot, error) {
	var snap model.AccountSnapshot
	err := b.get("/api/v1/account", &struct {
		Balance    *float64 `json:"balance"`
		Equity     *float64 `json:"equity"`
		Margin     *float64 `json:"margin"`
		FreeMargin *float64 `json:"free_margin"`
	}{&snap.Balance, &snap.Equity, &snap.Margin, &snap.FreeMargin})
	return snap, err
}

// Quote returns the latest bid/ask.
func (b *BridgeClient) Quote(symbol string) (model.Quote, error) {
	var raw struct {
		Bid  float64 `json:"bid"`
		Ask  float64 `json:"ask"`
		Time int64   `json:"time"`
	}
	endpoint := fmt.Sprintf("/api/v1/quote?symbol=%s", url.QueryEscape(symbol))
	if err := b.get(endpoint, &raw); err != nil {
		return model.Quote{}, err
	}
	return model.Quote{Bid: raw.Bid, Ask: raw.Ask, Time: time.Unix(raw.Time, 0)}, nil
}

// Candles returns the most recent closed candles, oldest first.
func (b *BridgeClient) Candles(symbol string, count int) ([]model.Candle, error) {
	var raw []struct {
		Time   int64   `json:"time"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"volume"`
	}
	endpoint := fmt.Sprintf("/api/v1/candles?symbol=%s&count=%d", url.QueryEscape(symbol), count)
	if err := b.get(endpoint, &raw); err != nil {
		return nil, err
	}
	candles := make([]model.Candle, 0, len(raw))
	for _, c := range raw {
		candles = append(candles, model.Candle{
			Time:   time.Unix(c.Time, 0),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return candles, nil
}

// SymbolInfo returns the broker's trading parameters for a symbol.
func (b *BridgeClient) SymbolInfo(symbol string) (model.SymbolInfo, error) {
	var info model.SymbolInfo
	endpoint := fmt.Sprintf("/api/v1/symbol?symbol=%s", url.QueryEscape(symbol))
	err := b.get(endpoint, &struct {
		Name         *string  `json:"name"`
		Point        *float64 `json:"point"`
		Digits       *int     `json:"digits"`
		VolumeMin    *float64 `json:"volume_min"`
		VolumeMax    *float64 `json:"volume_max"`
		VolumeStep   *float64 `json:"volume_step"`
		ContractSize *float64 `json:"contract_size"`
		MarginPerLot *float64 `json:"margin_per_lot"`
	}{&info.Name, &info.Point, &info.Digits, &info.VolumeMin, &info.VolumeMax,
		&info.VolumeStep, &info.ContractSize, &info.MarginPerLot})
	return info, err
}

func (b *BridgeClient) get(endpoint string, out any) error {
	return b.do(http.MethodGet, endpoint, nil, out)
}

func (b *BridgeClient) post(endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return b.do(http.MethodPost, endpoint, body, out)
}

func (b *BridgeClient) do(method, endpoint string, body []byte, out any) error {
	var lastErr error
	for attempt := 1; attempt <= b.Retries; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, b.BaseURL+endpoint, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if b.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+b.APIKey)
		}

		resp, err := b.Client.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("[WARN] bridge %s %s attempt %d/%d: %v", method, endpoint, attempt, b.Retries, err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("bridge API error: status %d, body: %s", resp.StatusCode, string(respBody))
		}
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrConnection, lastErr)
}
