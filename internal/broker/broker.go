// Package broker is a thin facade over the Alpaca trading API: account
// state, open positions, and market orders. No retry, fallback, or caching —
// order submission must never be replayed blindly.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"marketfeed/internal/httpx"
)

// ErrNoCredentials is returned when the trading key pair is missing.
var ErrNoCredentials = errors.New("broker: credentials not configured")

type Config struct {
	BaseURL string // default https://paper-api.alpaca.markets (paper trading)
	Key     string
	Secret  string
}

type Client struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://paper-api.alpaca.markets"
	}
	return &Client{cfg: cfg, client: hc}
}

// Account is the brokerage account snapshot; monetary amounts arrive as
// strings on the wire and are parsed here.
type Account struct {
	ID             string  `json:"id"`
	AccountNumber  string  `json:"account_number"`
	Status         string  `json:"status"`
	Currency       string  `json:"currency"`
	Cash           float64 `json:"cash"`
	BuyingPower    float64 `json:"buying_power"`
	Equity         float64 `json:"equity"`
	PortfolioValue float64 `json:"portfolio_value"`
}

type accountWire struct {
	ID             string `json:"id"`
	AccountNumber  string `json:"account_number"`
	Status         string `json:"status"`
	Currency       string `json:"currency"`
	Cash           string `json:"cash"`
	BuyingPower    string `json:"buying_power"`
	Equity         string `json:"equity"`
	PortfolioValue string `json:"portfolio_value"`
}

func (c *Client) Account(ctx context.Context) (*Account, error) {
	var w accountWire
	if err := c.getJSON(ctx, "/v2/account", &w); err != nil {
		return nil, err
	}
	acct := &Account{
		ID:            w.ID,
		AccountNumber: w.AccountNumber,
		Status:        w.Status,
		Currency:      w.Currency,
	}
	var err error
	if acct.Cash, err = parseMoney(w.Cash, "cash"); err != nil {
		return nil, err
	}
	if acct.BuyingPower, err = parseMoney(w.BuyingPower, "buying_power"); err != nil {
		return nil, err
	}
	if acct.Equity, err = parseMoney(w.Equity, "equity"); err != nil {
		return nil, err
	}
	if acct.PortfolioValue, err = parseMoney(w.PortfolioValue, "portfolio_value"); err != nil {
		return nil, err
	}
	return acct, nil
}

// AssetTradable reports whether the brokerage allows trading the ticker.
func (c *Client) AssetTradable(ctx context.Context, ticker string) (bool, error) {
	var asset struct {
		Tradable bool `json:"tradable"`
	}
	if err := c.getJSON(ctx, "/v2/assets/"+url.PathEscape(ticker), &asset); err != nil {
		return false, err
	}
	return asset.Tradable, nil
}

// Position is one open position.
type Position struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
	Side          string  `json:"side"`
}

type positionWire struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	MarketValue   string `json:"market_value"`
	UnrealizedPL  string `json:"unrealized_pl"`
	Side          string `json:"side"`
}

func (w positionWire) parse() (Position, error) {
	p := Position{Symbol: w.Symbol, Side: w.Side}
	var err error
	if p.Qty, err = parseMoney(w.Qty, "qty"); err != nil {
		return p, err
	}
	if p.AvgEntryPrice, err = parseMoney(w.AvgEntryPrice, "avg_entry_price"); err != nil {
		return p, err
	}
	if p.MarketValue, err = parseMoney(w.MarketValue, "market_value"); err != nil {
		return p, err
	}
	if p.UnrealizedPL, err = parseMoney(w.UnrealizedPL, "unrealized_pl"); err != nil {
		return p, err
	}
	return p, nil
}

// Position returns the open position for ticker, or nil when there is none
// (the API signals that with a 404).
func (c *Client) Position(ctx context.Context, ticker string) (*Position, error) {
	var w positionWire
	err := c.getJSON(ctx, "/v2/positions/"+url.PathEscape(ticker), &w)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := w.parse()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Positions returns all open positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var wires []positionWire
	if err := c.getJSON(ctx, "/v2/positions", &wires); err != nil {
		return nil, err
	}
	positions := make([]Position, 0, len(wires))
	for _, w := range wires {
		p, err := w.parse()
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, nil
}

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// Order is the submitted-order acknowledgment.
type Order struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	Status        string `json:"status"`
}

// SubmitMarketOrder places a day market order for qty shares of ticker.
// Every submission carries a fresh client order id so the brokerage can
// deduplicate accidental resends.
func (c *Client) SubmitMarketOrder(ctx context.Context, ticker string, qty float64, side OrderSide) (*Order, error) {
	if c.cfg.Key == "" || c.cfg.Secret == "" {
		return nil, ErrNoCredentials
	}
	if qty <= 0 {
		return nil, fmt.Errorf("broker: qty must be positive, got %v", qty)
	}

	body, err := json.Marshal(map[string]string{
		"symbol":          ticker,
		"qty":             strconv.FormatFloat(qty, 'f', -1, 64),
		"side":            string(side),
		"type":            "market",
		"time_in_force":   "day",
		"client_order_id": uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, &statusError{status: resp.StatusCode, body: string(b)}
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("broker: decode order: %w", err)
	}
	return &order, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	if c.cfg.Key == "" || c.cfg.Secret == "" {
		return ErrNoCredentials
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, http.NoBody)
	if err != nil {
		return err
	}
	c.auth(req)

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return &statusError{status: resp.StatusCode, body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("broker: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	req.Header.Set("APCA-API-KEY-ID", c.cfg.Key)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.Secret)
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("broker: status %d: %s", e.status, e.body)
}

func parseMoney(s, field string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("broker: parse %s %q: %w", field, s, err)
	}
	return v, nil
}
