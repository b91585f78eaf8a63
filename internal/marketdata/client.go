package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const microsPerUSD = 1_000_000

// Client talks to an IEX-style REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

type quotePayload struct {
	Symbol        string  `json:"symbol"`
	LatestPrice   float64 `json:"latestPrice"`
	Close         float64 `json:"close"`
	LatestVolume  int64   `json:"latestVolume"`
	PreviousClose float64 `json:"previousClose"`
}

func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	var out quotePayload
	if err := c.getJSON(ctx, "/stock/"+url.PathEscape(symbol)+"/quote", &out); err != nil {
		return Quote{}, err
	}
	closePrice := out.Close
	if closePrice == 0 {
		closePrice = out.PreviousClose
	}
	return Quote{
		Symbol:            out.Symbol,
		LatestPriceMicros: usdToMicros(out.LatestPrice),
		CloseMicros:       usdToMicros(closePrice),
		Volume:            out.LatestVolume,
	}, nil
}

type splitPayload struct {
	ExDate     string  `json:"exDate"`
	FromFactor float64 `json:"fromFactor"`
	ToFactor   float64 `json:"toFactor"`
}

func (c *Client) Splits(ctx context.Context, symbol, window string) ([]Split, error) {
	var raw []splitPayload
	if err := c.getJSON(ctx, "/stock/"+url.PathEscape(symbol)+"/splits/"+url.PathEscape(window), &raw); err != nil {
		return nil, err
	}
	out := make([]Split, 0, len(raw))
	for _, p := range raw {
		exDate, err := time.Parse("2006-01-02", p.ExDate)
		if err != nil {
			return nil, fmt.Errorf("parse split exDate %q: %w", p.ExDate, err)
		}
		out = append(out, Split{
			ExDate:     exDate,
			FromFactor: int64(math.Round(p.FromFactor)),
			ToFactor:   int64(math.Round(p.ToFactor)),
		})
	}
	return out, nil
}

type dividendPayload struct {
	PaymentDate string  `json:"paymentDate"`
	ExDate      string  `json:"exDate"`
	Amount      float64 `json:"amount"`
}

func (c *Client) Dividends(ctx context.Context, symbol, window string) ([]Dividend, error) {
	var raw []dividendPayload
	if err := c.getJSON(ctx, "/stock/"+url.PathEscape(symbol)+"/dividends/"+url.PathEscape(window), &raw); err != nil {
		return nil, err
	}
	out := make([]Dividend, 0, len(raw))
	for _, p := range raw {
		payDate, err := time.Parse("2006-01-02", p.PaymentDate)
		if err != nil {
			return nil, fmt.Errorf("parse dividend paymentDate %q: %w", p.PaymentDate, err)
		}
		exDate, err := time.Parse("2006-01-02", p.ExDate)
		if err != nil {
			return nil, fmt.Errorf("parse dividend exDate %q: %w", p.ExDate, err)
		}
		out = append(out, Dividend{
			PaymentDate:  payDate,
			ExDate:       exDate,
			AmountMicros: usdToMicros(p.Amount),
		})
	}
	return out, nil
}

type symbolPayload struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

func (c *Client) Symbols(ctx context.Context) ([]SymbolInfo, error) {
	var raw []symbolPayload
	if err := c.getJSON(ctx, "/ref-data/symbols", &raw); err != nil {
		return nil, err
	}
	out := make([]SymbolInfo, 0, len(raw))
	for _, p := range raw {
		out = append(out, SymbolInfo{Symbol: p.Symbol, Name: p.Name, Type: p.Type})
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	u := c.baseURL + path
	if c.token != "" {
		u += "?token=" + url.QueryEscape(c.token)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market data request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("market data status %d on %s: %s", resp.StatusCode, path, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func usdToMicros(v float64) int64 {
	return int64(math.Round(v * microsPerUSD))
}
