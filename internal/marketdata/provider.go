// Package marketdata is the port to the external market-data feed: quotes,
// pending corporate-action events, and the symbol directory.
package marketdata

import (
	"context"
	"time"
)

// Quote is the current state of a symbol. Prices are micros (1 USD =
// 1,000,000 micros).
type Quote struct {
	Symbol            string
	LatestPriceMicros int64
	CloseMicros       int64
	Volume            int64
}

// Split is an announced stock split. A holding of fromFactor shares becomes
// toFactor shares on the effective date.
type Split struct {
	ExDate     time.Time
	FromFactor int64
	ToFactor   int64
}

// Dividend is an announced cash dividend. Ownership must predate ExDate to
// qualify; payment happens on PaymentDate.
type Dividend struct {
	PaymentDate  time.Time
	ExDate       time.Time
	AmountMicros int64 // per share
}

// SymbolInfo is one symbol-directory entry.
type SymbolInfo struct {
	Symbol string
	Name   string
	Type   string
}

// Provider supplies market data. Implementations own their timeouts; a
// timed-out call returns an error rather than blocking the caller.
type Provider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	Splits(ctx context.Context, symbol, window string) ([]Split, error)
	Dividends(ctx context.Context, symbol, window string) ([]Dividend, error)
	Symbols(ctx context.Context) ([]SymbolInfo, error)
}
