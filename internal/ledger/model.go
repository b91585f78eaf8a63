package ledger

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"
)

const (
	MicrosPerUSD = int64(1_000_000)

	// StartingBalanceMicros is every new company's opening cash.
	StartingBalanceMicros = int64(10_000) * MicrosPerUSD
)

var (
	ErrInvalidQuantity    = errors.New("quantity and price must be > 0")
	ErrInsufficientShares = errors.New("insufficient shares held")
	ErrUnknownSymbol      = errors.New("unknown stock symbol")
	ErrNoActiveCompany    = errors.New("no active company registered")
	ErrCompanyExists      = errors.New("an active company is already registered")
	ErrMissingClose       = errors.New("no close price recorded")
	ErrMarketData         = errors.New("market data unavailable")
)

var symbolRE = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

func ValidateSymbol(symbol string) error {
	if !symbolRE.MatchString(strings.TrimSpace(symbol)) {
		return ErrUnknownSymbol
	}
	return nil
}

func USDToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerUSD)))
}

func MicrosToUSD(v int64) float64 {
	return float64(v) / float64(MicrosPerUSD)
}

// NotionalMicros is price * quantity with an overflow guard.
func NotionalMicros(priceMicros, quantity int64) (int64, error) {
	v := new(big.Int).Mul(big.NewInt(priceMicros), big.NewInt(quantity))
	if !v.IsInt64() {
		return 0, fmt.Errorf("notional overflow: price=%d qty=%d", priceMicros, quantity)
	}
	return v.Int64(), nil
}

// splitQuantity is floor(quantity * toFactor / fromFactor). The remainder
// of the division stays with the holder as cash.
func splitQuantity(quantity, fromFactor, toFactor int64) int64 {
	v := new(big.Int).Mul(big.NewInt(quantity), big.NewInt(toFactor))
	v.Quo(v, big.NewInt(fromFactor))
	return v.Int64()
}

// splitPrice is closeMicros * fromFactor / toFactor, floored to a micro.
func splitPrice(closeMicros, fromFactor, toFactor int64) int64 {
	v := new(big.Int).Mul(big.NewInt(closeMicros), big.NewInt(fromFactor))
	v.Quo(v, big.NewInt(toFactor))
	return v.Int64()
}
