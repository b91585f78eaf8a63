// Package store is the persistence port for the trading ledger: a small
// fixed set of entity kinds with typed lookup methods, accessed through a
// unit of work that commits or rolls back as a whole.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by single-entity lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned by inserts that violate a uniqueness rule, such as
// a second active company for the same owner.
var ErrConflict = errors.New("store: conflict")

type User struct {
	ID          string
	CreditScore int64
}

type Company struct {
	ID            int64
	Owner         string
	Name          string
	BalanceMicros int64
	Active        bool
}

// Lot is one discrete acquisition of shares. Lots are never merged; a sell
// depletes them oldest first and deletes any lot that reaches zero.
type Lot struct {
	ID          int64
	CompanyID   int64
	Symbol      string
	Quantity    int64
	PriceMicros int64 // purchase price per share
	PurchasedAt time.Time
}

type TransactionType string

const (
	TransactionSell     TransactionType = "sell"
	TransactionBuy      TransactionType = "buy"
	TransactionDividend TransactionType = "dividend"
)

// Transaction is the append-only audit record of a balance-affecting event.
// BatchID groups the records written by one unit of work.
type Transaction struct {
	ID          int64
	CompanyID   int64
	Symbol      string
	Type        TransactionType
	Volume      int64
	PriceMicros int64
	BatchID     string
	At          time.Time
}

// Symbol is reference data from the market symbol directory.
type Symbol struct {
	Symbol string
	Name   string
	Type   string
}

// CompanyValue is one net-worth sample per evaluation cycle.
type CompanyValue struct {
	CompanyID   int64
	Date        time.Time
	ValueMicros int64
}

// Close is one close-price sample per symbol per session date.
type Close struct {
	Symbol      string
	Date        time.Time
	CloseMicros int64
	Volume      int64
}

// CorporateActionKind tags the exactly-once claim for a market event.
type CorporateActionKind string

const (
	CorporateSplit    CorporateActionKind = "split"
	CorporateDividend CorporateActionKind = "dividend"
)

// Store opens units of work.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork groups entity reads and mutations that commit or roll back
// together. Implementations must make CompanyForUpdate serialize concurrent
// units of work touching the same company without blocking unrelated
// companies.
//
// Rollback after a successful Commit is a no-op, so callers can always
// `defer uow.Rollback(ctx)`.
type UnitOfWork interface {
	User(ctx context.Context, id string) (*User, error)
	InsertUser(ctx context.Context, u *User) error

	CompanyForUpdate(ctx context.Context, id int64) (*Company, error)
	ActiveCompanyByOwner(ctx context.Context, owner string) (*Company, error)
	// InsertCompany rejects a second active company for the same owner
	// with ErrConflict.
	InsertCompany(ctx context.Context, c *Company) error
	SetCompanyBalance(ctx context.Context, id int64, balanceMicros int64) error
	ActiveCompanies(ctx context.Context) ([]Company, error)

	// LotsFIFO returns lots for one (company, symbol) ordered by purchase
	// time ascending, insertion order on ties.
	LotsFIFO(ctx context.Context, companyID int64, symbol string) ([]Lot, error)
	LotsByCompany(ctx context.Context, companyID int64) ([]Lot, error)
	InsertLot(ctx context.Context, l *Lot) error
	SetLotQuantity(ctx context.Context, id int64, quantity int64) error
	DeleteLot(ctx context.Context, id int64) error
	HeldQuantity(ctx context.Context, companyID int64, symbol string) (int64, error)
	HeldSymbols(ctx context.Context) ([]string, error)
	Holders(ctx context.Context, symbol string) ([]int64, error)

	InsertTransaction(ctx context.Context, t *Transaction) error

	Symbol(ctx context.Context, symbol string) (*Symbol, error)
	UpsertSymbol(ctx context.Context, s *Symbol) error

	LatestClose(ctx context.Context, symbol string) (*Close, error)
	CloseOn(ctx context.Context, symbol string, date time.Time) (*Close, error)
	InsertClose(ctx context.Context, c *Close) error

	InsertCompanyValue(ctx context.Context, v *CompanyValue) error
	CompanyValues(ctx context.Context, companyID int64, limit int) ([]CompanyValue, error)
	LatestCompanyValues(ctx context.Context) (map[int64]CompanyValue, error)

	// ClaimCorporateAction records that a market event is being applied.
	// It returns false when the (symbol, kind, date) event was already
	// claimed by a committed unit of work.
	ClaimCorporateAction(ctx context.Context, symbol string, kind CorporateActionKind, eventDate time.Time) (bool, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDate reports whether a and b carry the same calendar date. Each is
// read in its own location: a civil date is a civil date regardless of the
// zone it was materialized in.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
