// Package ledger owns the accounting rules of the trading game: lot-based
// inventory, FIFO sells, corporate-action adjustment, and net-worth
// evaluation. Every operation runs inside one unit of work against the
// store; nothing is ever partially committed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mtaung/stonks/internal/marketclock"
	"github.com/mtaung/stonks/internal/marketdata"
	"github.com/mtaung/stonks/internal/store"
)

const defaultLookbackWindow = "1m"

type Service struct {
	store    store.Store
	market   marketdata.Provider
	clock    *marketclock.Clock
	log      *slog.Logger
	lookback string
}

func NewService(st store.Store, market marketdata.Provider, clock *marketclock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		market:   market,
		clock:    clock,
		log:      logger,
		lookback: defaultLookbackWindow,
	}
}

// SetLookback overrides the event window sent to the market data feed,
// e.g. "1m" or "3m".
func (s *Service) SetLookback(window string) {
	if strings.TrimSpace(window) != "" {
		s.lookback = window
	}
}

// EnsureUser creates the user row on first contact. Returns true when the
// user was newly registered.
func (s *Service) EnsureUser(ctx context.Context, userID string) (bool, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer uow.Rollback(ctx)

	if _, err := uow.User(ctx, userID); err == nil {
		return false, uow.Commit(ctx)
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err := uow.InsertUser(ctx, &store.User{ID: userID}); err != nil {
		return false, err
	}
	return true, uow.Commit(ctx)
}

// RegisterCompany opens a company for a user. A user holds at most one
// active company at a time.
func (s *Service) RegisterCompany(ctx context.Context, userID, name string) (*store.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("company name is required")
	}
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx)

	if _, err := uow.User(ctx, userID); errors.Is(err, store.ErrNotFound) {
		if err := uow.InsertUser(ctx, &store.User{ID: userID}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if existing, err := uow.ActiveCompanyByOwner(ctx, userID); err == nil {
		return existing, ErrCompanyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	company := &store.Company{
		Owner:         userID,
		Name:          name,
		BalanceMicros: StartingBalanceMicros,
		Active:        true,
	}
	// The read above can miss a registration committed concurrently; the
	// unique partial index on (owner) WHERE active backstops it.
	if err := uow.InsertCompany(ctx, company); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrCompanyExists
		}
		return nil, err
	}
	// Seed yesterday's net worth so the first balance report has a
	// baseline to diff against.
	seed := &store.CompanyValue{
		CompanyID:   company.ID,
		Date:        s.clock.Today().AddDate(0, 0, -1),
		ValueMicros: StartingBalanceMicros,
	}
	if err := uow.InsertCompanyValue(ctx, seed); err != nil {
		return nil, err
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.Info("company registered", "owner", userID, "company_id", company.ID, "name", name)
	return company, nil
}

// ActiveCompany returns the caller's active company.
func (s *Service) ActiveCompany(ctx context.Context, userID string) (*store.Company, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx)

	company, err := uow.ActiveCompanyByOwner(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoActiveCompany
	}
	if err != nil {
		return nil, err
	}
	return company, uow.Commit(ctx)
}

// SymbolKnown reports whether the symbol exists in the reference directory.
func (s *Service) SymbolKnown(ctx context.Context, symbol string) (bool, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer uow.Rollback(ctx)

	_, err = uow.Symbol(ctx, symbol)
	if errors.Is(err, store.ErrNotFound) {
		return false, uow.Commit(ctx)
	}
	if err != nil {
		return false, err
	}
	return true, uow.Commit(ctx)
}

// TradeResult reports the money moved by a buy or sell.
type TradeResult struct {
	NotionalMicros int64
	BalanceMicros  int64
}

// Buy opens a new lot at the given price. Balance may go negative: the
// front end owns affordability policy, the ledger only accounts.
func (s *Service) Buy(ctx context.Context, companyID int64, symbol string, quantity, priceMicros int64) (TradeResult, error) {
	var out TradeResult
	if quantity <= 0 || priceMicros <= 0 {
		return out, ErrInvalidQuantity
	}
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return out, err
	}
	defer uow.Rollback(ctx)

	company, err := uow.CompanyForUpdate(ctx, companyID)
	if err != nil {
		return out, err
	}
	batchID := uuid.NewString()
	balance, notional, err := s.buyInUnit(ctx, uow, batchID, company, symbol, quantity, priceMicros)
	if err != nil {
		return out, err
	}
	if err := uow.Commit(ctx); err != nil {
		return out, err
	}
	out.NotionalMicros = notional
	out.BalanceMicros = balance
	return out, nil
}

// Sell closes position FIFO, oldest purchase first. The recorded
// transaction volume is the requested quantity, which the inventory check
// guarantees equals the depleted quantity.
func (s *Service) Sell(ctx context.Context, companyID int64, symbol string, quantity, priceMicros int64) (TradeResult, error) {
	var out TradeResult
	if quantity <= 0 || priceMicros <= 0 {
		return out, ErrInvalidQuantity
	}
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return out, err
	}
	defer uow.Rollback(ctx)

	company, err := uow.CompanyForUpdate(ctx, companyID)
	if err != nil {
		return out, err
	}
	batchID := uuid.NewString()
	balance, notional, err := s.sellInUnit(ctx, uow, batchID, company, symbol, quantity, priceMicros)
	if err != nil {
		return out, err
	}
	if err := uow.Commit(ctx); err != nil {
		return out, err
	}
	out.NotionalMicros = notional
	out.BalanceMicros = balance
	return out, nil
}

// buyInUnit records a buy inside an open unit of work: new lot, balance
// debit, buy transaction. company.BalanceMicros is updated in place so
// callers chaining several legs see the running balance.
func (s *Service) buyInUnit(ctx context.Context, uow store.UnitOfWork, batchID string, company *store.Company, symbol string, quantity, priceMicros int64) (int64, int64, error) {
	notional, err := NotionalMicros(priceMicros, quantity)
	if err != nil {
		return 0, 0, err
	}
	now := s.clock.Now()
	lot := &store.Lot{
		CompanyID:   company.ID,
		Symbol:      symbol,
		Quantity:    quantity,
		PriceMicros: priceMicros,
		PurchasedAt: now,
	}
	if err := uow.InsertLot(ctx, lot); err != nil {
		return 0, 0, err
	}
	company.BalanceMicros -= notional
	if err := uow.SetCompanyBalance(ctx, company.ID, company.BalanceMicros); err != nil {
		return 0, 0, err
	}
	txn := &store.Transaction{
		CompanyID:   company.ID,
		Symbol:      symbol,
		Type:        store.TransactionBuy,
		Volume:      quantity,
		PriceMicros: priceMicros,
		BatchID:     batchID,
		At:          now,
	}
	if err := uow.InsertTransaction(ctx, txn); err != nil {
		return 0, 0, err
	}
	return company.BalanceMicros, notional, nil
}

// sellInUnit records a FIFO sell inside an open unit of work.
func (s *Service) sellInUnit(ctx context.Context, uow store.UnitOfWork, batchID string, company *store.Company, symbol string, quantity, priceMicros int64) (int64, int64, error) {
	lots, err := uow.LotsFIFO(ctx, company.ID, symbol)
	if err != nil {
		return 0, 0, err
	}
	var held int64
	for _, l := range lots {
		held += l.Quantity
	}
	if held < quantity {
		return 0, 0, fmt.Errorf("%w: have %d, want %d %s", ErrInsufficientShares, held, quantity, symbol)
	}

	remaining := quantity
	for _, l := range lots {
		if remaining == 0 {
			break
		}
		take := remaining
		if l.Quantity < take {
			take = l.Quantity
		}
		left := l.Quantity - take
		remaining -= take
		if left == 0 {
			if err := uow.DeleteLot(ctx, l.ID); err != nil {
				return 0, 0, err
			}
			continue
		}
		if err := uow.SetLotQuantity(ctx, l.ID, left); err != nil {
			return 0, 0, err
		}
	}

	notional, err := NotionalMicros(priceMicros, quantity)
	if err != nil {
		return 0, 0, err
	}
	company.BalanceMicros += notional
	if err := uow.SetCompanyBalance(ctx, company.ID, company.BalanceMicros); err != nil {
		return 0, 0, err
	}
	txn := &store.Transaction{
		CompanyID:   company.ID,
		Symbol:      symbol,
		Type:        store.TransactionSell,
		Volume:      quantity,
		PriceMicros: priceMicros,
		BatchID:     batchID,
		At:          s.clock.Now(),
	}
	if err := uow.InsertTransaction(ctx, txn); err != nil {
		return 0, 0, err
	}
	return company.BalanceMicros, notional, nil
}
