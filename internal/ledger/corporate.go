package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mtaung/stonks/internal/marketdata"
	"github.com/mtaung/stonks/internal/store"
)

// ApplySplit adjusts every holder of symbol for a fromFactor:toFactor
// split: the whole position is liquidated at the last known close, then
// floor(qty*to/from) shares are rebought at close*from/to. The floor
// remainder stays with the company as cash. Applied at most once per
// (symbol, eventDate).
func (s *Service) ApplySplit(ctx context.Context, symbol string, fromFactor, toFactor int64, eventDate time.Time) error {
	if fromFactor <= 0 || toFactor <= 0 {
		return fmt.Errorf("%w: split factors %d:%d", ErrInvalidQuantity, fromFactor, toFactor)
	}
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx)

	claimed, err := uow.ClaimCorporateAction(ctx, symbol, store.CorporateSplit, eventDate)
	if err != nil {
		return err
	}
	if !claimed {
		s.log.Info("split already applied", "symbol", symbol, "event_date", store.DateOf(eventDate))
		return uow.Commit(ctx)
	}

	closeRow, err := uow.LatestClose(ctx, symbol)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w for %s", ErrMissingClose, symbol)
	}
	if err != nil {
		return err
	}
	sellPrice := closeRow.CloseMicros
	rebuyPrice := splitPrice(sellPrice, fromFactor, toFactor)

	holders, err := uow.Holders(ctx, symbol)
	if err != nil {
		return err
	}
	batchID := uuid.NewString()
	for _, companyID := range holders {
		company, err := uow.CompanyForUpdate(ctx, companyID)
		if err != nil {
			return err
		}
		held, err := uow.HeldQuantity(ctx, companyID, symbol)
		if err != nil {
			return err
		}
		if held == 0 {
			continue
		}
		if _, _, err := s.sellInUnit(ctx, uow, batchID, company, symbol, held, sellPrice); err != nil {
			return err
		}
		newQuantity := splitQuantity(held, fromFactor, toFactor)
		if newQuantity > 0 {
			if _, _, err := s.buyInUnit(ctx, uow, batchID, company, symbol, newQuantity, rebuyPrice); err != nil {
				return err
			}
		}
		s.log.Info("split applied", "symbol", symbol, "company_id", companyID,
			"from_qty", held, "to_qty", newQuantity, "factors", fmt.Sprintf("%d:%d", fromFactor, toFactor))
	}
	return uow.Commit(ctx)
}

// ApplyDividend credits amountPerShare for every share whose lot was
// purchased strictly before the ex-date cutoff. A lot bought on the cutoff
// date does not qualify. Applied at most once per (symbol, paymentDate).
func (s *Service) ApplyDividend(ctx context.Context, symbol string, amountPerShareMicros int64, cutoff, paymentDate time.Time) error {
	if amountPerShareMicros <= 0 {
		return fmt.Errorf("%w: dividend amount %d", ErrInvalidQuantity, amountPerShareMicros)
	}
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx)

	claimed, err := uow.ClaimCorporateAction(ctx, symbol, store.CorporateDividend, paymentDate)
	if err != nil {
		return err
	}
	if !claimed {
		s.log.Info("dividend already applied", "symbol", symbol, "payment_date", store.DateOf(paymentDate))
		return uow.Commit(ctx)
	}

	holders, err := uow.Holders(ctx, symbol)
	if err != nil {
		return err
	}
	batchID := uuid.NewString()
	cutoffDate := store.DateOf(cutoff)
	for _, companyID := range holders {
		company, err := uow.CompanyForUpdate(ctx, companyID)
		if err != nil {
			return err
		}
		lots, err := uow.LotsFIFO(ctx, companyID, symbol)
		if err != nil {
			return err
		}
		var eligible int64
		for _, l := range lots {
			if purchasedBefore(l.PurchasedAt, cutoffDate) {
				eligible += l.Quantity
			}
		}
		if eligible == 0 {
			continue
		}
		value, err := NotionalMicros(amountPerShareMicros, eligible)
		if err != nil {
			return err
		}
		company.BalanceMicros += value
		if err := uow.SetCompanyBalance(ctx, companyID, company.BalanceMicros); err != nil {
			return err
		}
		txn := &store.Transaction{
			CompanyID:   companyID,
			Symbol:      symbol,
			Type:        store.TransactionDividend,
			Volume:      eligible,
			PriceMicros: amountPerShareMicros,
			BatchID:     batchID,
			At:          s.clock.Now(),
		}
		if err := uow.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		s.log.Info("dividend credited", "symbol", symbol, "company_id", companyID,
			"eligible_qty", eligible, "amount_micros", amountPerShareMicros)
	}
	return uow.Commit(ctx)
}

// purchasedBefore reports whether the purchase falls on a calendar date
// strictly earlier than cutoffDate. Same-date purchases do not qualify.
func purchasedBefore(purchasedAt, cutoffDate time.Time) bool {
	p := store.DateOf(purchasedAt)
	if store.SameDate(p, cutoffDate) {
		return false
	}
	py, pm, pd := p.Date()
	cy, cm, cd := cutoffDate.Date()
	if py != cy {
		return py < cy
	}
	if pm != cm {
		return pm < cm
	}
	return pd < cd
}

// ProcessSplits finds splits whose ex-date is the current session date
// across all held symbols and applies each once. A failing symbol is
// skipped for this cycle; the next scheduled firing is the retry.
func (s *Service) ProcessSplits(ctx context.Context) error {
	symbols, err := s.heldSymbols(ctx)
	if err != nil {
		return err
	}
	today := s.clock.Today()
	pending := make(map[string]marketdata.Split)
	for _, symbol := range symbols {
		events, err := s.market.Splits(ctx, symbol, s.lookback)
		if err != nil {
			s.log.Warn("split feed unavailable, skipping symbol this cycle", "symbol", symbol, "err", err)
			continue
		}
		for _, ev := range events {
			if store.SameDate(ev.ExDate, today) {
				pending[symbol] = ev
			}
		}
	}
	for symbol, ev := range pending {
		if err := s.ApplySplit(ctx, symbol, ev.FromFactor, ev.ToFactor, ev.ExDate); err != nil {
			s.log.Error("split application failed", "symbol", symbol, "err", err)
		}
	}
	return nil
}

// ProcessDividends finds dividends whose payment date is the current
// session date across all held symbols and applies each once.
func (s *Service) ProcessDividends(ctx context.Context) error {
	symbols, err := s.heldSymbols(ctx)
	if err != nil {
		return err
	}
	today := s.clock.Today()
	pending := make(map[string]marketdata.Dividend)
	for _, symbol := range symbols {
		events, err := s.market.Dividends(ctx, symbol, s.lookback)
		if err != nil {
			s.log.Warn("dividend feed unavailable, skipping symbol this cycle", "symbol", symbol, "err", err)
			continue
		}
		for _, ev := range events {
			if store.SameDate(ev.PaymentDate, today) {
				pending[symbol] = ev
			}
		}
	}
	for symbol, ev := range pending {
		if err := s.ApplyDividend(ctx, symbol, ev.AmountMicros, ev.ExDate, ev.PaymentDate); err != nil {
			s.log.Error("dividend application failed", "symbol", symbol, "err", err)
		}
	}
	return nil
}

// RecordCloses samples today's close for every held symbol, one unit of
// work per symbol so a bad feed only loses that symbol's sample.
func (s *Service) RecordCloses(ctx context.Context) error {
	symbols, err := s.heldSymbols(ctx)
	if err != nil {
		return err
	}
	today := s.clock.Today()
	for _, symbol := range symbols {
		quote, err := s.market.Quote(ctx, symbol)
		if err != nil {
			s.log.Warn("quote unavailable, close not recorded this cycle", "symbol", symbol, "err", err)
			continue
		}
		if err := s.recordClose(ctx, symbol, today, quote); err != nil {
			s.log.Error("close sample write failed", "symbol", symbol, "err", err)
		}
	}
	return nil
}

func (s *Service) recordClose(ctx context.Context, symbol string, date time.Time, quote marketdata.Quote) error {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx)
	row := &store.Close{
		Symbol:      symbol,
		Date:        date,
		CloseMicros: quote.CloseMicros,
		Volume:      quote.Volume,
	}
	if err := uow.InsertClose(ctx, row); err != nil {
		return err
	}
	return uow.Commit(ctx)
}

// EvaluateNetWorth computes and records balance + Σ qty*close(asOf) for one
// company. A symbol without a close sample for asOf is a reportable error,
// not a silent zero.
func (s *Service) EvaluateNetWorth(ctx context.Context, companyID int64, asOf time.Time) (int64, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer uow.Rollback(ctx)

	company, err := uow.CompanyForUpdate(ctx, companyID)
	if err != nil {
		return 0, err
	}
	lots, err := uow.LotsByCompany(ctx, companyID)
	if err != nil {
		return 0, err
	}
	value := company.BalanceMicros
	closes := make(map[string]int64)
	for _, l := range lots {
		closeMicros, ok := closes[l.Symbol]
		if !ok {
			row, err := uow.CloseOn(ctx, l.Symbol, asOf)
			if errors.Is(err, store.ErrNotFound) {
				return 0, fmt.Errorf("%w for %s on %s", ErrMissingClose, l.Symbol, store.DateOf(asOf).Format("2006-01-02"))
			}
			if err != nil {
				return 0, err
			}
			closeMicros = row.CloseMicros
			closes[l.Symbol] = closeMicros
		}
		holding, err := NotionalMicros(closeMicros, l.Quantity)
		if err != nil {
			return 0, err
		}
		value += holding
	}
	sample := &store.CompanyValue{CompanyID: companyID, Date: asOf, ValueMicros: value}
	if err := uow.InsertCompanyValue(ctx, sample); err != nil {
		return 0, err
	}
	if err := uow.Commit(ctx); err != nil {
		return 0, err
	}
	return value, nil
}

// EvaluateAll runs the net-worth evaluation for every active company. A
// company missing a price sample is skipped and logged; the rest continue.
func (s *Service) EvaluateAll(ctx context.Context) error {
	companies, err := s.activeCompanies(ctx)
	if err != nil {
		return err
	}

	asOf := s.clock.Today()
	for _, company := range companies {
		if _, err := s.EvaluateNetWorth(ctx, company.ID, asOf); err != nil {
			if errors.Is(err, ErrMissingClose) {
				s.log.Warn("evaluation skipped", "company_id", company.ID, "err", err)
				continue
			}
			s.log.Error("evaluation failed", "company_id", company.ID, "err", err)
		}
	}
	return nil
}

// RefreshSymbols replaces the symbol directory wholesale from the feed.
func (s *Service) RefreshSymbols(ctx context.Context) error {
	infos, err := s.market.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("%w: symbol directory: %v", ErrMarketData, err)
	}
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx)
	for _, info := range infos {
		sym := &store.Symbol{Symbol: info.Symbol, Name: info.Name, Type: info.Type}
		if err := uow.UpsertSymbol(ctx, sym); err != nil {
			return err
		}
	}
	if err := uow.Commit(ctx); err != nil {
		return err
	}
	s.log.Info("symbol directory refreshed", "count", len(infos))
	return nil
}

func (s *Service) activeCompanies(ctx context.Context) ([]store.Company, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx)
	companies, err := uow.ActiveCompanies(ctx)
	if err != nil {
		return nil, err
	}
	return companies, uow.Commit(ctx)
}

func (s *Service) heldSymbols(ctx context.Context) ([]string, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx)
	symbols, err := uow.HeldSymbols(ctx)
	if err != nil {
		return nil, err
	}
	return symbols, uow.Commit(ctx)
}
