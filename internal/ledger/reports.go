package ledger

import (
	"context"
	"errors"
	"sort"

	"github.com/mtaung/stonks/internal/store"
)

// Holding is one symbol's aggregated position.
type Holding struct {
	Symbol      string
	Quantity    int64
	ValueMicros int64
}

// DailyLine is one lot's standing against the latest close.
type DailyLine struct {
	Symbol              string
	Quantity            int64
	PurchasePriceMicros int64
	CloseMicros         int64
	GainMicros          int64
	GainPct             float64
}

// BalanceSummary is the company's cash and evaluated net worth with the
// period-over-period move between the last two evaluation samples.
type BalanceSummary struct {
	CompanyName    string
	BalanceMicros  int64
	NetWorthMicros int64
	DeltaMicros    int64
	DeltaPct       float64
}

// LeaderboardRow ranks companies by their latest evaluated net worth.
type LeaderboardRow struct {
	Rank           int64
	CompanyName    string
	Owner          string
	NetWorthMicros int64
}

// Portfolio aggregates a company's lots per symbol, valued at the latest
// recorded close. Falls back to a live quote for symbols with no sample
// yet, the way a fresh deployment starts.
func (s *Service) Portfolio(ctx context.Context, companyID int64) ([]Holding, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx)

	lots, err := uow.LotsByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	quantities := make(map[string]int64)
	for _, l := range lots {
		quantities[l.Symbol] += l.Quantity
	}
	closes := make(map[string]int64, len(quantities))
	for symbol := range quantities {
		row, err := uow.LatestClose(ctx, symbol)
		if err == nil {
			closes[symbol] = row.CloseMicros
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		quote, qerr := s.market.Quote(ctx, symbol)
		if qerr != nil {
			return nil, errors.Join(ErrMissingClose, qerr)
		}
		closes[symbol] = quote.CloseMicros
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}

	out := make([]Holding, 0, len(quantities))
	for symbol, qty := range quantities {
		value, err := NotionalMicros(closes[symbol], qty)
		if err != nil {
			return nil, err
		}
		out = append(out, Holding{Symbol: symbol, Quantity: qty, ValueMicros: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// DailyReport lists every lot against the latest close, oldest lots first
// within a symbol.
func (s *Service) DailyReport(ctx context.Context, companyID int64) ([]DailyLine, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx)

	lots, err := uow.LotsByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	closes := make(map[string]int64)
	var out []DailyLine
	for _, l := range lots {
		closeMicros, ok := closes[l.Symbol]
		if !ok {
			row, err := uow.LatestClose(ctx, l.Symbol)
			if errors.Is(err, store.ErrNotFound) {
				return nil, errors.Join(ErrMissingClose, errors.New(l.Symbol))
			}
			if err != nil {
				return nil, err
			}
			closeMicros = row.CloseMicros
			closes[l.Symbol] = closeMicros
		}
		cost, err := NotionalMicros(l.PriceMicros, l.Quantity)
		if err != nil {
			return nil, err
		}
		current, err := NotionalMicros(closeMicros, l.Quantity)
		if err != nil {
			return nil, err
		}
		line := DailyLine{
			Symbol:              l.Symbol,
			Quantity:            l.Quantity,
			PurchasePriceMicros: l.PriceMicros,
			CloseMicros:         closeMicros,
			GainMicros:          current - cost,
		}
		if cost != 0 {
			line.GainPct = float64(current-cost) / float64(cost) * 100
		}
		out = append(out, line)
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// BalanceReport summarizes cash and the move between the last two
// evaluation samples.
func (s *Service) BalanceReport(ctx context.Context, companyID int64) (BalanceSummary, error) {
	var out BalanceSummary
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return out, err
	}
	defer uow.Rollback(ctx)

	company, err := uow.CompanyForUpdate(ctx, companyID)
	if err != nil {
		return out, err
	}
	values, err := uow.CompanyValues(ctx, companyID, 2)
	if err != nil {
		return out, err
	}
	if err := uow.Commit(ctx); err != nil {
		return out, err
	}

	out.CompanyName = company.Name
	out.BalanceMicros = company.BalanceMicros
	if len(values) > 0 {
		out.NetWorthMicros = values[0].ValueMicros
	}
	if len(values) == 2 && values[1].ValueMicros != 0 {
		out.DeltaMicros = values[0].ValueMicros - values[1].ValueMicros
		out.DeltaPct = float64(out.DeltaMicros) / float64(values[1].ValueMicros) * 100
	}
	return out, nil
}

// Leaderboard ranks active companies by latest evaluated net worth.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback(ctx)

	companies, err := uow.ActiveCompanies(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := uow.LatestCompanyValues(ctx)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}

	out := make([]LeaderboardRow, 0, len(companies))
	for _, c := range companies {
		row := LeaderboardRow{CompanyName: c.Name, Owner: c.Owner}
		if v, ok := latest[c.ID]; ok {
			row.NetWorthMicros = v.ValueMicros
		} else {
			row.NetWorthMicros = c.BalanceMicros
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NetWorthMicros > out[j].NetWorthMicros })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = int64(i + 1)
	}
	return out, nil
}
