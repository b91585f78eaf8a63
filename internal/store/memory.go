package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and local development. A unit
// of work stages mutations on a deep copy of the state and swaps it in on
// commit; the store-wide mutex is held for the duration of the unit of
// work, so transactions are serial. The Postgres store is the concurrent
// implementation.
type Memory struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	users        map[string]User
	companies    map[int64]Company
	lots         map[int64]Lot
	transactions []Transaction
	symbols      map[string]Symbol
	closes       []Close
	values       []CompanyValue
	actions      map[string]bool

	nextCompanyID int64
	nextLotID     int64
	nextTxnID     int64
}

func NewMemory() *Memory {
	return &Memory{
		state: memState{
			users:         make(map[string]User),
			companies:     make(map[int64]Company),
			lots:          make(map[int64]Lot),
			symbols:       make(map[string]Symbol),
			actions:       make(map[string]bool),
			nextCompanyID: 1,
			nextLotID:     1,
			nextTxnID:     1,
		},
	}
}

func (m *Memory) Begin(ctx context.Context) (UnitOfWork, error) {
	m.mu.Lock()
	return &memUnitOfWork{store: m, work: m.state.clone()}, nil
}

func (s memState) clone() memState {
	out := memState{
		users:         make(map[string]User, len(s.users)),
		companies:     make(map[int64]Company, len(s.companies)),
		lots:          make(map[int64]Lot, len(s.lots)),
		transactions:  append([]Transaction(nil), s.transactions...),
		symbols:       make(map[string]Symbol, len(s.symbols)),
		closes:        append([]Close(nil), s.closes...),
		values:        append([]CompanyValue(nil), s.values...),
		actions:       make(map[string]bool, len(s.actions)),
		nextCompanyID: s.nextCompanyID,
		nextLotID:     s.nextLotID,
		nextTxnID:     s.nextTxnID,
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.companies {
		out.companies[k] = v
	}
	for k, v := range s.lots {
		out.lots[k] = v
	}
	for k, v := range s.symbols {
		out.symbols[k] = v
	}
	for k, v := range s.actions {
		out.actions[k] = v
	}
	return out
}

type memUnitOfWork struct {
	store *Memory
	work  memState
	done  bool
}

func (u *memUnitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.store.state = u.work
	u.done = true
	u.store.mu.Unlock()
	return nil
}

func (u *memUnitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	u.store.mu.Unlock()
	return nil
}

func (u *memUnitOfWork) User(ctx context.Context, id string) (*User, error) {
	usr, ok := u.work.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &usr, nil
}

func (u *memUnitOfWork) InsertUser(ctx context.Context, usr *User) error {
	if _, ok := u.work.users[usr.ID]; ok {
		return nil
	}
	u.work.users[usr.ID] = *usr
	return nil
}

func (u *memUnitOfWork) CompanyForUpdate(ctx context.Context, id int64) (*Company, error) {
	c, ok := u.work.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (u *memUnitOfWork) ActiveCompanyByOwner(ctx context.Context, owner string) (*Company, error) {
	var found *Company
	for _, c := range u.work.companies {
		if c.Owner == owner && c.Active {
			if found == nil || c.ID < found.ID {
				cc := c
				found = &cc
			}
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (u *memUnitOfWork) InsertCompany(ctx context.Context, c *Company) error {
	if c.Active {
		for _, existing := range u.work.companies {
			if existing.Owner == c.Owner && existing.Active {
				return ErrConflict
			}
		}
	}
	c.ID = u.work.nextCompanyID
	u.work.nextCompanyID++
	u.work.companies[c.ID] = *c
	return nil
}

func (u *memUnitOfWork) SetCompanyBalance(ctx context.Context, id int64, balanceMicros int64) error {
	c, ok := u.work.companies[id]
	if !ok {
		return ErrNotFound
	}
	c.BalanceMicros = balanceMicros
	u.work.companies[id] = c
	return nil
}

func (u *memUnitOfWork) ActiveCompanies(ctx context.Context) ([]Company, error) {
	var out []Company
	for _, c := range u.work.companies {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (u *memUnitOfWork) LotsFIFO(ctx context.Context, companyID int64, symbol string) ([]Lot, error) {
	var out []Lot
	for _, l := range u.work.lots {
		if l.CompanyID == companyID && l.Symbol == symbol {
			out = append(out, l)
		}
	}
	sortLotsFIFO(out)
	return out, nil
}

func (u *memUnitOfWork) LotsByCompany(ctx context.Context, companyID int64) ([]Lot, error) {
	var out []Lot
	for _, l := range u.work.lots {
		if l.CompanyID == companyID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.Before(out[j].PurchasedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// sortLotsFIFO orders by purchase time ascending, insertion order on ties.
func sortLotsFIFO(lots []Lot) {
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].PurchasedAt.Equal(lots[j].PurchasedAt) {
			return lots[i].PurchasedAt.Before(lots[j].PurchasedAt)
		}
		return lots[i].ID < lots[j].ID
	})
}

func (u *memUnitOfWork) InsertLot(ctx context.Context, l *Lot) error {
	l.ID = u.work.nextLotID
	u.work.nextLotID++
	u.work.lots[l.ID] = *l
	return nil
}

func (u *memUnitOfWork) SetLotQuantity(ctx context.Context, id int64, quantity int64) error {
	l, ok := u.work.lots[id]
	if !ok {
		return ErrNotFound
	}
	l.Quantity = quantity
	u.work.lots[id] = l
	return nil
}

func (u *memUnitOfWork) DeleteLot(ctx context.Context, id int64) error {
	delete(u.work.lots, id)
	return nil
}

func (u *memUnitOfWork) HeldQuantity(ctx context.Context, companyID int64, symbol string) (int64, error) {
	var total int64
	for _, l := range u.work.lots {
		if l.CompanyID == companyID && l.Symbol == symbol {
			total += l.Quantity
		}
	}
	return total, nil
}

func (u *memUnitOfWork) HeldSymbols(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, l := range u.work.lots {
		seen[l.Symbol] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (u *memUnitOfWork) Holders(ctx context.Context, symbol string) ([]int64, error) {
	seen := make(map[int64]bool)
	for _, l := range u.work.lots {
		if l.Symbol == symbol {
			seen[l.CompanyID] = true
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (u *memUnitOfWork) InsertTransaction(ctx context.Context, t *Transaction) error {
	t.ID = u.work.nextTxnID
	u.work.nextTxnID++
	u.work.transactions = append(u.work.transactions, *t)
	return nil
}

// Transactions returns committed audit records, oldest first. Test helper,
// not part of the UnitOfWork contract.
func (m *Memory) Transactions() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transaction(nil), m.state.transactions...)
}

func (u *memUnitOfWork) Symbol(ctx context.Context, symbol string) (*Symbol, error) {
	s, ok := u.work.symbols[symbol]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (u *memUnitOfWork) UpsertSymbol(ctx context.Context, s *Symbol) error {
	u.work.symbols[s.Symbol] = *s
	return nil
}

func (u *memUnitOfWork) LatestClose(ctx context.Context, symbol string) (*Close, error) {
	var found *Close
	for i := range u.work.closes {
		c := u.work.closes[i]
		if c.Symbol != symbol {
			continue
		}
		if found == nil || c.Date.After(found.Date) {
			cc := c
			found = &cc
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (u *memUnitOfWork) CloseOn(ctx context.Context, symbol string, date time.Time) (*Close, error) {
	for i := range u.work.closes {
		c := u.work.closes[i]
		if c.Symbol == symbol && SameDate(c.Date, date) {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (u *memUnitOfWork) InsertClose(ctx context.Context, c *Close) error {
	day := DateOf(c.Date)
	for i := range u.work.closes {
		if u.work.closes[i].Symbol == c.Symbol && SameDate(u.work.closes[i].Date, day) {
			u.work.closes[i].CloseMicros = c.CloseMicros
			u.work.closes[i].Volume = c.Volume
			return nil
		}
	}
	u.work.closes = append(u.work.closes, Close{
		Symbol:      c.Symbol,
		Date:        day,
		CloseMicros: c.CloseMicros,
		Volume:      c.Volume,
	})
	return nil
}

func (u *memUnitOfWork) InsertCompanyValue(ctx context.Context, v *CompanyValue) error {
	day := DateOf(v.Date)
	for i := range u.work.values {
		if u.work.values[i].CompanyID == v.CompanyID && SameDate(u.work.values[i].Date, day) {
			u.work.values[i].ValueMicros = v.ValueMicros
			return nil
		}
	}
	u.work.values = append(u.work.values, CompanyValue{
		CompanyID:   v.CompanyID,
		Date:        day,
		ValueMicros: v.ValueMicros,
	})
	return nil
}

func (u *memUnitOfWork) CompanyValues(ctx context.Context, companyID int64, limit int) ([]CompanyValue, error) {
	var out []CompanyValue
	for _, v := range u.work.values {
		if v.CompanyID == companyID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (u *memUnitOfWork) LatestCompanyValues(ctx context.Context) (map[int64]CompanyValue, error) {
	out := make(map[int64]CompanyValue)
	for _, v := range u.work.values {
		cur, ok := out[v.CompanyID]
		if !ok || v.Date.After(cur.Date) {
			out[v.CompanyID] = v
		}
	}
	return out, nil
}

func (u *memUnitOfWork) ClaimCorporateAction(ctx context.Context, symbol string, kind CorporateActionKind, eventDate time.Time) (bool, error) {
	key := symbol + "|" + string(kind) + "|" + DateOf(eventDate).Format("2006-01-02")
	if u.work.actions[key] {
		return false, nil
	}
	u.work.actions[key] = true
	return true, nil
}
