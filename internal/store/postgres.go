package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on a pgx pool. Per-company serialization comes
// from SELECT ... FOR UPDATE on the company row; units of work touching
// different companies proceed in parallel.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	return &pgUnitOfWork{tx: tx}, nil
}

type pgUnitOfWork struct {
	tx   pgx.Tx
	done bool
}

func (u *pgUnitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	u.done = true
	return nil
}

func (u *pgUnitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (u *pgUnitOfWork) User(ctx context.Context, id string) (*User, error) {
	var out User
	err := u.tx.QueryRow(ctx, `
		SELECT id, credit_score
		FROM stonks.users
		WHERE id = $1
	`, id).Scan(&out.ID, &out.CreditScore)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *pgUnitOfWork) InsertUser(ctx context.Context, usr *User) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO stonks.users (id, credit_score)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, usr.ID, usr.CreditScore)
	return err
}

func (u *pgUnitOfWork) CompanyForUpdate(ctx context.Context, id int64) (*Company, error) {
	var out Company
	err := u.tx.QueryRow(ctx, `
		SELECT id, owner, name, balance_micros, active
		FROM stonks.companies
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&out.ID, &out.Owner, &out.Name, &out.BalanceMicros, &out.Active)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *pgUnitOfWork) ActiveCompanyByOwner(ctx context.Context, owner string) (*Company, error) {
	var out Company
	err := u.tx.QueryRow(ctx, `
		SELECT id, owner, name, balance_micros, active
		FROM stonks.companies
		WHERE owner = $1 AND active = true
		ORDER BY id
		LIMIT 1
	`, owner).Scan(&out.ID, &out.Owner, &out.Name, &out.BalanceMicros, &out.Active)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *pgUnitOfWork) InsertCompany(ctx context.Context, c *Company) error {
	err := u.tx.QueryRow(ctx, `
		INSERT INTO stonks.companies (owner, name, balance_micros, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.Owner, c.Name, c.BalanceMicros, c.Active).Scan(&c.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return ErrConflict
	}
	return err
}

func (u *pgUnitOfWork) SetCompanyBalance(ctx context.Context, id int64, balanceMicros int64) error {
	cmd, err := u.tx.Exec(ctx, `
		UPDATE stonks.companies
		SET balance_micros = $1, updated_at = now()
		WHERE id = $2
	`, balanceMicros, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (u *pgUnitOfWork) ActiveCompanies(ctx context.Context) ([]Company, error) {
	rows, err := u.tx.Query(ctx, `
		SELECT id, owner, name, balance_micros, active
		FROM stonks.companies
		WHERE active = true
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Owner, &c.Name, &c.BalanceMicros, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (u *pgUnitOfWork) LotsFIFO(ctx context.Context, companyID int64, symbol string) ([]Lot, error) {
	rows, err := u.tx.Query(ctx, `
		SELECT id, company_id, symbol, quantity, price_micros, purchased_at
		FROM stonks.held_stocks
		WHERE company_id = $1 AND symbol = $2
		ORDER BY purchased_at ASC, id ASC
	`, companyID, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

func (u *pgUnitOfWork) LotsByCompany(ctx context.Context, companyID int64) ([]Lot, error) {
	rows, err := u.tx.Query(ctx, `
		SELECT id, company_id, symbol, quantity, price_micros, purchased_at
		FROM stonks.held_stocks
		WHERE company_id = $1
		ORDER BY symbol ASC, purchased_at ASC, id ASC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

func scanLots(rows pgx.Rows) ([]Lot, error) {
	var out []Lot
	for rows.Next() {
		var l Lot
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.Symbol, &l.Quantity, &l.PriceMicros, &l.PurchasedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (u *pgUnitOfWork) InsertLot(ctx context.Context, l *Lot) error {
	return u.tx.QueryRow(ctx, `
		INSERT INTO stonks.held_stocks (company_id, symbol, quantity, price_micros, purchased_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, l.CompanyID, l.Symbol, l.Quantity, l.PriceMicros, l.PurchasedAt).Scan(&l.ID)
}

func (u *pgUnitOfWork) SetLotQuantity(ctx context.Context, id int64, quantity int64) error {
	cmd, err := u.tx.Exec(ctx, `
		UPDATE stonks.held_stocks
		SET quantity = $1
		WHERE id = $2
	`, quantity, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (u *pgUnitOfWork) DeleteLot(ctx context.Context, id int64) error {
	_, err := u.tx.Exec(ctx, `DELETE FROM stonks.held_stocks WHERE id = $1`, id)
	return err
}

func (u *pgUnitOfWork) HeldQuantity(ctx context.Context, companyID int64, symbol string) (int64, error) {
	var total int64
	err := u.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM stonks.held_stocks
		WHERE company_id = $1 AND symbol = $2
	`, companyID, symbol).Scan(&total)
	return total, err
}

func (u *pgUnitOfWork) HeldSymbols(ctx context.Context) ([]string, error) {
	rows, err := u.tx.Query(ctx, `
		SELECT DISTINCT symbol
		FROM stonks.held_stocks
		ORDER BY symbol
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (u *pgUnitOfWork) Holders(ctx context.Context, symbol string) ([]int64, error) {
	rows, err := u.tx.Query(ctx, `
		SELECT DISTINCT company_id
		FROM stonks.held_stocks
		WHERE symbol = $1
		ORDER BY company_id
	`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (u *pgUnitOfWork) InsertTransaction(ctx context.Context, t *Transaction) error {
	return u.tx.QueryRow(ctx, `
		INSERT INTO stonks.transactions (company_id, symbol, type, volume, price_micros, batch_id, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, t.CompanyID, t.Symbol, string(t.Type), t.Volume, t.PriceMicros, t.BatchID, t.At).Scan(&t.ID)
}

func (u *pgUnitOfWork) Symbol(ctx context.Context, symbol string) (*Symbol, error) {
	var out Symbol
	err := u.tx.QueryRow(ctx, `
		SELECT symbol, name, type
		FROM stonks.symbols
		WHERE symbol = $1
	`, symbol).Scan(&out.Symbol, &out.Name, &out.Type)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *pgUnitOfWork) UpsertSymbol(ctx context.Context, s *Symbol) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO stonks.symbols (symbol, name, type)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET name = $2, type = $3
	`, s.Symbol, s.Name, s.Type)
	return err
}

func (u *pgUnitOfWork) LatestClose(ctx context.Context, symbol string) (*Close, error) {
	var out Close
	err := u.tx.QueryRow(ctx, `
		SELECT symbol, date, close_micros, volume
		FROM stonks.close_history
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT 1
	`, symbol).Scan(&out.Symbol, &out.Date, &out.CloseMicros, &out.Volume)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *pgUnitOfWork) CloseOn(ctx context.Context, symbol string, date time.Time) (*Close, error) {
	var out Close
	err := u.tx.QueryRow(ctx, `
		SELECT symbol, date, close_micros, volume
		FROM stonks.close_history
		WHERE symbol = $1 AND date = $2
	`, symbol, DateOf(date)).Scan(&out.Symbol, &out.Date, &out.CloseMicros, &out.Volume)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *pgUnitOfWork) InsertClose(ctx context.Context, c *Close) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO stonks.close_history (symbol, date, close_micros, volume)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, date) DO UPDATE SET close_micros = $3, volume = $4
	`, c.Symbol, DateOf(c.Date), c.CloseMicros, c.Volume)
	return err
}

func (u *pgUnitOfWork) InsertCompanyValue(ctx context.Context, v *CompanyValue) error {
	_, err := u.tx.Exec(ctx, `
		INSERT INTO stonks.company_history (company_id, date, value_micros)
		VALUES ($1, $2, $3)
		ON CONFLICT (company_id, date) DO UPDATE SET value_micros = $3
	`, v.CompanyID, DateOf(v.Date), v.ValueMicros)
	return err
}

func (u *pgUnitOfWork) CompanyValues(ctx context.Context, companyID int64, limit int) ([]CompanyValue, error) {
	rows, err := u.tx.Query(ctx, `
		SELECT company_id, date, value_micros
		FROM stonks.company_history
		WHERE company_id = $1
		ORDER BY date DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CompanyValue
	for rows.Next() {
		var v CompanyValue
		if err := rows.Scan(&v.CompanyID, &v.Date, &v.ValueMicros); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (u *pgUnitOfWork) LatestCompanyValues(ctx context.Context) (map[int64]CompanyValue, error) {
	rows, err := u.tx.Query(ctx, `
		SELECT DISTINCT ON (company_id) company_id, date, value_micros
		FROM stonks.company_history
		ORDER BY company_id, date DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]CompanyValue)
	for rows.Next() {
		var v CompanyValue
		if err := rows.Scan(&v.CompanyID, &v.Date, &v.ValueMicros); err != nil {
			return nil, err
		}
		out[v.CompanyID] = v
	}
	return out, rows.Err()
}

func (u *pgUnitOfWork) ClaimCorporateAction(ctx context.Context, symbol string, kind CorporateActionKind, eventDate time.Time) (bool, error) {
	cmd, err := u.tx.Exec(ctx, `
		INSERT INTO stonks.corporate_actions (symbol, kind, event_date, applied_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (symbol, kind, event_date) DO NOTHING
	`, symbol, string(kind), DateOf(eventDate))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
