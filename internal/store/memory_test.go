package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func begin(t *testing.T, m *Memory) UnitOfWork {
	t.Helper()
	uow, err := m.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return uow
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	uow := begin(t, m)
	if err := uow.InsertUser(ctx, &User{ID: "u1"}); err != nil {
		t.Fatal(err)
	}
	c := &Company{Owner: "u1", Name: "Acme", BalanceMicros: 100, Active: true}
	if err := uow.InsertCompany(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := uow.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	uow = begin(t, m)
	defer uow.Rollback(ctx)
	if _, err := uow.User(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rolled-back user visible: %v", err)
	}
	if _, err := uow.ActiveCompanyByOwner(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rolled-back company visible: %v", err)
	}
}

func TestInsertCompanyEnforcesSingleActive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	uow := begin(t, m)
	if err := uow.InsertUser(ctx, &User{ID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := uow.InsertCompany(ctx, &Company{Owner: "u1", Name: "Acme", Active: true}); err != nil {
		t.Fatal(err)
	}
	if err := uow.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	// A second active company for the same owner is rejected by the store
	// itself, regardless of what any caller-side check observed.
	uow = begin(t, m)
	err := uow.InsertCompany(ctx, &Company{Owner: "u1", Name: "Acme II", Active: true})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second active insert: got %v, want ErrConflict", err)
	}
	uow.Rollback(ctx)

	// An inactive company and a different owner are both fine.
	uow = begin(t, m)
	if err := uow.InsertCompany(ctx, &Company{Owner: "u1", Name: "Defunct", Active: false}); err != nil {
		t.Fatalf("inactive insert: %v", err)
	}
	if err := uow.InsertCompany(ctx, &Company{Owner: "u2", Name: "Rival", Active: true}); err != nil {
		t.Fatalf("other owner insert: %v", err)
	}
	if err := uow.Commit(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestCommitPublishesWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	uow := begin(t, m)
	if err := uow.InsertUser(ctx, &User{ID: "u1"}); err != nil {
		t.Fatal(err)
	}
	c := &Company{Owner: "u1", Name: "Acme", BalanceMicros: 100, Active: true}
	if err := uow.InsertCompany(ctx, c); err != nil {
		t.Fatal(err)
	}
	if c.ID == 0 {
		t.Fatal("InsertCompany did not assign an id")
	}
	if err := uow.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	// Rollback after Commit must be a no-op.
	if err := uow.Rollback(ctx); err != nil {
		t.Fatalf("Rollback after Commit: %v", err)
	}

	uow = begin(t, m)
	defer uow.Rollback(ctx)
	got, err := uow.CompanyForUpdate(ctx, c.ID)
	if err != nil {
		t.Fatalf("CompanyForUpdate: %v", err)
	}
	if got.Name != "Acme" || got.BalanceMicros != 100 {
		t.Fatalf("unexpected company %+v", got)
	}
}

func TestLotsFIFOOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2021, 3, 10, 10, 0, 0, 0, time.UTC)

	uow := begin(t, m)
	c := &Company{Owner: "u1", Name: "Acme", Active: true}
	if err := uow.InsertCompany(ctx, c); err != nil {
		t.Fatal(err)
	}
	// Inserted newest-first to prove ordering is by purchase time, with two
	// equal timestamps resolving by insertion order.
	lots := []Lot{
		{CompanyID: c.ID, Symbol: "ABC", Quantity: 3, PriceMicros: 30, PurchasedAt: base.Add(2 * time.Hour)},
		{CompanyID: c.ID, Symbol: "ABC", Quantity: 1, PriceMicros: 10, PurchasedAt: base},
		{CompanyID: c.ID, Symbol: "ABC", Quantity: 2, PriceMicros: 20, PurchasedAt: base},
		{CompanyID: c.ID, Symbol: "XYZ", Quantity: 9, PriceMicros: 99, PurchasedAt: base},
	}
	for i := range lots {
		if err := uow.InsertLot(ctx, &lots[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := uow.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	uow = begin(t, m)
	defer uow.Rollback(ctx)
	got, err := uow.LotsFIFO(ctx, c.ID, "ABC")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 ABC lots, got %d", len(got))
	}
	wantPrices := []int64{10, 20, 30}
	for i, l := range got {
		if l.PriceMicros != wantPrices[i] {
			t.Fatalf("lot %d price = %d, want %d (order %+v)", i, l.PriceMicros, wantPrices[i], got)
		}
	}

	held, err := uow.HeldQuantity(ctx, c.ID, "ABC")
	if err != nil {
		t.Fatal(err)
	}
	if held != 6 {
		t.Fatalf("HeldQuantity = %d, want 6", held)
	}
}

func TestClaimCorporateActionOncePerEvent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	date := time.Date(2021, 3, 10, 0, 0, 0, 0, time.UTC)

	uow := begin(t, m)
	claimed, err := uow.ClaimCorporateAction(ctx, "ABC", CorporateSplit, date)
	if err != nil || !claimed {
		t.Fatalf("first claim = %v, %v", claimed, err)
	}
	if err := uow.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	uow = begin(t, m)
	claimed, err = uow.ClaimCorporateAction(ctx, "ABC", CorporateSplit, date)
	if err != nil || claimed {
		t.Fatalf("repeat claim = %v, %v, want false", claimed, err)
	}
	// A different kind or date is a distinct event.
	claimed, err = uow.ClaimCorporateAction(ctx, "ABC", CorporateDividend, date)
	if err != nil || !claimed {
		t.Fatalf("dividend claim = %v, %v", claimed, err)
	}
	claimed, err = uow.ClaimCorporateAction(ctx, "ABC", CorporateSplit, date.AddDate(0, 0, 1))
	if err != nil || !claimed {
		t.Fatalf("next-day claim = %v, %v", claimed, err)
	}
	if err := uow.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	// Rolled-back claims do not stick.
	uow = begin(t, m)
	defer uow.Rollback(ctx)
	claimed, err = uow.ClaimCorporateAction(ctx, "ABC", CorporateDividend, date)
	if err != nil || !claimed {
		t.Fatalf("claim after rollback = %v, %v, want true", claimed, err)
	}
}

func TestCloseUpserts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	date := time.Date(2021, 3, 10, 0, 0, 0, 0, time.UTC)

	uow := begin(t, m)
	if err := uow.InsertClose(ctx, &Close{Symbol: "ABC", Date: date, CloseMicros: 100}); err != nil {
		t.Fatal(err)
	}
	// Same (symbol, date) replaces rather than duplicates.
	if err := uow.InsertClose(ctx, &Close{Symbol: "ABC", Date: date, CloseMicros: 120}); err != nil {
		t.Fatal(err)
	}
	if err := uow.InsertClose(ctx, &Close{Symbol: "ABC", Date: date.AddDate(0, 0, 1), CloseMicros: 130}); err != nil {
		t.Fatal(err)
	}
	if err := uow.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	uow = begin(t, m)
	defer uow.Rollback(ctx)
	onDate, err := uow.CloseOn(ctx, "ABC", date)
	if err != nil {
		t.Fatal(err)
	}
	if onDate.CloseMicros != 120 {
		t.Fatalf("CloseOn = %d, want upserted 120", onDate.CloseMicros)
	}
	latest, err := uow.LatestClose(ctx, "ABC")
	if err != nil {
		t.Fatal(err)
	}
	if latest.CloseMicros != 130 {
		t.Fatalf("LatestClose = %d, want 130", latest.CloseMicros)
	}
}

func TestSameDateAcrossZones(t *testing.T) {
	utc := time.Date(2021, 3, 10, 0, 0, 0, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	// Midnight UTC on the 10th is still the evening of the 9th in New York,
	// but both times name the calendar date they were built with.
	if !SameDate(utc, time.Date(2021, 3, 10, 23, 0, 0, 0, ny)) {
		t.Fatal("same civil date reported as different")
	}
	if SameDate(utc, time.Date(2021, 3, 9, 23, 0, 0, 0, ny)) {
		t.Fatal("different civil dates reported as same")
	}
}

func TestDateOfKeepsLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	d := DateOf(time.Date(2021, 3, 10, 15, 45, 12, 0, ny))
	if d.Hour() != 0 || d.Minute() != 0 || d.Location() != ny {
		t.Fatalf("DateOf = %v", d)
	}
}
