package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/mtaung/stonks/internal/ledger"
	"github.com/mtaung/stonks/internal/marketclock"
	"github.com/mtaung/stonks/internal/marketdata"
	"github.com/mtaung/stonks/internal/store"
)

type stubMarket struct{}

func (stubMarket) Quote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	return marketdata.Quote{}, errors.New("no live feed in tests")
}

func (stubMarket) Splits(ctx context.Context, symbol, window string) ([]marketdata.Split, error) {
	return nil, nil
}

func (stubMarket) Dividends(ctx context.Context, symbol, window string) ([]marketdata.Dividend, error) {
	return nil, nil
}

func (stubMarket) Symbols(ctx context.Context) ([]marketdata.SymbolInfo, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *ledger.Service, *store.Memory) {
	t.Helper()
	loc, err := time.LoadLocation(marketclock.MarketZoneName)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2021, 3, 10, 12, 0, 0, 0, loc)
	clock := marketclock.NewWithNow(loc, func() time.Time { return now })
	mem := store.NewMemory()
	svc := ledger.NewService(mem, stubMarket{}, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, clock), svc, mem
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s response: %v (%s)", path, err, rec.Body.String())
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec, body := get(t, srv, "/healthz")
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("healthz = %d %v", rec.Code, body)
	}
}

func TestMarketTime(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec, body := get(t, srv, "/v1/market/time")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	// Wednesday noon is inside the trading session.
	if body["open"] != true {
		t.Fatalf("market should be open: %v", body)
	}
	if _, err := time.Parse(time.RFC3339, body["next_close"].(string)); err != nil {
		t.Fatalf("next_close not RFC3339: %v", err)
	}
}

func TestCompanyView(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	c, err := svc.RegisterCompany(context.Background(), "u1", "Acme")
	if err != nil {
		t.Fatal(err)
	}

	rec, body := get(t, srv, "/v1/companies/"+strconv.FormatInt(c.ID, 10))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %v", rec.Code, body)
	}
	if body["name"] != "Acme" || body["balance"].(float64) != 10000 {
		t.Fatalf("unexpected company view %v", body)
	}

	rec, _ = get(t, srv, "/v1/companies/999")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing company status = %d", rec.Code)
	}
	rec, _ = get(t, srv, "/v1/companies/bogus")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}

func TestLeaderboardLimit(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	if _, err := svc.RegisterCompany(context.Background(), "u1", "Acme"); err != nil {
		t.Fatal(err)
	}
	rec, body := get(t, srv, "/v1/leaderboard?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := body["leaderboard"].([]any); !ok {
		t.Fatalf("no leaderboard array: %v", body)
	}
	rec, _ = get(t, srv, "/v1/leaderboard?limit=0")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d", rec.Code)
	}
}
