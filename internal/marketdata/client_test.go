package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stock/ABC/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("token") != "tok" {
			t.Errorf("missing token, query=%s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"ABC","latestPrice":50.25,"close":49.5,"latestVolume":1200}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	q, err := c.Quote(context.Background(), "ABC")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.LatestPriceMicros != 50_250_000 {
		t.Errorf("LatestPriceMicros = %d, want 50250000", q.LatestPriceMicros)
	}
	if q.CloseMicros != 49_500_000 {
		t.Errorf("CloseMicros = %d, want 49500000", q.CloseMicros)
	}
	if q.Volume != 1200 {
		t.Errorf("Volume = %d, want 1200", q.Volume)
	}
}

func TestQuoteFallsBackToPreviousClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ABC","latestPrice":10,"close":0,"previousClose":9.75}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	q, err := c.Quote(context.Background(), "ABC")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.CloseMicros != 9_750_000 {
		t.Errorf("CloseMicros = %d, want previousClose 9750000", q.CloseMicros)
	}
}

func TestSplitsAndDividends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stock/ABC/splits/1m":
			w.Write([]byte(`[{"exDate":"2021-03-15","fromFactor":1,"toFactor":7}]`))
		case "/stock/ABC/dividends/1m":
			w.Write([]byte(`[{"paymentDate":"2021-03-20","exDate":"2021-03-10","amount":0.82}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	splits, err := c.Splits(context.Background(), "ABC", "1m")
	if err != nil {
		t.Fatalf("Splits: %v", err)
	}
	if len(splits) != 1 || splits[0].FromFactor != 1 || splits[0].ToFactor != 7 {
		t.Fatalf("unexpected splits %+v", splits)
	}
	wantEx := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
	if !splits[0].ExDate.Equal(wantEx) {
		t.Errorf("ExDate = %v, want %v", splits[0].ExDate, wantEx)
	}

	divs, err := c.Dividends(context.Background(), "ABC", "1m")
	if err != nil {
		t.Fatalf("Dividends: %v", err)
	}
	if len(divs) != 1 || divs[0].AmountMicros != 820_000 {
		t.Fatalf("unexpected dividends %+v", divs)
	}
}

func TestSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ref-data/symbols" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"symbol":"ABC","name":"Alphabet Corp","type":"cs"},{"symbol":"XYZ","name":"Xyz Inc","type":"et"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	syms, err := c.Symbols(context.Background())
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if len(syms) != 2 || syms[0].Symbol != "ABC" || syms[1].Type != "et" {
		t.Fatalf("unexpected symbols %+v", syms)
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.Quote(context.Background(), "ABC"); err == nil {
		t.Fatal("expected error on 502 response")
	}
}
