package bot

import (
	"reflect"
	"testing"
	"time"

	"github.com/mtaung/stonks/internal/ledger"
)

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`buy 10 AAPL`, []string{"buy", "10", "AAPL"}},
		{`register "Tendies Inc"`, []string{"register", "Tendies Inc"}},
		{`register "A  B"  C`, []string{"register", "A  B", "C"}},
		{`register ""`, []string{"register", ""}},
		{`register "Unterminated name`, []string{"register", "Unterminated name"}},
		{`   spaced   out   `, []string{"spaced", "out"}},
		{``, nil},
	}
	for _, tc := range cases {
		if got := splitArgs(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitArgs(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestPurchaseCostGuardsOverflow(t *testing.T) {
	cost, ok := purchaseCost(50*ledger.MicrosPerUSD, 10)
	if !ok || cost != 500*ledger.MicrosPerUSD {
		t.Fatalf("purchaseCost(50 USD, 10) = %d, %v", cost, ok)
	}
	// An absurd quantity must read as unaffordable, not wrap negative and
	// slip past the balance comparison.
	if _, ok := purchaseCost(300*ledger.MicrosPerUSD, 1<<50); ok {
		t.Fatal("overflowing order passed the affordability check")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 seconds"},
		{45 * time.Second, "45 seconds"},
		{time.Minute, "1 minute"},
		{90 * time.Second, "1 minute 30 seconds"},
		{3 * time.Hour, "3 hours"},
		{26*time.Hour + 5*time.Minute, "1 day 2 hours 5 minutes"},
		{49 * time.Hour, "2 days 1 hour"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
