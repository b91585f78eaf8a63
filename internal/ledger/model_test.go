package ledger

import "testing"

func TestValidateSymbol(t *testing.T) {
	valid := []string{"A", "ABC", "BRK.B", "GOOG", "X1"}
	for _, s := range valid {
		if err := ValidateSymbol(s); err != nil {
			t.Errorf("ValidateSymbol(%q) = %v, want nil", s, err)
		}
	}
	invalid := []string{"", "abc", "1AB", ".AB", "TOOLONGSYMBOL", "AB C", "AB-C"}
	for _, s := range invalid {
		if err := ValidateSymbol(s); err == nil {
			t.Errorf("ValidateSymbol(%q) = nil, want error", s)
		}
	}
}

func TestUSDMicrosRoundTrip(t *testing.T) {
	cases := []struct {
		usd    float64
		micros int64
	}{
		{0, 0},
		{1, 1_000_000},
		{0.82, 820_000},
		{123.456789, 123_456_789},
		{-2.5, -2_500_000},
	}
	for _, tc := range cases {
		if got := USDToMicros(tc.usd); got != tc.micros {
			t.Errorf("USDToMicros(%v) = %d, want %d", tc.usd, got, tc.micros)
		}
		if got := MicrosToUSD(tc.micros); got != tc.usd {
			t.Errorf("MicrosToUSD(%d) = %v, want %v", tc.micros, got, tc.usd)
		}
	}
}

func TestNotionalOverflowGuard(t *testing.T) {
	if _, err := NotionalMicros(1<<40, 1<<40); err == nil {
		t.Fatal("want overflow error")
	}
	got, err := NotionalMicros(50*MicrosPerUSD, 10)
	if err != nil || got != 500*MicrosPerUSD {
		t.Fatalf("NotionalMicros = %d, %v", got, err)
	}
}

func TestSplitArithmetic(t *testing.T) {
	cases := []struct {
		name            string
		qty, from, to   int64
		closeMicros     int64
		wantQty         int64
		wantPriceMicros int64
	}{
		{"one to seven", 10, 1, 7, 70 * MicrosPerUSD, 70, 10 * MicrosPerUSD},
		{"two to three with remainder", 7, 2, 3, 10 * MicrosPerUSD, 10, 6_666_666},
		{"reverse split", 10, 7, 1, 10 * MicrosPerUSD, 1, 70 * MicrosPerUSD},
		{"indivisible close", 10, 1, 7, 71 * MicrosPerUSD, 70, 10_142_857},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := splitQuantity(tc.qty, tc.from, tc.to); got != tc.wantQty {
				t.Errorf("splitQuantity = %d, want %d", got, tc.wantQty)
			}
			if got := splitPrice(tc.closeMicros, tc.from, tc.to); got != tc.wantPriceMicros {
				t.Errorf("splitPrice = %d, want %d", got, tc.wantPriceMicros)
			}
		})
	}
}
