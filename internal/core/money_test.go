package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.005", "0.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"0", "0", true},
		{"-1", "", false},
		{"+1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatCurrency(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     string
	}{
		{"0", "USD", "$0.00"},
		{"12.5", "USD", "$12.50"},
		{"1234.5", "", "$1,234.50"},
		{"1234567.891", "USD", "$1,234,567.89"},
		{"-12", "EUR", "-€12.00"},
		{"999", "gbp", "£999.00"},
		{"10", "CHF", "CHF 10.00"},
	}
	for _, tc := range cases {
		got := FormatCurrency(decimal.RequireFromString(tc.amount), tc.currency)
		if got != tc.want {
			t.Fatalf("FormatCurrency(%s, %s) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
}
