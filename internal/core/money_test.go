package core

import (
	"errors"
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
		{"0.01", "0.01", true},
		{"1.005", "1.01", true},
		{" 2.50 ", "2.5", true},
		{"-30", "30", true},
		{"0", "", false},
		{"0.001", "", false},
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
			continue
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%q expected validation error, got %v", tc.in, err)
		}
	}
}

func TestSignedAmount(t *testing.T) {
	thirty := decimal.NewFromInt(30)
	if got := SignedAmount(thirty, Expense); !got.Equal(decimal.NewFromInt(-30)) {
		t.Fatalf("expense = %s, want -30", got)
	}
	if got := SignedAmount(thirty, Income); !got.Equal(thirty) {
		t.Fatalf("income = %s, want 30", got)
	}
	if got := SignedAmount(thirty.Neg(), Income); !got.Equal(thirty) {
		t.Fatalf("income from negative = %s, want 30", got)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.RequireFromString("12.5")); got != "12.50" {
		t.Fatalf("got %q", got)
	}
}
