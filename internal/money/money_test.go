package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseStrict(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "400.00", want: "400.00"},
		{in: " 12.5 ", want: "12.50"},
		{in: "1000", want: "1000.00"},
		{in: "0.001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseStrict(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseStrict(%q): expected error, got %s", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseStrict(%q): %v", tc.in, err)
		}
		if Format(got) != tc.want {
			t.Fatalf("ParseStrict(%q) = %s, want %s", tc.in, Format(got), tc.want)
		}
	}
}

func TestParseLenient(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "10,50", want: "10.50"},
		{in: "", want: "0.00"},
		{in: "  ", want: "0.00"},
		{in: "garbage", want: "0.00"},
		{in: "300.00", want: "300.00"},
	}
	for _, tc := range cases {
		if got := Format(ParseLenient(tc.in)); got != tc.want {
			t.Fatalf("ParseLenient(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestSumIsExact(t *testing.T) {
	total := Sum(
		decimal.RequireFromString("0.10"),
		decimal.RequireFromString("0.20"),
		decimal.RequireFromString("0.70"),
	)
	if !Equal(total, decimal.RequireFromString("1.00")) {
		t.Fatalf("sum = %s, want 1.00", total)
	}
}
