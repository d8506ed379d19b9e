package util

import "testing"

func TestSafeFloat(t *testing.T) {
	cases := map[string]struct {
		want float64
		ok   bool
	}{
		"1,234.50": {1234.5, true},
		"12.1":     {12.1, true},
		"":         {0, false},
		"null":     {0, false},
		"abc":      {0, false},
	}
	for in, tc := range cases {
		got, ok := SafeFloat(in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("SafeFloat(%q) = %v,%v want %v,%v", in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSafeInt(t *testing.T) {
	if v, ok := SafeInt("12,34,567"); !ok || v != 1234567 {
		t.Fatalf("unexpected %v %v", v, ok)
	}
	if v, ok := SafeInt("45.9"); !ok || v != 45 {
		t.Fatalf("unexpected %v %v", v, ok)
	}
}

func TestExtractNumber(t *testing.T) {
	if v, ok := ExtractNumber("₹ 1,045"); !ok || v != 1045 {
		t.Fatalf("unexpected %v %v", v, ok)
	}
	if v, ok := ExtractNumber("-12.5%"); !ok || v != -12.5 {
		t.Fatalf("unexpected %v %v", v, ok)
	}
	if _, ok := ExtractNumber("--"); ok {
		t.Fatalf("expected no number")
	}
}

func TestParsePriceRange(t *testing.T) {
	low, high, ok := ParsePriceRange("Rs.100 to Rs.110")
	if !ok || low != 100 || high != 110 {
		t.Fatalf("unexpected %v %v %v", low, high, ok)
	}
	low, high, ok = ParsePriceRange("₹1,020-1,075")
	if !ok || low != 1020 || high != 1075 {
		t.Fatalf("unexpected %v %v %v", low, high, ok)
	}
	low, high, ok = ParsePriceRange("250")
	if !ok || low != 250 || high != 250 {
		t.Fatalf("unexpected %v %v %v", low, high, ok)
	}
}

func TestExtractSymbol(t *testing.T) {
	cases := map[string]string{
		"Acme Industries Limited":          "ACMEINDUSTRI",
		"Tata Capital Ltd.":                "TATACAPITAL",
		"LG Electronics India Pvt Ltd":     "LGELECTRONIC",
		"Om Freight Forwarders Corporation": "OMFREIGHT",
	}
	for in, want := range cases {
		if got := ExtractSymbol(in); got != want {
			t.Fatalf("ExtractSymbol(%q) = %q want %q", in, got, want)
		}
	}
}
