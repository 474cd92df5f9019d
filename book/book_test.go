package book

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func mustApply(t *testing.T, b *Book, side Side, price, qty string) {
	t.Helper()
	if err := b.Apply(side, dec(t, price), dec(t, qty)); err != nil {
		t.Fatalf("apply %s %s %s: %v", side, price, qty, err)
	}
}

func TestApplyUpsertReplaces(t *testing.T) {
	b := New()
	mustApply(t, b, Bid, "100", "5")
	mustApply(t, b, Bid, "100", "3")

	levels := b.Levels(Bid)
	if len(levels) != 1 {
		t.Fatalf("expected single level, got %d", len(levels))
	}
	if !levels[0].Quantity.Equal(dec(t, "3")) {
		t.Fatalf("expected quantity 3, got %s", levels[0].Quantity)
	}
}

func TestApplyDeleteIdempotent(t *testing.T) {
	b := New()
	mustApply(t, b, Ask, "101", "2")

	// deleting an absent level leaves the book unchanged
	mustApply(t, b, Ask, "205", "0")
	if b.Depth(Ask) != 1 {
		t.Fatalf("expected 1 level after no-op delete, got %d", b.Depth(Ask))
	}

	mustApply(t, b, Ask, "101", "0")
	if b.Depth(Ask) != 0 {
		t.Fatalf("expected empty side after delete, got %d", b.Depth(Ask))
	}
	mustApply(t, b, Ask, "101", "0")
	if b.Depth(Ask) != 0 {
		t.Fatalf("repeated delete must stay empty, got %d", b.Depth(Ask))
	}
}

func TestBestFirstOrdering(t *testing.T) {
	b := New()
	for _, p := range []string{"99", "101", "100", "98.5", "100.5"} {
		mustApply(t, b, Bid, p, "1")
		mustApply(t, b, Ask, p, "1")
	}

	bids := b.Levels(Bid)
	for i := 1; i < len(bids); i++ {
		if !bids[i-1].Price.GreaterThan(bids[i].Price) {
			t.Fatalf("bids not descending at %d: %s then %s", i, bids[i-1].Price, bids[i].Price)
		}
	}
	asks := b.Levels(Ask)
	for i := 1; i < len(asks); i++ {
		if !asks[i-1].Price.LessThan(asks[i].Price) {
			t.Fatalf("asks not ascending at %d: %s then %s", i, asks[i-1].Price, asks[i].Price)
		}
	}

	best, ok := b.Best(Bid)
	if !ok || !best.Price.Equal(dec(t, "101")) {
		t.Fatalf("expected best bid 101, got %s", best.Price)
	}
	best, ok = b.Best(Ask)
	if !ok || !best.Price.Equal(dec(t, "98.5")) {
		t.Fatalf("expected best ask 98.5, got %s", best.Price)
	}
}

func TestApplyRejectsInvalidUpdates(t *testing.T) {
	b := New()
	mustApply(t, b, Bid, "100", "5")

	cases := []struct {
		name  string
		price string
		qty   string
	}{
		{"zero price", "0", "1"},
		{"negative price", "-1", "1"},
		{"negative quantity", "100", "-2"},
	}
	for _, tc := range cases {
		err := b.Apply(Bid, dec(t, tc.price), dec(t, tc.qty))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		var inv *InvalidUpdateError
		if !errors.As(err, &inv) {
			t.Fatalf("%s: expected InvalidUpdateError, got %T", tc.name, err)
		}
	}

	// prior state survives rejected updates
	levels := b.Levels(Bid)
	if len(levels) != 1 || !levels[0].Quantity.Equal(dec(t, "5")) {
		t.Fatalf("book corrupted by rejected update: %+v", levels)
	}
}

func TestLevelsReturnsCopy(t *testing.T) {
	b := New()
	mustApply(t, b, Bid, "100", "5")

	levels := b.Levels(Bid)
	levels[0].Quantity = dec(t, "999")

	fresh := b.Levels(Bid)
	if !fresh[0].Quantity.Equal(dec(t, "5")) {
		t.Fatalf("mutating returned slice leaked into book: %s", fresh[0].Quantity)
	}
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"bid": Bid, "buy": Bid, "b": Bid, "ask": Ask, "sell": Ask, "a": Ask} {
		got, ok := ParseSide(in)
		if !ok || got != want {
			t.Fatalf("ParseSide(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseSide("hold"); ok {
		t.Fatal("expected unknown side to fail")
	}
}
