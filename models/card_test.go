package models

import "testing"

func TestConditionRank(t *testing.T) {
	tests := []struct {
		condition Condition
		want      int
	}{
		{ConditionMint, 4},
		{ConditionGood, 3},
		{ConditionPlayed, 2},
		{ConditionHeavilyPlayed, 1},
		{ConditionPoor, 0},
		{Condition("MINT"), -1},
		{Condition(""), -1},
	}

	for _, tt := range tests {
		if got := tt.condition.Rank(); got != tt.want {
			t.Fatalf("Rank(%q) = %d, want %d", tt.condition, got, tt.want)
		}
	}
}

func TestOfferUsable(t *testing.T) {
	tests := []struct {
		name  string
		offer ConditionOffer
		want  bool
	}{
		{"priced and stocked", ConditionOffer{PriceCents: 100, Stock: 2}, true},
		{"priced only", ConditionOffer{PriceCents: 100}, true},
		{"stocked only", ConditionOffer{Stock: 1}, true},
		{"placeholder row", ConditionOffer{}, false},
	}

	for _, tt := range tests {
		if got := tt.offer.Usable(); got != tt.want {
			t.Fatalf("%s: Usable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOfferPurchasable(t *testing.T) {
	tests := []struct {
		name  string
		offer ConditionOffer
		want  bool
	}{
		{"priced and stocked", ConditionOffer{PriceCents: 100, Stock: 2}, true},
		{"priced, out of stock", ConditionOffer{PriceCents: 100}, false},
		{"stocked, no price", ConditionOffer{Stock: 3}, false},
	}

	for _, tt := range tests {
		if got := tt.offer.Purchasable(); got != tt.want {
			t.Fatalf("%s: Purchasable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNormalizePrefersCheapestStockedPrice(t *testing.T) {
	card := Card{
		Name: "Sol Ring",
		Conditions: []ConditionOffer{
			{Condition: ConditionMint, PriceCents: 150, Stock: 0},
			{Condition: ConditionGood, PriceCents: 120, Stock: 2},
			{Condition: ConditionHeavilyPlayed, PriceCents: 90, Stock: 0},
		},
	}
	card.Normalize()

	if card.Price != 120 {
		t.Fatalf("Price = %d, want 120 (cheapest in-stock offer)", card.Price)
	}
	if card.Stock != 2 {
		t.Fatalf("Stock = %d, want 2", card.Stock)
	}
}

func TestNormalizeFallsBackToCheapestAnyPrice(t *testing.T) {
	card := Card{
		Name: "Sol Ring",
		Conditions: []ConditionOffer{
			{Condition: ConditionMint, PriceCents: 150},
			{Condition: ConditionHeavilyPlayed, PriceCents: 90},
		},
	}
	card.Normalize()

	if card.Price != 90 {
		t.Fatalf("Price = %d, want 90 (cheapest offer regardless of stock)", card.Price)
	}
	if card.Stock != 0 {
		t.Fatalf("Stock = %d, want 0", card.Stock)
	}
}

func TestNormalizeKeepsLegacyShape(t *testing.T) {
	card := Card{Name: "Sol Ring", Price: 500, Stock: 3}
	card.Normalize()

	if card.Price != 500 || card.Stock != 3 {
		t.Fatalf("legacy card changed to price %d stock %d, want 500 and 3", card.Price, card.Stock)
	}
}

func TestNormalizeKeepsPriorPriceWhenOffersAreUnpriced(t *testing.T) {
	card := Card{
		Name:  "Sol Ring",
		Price: 250,
		Conditions: []ConditionOffer{
			{Condition: ConditionMint, Stock: 2},
		},
	}
	card.Normalize()

	if card.Price != 250 {
		t.Fatalf("Price = %d, want 250 (unpriced offers fall back to the carried price)", card.Price)
	}
	if card.Stock != 2 {
		t.Fatalf("Stock = %d, want 2 (recomputed from offers)", card.Stock)
	}
}

func TestHasPurchasableOffer(t *testing.T) {
	purchasable := Card{Conditions: []ConditionOffer{
		{Condition: ConditionMint, PriceCents: 150, Stock: 0},
		{Condition: ConditionGood, PriceCents: 120, Stock: 1},
	}}
	if !purchasable.HasPurchasableOffer() {
		t.Fatalf("expected purchasable offer to be found")
	}

	unstocked := Card{Conditions: []ConditionOffer{
		{Condition: ConditionMint, PriceCents: 150, Stock: 0},
	}}
	if unstocked.HasPurchasableOffer() {
		t.Fatalf("out-of-stock offers must not count as purchasable")
	}

	legacy := Card{Price: 100, Stock: 2}
	if legacy.HasPurchasableOffer() {
		t.Fatalf("legacy card without offers must report false")
	}
}

func TestRejectionTally(t *testing.T) {
	tally := RejectionTally{}
	tally.Add(RejectMissingName)
	tally.Add(RejectNoPrice)
	tally.Add(RejectNoPrice)

	other := RejectionTally{RejectNoConditions: 1, RejectNoPrice: 1}
	tally.Merge(other)

	if tally[RejectMissingName] != 1 || tally[RejectNoPrice] != 3 || tally[RejectNoConditions] != 1 {
		t.Fatalf("tally = %v, want missing_name 1, no_price 3, no_conditions 1", tally)
	}
	if got := tally.Total(); got != 5 {
		t.Fatalf("Total() = %d, want 5", got)
	}
}

func TestProgressMarksAndDoneIDs(t *testing.T) {
	progress := &ScrapeProgress{}
	progress.MarkProcessed("11")
	progress.MarkProcessed("22")
	progress.MarkSkipped("33")
	progress.Append([]Card{{Name: "Sol Ring"}, {Name: "Counterspell"}})

	if progress.CollectionsProcessed != 2 || progress.CollectionsSkipped != 1 {
		t.Fatalf("counters = %d processed, %d skipped, want 2 and 1",
			progress.CollectionsProcessed, progress.CollectionsSkipped)
	}
	if progress.TotalCards != 2 {
		t.Fatalf("TotalCards = %d, want 2", progress.TotalCards)
	}

	done := progress.DoneIDs()
	if len(done) != 3 {
		t.Fatalf("DoneIDs() has %d entries, want 3", len(done))
	}
	for _, id := range []string{"11", "22", "33"} {
		if _, ok := done[id]; !ok {
			t.Fatalf("DoneIDs() missing %q", id)
		}
	}
	if _, ok := done["44"]; ok {
		t.Fatalf("DoneIDs() contains unvisited id")
	}
}
