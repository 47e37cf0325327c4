package consolidate

import (
	"reflect"
	"testing"

	"github.com/deckcheck/inventory-scraper/models"
)

func listing(name string, price, stock int, foil bool, collectionID string) models.Card {
	return models.Card{
		Name:           name,
		Foil:           foil,
		CollectionName: "Collection " + collectionID,
		CollectionID:   collectionID,
		Conditions: []models.ConditionOffer{
			{Condition: models.ConditionMint, PriceCents: price, Stock: stock},
		},
		Price: price,
		Stock: stock,
	}
}

func TestCardsGroupsByFoldedName(t *testing.T) {
	records := []models.Card{
		listing("Sol Ring", 300, 1, false, "1"),
		listing("  sol ring ", 200, 1, false, "2"),
		listing("SOL RING", 400, 1, false, "3"),
	}

	got := Cards(records)
	if len(got) != 1 {
		t.Fatalf("cards = %d, want 1", len(got))
	}
	if got[0].Price != 200 || got[0].CollectionID != "2" {
		t.Fatalf("winner = %+v, want the 200-cent variant", got[0])
	}
}

func TestCardsPrefersStockedSubset(t *testing.T) {
	records := []models.Card{
		listing("Sol Ring", 500, 0, false, "1"),
		listing("Sol Ring", 500, 2, true, "2"),
	}

	got := Cards(records)
	if len(got) != 1 {
		t.Fatalf("cards = %d, want 1", len(got))
	}
	if got[0].Stock != 2 || !got[0].Foil {
		t.Fatalf("winner = %+v, want the stocked foil variant", got[0])
	}
}

func TestCardsCheapestWinsWithinStockedSubset(t *testing.T) {
	records := []models.Card{
		listing("Lightning Bolt", 120, 4, false, "1"),
		listing("Lightning Bolt", 90, 1, false, "2"),
		listing("Lightning Bolt", 300, 9, false, "3"),
	}

	got := Cards(records)
	if len(got) != 1 || got[0].Price != 90 {
		t.Fatalf("cards = %+v, want single 90-cent winner", got)
	}
}

func TestCardsNonFoilWinsPriceTie(t *testing.T) {
	records := []models.Card{
		listing("Counterspell", 250, 3, true, "1"),
		listing("Counterspell", 250, 1, false, "2"),
	}

	got := Cards(records)
	if len(got) != 1 {
		t.Fatalf("cards = %d, want 1", len(got))
	}
	if got[0].Foil {
		t.Fatalf("winner = %+v, want non-foil on price tie", got[0])
	}
}

func TestCardsFallsBackToPricedSubset(t *testing.T) {
	records := []models.Card{
		listing("Brainstorm", 80, 0, false, "1"),
		listing("Brainstorm", 60, 0, false, "2"),
	}

	got := Cards(records)
	if len(got) != 1 || got[0].Price != 60 {
		t.Fatalf("cards = %+v, want single 60-cent winner", got)
	}
}

func TestCardsDropsGroupsWithoutPrice(t *testing.T) {
	unpriced := models.Card{
		Name:       "Placeholder",
		Conditions: []models.ConditionOffer{{Condition: models.ConditionPoor, Stock: 5}},
		Stock:      5,
	}
	records := []models.Card{
		unpriced,
		listing("Sol Ring", 500, 1, false, "1"),
	}

	got := Cards(records)
	if len(got) != 1 || got[0].Name != "Sol Ring" {
		t.Fatalf("cards = %+v, want only Sol Ring", got)
	}
}

func TestCardsStableTieKeepsFirstEncountered(t *testing.T) {
	records := []models.Card{
		listing("Swords to Plowshares", 150, 2, false, "first"),
		listing("Swords to Plowshares", 150, 6, false, "second"),
	}

	got := Cards(records)
	if len(got) != 1 || got[0].CollectionID != "first" {
		t.Fatalf("cards = %+v, want the first-encountered variant", got)
	}
}

func TestCardsOutputFollowsFirstAppearance(t *testing.T) {
	records := []models.Card{
		listing("Zur the Enchanter", 900, 1, false, "1"),
		listing("Arcane Signet", 100, 1, false, "1"),
		listing("Zur the Enchanter", 400, 1, false, "2"),
	}

	got := Cards(records)
	if len(got) != 2 {
		t.Fatalf("cards = %d, want 2", len(got))
	}
	if got[0].Name != "Zur the Enchanter" || got[1].Name != "Arcane Signet" {
		t.Fatalf("order = [%s, %s], want first-appearance order", got[0].Name, got[1].Name)
	}
}

func TestCardsExactlyOnePerPricedName(t *testing.T) {
	records := []models.Card{
		listing("Sol Ring", 500, 1, false, "1"),
		listing("Sol Ring", 300, 0, false, "2"),
		listing("Arcane Signet", 100, 2, true, "1"),
		listing("Arcane Signet", 100, 2, false, "3"),
		listing("Brainstorm", 60, 0, false, "2"),
	}

	got := Cards(records)
	if len(got) != 3 {
		t.Fatalf("cards = %d, want 3", len(got))
	}
	seen := map[string]int{}
	for _, card := range got {
		seen[card.Name]++
	}
	for name, n := range seen {
		if n != 1 {
			t.Fatalf("name %q appears %d times", name, n)
		}
	}

	// The winner's price must not exceed any priced variant of the name.
	for _, card := range got {
		for _, rec := range records {
			if rec.Name == card.Name && rec.Price > 0 && rec.Stock > 0 && card.Price > rec.Price {
				t.Fatalf("%s winner price %d exceeds variant price %d", card.Name, card.Price, rec.Price)
			}
		}
	}
}

func TestCardsIdempotent(t *testing.T) {
	records := []models.Card{
		listing("Sol Ring", 500, 0, false, "1"),
		listing("Sol Ring", 500, 2, true, "2"),
		listing("Arcane Signet", 100, 2, false, "1"),
		listing("Brainstorm", 60, 0, false, "2"),
	}

	once := Cards(records)
	twice := Cards(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("consolidation not idempotent:\nonce  = %+v\ntwice = %+v", once, twice)
	}
}

func TestCardsDoesNotMutateInput(t *testing.T) {
	records := []models.Card{
		listing("Sol Ring", 500, 1, true, "1"),
		listing("Sol Ring", 300, 2, false, "2"),
	}
	snapshot := make([]models.Card, len(records))
	copy(snapshot, records)

	Cards(records)
	if !reflect.DeepEqual(records, snapshot) {
		t.Fatalf("input mutated:\nbefore = %+v\nafter  = %+v", snapshot, records)
	}
}

func TestCardsEmptyInput(t *testing.T) {
	if got := Cards(nil); len(got) != 0 {
		t.Fatalf("cards = %+v, want empty", got)
	}
}
