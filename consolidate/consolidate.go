// Package consolidate reduces the per-collection listings gathered by a
// scrape run into one canonical record per distinct card name.
package consolidate

import (
	"sort"
	"strings"

	"github.com/deckcheck/inventory-scraper/models"
)

// Cards picks one best variant per distinct card name. The input is not
// modified; records are grouped by trimmed, case-folded name and the
// output lists winners in the order each name first appears.
//
// Within a group the stocked-and-priced variants are considered first,
// then any priced variant; a group with no positive price anywhere
// yields nothing. The winner is the cheapest candidate, preferring
// non-foil on a price tie. Remaining ties keep the first record
// encountered, so the outcome follows input order, which in a scrape run
// is collection priority order.
func Cards(records []models.Card) []models.Card {
	order := make([]string, 0, len(records))
	byName := make(map[string][]models.Card, len(records))
	for _, rec := range records {
		key := nameKey(rec.Name)
		if _, seen := byName[key]; !seen {
			order = append(order, key)
		}
		byName[key] = append(byName[key], rec)
	}

	out := make([]models.Card, 0, len(order))
	for _, key := range order {
		if best, ok := bestVariant(byName[key]); ok {
			out = append(out, best)
		}
	}
	return out
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func bestVariant(group []models.Card) (models.Card, bool) {
	candidates := subset(group, func(c models.Card) bool { return c.Stock > 0 && c.Price > 0 })
	if len(candidates) == 0 {
		candidates = subset(group, func(c models.Card) bool { return c.Price > 0 })
	}
	if len(candidates) == 0 {
		return models.Card{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Price != candidates[j].Price {
			return candidates[i].Price < candidates[j].Price
		}
		return !candidates[i].Foil && candidates[j].Foil
	})
	return candidates[0], true
}

func subset(group []models.Card, keep func(models.Card) bool) []models.Card {
	var out []models.Card
	for _, rec := range group {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}
