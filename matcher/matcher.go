// Package matcher answers deck-list availability queries against a
// scraped inventory artifact held in memory.
package matcher

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/deckcheck/inventory-scraper/models"
)

// Matcher indexes an inventory's cards by folded name. It is read-only
// after construction and safe for concurrent use.
type Matcher struct {
	cards []models.Card
	index map[string]int
}

// Result is the offer chosen for one requested name.
type Result struct {
	Card models.Card
	// Offer is the grade a buyer would take. For records predating the
	// per-grade breakdown it is synthetic, with an empty condition label.
	Offer models.ConditionOffer
	// Exact is false when the card was found by substring containment
	// rather than a full name match.
	Exact bool
}

// New builds a matcher over cards. Records are normalized on the way in
// so legacy single-price shapes and stale cached prices behave the same
// as freshly scraped ones. When several records fold to the same name
// the first one wins, mirroring consolidation's stability rule.
func New(cards []models.Card) *Matcher {
	m := &Matcher{
		cards: make([]models.Card, len(cards)),
		index: make(map[string]int, len(cards)),
	}
	copy(m.cards, cards)
	for i := range m.cards {
		m.cards[i].Normalize()
		key := foldName(m.cards[i].Name)
		if _, dup := m.index[key]; !dup {
			m.index[key] = i
		}
	}
	return m
}

// Load reads an inventory artifact from path. Partial artifacts load
// too; their cards are simply unconsolidated.
func Load(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory artifact: %w", err)
	}
	var artifact models.ScrapeOutput
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decode inventory artifact: %w", err)
	}
	return New(artifact.Cards), nil
}

// Size returns the number of cards loaded.
func (m *Matcher) Size() int {
	return len(m.cards)
}

// Match resolves one requested card name. An exact case-insensitive
// name match is preferred; otherwise substring containment in either
// direction is accepted. Only cards with a positive price qualify.
// Among several substring candidates, one with purchasable stock beats
// one without, then the lower price wins.
func (m *Matcher) Match(name string) (Result, bool) {
	query := foldName(name)
	if query == "" {
		return Result{}, false
	}

	if i, ok := m.index[query]; ok && m.cards[i].Price > 0 {
		if res, ok := m.result(m.cards[i], true); ok {
			return res, true
		}
	}

	var best Result
	found := false
	for i := range m.cards {
		card := m.cards[i]
		if card.Price <= 0 {
			continue
		}
		key := foldName(card.Name)
		if !strings.Contains(key, query) && !strings.Contains(query, key) {
			continue
		}
		res, ok := m.result(card, key == query)
		if !ok {
			continue
		}
		if !found || better(res, best) {
			best = res
			found = true
		}
	}
	return best, found
}

// MatchAll resolves a deck list's names in order. Names that match
// nothing are returned separately so the caller can report them.
func (m *Matcher) MatchAll(names []string) ([]Result, []string) {
	results := make([]Result, 0, len(names))
	var missing []string
	for _, name := range names {
		res, ok := m.Match(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		results = append(results, res)
	}
	return results, missing
}

func (m *Matcher) result(card models.Card, exact bool) (Result, bool) {
	offer, ok := bestOffer(card)
	if !ok {
		return Result{}, false
	}
	return Result{Card: card, Offer: offer, Exact: exact}, true
}

func better(a, b Result) bool {
	aStocked := a.Offer.Purchasable()
	bStocked := b.Offer.Purchasable()
	if aStocked != bStocked {
		return aStocked
	}
	return a.Offer.PriceCents < b.Offer.PriceCents
}

// bestOffer picks the offer a buyer would take: the cheapest purchasable
// offer in the best grade that has stock, else the cheapest
// positively-priced offer regardless of stock. Grade labels outside the
// known vocabulary only ever qualify through the fallback.
func bestOffer(card models.Card) (models.ConditionOffer, bool) {
	if len(card.Conditions) == 0 {
		if card.Price <= 0 {
			return models.ConditionOffer{}, false
		}
		return models.ConditionOffer{PriceCents: card.Price, Stock: card.Stock}, true
	}

	for _, grade := range models.GradeOrder {
		var chosen models.ConditionOffer
		ok := false
		for _, offer := range card.Conditions {
			if offer.Condition != grade || !offer.Purchasable() {
				continue
			}
			if !ok || offer.PriceCents < chosen.PriceCents {
				chosen = offer
				ok = true
			}
		}
		if ok {
			return chosen, true
		}
	}

	var chosen models.ConditionOffer
	ok := false
	for _, offer := range card.Conditions {
		if offer.PriceCents <= 0 {
			continue
		}
		if !ok || offer.PriceCents < chosen.PriceCents {
			chosen = offer
			ok = true
		}
	}
	return chosen, ok
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
