// Package models defines the data structures shared across the scrape
// pipeline and its consumers.
package models

// Condition is a card's physical quality grade. The label vocabulary is
// part of the output contract consumed by the deck matcher.
type Condition string

const (
	ConditionPoor          Condition = "PR"
	ConditionHeavilyPlayed Condition = "HP"
	ConditionPlayed        Condition = "SP/P"
	ConditionGood          Condition = "EX/GD"
	ConditionMint          Condition = "NM/M"
)

// GradeOrder lists the known grades best to worst.
var GradeOrder = []Condition{
	ConditionMint,
	ConditionGood,
	ConditionPlayed,
	ConditionHeavilyPlayed,
	ConditionPoor,
}

// Rank returns the grade's position on the worst-to-best scale, with
// PR = 0 and NM/M = 4. Labels outside the vocabulary rank below PR.
func (c Condition) Rank() int {
	for i, grade := range GradeOrder {
		if c == grade {
			return len(GradeOrder) - 1 - i
		}
	}
	return -1
}

// ConditionOffer is one purchasable grade of a listing: the grade label as
// printed on the page, price in minor currency units, and units in stock.
type ConditionOffer struct {
	Condition  Condition `json:"condition"`
	PriceCents int       `json:"priceCents"`
	Stock      int       `json:"stock"`
	// SourceID is the storefront's identifier for the sale row, kept for
	// reconciliation only.
	SourceID string `json:"sourceId,omitempty"`
}

// Usable reports whether the offer carries any information worth keeping.
// All-zero rows are placeholders on the storefront and are discarded.
func (o ConditionOffer) Usable() bool {
	return o.PriceCents > 0 || o.Stock > 0
}

// Purchasable reports whether the offer can actually be bought right now.
func (o ConditionOffer) Purchasable() bool {
	return o.PriceCents > 0 && o.Stock > 0
}

// Card is a single card listing within one collection. After
// consolidation the same shape represents the chosen best offer for a
// card name across all collections.
//
// Price and Stock cache the cheapest purchasable price and the summed
// stock across Conditions. Consumers that predate the per-condition
// breakdown read only these two fields, and artifacts written before the
// breakdown existed carry only them, so both survive as first-class
// fields next to Conditions.
type Card struct {
	Name           string   `json:"name"`
	Rarity         string   `json:"rarity,omitempty"`
	Colors         []string `json:"colors,omitempty"`
	Foil           bool     `json:"foil"`
	CollectionName string   `json:"collectionName"`
	CollectionID   string   `json:"collectionId"`
	SetCode        string   `json:"setCode,omitempty"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	DetailURL      string   `json:"detailUrl,omitempty"`

	Conditions []ConditionOffer `json:"conditions,omitempty"`

	// Price is the cheapest relevant price in minor currency units, 0 when
	// no valid price was observed. Stock is the total across all grades.
	Price int `json:"price"`
	Stock int `json:"stock"`
}

// ColorColorless marks a card with none of the five color flags set.
const ColorColorless = "colorless"

// Normalize recomputes the cached Price/Stock fields from the
// per-condition offers. The cheapest price is taken from in-stock
// positively-priced offers first, then any positively-priced offer, then
// whatever single price the record already carried (the legacy shape),
// else 0. This is the only place that distinguishes the legacy
// single-price shape from the conditions shape; everything downstream
// reads the recomputed fields.
func (c *Card) Normalize() {
	if len(c.Conditions) == 0 {
		return
	}

	minStocked := 0
	minAny := 0
	total := 0
	for _, offer := range c.Conditions {
		total += offer.Stock
		if offer.PriceCents <= 0 {
			continue
		}
		if minAny == 0 || offer.PriceCents < minAny {
			minAny = offer.PriceCents
		}
		if offer.Stock > 0 && (minStocked == 0 || offer.PriceCents < minStocked) {
			minStocked = offer.PriceCents
		}
	}

	switch {
	case minStocked > 0:
		c.Price = minStocked
	case minAny > 0:
		c.Price = minAny
	}
	c.Stock = total
}

// HasPurchasableOffer reports whether any grade is in stock with a
// positive price.
func (c *Card) HasPurchasableOffer() bool {
	for _, offer := range c.Conditions {
		if offer.Purchasable() {
			return true
		}
	}
	return false
}
