// Package extractor turns one collection's listing page into normalized
// card records with a per-condition price/stock breakdown.
//
// The storefront renders each card as a container element whose
// machine-readable fields live in data attributes; the human-readable
// sale rows inside it carry one grade each. Attributes are authoritative,
// text is parsed defensively: a malformed container costs that one card,
// never the page.
package extractor

import (
	"bytes"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/deckcheck/inventory-scraper/models"
)

// Selectors for the storefront's listing markup.
const (
	cardSelector      = "div.card-item"
	saleSelector      = "div.sale-item"
	conditionSelector = ".condition"
	stockSelector     = ".amount .count"
	priceSelector     = ".price"
	setLabelSelector  = ".set-label"
	imageSelector     = "img.card-image"
	detailSelector    = "a.card-link"
)

// colorAttrs maps the container's boolean color attributes to the color
// names carried on the record.
var colorAttrs = []struct {
	attr  string
	color string
}{
	{"data-white", "white"},
	{"data-blue", "blue"},
	{"data-black", "black"},
	{"data-red", "red"},
	{"data-green", "green"},
}

// Extractor parses collection pages fetched from a single storefront.
type Extractor struct {
	baseURL *url.URL
	// maxCards caps accepted cards per page; 0 means unbounded.
	maxCards int
}

// New builds an extractor that rewrites relative links against baseURL.
func New(baseURL string, maxCards int) (*Extractor, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if maxCards < 0 {
		maxCards = 0
	}
	return &Extractor{baseURL: parsed, maxCards: maxCards}, nil
}

// Listings extracts every accepted card from the page in document order,
// tagged with the owning collection. Cards failing the acceptance checks
// (name, at least one usable condition, a positive price, a collection or
// set label) are dropped and tallied by reason.
func (e *Extractor) Listings(doc *goquery.Document, collection models.CollectionRef) ([]models.Card, models.RejectionTally) {
	var cards []models.Card
	rejects := make(models.RejectionTally)

	doc.Find(cardSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		card := e.card(sel, collection)
		if reason := acceptanceFailure(card); reason != "" {
			rejects.Add(reason)
			return true
		}
		cards = append(cards, card)
		return e.maxCards == 0 || len(cards) < e.maxCards
	})

	return cards, rejects
}

func (e *Extractor) card(sel *goquery.Selection, collection models.CollectionRef) models.Card {
	card := models.Card{
		Name:           strings.TrimSpace(sel.AttrOr("data-name", "")),
		Rarity:         strings.TrimSpace(sel.AttrOr("data-rarity", "")),
		Foil:           sel.AttrOr("data-foil", "") == "true",
		Colors:         colors(sel),
		CollectionName: collection.Name,
		CollectionID:   collection.ID,
		SetCode:        strings.TrimSpace(sel.Find(setLabelSelector).First().Text()),
		ImageURL:       e.absoluteURL(sel.Find(imageSelector).First().AttrOr("src", "")),
		DetailURL:      e.absoluteURL(sel.Find(detailSelector).First().AttrOr("href", "")),
	}

	sel.Find(saleSelector).Each(func(_ int, sale *goquery.Selection) {
		offer := models.ConditionOffer{
			Condition:  models.Condition(strings.TrimSpace(sale.Find(conditionSelector).First().Text())),
			Stock:      parseStock(sale.Find(stockSelector).First().Text()),
			PriceCents: ParsePriceCents(sale.Find(priceSelector).First().Text()),
			SourceID:   sale.AttrOr("data-sale-id", ""),
		}
		if !offer.Usable() {
			return
		}
		card.Conditions = append(card.Conditions, offer)
	})

	card.Normalize()
	return card
}

func colors(sel *goquery.Selection) []string {
	var out []string
	for _, c := range colorAttrs {
		if sel.AttrOr(c.attr, "") == "true" {
			out = append(out, c.color)
		}
	}
	if len(out) == 0 {
		return []string{models.ColorColorless}
	}
	return out
}

// acceptanceFailure returns the rejection reason for an unusable card, or
// "" when the card belongs in the dataset. Checks run in a fixed order so
// a card failing several counts once, under its first failure.
func acceptanceFailure(card models.Card) string {
	switch {
	case card.Name == "":
		return models.RejectMissingName
	case len(card.Conditions) == 0:
		return models.RejectNoConditions
	case card.Price <= 0:
		return models.RejectNoPrice
	case card.CollectionName == "" && card.SetCode == "":
		return models.RejectMissingSet
	}
	return ""
}

var priceNumber = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// ParsePriceCents converts a localized price string such as "0.26 €" to
// integer minor units (26). Comma decimals are accepted. Strings without
// a number yield 0.
func ParsePriceCents(text string) int {
	match := priceNumber.FindString(text)
	if match == "" {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil {
		return 0
	}
	return int(math.Round(value * 100))
}

func parseStock(text string) int {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (e *Extractor) absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return e.baseURL.ResolveReference(parsed).String()
}

// ContainsCards reports whether the page body lists at least one card
// container. The empty-collection pre-check uses this without paying for
// full extraction; an unparseable body reads as empty.
func ContainsCards(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find(cardSelector).Length() > 0
}
