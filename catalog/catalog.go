// Package catalog discovers the storefront's sellable collections and
// orders them for scraping.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/deckcheck/inventory-scraper/models"
)

// collectionIDParam is the query parameter that marks a hyperlink as a
// collection listing link.
const collectionIDParam = "collectionId"

// PageFetcher retrieves one page of raw HTML. The fetcher package's
// client satisfies this.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Source yields the deduplicated collection list in discovery order.
type Source interface {
	Collections(ctx context.Context) ([]models.CollectionRef, error)
}

// LiveSource discovers collections from the storefront's catalog index
// page.
type LiveSource struct {
	fetcher    PageFetcher
	catalogURL string
}

// NewLiveSource builds a source that fetches catalogURL on demand.
func NewLiveSource(fetcher PageFetcher, catalogURL string) *LiveSource {
	return &LiveSource{fetcher: fetcher, catalogURL: catalogURL}
}

func (s *LiveSource) Collections(ctx context.Context) ([]models.CollectionRef, error) {
	body, err := s.fetcher.Fetch(ctx, s.catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse catalog page: %w", err)
	}
	return collectionLinks(doc, s.catalogURL), nil
}

// SnapshotSource discovers collections from a previously saved copy of
// the catalog page, so runs can be replayed without hitting the site.
type SnapshotSource struct {
	path    string
	baseURL string
}

// NewSnapshotSource builds a source backed by the HTML file at path.
// Relative collection links are resolved against baseURL.
func NewSnapshotSource(path, baseURL string) *SnapshotSource {
	return &SnapshotSource{path: path, baseURL: baseURL}
}

func (s *SnapshotSource) Collections(_ context.Context) ([]models.CollectionRef, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog snapshot: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse catalog snapshot: %w", err)
	}
	return collectionLinks(doc, s.baseURL), nil
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// collectionLinks scans every anchor carrying a collection-id query
// parameter and returns one ref per distinct (id, name) pair, in
// document order.
func collectionLinks(doc *goquery.Document, baseURL string) []models.CollectionRef {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	type key struct{ id, name string }
	seen := make(map[key]struct{})
	var refs []models.CollectionRef

	doc.Find("a[href*='" + collectionIDParam + "=']").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		link, err := url.Parse(href)
		if err != nil {
			return
		}
		id := link.Query().Get(collectionIDParam)
		if id == "" {
			return
		}

		name := strings.TrimSpace(sel.Text())
		name = innerWhitespace.ReplaceAllString(name, " ")

		k := key{id: id, name: name}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}

		if base != nil {
			link = base.ResolveReference(link)
		}
		refs = append(refs, models.CollectionRef{
			ID:   id,
			Name: name,
			URL:  link.String(),
		})
	})

	return refs
}

// Prioritize reorders collections so that those whose name contains a
// priority term come first, keyed by the term's position in the list
// (the first matching term wins when a name contains several).
// Collections matching no term keep their discovery order at the back.
func Prioritize(refs []models.CollectionRef, priorities []string) []models.CollectionRef {
	if len(priorities) == 0 || len(refs) == 0 {
		return refs
	}

	rank := func(name string) int {
		lower := strings.ToLower(name)
		for i, term := range priorities {
			if term != "" && strings.Contains(lower, strings.ToLower(term)) {
				return i
			}
		}
		return len(priorities)
	}

	ordered := make([]models.CollectionRef, len(refs))
	copy(ordered, refs)
	// Stability matters beyond cosmetics: consolidation ties are broken
	// by whichever record was scraped first.
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i].Name) < rank(ordered[j].Name)
	})
	return ordered
}
