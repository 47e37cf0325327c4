package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deckcheck/inventory-scraper/models"
)

func buildCatalogPage(links ...[2]string) string {
	var b strings.Builder
	b.WriteString("<html><body><nav class=\"collections\">")
	for _, link := range links {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, link[0], link[1])
	}
	b.WriteString("</nav></body></html>")
	return b.String()
}

type stubFetcher struct {
	body []byte
	err  error
	urls []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return nil, s.err
	}
	return s.body, nil
}

func TestLiveSourceCollections(t *testing.T) {
	page := buildCatalogPage(
		[2]string{"/collection?collectionId=12", "Foundations"},
		[2]string{"/collection?collectionId=31", "  Bloomburrow:\n   Alania "},
		[2]string{"/news/restock", "Restock news"},
		[2]string{"/collection?collectionId=12", "Foundations"},
		[2]string{"https://other.example.test/collection?collectionId=99", "Commander Masters"},
	)
	fetcher := &stubFetcher{body: []byte(page)}

	refs, err := NewLiveSource(fetcher, "https://shop.example.test/collections").Collections(context.Background())
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(fetcher.urls) != 1 || fetcher.urls[0] != "https://shop.example.test/collections" {
		t.Fatalf("fetched urls = %v", fetcher.urls)
	}
	if len(refs) != 3 {
		t.Fatalf("refs = %d, want 3 (dedup + link filter): %+v", len(refs), refs)
	}
	if refs[0].ID != "12" || refs[0].Name != "Foundations" {
		t.Fatalf("first ref = %+v", refs[0])
	}
	if refs[0].URL != "https://shop.example.test/collection?collectionId=12" {
		t.Fatalf("relative link not resolved: %q", refs[0].URL)
	}
	if refs[1].Name != "Bloomburrow: Alania" {
		t.Fatalf("anchor text not normalized: %q", refs[1].Name)
	}
	if refs[2].URL != "https://other.example.test/collection?collectionId=99" {
		t.Fatalf("absolute link rewritten: %q", refs[2].URL)
	}
}

func TestLiveSourceFetchError(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("boom")}
	_, err := NewLiveSource(fetcher, "https://shop.example.test/collections").Collections(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestSnapshotSourceCollections(t *testing.T) {
	page := buildCatalogPage(
		[2]string{"/collection?collectionId=7", "Duskmourn"},
		[2]string{"/collection?collectionId=8", "Duskmourn"},
	)
	path := filepath.Join(t.TempDir(), "catalog.html")
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	refs, err := NewSnapshotSource(path, "https://shop.example.test").Collections(context.Background())
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("refs = %d, want 2 (same name, distinct ids)", len(refs))
	}
	if refs[0].ID != "7" || refs[1].ID != "8" {
		t.Fatalf("ids = %q, %q", refs[0].ID, refs[1].ID)
	}
}

func TestSnapshotSourceMissingFile(t *testing.T) {
	src := NewSnapshotSource(filepath.Join(t.TempDir(), "absent.html"), "https://shop.example.test")
	if _, err := src.Collections(context.Background()); err == nil {
		t.Fatalf("expected error for missing snapshot")
	}
}

func refsNamed(names ...string) []models.CollectionRef {
	refs := make([]models.CollectionRef, len(names))
	for i, name := range names {
		refs[i] = models.CollectionRef{ID: fmt.Sprintf("%d", i+1), Name: name}
	}
	return refs
}

func namesOf(refs []models.CollectionRef) []string {
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return names
}

func TestPrioritizeOrdersByPriorityList(t *testing.T) {
	refs := refsNamed("Foundations", "Bloomburrow: Alania", "Commander Masters")
	got := namesOf(Prioritize(refs, []string{"Bloomburrow", "Commander"}))
	want := []string{"Bloomburrow: Alania", "Commander Masters", "Foundations"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestPrioritizeFirstMatchingTermWins(t *testing.T) {
	refs := refsNamed("Commander Bloomburrow Deck", "Bloomburrow Boosters")
	got := namesOf(Prioritize(refs, []string{"Bloomburrow", "Commander"}))
	// Both take the Bloomburrow rank, so discovery order holds.
	want := []string{"Commander Bloomburrow Deck", "Bloomburrow Boosters"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestPrioritizeKeepsDiscoveryOrderWithoutMatches(t *testing.T) {
	refs := refsNamed("Zeta", "Alpha", "Midway")
	got := namesOf(Prioritize(refs, []string{"Commander"}))
	want := []string{"Zeta", "Alpha", "Midway"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestPrioritizeEmptyList(t *testing.T) {
	refs := refsNamed("B", "A")
	got := Prioritize(refs, nil)
	if len(got) != 2 || got[0].Name != "B" {
		t.Fatalf("order changed without priorities: %v", namesOf(got))
	}
}
