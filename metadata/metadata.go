// Package metadata looks up card details from a Scryfall-compatible
// API. The scrape pipeline never calls it; it is the companion client
// for consumers that want oracle text, mana costs, and imagery to go
// with the scraped inventory.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.scryfall.com"

// ErrNotFound reports that the API knows no card matching the request.
var ErrNotFound = errors.New("card not found")

// CardInfo is the subset of API card fields consumers read.
type CardInfo struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	SetCode    string            `json:"set"`
	SetName    string            `json:"set_name"`
	Rarity     string            `json:"rarity"`
	ManaCost   string            `json:"mana_cost"`
	TypeLine   string            `json:"type_line"`
	OracleText string            `json:"oracle_text"`
	Colors     []string          `json:"colors"`
	ImageURIs  map[string]string `json:"image_uris"`
}

type searchPage struct {
	Data       []CardInfo `json:"data"`
	HasMore    bool       `json:"has_more"`
	TotalCards int        `json:"total_cards"`
}

// State carries the client's mutable pieces: the pacing clock and the
// response caches. It is passed in at construction rather than living
// at package level, so separate clients (and tests) stay isolated.
type State struct {
	mu          sync.Mutex
	lastRequest time.Time

	cards    *expirable.LRU[string, CardInfo]
	searches *expirable.LRU[string, []CardInfo]
}

// NewState builds a state whose caches hold up to size entries for ttl.
func NewState(size int, ttl time.Duration) *State {
	if size <= 0 {
		size = 512
	}
	return &State{
		cards:    expirable.NewLRU[string, CardInfo](size, nil, ttl),
		searches: expirable.NewLRU[string, []CardInfo](size, nil, ttl),
	}
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API root. Empty means DefaultBaseURL.
	BaseURL string
	// MinInterval is the minimum spacing between API requests; the
	// public API asks clients to leave 50-100ms between calls.
	MinInterval time.Duration
	Timeout     time.Duration
	UserAgent   string
	// Transport overrides the HTTP transport, used by tests to serve
	// canned responses.
	Transport http.RoundTripper
}

// Client is a rate-paced, caching metadata API client.
type Client struct {
	http        *resty.Client
	state       *State
	minInterval time.Duration
}

// New builds a client around state. A nil state gets a private one with
// default sizing, which is fine for single-owner use.
func New(opts Options, state *State) *Client {
	if state == nil {
		state = NewState(512, 15*time.Minute)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	minInterval := opts.MinInterval
	if minInterval <= 0 {
		minInterval = 100 * time.Millisecond
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimSuffix(baseURL, "/"))
	httpClient.SetTimeout(timeout)
	if opts.UserAgent != "" {
		httpClient.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Transport != nil {
		httpClient.SetTransport(opts.Transport)
	}

	return &Client{http: httpClient, state: state, minInterval: minInterval}
}

// NamedCard fetches one card by its exact name, consulting the cache
// first. A card the API does not know yields ErrNotFound.
func (c *Client) NamedCard(ctx context.Context, name string) (CardInfo, error) {
	key := cacheKey(name)
	if key == "" {
		return CardInfo{}, fmt.Errorf("card name cannot be empty")
	}
	if card, hit := c.state.cards.Get(key); hit {
		return card, nil
	}

	if err := c.pace(ctx); err != nil {
		return CardInfo{}, err
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("exact", name).
		Get("/cards/named")
	if err != nil {
		return CardInfo{}, fmt.Errorf("fetch card metadata: %w", err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return CardInfo{}, ErrNotFound
	}
	if res.StatusCode() != http.StatusOK {
		return CardInfo{}, fmt.Errorf("card metadata request failed with status %d", res.StatusCode())
	}

	var card CardInfo
	if err := json.Unmarshal(res.Body(), &card); err != nil {
		return CardInfo{}, fmt.Errorf("decode card metadata: %w", err)
	}
	c.state.cards.Add(key, card)
	slog.Debug("card metadata fetched", slog.String("name", card.Name))
	return card, nil
}

// Search runs a full-text query with fuzzy matching off and returns the
// first page of results. A query with no matches yields ErrNotFound.
func (c *Client) Search(ctx context.Context, query string) ([]CardInfo, error) {
	key := cacheKey(query)
	if key == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if cards, hit := c.state.searches.Get(key); hit {
		return cards, nil
	}

	if err := c.pace(ctx); err != nil {
		return nil, err
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("unique", "cards").
		SetQueryParam("order", "name").
		Get("/cards/search")
	if err != nil {
		return nil, fmt.Errorf("search card metadata: %w", err)
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("card search request failed with status %d", res.StatusCode())
	}

	var page searchPage
	if err := json.Unmarshal(res.Body(), &page); err != nil {
		return nil, fmt.Errorf("decode card search: %w", err)
	}
	c.state.searches.Add(key, page.Data)
	slog.Debug("card search fetched",
		slog.String("query", query),
		slog.Int("results", len(page.Data)),
	)
	return page.Data, nil
}

// pace enforces the minimum spacing between requests. The next slot is
// reserved before sleeping, so concurrent callers queue up rather than
// stampede when their timers fire.
func (c *Client) pace(ctx context.Context) error {
	if c.minInterval <= 0 {
		return ctx.Err()
	}

	c.state.mu.Lock()
	wait := c.minInterval - time.Since(c.state.lastRequest)
	if wait < 0 {
		wait = 0
	}
	c.state.lastRequest = time.Now().Add(wait)
	c.state.mu.Unlock()

	if wait == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cacheKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
