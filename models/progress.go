package models

import "time"

// CollectionRef identifies one sellable collection discovered on the
// storefront's catalog.
type CollectionRef struct {
	ID   string
	Name string
	URL  string
}

// ScrapeProgress is the resumable snapshot of a run: every card
// accumulated so far plus the ids of collections already handled.
type ScrapeProgress struct {
	RunID                  string    `json:"runId,omitempty"`
	Timestamp              time.Time `json:"timestamp"`
	CollectionsProcessed   int       `json:"collectionsProcessed"`
	CollectionsSkipped     int       `json:"collectionsSkipped"`
	TotalCards             int       `json:"totalCards"`
	ProcessedCollectionIDs []string  `json:"processedCollectionIds"`
	SkippedCollectionIDs   []string  `json:"skippedCollectionIds"`
	Cards                  []Card    `json:"cards"`
}

// MarkProcessed records a collection whose cards made it into the dataset.
func (p *ScrapeProgress) MarkProcessed(id string) {
	p.ProcessedCollectionIDs = append(p.ProcessedCollectionIDs, id)
	p.CollectionsProcessed = len(p.ProcessedCollectionIDs)
}

// MarkSkipped records a collection that yielded nothing, whether empty,
// unreachable, or rejected wholesale.
func (p *ScrapeProgress) MarkSkipped(id string) {
	p.SkippedCollectionIDs = append(p.SkippedCollectionIDs, id)
	p.CollectionsSkipped = len(p.SkippedCollectionIDs)
}

// Append adds freshly extracted cards and refreshes the counters.
func (p *ScrapeProgress) Append(cards []Card) {
	p.Cards = append(p.Cards, cards...)
	p.TotalCards = len(p.Cards)
}

// DoneIDs returns the set of collection ids this run no longer needs to
// visit, processed and skipped alike.
func (p *ScrapeProgress) DoneIDs() map[string]struct{} {
	done := make(map[string]struct{}, len(p.ProcessedCollectionIDs)+len(p.SkippedCollectionIDs))
	for _, id := range p.ProcessedCollectionIDs {
		done[id] = struct{}{}
	}
	for _, id := range p.SkippedCollectionIDs {
		done[id] = struct{}{}
	}
	return done
}

// RunMetadata describes the run that produced an output artifact.
type RunMetadata struct {
	RunID           string  `json:"runId"`
	Source          string  `json:"source"`
	ScraperVersion  string  `json:"scraperVersion"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// ScrapeOutput is the final artifact of a completed run.
type ScrapeOutput struct {
	LastUpdated          string      `json:"lastUpdated"`
	TotalCards           int         `json:"totalCards"`
	CollectionsProcessed int         `json:"collectionsProcessed"`
	CollectionsSkipped   int         `json:"collectionsSkipped"`
	TotalCollections     int         `json:"totalCollections"`
	CompletionPercentage string      `json:"completionPercentage"`
	Cards                []Card      `json:"cards"`
	Metadata             RunMetadata `json:"metadata"`
}

// PartialOutput is the reduced artifact written on abort: raw accumulated
// cards without consolidation, flagged so consumers can tell it apart.
type PartialOutput struct {
	LastUpdated          string `json:"lastUpdated"`
	TotalCards           int    `json:"totalCards"`
	CollectionsProcessed int    `json:"collectionsProcessed"`
	IsPartial            bool   `json:"isPartial"`
	Cards                []Card `json:"cards"`
}

// RejectionTally counts cards dropped at extraction time by reason. The
// tallies are informational; rejects never become errors.
type RejectionTally map[string]int

// Rejection reasons used by the extractor.
const (
	RejectMissingName  = "missing_name"
	RejectNoConditions = "no_conditions"
	RejectNoPrice      = "no_price"
	RejectMissingSet   = "missing_set"
)

// Add increments the tally for a reason.
func (t RejectionTally) Add(reason string) {
	t[reason]++
}

// Merge folds another tally into this one.
func (t RejectionTally) Merge(other RejectionTally) {
	for reason, n := range other {
		t[reason] += n
	}
}

// Total returns the number of rejected cards across all reasons.
func (t RejectionTally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}
