package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ModelColumns are the season summary columns requested from the model, in
// output order. The prompt, the Markdown extractor, and the JSON fallback all
// agree on this shape.
var ModelColumns = []string{"Storm Name", "Date Start", "Date End", "Areas Affected", "Deaths"}

// SeasonTable is the pruned season summary extracted from a Wikipedia
// article, rendered as Markdown for the model.
type SeasonTable struct {
	SourceURL string
	Season    string // article heading, e.g. "1975 Atlantic hurricane season"
	Markdown  string
	FetchedAt time.Time
}

// Table holds the header and data rows recovered from a model completion.
// Cells are kept exactly as matched; no dedup, reordering, or coercion.
type Table struct {
	Header []string
	Rows   [][]string
}

// StormReport is the record-level representation of one canonical table row,
// destined for the backfill topic when publishing is enabled.
type StormReport struct {
	ID            string    `json:"id"`
	Season        string    `json:"season"`
	Name          string    `json:"name"`
	DateStart     string    `json:"date_start"`
	DateEnd       string    `json:"date_end"`
	AreasAffected string    `json:"areas_affected"`
	Deaths        string    `json:"deaths"`
	SourceURL     string    `json:"source_url"`
	ScrapedAt     time.Time `json:"scraped_at"`
}

// Message is the serialized form destined for the backfill topic.
type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// BuildReports lifts a table into StormReport records. The header is
// canonicalized first; it must yield the five canonical columns, in any order.
func BuildReports(table Table, season, sourceURL string) ([]StormReport, error) {
	header := CanonicalizeHeader(table.Header)
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, name := range []string{ColStormName, ColDateStart, ColDateEnd, ColAreasAffected, ColDeaths} {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("build reports: missing column %q", name)
		}
	}

	scrapedAt := clock.Now()
	reports := make([]StormReport, 0, len(table.Rows))
	for _, row := range table.Rows {
		name := row[idx[ColStormName]]
		dateStart := row[idx[ColDateStart]]
		dateEnd := row[idx[ColDateEnd]]
		reports = append(reports, StormReport{
			ID:            generateID(season, name, dateStart, dateEnd),
			Season:        season,
			Name:          name,
			DateStart:     dateStart,
			DateEnd:       dateEnd,
			AreasAffected: row[idx[ColAreasAffected]],
			Deaths:        row[idx[ColDeaths]],
			SourceURL:     sourceURL,
			ScrapedAt:     scrapedAt,
		})
	}
	return reports, nil
}

// generateID produces a deterministic ID from a report's key fields.
// Re-running a season yields the same IDs, so downstream upserts stay
// idempotent.
func generateID(season, name, dateStart, dateEnd string) string {
	input := fmt.Sprintf("%s|%s|%s|%s", season, name, dateStart, dateEnd)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	slug := nameSlug(name)
	if slug == "" {
		return short
	}
	return slug + "-" + short
}

// nameSlug lowercases a storm name and strips everything but letters and
// digits, e.g. "Tropical Storm Amy" -> "tropicalstormamy".
func nameSlug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SerializeReport marshals a report for publishing. The key is the report ID
// so partitioning groups re-runs of the same storm together.
func SerializeReport(report StormReport) (Message, error) {
	value, err := json.Marshal(report)
	if err != nil {
		return Message{}, fmt.Errorf("serialize report: %w", err)
	}

	return Message{
		Key:   []byte(report.ID),
		Value: value,
		Headers: map[string]string{
			"season":     report.Season,
			"scraped_at": report.ScrapedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}
