// Package domain models Wikipedia storm-season summary data.
//
// # Data Source
//
// Season records originate from Wikipedia season articles such as
// https://en.wikipedia.org/wiki/1975_Atlantic_hurricane_season. Each article
// carries a "Season summary" wikitable listing the named storms of the season
// with their active dates, affected areas, and death tolls. The backfill tool
// fetches one article per run, prunes the table to the columns of interest,
// and hands the result to a language model for restructuring.
//
// # Season Summary Tables
//
// The wikitable headers vary slightly across seasons and article revisions.
// Column matching is therefore done on a normalized form (lowercased, spaces
// and non-breaking spaces removed):
//
//	"Storm name" / "Stormname"  →  stormname
//	"Dates active"              →  datesactive
//	"Areas affected"            →  areasaffected
//	"Deaths"                    →  deaths
//
// Aggregate footer rows ("Season aggregates", totals) span columns and are
// dropped before the table is rendered for the model.
//
// # Completion Format
//
// The model is asked for a five-column Markdown table:
//
//	| Storm Name | Date Start | Date End | Areas Affected | Deaths |
//	| --- | --- | --- | --- | --- |
//	| Amy | June 27 | July 4 | East Coast of the United States | 1 |
//
// Extraction tolerates prose before and after the table region, padded or
// colon-aligned separator rows, and falls back to a JSON array of storm
// objects when the model ignores the Markdown instruction. Rows whose cell
// count differs from the header are dropped. A completion with neither shape
// fails with [ErrNoTable].
//
// # Canonical Columns
//
// Output headers are renamed to the snake_case names expected by downstream
// loaders:
//
//	Storm Name      →  hurricane_storm_name
//	Date Start      →  date_start
//	Date End        →  date_end
//	Areas Affected  →  list_of_areas_affected
//	Deaths          →  number_of_deaths
//
// Unrecognized headers are snake_cased as-is so off-prompt completions still
// produce a loadable file. See [CanonicalizeHeader].
//
// # ID Generation
//
// Report IDs are deterministic SHA-256 hashes of season|name|dates. Re-running
// a season produces the same IDs, which keeps downstream upserts idempotent
// (ON CONFLICT DO NOTHING) without distributed coordination. See [generateID].
package domain
