package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Canonical output column names expected by downstream loaders.
const (
	ColStormName     = "hurricane_storm_name"
	ColDateStart     = "date_start"
	ColDateEnd       = "date_end"
	ColAreasAffected = "list_of_areas_affected"
	ColDeaths        = "number_of_deaths"
)

// ErrNoTable reports a completion with no recognizable table region, in
// neither Markdown nor JSON form.
var ErrNoTable = errors.New("no table found in completion")

var (
	// tableRowRe matches one Markdown table row: a line whose content is
	// enclosed in pipes, e.g. "| Amy | June 27 | July 4 | ... | 1 |".
	tableRowRe = regexp.MustCompile(`^\s*\|.*\|\s*$`)

	// separatorRe matches the header/body separator row, tolerating padding
	// and alignment colons: "| --- | --- |", "|:---|---:|", "| :-: |".
	separatorRe = regexp.MustCompile(`^\s*\|(\s*:?-+:?\s*\|)+\s*$`)
)

// canonicalColumns maps normalized completion headers to canonical output
// names. The canonical names themselves are included so already-canonical
// input passes through unchanged.
var canonicalColumns = map[string]string{
	"stormname":           ColStormName,
	"hurricanestormname":  ColStormName,
	"datestart":           ColDateStart,
	"dateend":             ColDateEnd,
	"areasaffected":       ColAreasAffected,
	"listofareasaffected": ColAreasAffected,
	"deaths":              ColDeaths,
	"numberofdeaths":      ColDeaths,
}

// ExtractTable isolates the table region from a model completion. It first
// looks for a Markdown table (header row, separator row, data rows), ignoring
// prose around the region; when no Markdown table exists it falls back to a
// JSON array of storm objects, repaired with jsonrepair if needed. The int
// result counts data rows dropped for not matching the header's cell count.
// Returns ErrNoTable when neither shape is present.
func ExtractTable(completion string) (Table, int, error) {
	if table, dropped, ok := parseMarkdownTable(completion); ok {
		return table, dropped, nil
	}
	if table, ok := parseJSONRows(completion); ok {
		return table, 0, nil
	}
	return Table{}, 0, ErrNoTable
}

// parseMarkdownTable scans for the first header+separator pair and collects
// the contiguous row block that follows. Stray separator rows inside the body
// are skipped; ragged rows are dropped and counted.
func parseMarkdownTable(completion string) (Table, int, bool) {
	lines := strings.Split(completion, "\n")
	for i := 0; i+1 < len(lines); i++ {
		if separatorRe.MatchString(lines[i]) {
			continue
		}
		if !tableRowRe.MatchString(lines[i]) || !separatorRe.MatchString(lines[i+1]) {
			continue
		}

		header := splitRow(lines[i])
		var rows [][]string
		dropped := 0
		for _, line := range lines[i+2:] {
			if !tableRowRe.MatchString(line) {
				break
			}
			if separatorRe.MatchString(line) {
				continue
			}
			cells := splitRow(line)
			if len(cells) != len(header) {
				dropped++
				continue
			}
			rows = append(rows, cells)
		}
		return Table{Header: header, Rows: rows}, dropped, true
	}
	return Table{}, 0, false
}

// splitRow splits a Markdown table row into trimmed cells. Escaped pipes are
// not handled; season summaries do not contain them.
func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, part := range parts {
		cells[i] = strings.TrimSpace(part)
	}
	return cells
}

// parseJSONRows recovers a table from a completion that answered with a JSON
// array of storm objects instead of Markdown. Keys are matched on normalized
// form and emitted in ModelColumns order so the result is deterministic
// regardless of Go's map iteration.
func parseJSONRows(completion string) (Table, bool) {
	start := strings.Index(completion, "[")
	end := strings.LastIndex(completion, "]")
	if start < 0 || end <= start {
		return Table{}, false
	}

	objs, ok := decodeObjects(completion[start : end+1])
	if !ok || len(objs) == 0 {
		return Table{}, false
	}

	matched := false
	rows := make([][]string, 0, len(objs))
	for _, obj := range objs {
		normalized := make(map[string]string, len(obj))
		for key, value := range obj {
			normalized[normalizeColumn(key)] = stringifyCell(value)
		}
		row := make([]string, len(ModelColumns))
		for i, col := range ModelColumns {
			if cell, ok := normalized[normalizeColumn(col)]; ok {
				row[i] = cell
				matched = true
			}
		}
		rows = append(rows, row)
	}
	if !matched {
		return Table{}, false
	}
	return Table{Header: append([]string(nil), ModelColumns...), Rows: rows}, true
}

// decodeObjects decodes a JSON array of objects, running the text through
// jsonrepair when the first decode fails. Models emit trailing commas,
// single quotes, and unquoted keys; the repair pass recovers those.
func decodeObjects(raw string) ([]map[string]any, bool) {
	objs, err := decodeNumberPreserving(raw)
	if err == nil {
		return objs, true
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, false
	}
	objs, err = decodeNumberPreserving(repaired)
	if err != nil {
		return nil, false
	}
	return objs, true
}

func decodeNumberPreserving(raw string) ([]map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var objs []map[string]any
	if err := dec.Decode(&objs); err != nil {
		return nil, err
	}
	return objs, nil
}

// stringifyCell renders a decoded JSON value as a cell. UseNumber upstream
// keeps death counts as their literal digits instead of float notation.
func stringifyCell(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}

// CanonicalizeHeader renames completion headers to the canonical output
// names. Headers with no canonical mapping are snake_cased as-is so an
// off-prompt completion still produces a loadable file.
func CanonicalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, cell := range header {
		if name, ok := canonicalColumns[normalizeColumn(cell)]; ok {
			out[i] = name
			continue
		}
		out[i] = snakeCase(cell)
	}
	return out
}

// normalizeColumn reduces a header cell to lowercase letters and digits so
// "Storm Name", "Stormname", and "storm_name" all compare equal.
func normalizeColumn(cell string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(cell) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// snakeCase lowercases a header cell and collapses non-alphanumeric runs to
// single underscores, e.g. "Max winds (mph)" -> "max_winds_mph".
func snakeCase(cell string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(cell) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
