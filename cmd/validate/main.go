// Command validate performs integrity checks across the backfill fixtures:
// the stored article snapshot, the stored model completion, and the golden
// CSV. It verifies extraction, completion parsing, cross-source consistency,
// and that the golden file matches production output byte for byte.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -article data/mock/season_1975.html \
//	  -completion data/mock/completion_1975.txt \
//	  -golden data/mock/hurricanes_1975.csv
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/storm-data-backfill/internal/adapter/csvfile"
	"github.com/couchcryptid/storm-data-backfill/internal/adapter/wikipedia"
	"github.com/couchcryptid/storm-data-backfill/internal/domain"
	"github.com/couchcryptid/storm-data-backfill/internal/observability"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	article := flag.String("article", "", "path to the stored article HTML snapshot")
	completion := flag.String("completion", "", "path to the stored model completion")
	golden := flag.String("golden", "", "path to the golden CSV fixture")
	flag.Parse()

	if *article == "" || *completion == "" || *golden == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*article, *completion, *golden); code != 0 {
		os.Exit(code)
	}
}

func run(articlePath, completionPath, goldenPath string) int {
	fmt.Println("=== Backfill Fixture Integrity Validation ===")
	fmt.Println()

	html, err := os.ReadFile(articlePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load article snapshot: %v\n", err)
		return 1
	}
	completionText, err := os.ReadFile(completionPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load completion: %v\n", err)
		return 1
	}
	golden, err := os.ReadFile(goldenPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load golden CSV: %v\n", err)
		return 1
	}

	markdown, heading, extractErr := wikipedia.ExtractSeasonTable(html)
	table, dropped, parseErr := domain.ExtractTable(string(completionText))

	// ── Run validation phases ──
	phases := []*phase{
		validateArticle(markdown, heading, extractErr),
		validateCompletion(table, dropped, parseErr),
		validateCrossSource(markdown, table),
		validateGolden(golden, table),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Sources: article %d bytes, completion %d rows, golden %d bytes\n",
		len(html), len(table.Rows), len(golden))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Article Extraction ──
// Validates that the article snapshot yields a usable season table.

func validateArticle(markdown, heading string, extractErr error) *phase {
	p := &phase{name: "Phase 1: Article Extraction"}

	if extractErr != nil {
		p.errorf("extract season table: %v", extractErr)
		return p
	}
	if heading == "" {
		p.errorf("article has no first heading")
	}
	if markdown == "" {
		p.errorf("extraction produced no markdown")
	}
	if strings.Contains(markdown, "cite_note") {
		p.errorf("footnote markers survived pruning")
	}
	return p
}

// ── Phase 2: Completion Parsing ──
// Validates the stored completion parses into a clean canonical table.

func validateCompletion(table domain.Table, dropped int, parseErr error) *phase {
	p := &phase{name: "Phase 2: Completion Parsing"}

	if parseErr != nil {
		p.errorf("parse completion: %v", parseErr)
		return p
	}
	if dropped > 0 {
		p.errorf("%d ragged rows dropped; fixture rows should all match the header", dropped)
	}
	if len(table.Rows) == 0 {
		p.errorf("no data rows in completion table")
	}

	required := []string{domain.ColStormName, domain.ColDateStart, domain.ColDateEnd, domain.ColAreasAffected, domain.ColDeaths}
	for _, col := range required {
		if columnIndex(table, col) < 0 {
			p.errorf("canonical column %q missing from completion header", col)
		}
	}

	nameIdx := columnIndex(table, domain.ColStormName)
	if nameIdx < 0 {
		return p
	}
	seen := map[string]int{}
	for i, row := range table.Rows {
		name := row[nameIdx]
		if name == "" {
			p.errorf("row %d: empty storm name", i+1)
			continue
		}
		if prev, dup := seen[name]; dup {
			p.errorf("row %d: duplicate storm %q (first at row %d)", i+1, name, prev)
		}
		seen[name] = i + 1
	}
	if startIdx := columnIndex(table, domain.ColDateStart); startIdx >= 0 {
		for i, row := range table.Rows {
			if row[startIdx] == "" {
				p.errorf("row %d: empty start date", i+1)
			}
		}
	}
	return p
}

// ── Phase 3: Cross-Source Consistency ──
// Validates that every storm in the completion exists in the article; the
// model must not invent storms.

func validateCrossSource(markdown string, table domain.Table) *phase {
	p := &phase{name: "Phase 3: Cross-Source Consistency"}

	nameIdx := columnIndex(table, domain.ColStormName)
	if nameIdx < 0 {
		p.errorf("completion table has no storm name column")
		return p
	}
	for _, row := range table.Rows {
		if name := row[nameIdx]; !strings.Contains(markdown, name) {
			p.errorf("storm %q not present in the article snapshot", name)
		}
	}
	return p
}

// ── Phase 4: Golden CSV Alignment ──
// Validates the golden file matches what the production writer emits for the
// parsed completion table.

func validateGolden(golden []byte, table domain.Table) *phase {
	p := &phase{name: "Phase 4: Golden CSV Alignment"}

	dir, err := os.MkdirTemp("", "backfill-validate")
	if err != nil {
		p.errorf("create temp dir: %v", err)
		return p
	}
	defer os.RemoveAll(dir)

	outPath := filepath.Join(dir, "out.csv")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writer := csvfile.NewWriter(outPath, logger, observability.NewMetricsForTesting())
	if err := writer.WriteTable(context.Background(), table); err != nil {
		p.errorf("write comparison CSV: %v", err)
		return p
	}
	produced, err := os.ReadFile(outPath)
	if err != nil {
		p.errorf("read comparison CSV: %v", err)
		return p
	}

	if !bytes.Equal(golden, produced) {
		p.errorf("golden CSV does not match production output; regenerate with cmd/genmock")
	}

	records, err := csv.NewReader(bytes.NewReader(golden)).ReadAll()
	if err != nil {
		p.errorf("parse golden CSV: %v", err)
		return p
	}
	if len(records) == 0 {
		p.errorf("golden CSV is empty")
		return p
	}
	if got, want := len(records)-1, len(table.Rows); got != want {
		p.errorf("golden row count: expected %d, got %d", want, got)
	}
	wantHeader := strings.Join(domain.CanonicalizeHeader(table.Header), ",")
	if gotHeader := strings.Join(records[0], ","); gotHeader != wantHeader {
		p.errorf("golden header: expected %q, got %q", wantHeader, gotHeader)
	}
	return p
}

// ── Helpers ──

// columnIndex finds a canonical column in the table header, or -1.
func columnIndex(table domain.Table, col string) int {
	for i, name := range domain.CanonicalizeHeader(table.Header) {
		if name == col {
			return i
		}
	}
	return -1
}
