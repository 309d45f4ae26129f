// Command genmock regenerates the golden CSV fixture from the stored article
// snapshot and model completion. It runs the actual extraction, parsing, and
// writing packages so the fixture tracks real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -article data/mock/season_1975.html \
//	  -completion data/mock/completion_1975.txt \
//	  -out data/mock/hurricanes_1975.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/storm-data-backfill/internal/adapter/csvfile"
	"github.com/couchcryptid/storm-data-backfill/internal/adapter/wikipedia"
	"github.com/couchcryptid/storm-data-backfill/internal/domain"
	"github.com/couchcryptid/storm-data-backfill/internal/observability"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	article := flag.String("article", "", "path to the stored article HTML snapshot")
	completion := flag.String("completion", "", "path to the stored model completion")
	out := flag.String("out", "", "output path for the golden CSV fixture")
	flag.Parse()

	if *article == "" || *completion == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -article, -completion, -out")
	}

	html, err := os.ReadFile(*article)
	if err != nil {
		return fmt.Errorf("read article snapshot: %w", err)
	}
	markdown, heading, err := wikipedia.ExtractSeasonTable(html)
	if err != nil {
		return fmt.Errorf("extract season table: %w", err)
	}
	log.Printf("%s: %d bytes of season table markdown", heading, len(markdown))

	text, err := os.ReadFile(*completion)
	if err != nil {
		return fmt.Errorf("read completion: %w", err)
	}
	table, dropped, err := domain.ExtractTable(string(text))
	if err != nil {
		return fmt.Errorf("parse completion: %w", err)
	}
	log.Printf("completion table: %d rows (%d dropped)", len(table.Rows), dropped)

	if err := writeCSV(*out, table); err != nil {
		return fmt.Errorf("write golden fixture: %w", err)
	}
	log.Printf("wrote golden fixture: %s", *out)

	printRows(table)
	return nil
}

// writeCSV writes the fixture through the production writer so quoting and
// header canonicalization stay in lockstep with pipeline output.
func writeCSV(path string, table domain.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writer := csvfile.NewWriter(path, logger, observability.NewMetricsForTesting())
	return writer.WriteTable(context.Background(), table)
}

func printRows(table domain.Table) {
	fmt.Println("\n=== Rows for updating test assertions ===")
	fmt.Println(strings.Join(domain.CanonicalizeHeader(table.Header), " | "))
	for _, row := range table.Rows {
		fmt.Println(strings.Join(row, " | "))
	}
}
