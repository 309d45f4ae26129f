// Package csvfile writes extracted season tables to a local CSV artifact.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/storm-data-backfill/internal/domain"
	"github.com/couchcryptid/storm-data-backfill/internal/observability"
)

// Writer serializes a table to a fixed path, replacing any previous artifact.
type Writer struct {
	path    string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a CSV writer for the configured output path.
func NewWriter(path string, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{
		path:    path,
		metrics: metrics,
		logger:  logger,
	}
}

// WriteTable writes the canonicalized header and all data rows. The file is
// created or truncated in place; a run that fails in an earlier stage never
// reaches this point, so a previous artifact survives failed runs. Cells keep
// embedded commas, the csv package quotes them.
func (w *Writer) WriteTable(ctx context.Context, table domain.Table) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(domain.CanonicalizeHeader(table.Header)); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range table.Rows {
		if err := cw.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}

	w.metrics.RecordsWritten.Add(float64(len(table.Rows)))
	w.logger.Info("table written", "path", w.path, "rows", len(table.Rows))
	return nil
}
