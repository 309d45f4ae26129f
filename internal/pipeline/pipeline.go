// Package pipeline wires the backfill stages into a single run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-backfill/internal/domain"
	"github.com/couchcryptid/storm-data-backfill/internal/observability"
)

// ErrNoRecords reports a completion whose table held no storm rows. The run
// fails rather than writing a header-only file.
var ErrNoRecords = errors.New("no storm records in completion")

// PageFetcher retrieves the season summary table from the source page.
type PageFetcher interface {
	FetchSeasonTable(ctx context.Context) (domain.SeasonTable, error)
}

// Refiner turns the season table into structured completion text.
type Refiner interface {
	Refine(ctx context.Context, seasonTable domain.SeasonTable) (string, error)
}

// TableWriter persists the parsed table.
type TableWriter interface {
	WriteTable(ctx context.Context, table domain.Table) error
}

// Publisher delivers storm reports to downstream consumers.
type Publisher interface {
	PublishBatch(ctx context.Context, reports []domain.StormReport) error
}

// Pipeline orchestrates the fetch-refine-parse-write run.
type Pipeline struct {
	fetcher   PageFetcher
	refiner   Refiner
	writer    TableWriter
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline with the given stages and observability. Pass a nil
// publisher to skip publishing.
func New(f PageFetcher, r Refiner, w TableWriter, pub Publisher, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		fetcher:   f,
		refiner:   r,
		writer:    w,
		publisher: pub,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run executes one fetch-refine-parse-write cycle. The writer is the last
// stage to touch disk, so a failure in any earlier stage leaves the output
// file untouched. Stages are never retried.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	defer func() {
		p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	seasonTable, err := p.fetcher.FetchSeasonTable(ctx)
	if err != nil {
		return fmt.Errorf("fetch season table: %w", err)
	}
	p.logger.Info("season table fetched",
		"season", seasonTable.Season,
		"source_url", seasonTable.SourceURL,
		"markdown_bytes", len(seasonTable.Markdown),
	)

	completion, err := p.refiner.Refine(ctx, seasonTable)
	if err != nil {
		return fmt.Errorf("refine season table: %w", err)
	}

	table, dropped, err := domain.ExtractTable(completion)
	if err != nil {
		return fmt.Errorf("parse completion: %w", err)
	}
	p.metrics.RowsParsed.Add(float64(len(table.Rows)))
	p.metrics.RowsDropped.Add(float64(dropped))
	if dropped > 0 {
		p.logger.Warn("dropped malformed completion rows", "count", dropped)
	}
	if len(table.Rows) == 0 {
		return fmt.Errorf("parse completion: %w", ErrNoRecords)
	}

	if err := p.writer.WriteTable(ctx, table); err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	if err := p.publish(ctx, seasonTable, table); err != nil {
		return err
	}

	p.logger.Info("backfill run complete",
		"season", seasonTable.Season,
		"rows", len(table.Rows),
		"duration", time.Since(start),
	)
	return nil
}

// publish converts the table to storm reports and hands them to the
// publisher. The output file is already on disk at this point; a publish
// failure fails the run without undoing the write.
func (p *Pipeline) publish(ctx context.Context, seasonTable domain.SeasonTable, table domain.Table) error {
	if p.publisher == nil {
		return nil
	}

	reports, err := domain.BuildReports(table, seasonTable.Season, seasonTable.SourceURL)
	if err != nil {
		return fmt.Errorf("build storm reports: %w", err)
	}
	if err := p.publisher.PublishBatch(ctx, reports); err != nil {
		return fmt.Errorf("publish storm reports: %w", err)
	}
	return nil
}
