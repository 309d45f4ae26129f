// Package wikipedia fetches storm-season articles and extracts their season
// summary table as Markdown for the model prompt.
package wikipedia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-backfill/internal/config"
	"github.com/couchcryptid/storm-data-backfill/internal/domain"
	"github.com/couchcryptid/storm-data-backfill/internal/observability"
)

// ErrNoSeasonTable reports an article without a season-summary wikitable.
var ErrNoSeasonTable = errors.New("no wikitable found in article")

// wantedColumns are the season summary columns kept for the model, matched on
// normalized header text. Spelling varies across seasons ("Storm name" vs
// "Stormname"), hence the normalization.
var wantedColumns = map[string]bool{
	"stormname":     true,
	"datesactive":   true,
	"areasaffected": true,
	"deaths":        true,
}

// Client fetches a season article over HTTP and extracts its summary table.
type Client struct {
	seasonURL  string
	userAgent  string
	httpClient *http.Client
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Wikipedia season page client.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		seasonURL: cfg.SeasonURL,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
		logger:  logger,
	}
}

// FetchSeasonTable GETs the configured article and returns its pruned season
// summary as Markdown. Any failure is terminal; the caller does not retry.
func (c *Client) FetchSeasonTable(ctx context.Context) (domain.SeasonTable, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.seasonURL, nil)
	if err != nil {
		return domain.SeasonTable{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		return domain.SeasonTable{}, fmt.Errorf("season page fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.SeasonTable{}, fmt.Errorf("season page fetch: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		return domain.SeasonTable{}, fmt.Errorf("read season page: %w", err)
	}

	markdown, heading, err := ExtractSeasonTable(body)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		return domain.SeasonTable{}, fmt.Errorf("extract season table: %w", err)
	}

	c.metrics.FetchRequests.WithLabelValues("success").Inc()
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())

	season := heading
	if season == "" {
		season = SeasonFromURL(c.seasonURL)
	}
	c.logger.Info("season table extracted",
		"season", season,
		"page_bytes", len(body),
		"table_bytes", len(markdown),
	)

	return domain.SeasonTable{
		SourceURL: c.seasonURL,
		Season:    season,
		Markdown:  markdown,
		FetchedAt: c.clock.Now(),
	}, nil
}

// ExtractSeasonTable pulls the first wikitable out of article HTML, prunes it
// to the wanted columns, and renders it as Markdown. The returned heading is
// the article's first heading, empty when the page has none. Exported so the
// genmock command can run the same extraction over stored fixtures.
func ExtractSeasonTable(html []byte) (markdown, heading string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("parse article: %w", err)
	}

	heading = strings.TrimSpace(doc.Find("h1#firstHeading").First().Text())

	table := doc.Find("table.wikitable").First()
	if table.Length() == 0 {
		return "", heading, ErrNoSeasonTable
	}

	pruneTable(table)

	tableHTML, err := goquery.OuterHtml(table)
	if err != nil {
		return "", heading, fmt.Errorf("render season table: %w", err)
	}
	markdown, err = htmltomarkdown.ConvertString(tableHTML)
	if err != nil {
		return "", heading, fmt.Errorf("convert season table: %w", err)
	}

	// Wikipedia pads cells with non-breaking spaces.
	markdown = strings.ReplaceAll(markdown, " ", " ")
	return strings.TrimSpace(markdown), heading, nil
}

// pruneTable reduces a season summary wikitable in place: footnote markers
// go first, then rows whose cell count differs from the header (colspan
// aggregate footers), then every column not in wantedColumns. When no header
// matches a wanted column the table is left whole; the prompt still names
// the columns of interest.
func pruneTable(table *goquery.Selection) {
	table.Find("sup.reference").Remove()

	rows := table.Find("tr")
	headerCells := rows.First().Find("th,td")
	if headerCells.Length() == 0 {
		return
	}

	keep := make(map[int]bool)
	headerCells.Each(func(i int, cell *goquery.Selection) {
		if wantedColumns[normalizeHeader(cell.Text())] {
			keep[i] = true
		}
	})
	if len(keep) == 0 {
		return
	}

	columns := headerCells.Length()
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th,td")
		if cells.Length() != columns {
			row.Remove()
			return
		}
		cells.Each(func(i int, cell *goquery.Selection) {
			if !keep[i] {
				cell.Remove()
			}
		})
	})
}

// normalizeHeader reduces a header cell to lowercase letters and digits so
// "Storm name", "Stormname", and "Storm name" all compare equal.
func normalizeHeader(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SeasonFromURL derives a season label from an article URL, for pages with no
// first heading (stripped fixtures, API-rendered article HTML) and for labels
// needed before any fetch has happened.
func SeasonFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	seg := path.Base(u.Path)
	if seg == "." || seg == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(seg); err == nil {
		seg = unescaped
	}
	return strings.ReplaceAll(seg, "_", " ")
}
