package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSeason    = "1975 Atlantic hurricane season"
	testSourceURL = "https://en.wikipedia.org/wiki/1975_Atlantic_hurricane_season"
)

func canonicalTestTable() Table {
	return Table{
		Header: []string{ColStormName, ColDateStart, ColDateEnd, ColAreasAffected, ColDeaths},
		Rows: [][]string{
			{"Amy", "June 27", "July 4", "East Coast of the United States", "1"},
			{"Eloise", "September 13", "September 24", "Hispaniola, Florida Panhandle", "80"},
		},
	}
}

func TestBuildReports(t *testing.T) {
	fixedTime := time.Date(2026, 8, 25, 12, 30, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixedTime))
	defer SetClock(nil)

	t.Run("canonical table", func(t *testing.T) {
		reports, err := BuildReports(canonicalTestTable(), testSeason, testSourceURL)

		require.NoError(t, err)
		require.Len(t, reports, 2)

		amy := reports[0]
		assert.True(t, strings.HasPrefix(amy.ID, "amy-"))
		assert.Equal(t, testSeason, amy.Season)
		assert.Equal(t, "Amy", amy.Name)
		assert.Equal(t, "June 27", amy.DateStart)
		assert.Equal(t, "July 4", amy.DateEnd)
		assert.Equal(t, "East Coast of the United States", amy.AreasAffected)
		assert.Equal(t, "1", amy.Deaths)
		assert.Equal(t, testSourceURL, amy.SourceURL)
		assert.Equal(t, fixedTime, amy.ScrapedAt)

		assert.Equal(t, "80", reports[1].Deaths)
	})

	t.Run("model header accepted", func(t *testing.T) {
		table := Table{
			Header: ModelColumns,
			Rows:   [][]string{{"Amy", "June 27", "July 4", "East Coast of the United States", "1"}},
		}

		reports, err := BuildReports(table, testSeason, testSourceURL)

		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, "Amy", reports[0].Name)
	})

	t.Run("column order does not matter", func(t *testing.T) {
		table := Table{
			Header: []string{ColDeaths, ColStormName, ColDateEnd, ColDateStart, ColAreasAffected},
			Rows: [][]string{
				{"1", "Amy", "July 4", "June 27", "East Coast of the United States"},
			},
		}

		reports, err := BuildReports(table, testSeason, testSourceURL)

		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, "Amy", reports[0].Name)
		assert.Equal(t, "1", reports[0].Deaths)
	})

	t.Run("missing column", func(t *testing.T) {
		table := Table{
			Header: []string{ColStormName, ColDateStart},
			Rows:   [][]string{{"Amy", "June 27"}},
		}

		_, err := BuildReports(table, testSeason, testSourceURL)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing column")
	})

	t.Run("deterministic IDs across calls", func(t *testing.T) {
		first, err := BuildReports(canonicalTestTable(), testSeason, testSourceURL)
		require.NoError(t, err)
		second, err := BuildReports(canonicalTestTable(), testSeason, testSourceURL)
		require.NoError(t, err)

		require.Len(t, second, len(first))
		for i := range first {
			assert.Equal(t, first[i].ID, second[i].ID)
		}
	})
}

func TestGenerateID(t *testing.T) {
	t.Run("includes name slug prefix", func(t *testing.T) {
		id := generateID(testSeason, "Amy", "June 27", "July 4")
		assert.True(t, strings.HasPrefix(id, "amy-"))
	})

	t.Run("slug strips spaces and case", func(t *testing.T) {
		id := generateID(testSeason, "Tropical Storm Amy", "June 27", "July 4")
		assert.True(t, strings.HasPrefix(id, "tropicalstormamy-"))
	})

	t.Run("deterministic", func(t *testing.T) {
		id1 := generateID(testSeason, "Eloise", "September 13", "September 24")
		id2 := generateID(testSeason, "Eloise", "September 13", "September 24")
		assert.Equal(t, id1, id2)
	})

	t.Run("different inputs produce different IDs", func(t *testing.T) {
		id1 := generateID(testSeason, "Amy", "June 27", "July 4")
		id2 := generateID(testSeason, "Amy", "June 27", "July 5")
		assert.NotEqual(t, id1, id2)
	})

	t.Run("empty name", func(t *testing.T) {
		id := generateID(testSeason, "", "June 27", "July 4")
		assert.Len(t, id, 16) // bare hex hash, no slug prefix
	})
}

func TestSerializeReport(t *testing.T) {
	fixedTime := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	t.Run("successful serialization", func(t *testing.T) {
		report := StormReport{
			ID:            "amy-0011223344556677",
			Season:        testSeason,
			Name:          "Amy",
			DateStart:     "June 27",
			DateEnd:       "July 4",
			AreasAffected: "East Coast of the United States",
			Deaths:        "1",
			SourceURL:     testSourceURL,
			ScrapedAt:     fixedTime,
		}

		msg, err := SerializeReport(report)

		require.NoError(t, err)
		assert.Equal(t, []byte("amy-0011223344556677"), msg.Key)
		assert.Equal(t, testSeason, msg.Headers["season"])
		assert.Equal(t, "2026-08-25T12:00:00Z", msg.Headers["scraped_at"])

		var roundtrip StormReport
		require.NoError(t, json.Unmarshal(msg.Value, &roundtrip))
		assert.Equal(t, report.ID, roundtrip.ID)
		assert.Equal(t, "Amy", roundtrip.Name)
		assert.Equal(t, "1", roundtrip.Deaths)
	})

	t.Run("empty report ID", func(t *testing.T) {
		report := StormReport{Season: testSeason, ScrapedAt: fixedTime}

		msg, err := SerializeReport(report)

		require.NoError(t, err)
		assert.Empty(t, msg.Key)
		assert.Equal(t, testSeason, msg.Headers["season"])
	})
}

func TestSetClock(t *testing.T) {
	t.Run("set custom clock", func(t *testing.T) {
		fixedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		mockClock := clockwork.NewFakeClockAt(fixedTime)

		SetClock(mockClock)
		assert.Equal(t, fixedTime, clock.Now())

		SetClock(nil) // reset
	})

	t.Run("reset to real clock", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
		SetClock(nil)

		// Real clock should return current time (within a small window)
		now := clock.Now()
		assert.True(t, time.Since(now) < time.Second)
	})
}
