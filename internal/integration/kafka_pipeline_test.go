//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/storm-data-backfill/internal/adapter/csvfile"
	kafkaadapter "github.com/couchcryptid/storm-data-backfill/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-backfill/internal/adapter/replicate"
	"github.com/couchcryptid/storm-data-backfill/internal/adapter/wikipedia"
	"github.com/couchcryptid/storm-data-backfill/internal/config"
	"github.com/couchcryptid/storm-data-backfill/internal/domain"
	"github.com/couchcryptid/storm-data-backfill/internal/observability"
	"github.com/couchcryptid/storm-data-backfill/internal/pipeline"
)

const testTopic = "storm-season-backfill"

// startKafka launches a single-broker Kafka container and returns its
// bootstrap address. Each test gets its own container, so topic names never
// collide across tests.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("backfill-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates topic with a single partition so consumption order
// matches publish order.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "resolve controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}), "create topic")
}

// newConsumer returns a reader on topic with a unique group, starting from
// the first offset.
func newConsumer(t *testing.T, broker, topic string) *kafkago.Reader {
	t.Helper()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func readMessage(ctx context.Context, t *testing.T, consumer *kafkago.Reader) kafkago.Message {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from backfill topic")
	return msg
}

func headerMap(msg kafkago.Message) map[string]string {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return headers
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "data", "mock", name))
	require.NoError(t, err, "read fixture %s", name)
	return data
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPublisherRoundTrip verifies the adapter layer: a report published
// through kafka.Publisher comes back with its key, value, and headers intact.
func TestPublisherRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
	}

	publisher := kafkaadapter.NewPublisher(cfg, discardLogger(), observability.NewMetricsForTesting())
	t.Cleanup(func() { _ = publisher.Close() })

	report := domain.StormReport{
		ID:            "amy-8b2c51a90f3e47d1",
		Season:        "1975 Atlantic hurricane season",
		Name:          "Amy",
		DateStart:     "June 27",
		DateEnd:       "July 4",
		AreasAffected: "East Coast of the United States",
		Deaths:        "1",
		SourceURL:     "https://en.wikipedia.org/wiki/1975_Atlantic_hurricane_season",
		ScrapedAt:     time.Date(2026, time.August, 20, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishBatch(ctx, []domain.StormReport{report}))

	consumer := newConsumer(t, broker, testTopic)
	msg := readMessage(ctx, t, consumer)

	assert.Equal(t, report.ID, string(msg.Key))

	var got domain.StormReport
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, report, got)

	headers := headerMap(msg)
	assert.Equal(t, report.Season, headers["season"])
	assert.Equal(t, "2026-08-20T12:00:00Z", headers["scraped_at"])
}

// TestBackfillEndToEnd runs the full pipeline against stub article and model
// servers plus real Kafka: the CSV artifact must match the golden fixture and
// every storm row must arrive on the backfill topic.
func TestBackfillEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	article := readFixture(t, "season_1975.html")
	completion := readFixture(t, "completion_1975.txt")
	golden := readFixture(t, "hurricanes_1975.csv")

	pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wiki/1975_Atlantic_hurricane_season", r.URL.Path)
		assert.Equal(t, "backfill-integration-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(article)
	}))
	t.Cleanup(pageSrv.Close)

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/models/meta/meta-llama-3-70b-instruct/predictions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req struct {
			Input struct {
				Prompt string `json:"prompt"`
			} `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Input.Prompt, "Amy")
		assert.Contains(t, req.Input.Prompt, "Table format example:")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "pred-backfill",
			"status": "succeeded",
			"output": []string{string(completion)},
		})
	}))
	t.Cleanup(apiSrv.Close)

	cfg := &config.Config{
		SeasonURL:    pageSrv.URL + "/wiki/1975_Atlantic_hurricane_season",
		OutputPath:   filepath.Join(t.TempDir(), "hurricanes_1975.csv"),
		UserAgent:    "backfill-integration-test",
		FetchTimeout: 10 * time.Second,

		ReplicateToken:   "test-token",
		ReplicateModel:   "meta/meta-llama-3-70b-instruct",
		ReplicateBaseURL: apiSrv.URL,
		ModelTimeout:     10 * time.Second,
		PollInterval:     10 * time.Millisecond,

		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
		KafkaEnabled: true,
	}

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	publisher := kafkaadapter.NewPublisher(cfg, logger, metrics)
	t.Cleanup(func() { _ = publisher.Close() })

	p := pipeline.New(
		wikipedia.NewClient(cfg, logger, metrics),
		replicate.NewClient(cfg, logger, metrics),
		csvfile.NewWriter(cfg.OutputPath, logger, metrics),
		publisher,
		logger,
		metrics,
	)
	require.NoError(t, p.Run(ctx))

	written, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, string(golden), string(written))

	// One partition, one WriteMessages call: reports arrive in table order.
	wantNames := []string{"Amy", "Blanche", "Caroline", "Doris", "Eloise", "Faye", "Gladys", "Hallie"}
	consumer := newConsumer(t, broker, testTopic)

	seenIDs := make(map[string]bool, len(wantNames))
	reports := make([]domain.StormReport, 0, len(wantNames))
	for range wantNames {
		msg := readMessage(ctx, t, consumer)

		var report domain.StormReport
		require.NoError(t, json.Unmarshal(msg.Value, &report))
		assert.Equal(t, report.ID, string(msg.Key))
		assert.False(t, seenIDs[report.ID], "duplicate report ID %s", report.ID)
		seenIDs[report.ID] = true

		headers := headerMap(msg)
		assert.Equal(t, "1975 Atlantic hurricane season", headers["season"])
		_, err := time.Parse(time.RFC3339, headers["scraped_at"])
		assert.NoError(t, err, "scraped_at should be valid RFC3339")

		assert.Equal(t, "1975 Atlantic hurricane season", report.Season)
		assert.Equal(t, cfg.SeasonURL, report.SourceURL)
		assert.False(t, report.ScrapedAt.IsZero())
		assert.NotEmpty(t, report.DateStart)

		reports = append(reports, report)
	}

	gotNames := make([]string, len(reports))
	for i, report := range reports {
		gotNames[i] = report.Name
	}
	assert.Equal(t, wantNames, gotNames)

	// Spot-check the first report: Amy, June 27 to July 4, one death.
	first := reports[0]
	assert.True(t, strings.HasPrefix(first.ID, "amy-"))
	assert.Equal(t, "June 27", first.DateStart)
	assert.Equal(t, "July 4", first.DateEnd)
	assert.Equal(t, "East Coast of the United States", first.AreasAffected)
	assert.Equal(t, "1", first.Deaths)
}
