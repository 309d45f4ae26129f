// Package kafka publishes backfilled storm reports for downstream ingestion.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-data-backfill/internal/config"
	"github.com/couchcryptid/storm-data-backfill/internal/domain"
	"github.com/couchcryptid/storm-data-backfill/internal/observability"
)

// Publisher produces storm reports to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured backfill topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, metrics: metrics, logger: logger}
}

// PublishBatch serializes and publishes all reports of a run in a single
// WriteMessages call. Report IDs are deterministic, so re-running a season
// produces the same keys and downstream upserts stay idempotent.
func (p *Publisher) PublishBatch(ctx context.Context, reports []domain.StormReport) error {
	if len(reports) == 0 {
		return nil
	}

	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := domain.SerializeReport(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = mapToKafkaMessage(msg)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish reports: %w", err)
	}

	p.metrics.RecordsPublished.Add(float64(len(reports)))
	p.logger.Info("reports published", "count", len(reports), "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// mapToKafkaMessage converts a serialized domain message into the transport
// type. Headers are emitted in sorted key order.
func mapToKafkaMessage(msg domain.Message) kafkago.Message {
	headers := make([]kafkago.Header, 0, len(msg.Headers))
	for _, key := range slices.Sorted(maps.Keys(msg.Headers)) {
		headers = append(headers, kafkago.Header{Key: key, Value: []byte(msg.Headers[key])})
	}
	return kafkago.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}
