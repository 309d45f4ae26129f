package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// pushJob groups all backfill runs under one Pushgateway job.
const pushJob = "storm_data_backfill"

// PushRunMetrics delivers the default registry to a Pushgateway. A one-shot
// run has no scrape window, so metrics are pushed at the end of the run
// instead of being served. Grouped by season so concurrent backfills of
// different seasons do not overwrite each other; an empty season pushes under
// the job alone.
func PushRunMetrics(ctx context.Context, gatewayURL, season string) error {
	pusher := push.New(gatewayURL, pushJob).Gatherer(prometheus.DefaultGatherer)
	if season != "" {
		pusher = pusher.Grouping("season", season)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push run metrics: %w", err)
	}
	return nil
}
