package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "climate_data_etl"

// Push sends the current metric values to a Prometheus Pushgateway, grouped
// by job. One-shot runs exit before a scrape would see them.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, pushJob).Gatherer(m.Gatherer()).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
