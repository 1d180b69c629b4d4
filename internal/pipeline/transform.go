package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
)

// Normalizer turns fetched records into dataset rows. Records that cannot be
// normalized are skipped with a warning.
type Normalizer struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(logger *slog.Logger, metrics *observability.Metrics) *Normalizer {
	return &Normalizer{logger: logger, metrics: metrics}
}

// Normalize returns the normalized rows in input order and the number of
// records rejected.
func (n *Normalizer) Normalize(raws []domain.RawObservation) ([]domain.Observation, int) {
	out := make([]domain.Observation, 0, len(raws))
	rejected := 0
	for _, raw := range raws {
		obs, err := domain.Normalize(raw)
		if err != nil {
			n.logger.Warn("normalize failed, skipping record",
				"error", err,
				"region", raw.Region.Name,
				"country", raw.Region.Country,
				"date_key", raw.DateKey,
			)
			n.metrics.NormalizeErrors.Inc()
			rejected++
			continue
		}
		out = append(out, obs)
	}
	n.metrics.ObservationsFetched.Add(float64(len(out)))
	return out, rejected
}
