package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
)

// Store reads and replaces the snapshot object under a fixed key.
type Store struct {
	blobs   domain.BlobStore
	key     string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStore creates a Store for key in blobs.
func NewStore(blobs domain.BlobStore, key string, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{blobs: blobs, key: key, logger: logger, metrics: metrics}
}

// Load returns the stored dataset. A missing object or a failed read yields
// an empty dataset so the run can still produce a snapshot. An object that
// was read but cannot be decoded is an error: overwriting it would lose
// history.
func (s *Store) Load(ctx context.Context) ([]domain.Observation, error) {
	data, err := s.blobs.Get(ctx, s.key)
	if errors.Is(err, domain.ErrObjectNotFound) {
		s.logger.Info("no snapshot found, starting from an empty dataset", "key", s.key)
		return nil, nil
	}
	if err != nil {
		s.logger.Error("read snapshot failed, starting from an empty dataset", "key", s.key, "error", err)
		s.metrics.SnapshotLoadFailures.Inc()
		return nil, nil
	}

	rows, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.key, err)
	}
	s.logger.Info("snapshot loaded", "key", s.key, "rows", len(rows), "bytes", len(data))
	return rows, nil
}

// Save replaces the stored snapshot with rows. An empty dataset is not
// written.
func (s *Store) Save(ctx context.Context, rows []domain.Observation) error {
	if len(rows) == 0 {
		s.logger.Warn("no rows to save, snapshot not written", "key", s.key)
		return nil
	}

	data, err := Encode(rows)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.blobs.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("put snapshot %s: %w", s.key, err)
	}
	s.logger.Info("snapshot saved", "key", s.key, "rows", len(rows), "bytes", len(data))
	return nil
}
