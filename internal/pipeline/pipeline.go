package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
)

// RegionSource provides the region catalog.
type RegionSource interface {
	Regions(ctx context.Context) ([]domain.Region, error)
}

// BatchFetcher fetches one day for a whole catalog.
type BatchFetcher interface {
	FetchAll(ctx context.Context, regions []domain.Region, day time.Time) FetchReport
}

// SnapshotStore loads and replaces the persisted dataset.
type SnapshotStore interface {
	Load(ctx context.Context) ([]domain.Observation, error)
	Save(ctx context.Context, rows []domain.Observation) error
}

// Publisher forwards freshly fetched observations downstream.
type Publisher interface {
	Publish(ctx context.Context, runID string, rows []domain.Observation) error
}

// Options configures a Pipeline.
type Options struct {
	// LookbackDays selects the day fetched: today minus LookbackDays.
	LookbackDays int
	// Dedup collapses rows sharing (country, region, date) on merge.
	Dedup bool
	// RunTimeout bounds a whole run. Zero disables the bound.
	RunTimeout time.Duration
}

// Pipeline runs the collect-normalize-merge-store job once per call to Run.
type Pipeline struct {
	regions    RegionSource
	fetcher    BatchFetcher
	normalizer *Normalizer
	store      SnapshotStore
	publisher  Publisher
	logger     *slog.Logger
	metrics    *observability.Metrics
	opts       Options
	mu         sync.Mutex
	ready      atomic.Bool
}

// New creates a Pipeline. publisher may be nil.
func New(regions RegionSource, fetcher BatchFetcher, store SnapshotStore, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	return &Pipeline{
		regions:    regions,
		fetcher:    fetcher,
		normalizer: NewNormalizer(logger, metrics),
		store:      store,
		publisher:  publisher,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// CheckReadiness returns nil once a run has completed, or an error describing
// why the job is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no run has completed yet")
	}
	return nil
}

// Run executes the job once. Concurrent calls are serialized. Per-region
// failures never abort the run; they are listed in the result.
func (p *Pipeline) Run(ctx context.Context) (result domain.RunResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result = domain.RunResult{
		RunID:     uuid.NewString(),
		StartedAt: domain.Now().UTC(),
	}
	logger := p.logger.With("run_id", result.RunID)

	if p.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RunTimeout)
		defer cancel()
	}

	p.metrics.RunActive.Set(1)
	defer p.metrics.RunActive.Set(0)
	defer p.finish(logger, &result)

	day := domain.TargetDate(p.opts.LookbackDays)
	result.TargetDate = day.Format(domain.DateLayout)
	logger.Info("run started", "target_date", result.TargetDate)

	regions, err := p.regions.Regions(ctx)
	if err != nil {
		result.Fail(fmt.Errorf("load catalog: %w", err))
		return result
	}
	result.Regions = len(regions)

	previous, err := p.store.Load(ctx)
	if err != nil {
		result.Fail(fmt.Errorf("load snapshot: %w", err))
		return result
	}
	result.Previous = len(previous)

	report := p.fetcher.FetchAll(ctx, regions, day)
	result.Succeeded = report.Succeeded
	result.Failures = report.Failures

	fresh, rejected := p.normalizer.Normalize(report.Raw)
	result.Fetched = len(fresh)
	result.Rejected = rejected

	if len(fresh) == 0 {
		logger.Warn("no fresh observations, snapshot left untouched", "rows_previous", len(previous))
		result.Persisted = len(previous)
		result.Outcome = p.outcome(result)
		return result
	}

	merged := domain.Merge(previous, fresh, p.opts.Dedup)
	if err := p.store.Save(ctx, merged); err != nil {
		result.Fail(fmt.Errorf("save snapshot: %w", err))
		return result
	}
	result.Persisted = len(merged)
	p.metrics.ObservationsPersisted.Set(float64(len(merged)))
	p.metrics.LastSuccess.Set(float64(domain.Now().Unix()))

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, result.RunID, fresh); err != nil {
			logger.Error("publish observations failed", "error", err, "rows", len(fresh))
		}
	}

	result.Outcome = p.outcome(result)
	return result
}

func (p *Pipeline) outcome(r domain.RunResult) domain.Outcome {
	if len(r.Failures) > 0 {
		return domain.OutcomePartial
	}
	return domain.OutcomeSuccess
}

func (p *Pipeline) finish(logger *slog.Logger, result *domain.RunResult) {
	result.Duration = domain.Now().Sub(result.StartedAt)
	p.metrics.Runs.WithLabelValues(string(result.Outcome)).Inc()
	p.metrics.RunDuration.Observe(result.Duration.Seconds())
	p.ready.Store(true)

	attrs := []any{
		"outcome", result.Outcome,
		"regions", result.Regions,
		"regions_failed", len(result.Failures),
		"rows_fetched", result.Fetched,
		"rows_rejected", result.Rejected,
		"rows_persisted", result.Persisted,
		"duration", result.Duration,
	}
	if result.Outcome == domain.OutcomeFailed {
		logger.Error("run failed", append(attrs, "error", result.Error)...)
		return
	}
	logger.Info("run finished", attrs...)
}
