package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
)

// Fetcher retrieves the raw observations of one region for one day.
type Fetcher interface {
	Fetch(ctx context.Context, region domain.Region, day time.Time) ([]domain.RawObservation, error)
}

// SchedulerOptions controls batching and concurrency.
type SchedulerOptions struct {
	BatchSize  int
	Workers    int
	BatchPause time.Duration
	Clock      clockwork.Clock
}

// FetchReport is the collected output of fetching a whole catalog.
type FetchReport struct {
	Raw       []domain.RawObservation
	Failures  []domain.RegionFailure
	Succeeded int
}

// Scheduler fetches regions in contiguous fixed-size batches. Within a batch
// at most Workers fetches run at once; batches run one after another with a
// pause in between.
type Scheduler struct {
	fetcher Fetcher
	opts    SchedulerOptions
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewScheduler creates a Scheduler around f.
func NewScheduler(f Fetcher, opts SchedulerOptions, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Workers <= 0 || opts.Workers > opts.BatchSize {
		opts.Workers = opts.BatchSize
	}
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Scheduler{fetcher: f, opts: opts, clock: clk, logger: logger, metrics: metrics}
}

type regionResult struct {
	rows []domain.RawObservation
	err  error
}

// FetchAll fetches day for every region. A region whose fetch fails is listed
// in the report's failures and contributes no rows. Once ctx is done no
// further batch is started and the remaining regions are reported as failed.
func (s *Scheduler) FetchAll(ctx context.Context, regions []domain.Region, day time.Time) FetchReport {
	var report FetchReport
	total := len(regions)

	for start := 0; start < total; start += s.opts.BatchSize {
		if start > 0 {
			if err := domain.SleepWithContext(ctx, s.clock, s.opts.BatchPause); err != nil {
				s.skip(&report, regions[start:], err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			s.skip(&report, regions[start:], err)
			break
		}

		end := min(start+s.opts.BatchSize, total)
		s.logger.Info("fetching batch", "from", start+1, "to", end, "total", total)
		s.collect(&report, regions[start:end], s.runBatch(ctx, regions[start:end], day))
	}

	return report
}

func (s *Scheduler) runBatch(ctx context.Context, batch []domain.Region, day time.Time) []regionResult {
	results := make([]regionResult, len(batch))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, region := range batch {
		g.Go(func() error {
			rows, err := s.fetcher.Fetch(ctx, region, day)
			results[i] = regionResult{rows: rows, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Scheduler) collect(report *FetchReport, batch []domain.Region, results []regionResult) {
	for i, res := range results {
		region := batch[i]
		if res.err != nil {
			s.logger.Warn("fetch region failed", "region", region.Name, "country", region.Country, "error", res.err)
			s.metrics.RegionsFetched.WithLabelValues("failed").Inc()
			report.Failures = append(report.Failures, domain.RegionFailure{
				Country: region.Country,
				Region:  region.Name,
				Reason:  res.err.Error(),
			})
			continue
		}
		s.metrics.RegionsFetched.WithLabelValues("success").Inc()
		report.Succeeded++
		report.Raw = append(report.Raw, res.rows...)
	}
}

func (s *Scheduler) skip(report *FetchReport, remaining []domain.Region, cause error) {
	s.logger.Warn("fetch interrupted", "skipped_regions", len(remaining), "reason", cause)
	for _, region := range remaining {
		s.metrics.RegionsFetched.WithLabelValues("failed").Inc()
		report.Failures = append(report.Failures, domain.RegionFailure{
			Country: region.Country,
			Region:  region.Name,
			Reason:  "not fetched: " + cause.Error(),
		})
	}
}
