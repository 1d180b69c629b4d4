package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-data-etl/internal/adapter/power"
	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
	"github.com/couchcryptid/climate-data-etl/internal/pipeline"
	"github.com/couchcryptid/climate-data-etl/internal/snapshot"
)

const snapshotKey = "climate_data.csv"

var testDay = time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

// --- mocks ---

type staticRegions struct {
	regions []domain.Region
	err     error
}

func (s staticRegions) Regions(_ context.Context) ([]domain.Region, error) {
	return s.regions, s.err
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	puts    int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (m *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return data, nil
}

func (m *memBlobs) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

type mockPublisher struct {
	runID string
	rows  []domain.Observation
	err   error
}

func (m *mockPublisher) Publish(_ context.Context, runID string, rows []domain.Observation) error {
	m.runID = runID
	m.rows = rows
	return m.err
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	blobs     *memBlobs
	store     *snapshot.Store
	fetcher   *fakeFetcher
	publisher *mockPublisher
	regions   []domain.Region
}

func newHarness(t *testing.T, regionCount int) *harness {
	t.Helper()
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.July, 15, 9, 30, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() {
		domain.SetClock(nil)
	})

	blobs := newMemBlobs()
	return &harness{
		blobs:   blobs,
		store:   snapshot.NewStore(blobs, snapshotKey, testLogger(), newTestMetrics()),
		fetcher: &fakeFetcher{},
		regions: makeRegions(regionCount),
	}
}

func (h *harness) newPipeline(opts pipeline.Options) *pipeline.Pipeline {
	metrics := newTestMetrics()
	sched := pipeline.NewScheduler(h.fetcher, pipeline.SchedulerOptions{BatchSize: 2, Workers: 2}, testLogger(), metrics)
	var pub pipeline.Publisher
	if h.publisher != nil {
		pub = h.publisher
	}
	return pipeline.New(staticRegions{regions: h.regions}, sched, h.store, pub, testLogger(), metrics, opts)
}

func (h *harness) seed(t *testing.T, rows []domain.Observation) {
	t.Helper()
	data, err := snapshot.Encode(rows)
	require.NoError(t, err)
	h.blobs.objects[snapshotKey] = data
}

func (h *harness) stored(t *testing.T) []domain.Observation {
	t.Helper()
	rows, err := snapshot.Decode(h.blobs.objects[snapshotKey])
	require.NoError(t, err)
	return rows
}

// --- tests ---

func TestPipeline_Run_Success(t *testing.T) {
	h := newHarness(t, 3)
	h.regions[0].Country = "Sénégal"
	h.regions[0].Name = "Kédougou"
	p := h.newPipeline(pipeline.Options{LookbackDays: 30})

	require.Error(t, p.CheckReadiness(context.Background()))

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "2024-06-15", result.TargetDate)
	assert.Equal(t, 3, result.Regions)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 3, result.Persisted)
	assert.Empty(t, result.Failures)
	assert.NoError(t, p.CheckReadiness(context.Background()))

	rows := h.stored(t)
	require.Len(t, rows, 3)
	assert.Equal(t, "Senegal", rows[0].Country)
	assert.Equal(t, "Kedougou", rows[0].Region)
	assert.Equal(t, testDay, rows[0].Date)
	assert.Equal(t, 30.2, *rows[0].TempAvg)
	assert.Nil(t, rows[0].Humidity)

	assert.Equal(t, http.StatusOK, result.Response().StatusCode)
}

func TestPipeline_Run_PartialLists(t *testing.T) {
	h := newHarness(t, 4)
	h.fetcher.fail = map[string]error{"Region-02": errors.New("no data for region")}
	p := h.newPipeline(pipeline.Options{LookbackDays: 30})

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomePartial, result.Outcome)
	assert.Equal(t, 3, result.Succeeded)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "Region-02", result.Failures[0].Region)
	assert.Equal(t, 3, result.Persisted)

	resp := result.Response()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "partial", body["outcome"])
}

func TestPipeline_Run_AppendOnlyAccumulatesDuplicates(t *testing.T) {
	h := newHarness(t, 3)
	initial := []domain.Observation{{
		Date: testDay.AddDate(0, 0, -1), Country: "Mali", Region: "Region-00", Latitude: 10, Longitude: -5,
	}}
	h.seed(t, initial)
	p := h.newPipeline(pipeline.Options{LookbackDays: 30})

	first := p.Run(context.Background())
	second := p.Run(context.Background())

	assert.Equal(t, 1, first.Previous)
	assert.Equal(t, 4, first.Persisted)
	assert.Equal(t, 4, second.Previous)
	assert.Equal(t, 7, second.Persisted)
	assert.NotEqual(t, first.RunID, second.RunID)

	rows := h.stored(t)
	assert.Len(t, rows, len(initial)+3+3)
	assert.Len(t, domain.DuplicateKeys(rows), 3)
	assert.Equal(t, initial[0].Date, rows[0].Date, "previous rows come first")
}

func TestPipeline_Run_DedupKeepsUniqueRegionDates(t *testing.T) {
	h := newHarness(t, 3)
	h.seed(t, []domain.Observation{{
		Date: testDay.AddDate(0, 0, -1), Country: "Mali", Region: "Region-00", Latitude: 10, Longitude: -5,
	}})
	p := h.newPipeline(pipeline.Options{LookbackDays: 30, Dedup: true})

	p.Run(context.Background())
	result := p.Run(context.Background())

	assert.Equal(t, 4, result.Persisted)
	assert.Empty(t, domain.DuplicateKeys(h.stored(t)))
}

func TestPipeline_Run_SaveFailureFails(t *testing.T) {
	h := newHarness(t, 2)
	h.blobs.putErr = errors.New("access denied")
	p := h.newPipeline(pipeline.Options{LookbackDays: 30})

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Error, "save snapshot")
	assert.Contains(t, result.Error, "access denied")
	assert.Equal(t, http.StatusInternalServerError, result.Response().StatusCode)
	assert.NoError(t, p.CheckReadiness(context.Background()), "a failed run still completes")
}

func TestPipeline_Run_UndecodableSnapshotFailsWithoutFetching(t *testing.T) {
	h := newHarness(t, 2)
	h.blobs.objects[snapshotKey] = []byte("Date;Country\n2024-06-14;Mali\n")
	p := h.newPipeline(pipeline.Options{LookbackDays: 30})

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Error, "load snapshot")
	assert.Empty(t, h.fetcher.called())
	assert.Zero(t, h.blobs.puts)
}

func TestPipeline_Run_CatalogErrorFails(t *testing.T) {
	h := newHarness(t, 0)
	metrics := newTestMetrics()
	sched := pipeline.NewScheduler(h.fetcher, pipeline.SchedulerOptions{BatchSize: 2, Workers: 2}, testLogger(), metrics)
	p := pipeline.New(staticRegions{err: errors.New("open catalog: no such file")}, sched, h.store, nil, testLogger(), metrics, pipeline.Options{})

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Error, "load catalog")
}

func TestPipeline_Run_NoFreshRowsLeavesSnapshotUntouched(t *testing.T) {
	h := newHarness(t, 2)
	h.seed(t, []domain.Observation{{Date: testDay, Country: "Mali", Region: "Kayes"}})
	before := append([]byte(nil), h.blobs.objects[snapshotKey]...)
	h.fetcher.fail = map[string]error{
		"Region-00": errors.New("circuit breaker open"),
		"Region-01": errors.New("circuit breaker open"),
	}
	p := h.newPipeline(pipeline.Options{LookbackDays: 30})

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomePartial, result.Outcome)
	assert.Len(t, result.Failures, 2)
	assert.Equal(t, 1, result.Persisted)
	assert.Zero(t, h.blobs.puts)
	assert.Equal(t, before, h.blobs.objects[snapshotKey])
}

func TestPipeline_Run_EmptyCatalogSucceedsWithoutWriting(t *testing.T) {
	h := newHarness(t, 0)
	p := h.newPipeline(pipeline.Options{LookbackDays: 30})

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Zero(t, result.Persisted)
	assert.Zero(t, h.blobs.puts)
}

func TestPipeline_Run_SkipsBadDateKeys(t *testing.T) {
	h := newHarness(t, 3)
	h.fetcher.badDateKey = map[string]bool{"Region-01": true}
	p := h.newPipeline(pipeline.Options{LookbackDays: 30})

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome, "a region that answered is not a failed region")
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Rejected)
	assert.Len(t, h.stored(t), 2)
}

func TestPipeline_Run_PublishesFreshRows(t *testing.T) {
	h := newHarness(t, 2)
	h.seed(t, []domain.Observation{{Date: testDay.AddDate(0, 0, -1), Country: "Mali", Region: "Kayes"}})
	h.publisher = &mockPublisher{}
	p := h.newPipeline(pipeline.Options{LookbackDays: 30})

	result := p.Run(context.Background())

	assert.Equal(t, result.RunID, h.publisher.runID)
	assert.Len(t, h.publisher.rows, 2, "only fresh rows are published")
}

func TestPipeline_Run_PublishErrorDoesNotFailRun(t *testing.T) {
	h := newHarness(t, 2)
	h.publisher = &mockPublisher{err: errors.New("leader not available")}
	p := h.newPipeline(pipeline.Options{LookbackDays: 30})

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, result.Persisted)
}

func TestPipeline_Run_TimeoutBoundsRun(t *testing.T) {
	h := newHarness(t, 4)
	h.fetcher.block = true
	p := h.newPipeline(pipeline.Options{LookbackDays: 30, RunTimeout: 50 * time.Millisecond})

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomePartial, result.Outcome)
	assert.Len(t, result.Failures, 4)
	assert.Zero(t, h.blobs.puts)
}

func TestPipeline_Run_EmptySeriesIsRegionFailure(t *testing.T) {
	h := newHarness(t, 3)

	// Region-01 answers with parameter series that hold no date keys.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("longitude") == "-5.1" {
			_, _ = io.WriteString(w, `{"properties":{"parameter":{"T2M":{},"RH2M":{}}}}`)
			return
		}
		_, _ = io.WriteString(w, `{"properties":{"parameter":{"T2M":{"20240615":30.2},"RH2M":{"20240615":41.1}}}}`)
	}))
	defer srv.Close()

	metrics := newTestMetrics()
	client := power.NewClient(power.Options{BaseURL: srv.URL, Timeout: 5 * time.Second}, testLogger(), metrics)
	sched := pipeline.NewScheduler(client, pipeline.SchedulerOptions{BatchSize: 3, Workers: 3}, testLogger(), metrics)
	p := pipeline.New(staticRegions{regions: h.regions}, sched, h.store, nil, testLogger(), metrics,
		pipeline.Options{LookbackDays: 30})

	result := p.Run(context.Background())

	assert.Equal(t, domain.OutcomePartial, result.Outcome)
	assert.Equal(t, 2, result.Succeeded)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "Region-01", result.Failures[0].Region)
	assert.Contains(t, result.Failures[0].Reason, "no data for region")
	assert.Equal(t, 2, result.Persisted)
}
