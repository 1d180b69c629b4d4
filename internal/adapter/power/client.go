// Package power fetches daily point data from the NASA POWER API.
package power

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
)

// DefaultBaseURL is the daily point endpoint of the NASA POWER API.
const DefaultBaseURL = "https://power.larc.nasa.gov/api/temporal/daily/point"

const defaultFillValue = -999.0

var (
	// ErrRetriesExhausted means the API kept answering with an overload status.
	ErrRetriesExhausted = errors.New("no data for region: retries exhausted")
	// ErrUnexpectedStatus means the API answered with a non-retryable status.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrNoData means the API answered without any dated value.
	ErrNoData = errors.New("no data for region")
	// ErrCircuitOpen means the fetch was rejected without calling the API.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Community string

	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// RateLimitWait is the fixed pause before retrying an overloaded request.
	RateLimitWait time.Duration
	// MaxRetries bounds the retries of one fetch; 0 disables retrying.
	MaxRetries int

	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Clock drives retry pauses. Defaults to the real clock.
	Clock clockwork.Clock
}

// Client fetches one day of observations per region.
type Client struct {
	opts       Options
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a NASA POWER client.
func NewClient(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Community == "" {
		opts.Community = "SB"
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	threshold := uint32(opts.BreakerThreshold)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nasa-power",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !upstreamFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		breaker:    breaker,
		clock:      clk,
		logger:     logger,
		metrics:    metrics,
	}
}

// Fetch returns one raw observation per date key found in the response for
// region over the single day. Overload statuses are retried after a fixed
// pause, at most MaxRetries times.
func (c *Client) Fetch(ctx context.Context, region domain.Region, day time.Time) ([]domain.RawObservation, error) {
	start := c.clock.Now()
	defer func() {
		c.metrics.FetchDuration.Observe(c.clock.Since(start).Seconds())
	}()

	u := c.requestURL(region, day)
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.getWithRetry(ctx, region, u)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T from circuit breaker", result)
	}
	return parse(body, region)
}

func (c *Client) requestURL(region domain.Region, day time.Time) string {
	d := domain.FormatDateKey(day)
	params := url.Values{
		"parameters": {strings.Join(domain.ParameterCodes(), ",")},
		"community":  {c.opts.Community},
		"longitude":  {strconv.FormatFloat(region.Longitude, 'f', -1, 64)},
		"latitude":   {strconv.FormatFloat(region.Latitude, 'f', -1, 64)},
		"start":      {d},
		"end":        {d},
		"format":     {"JSON"},
	}
	return c.opts.BaseURL + "?" + params.Encode()
}

func (c *Client) getWithRetry(ctx context.Context, region domain.Region, u string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		status, body, err := c.get(ctx, u)
		if err != nil {
			return nil, err
		}

		switch {
		case status == http.StatusOK:
			return body, nil
		case isOverload(status):
			if attempt > c.opts.MaxRetries {
				return nil, fmt.Errorf("%w after %d attempts (last status %d)", ErrRetriesExhausted, attempt, status)
			}
			c.metrics.RateLimitRetries.Inc()
			c.logger.Warn("upstream overloaded, pausing before retry",
				"status", status,
				"region", region.Name,
				"country", region.Country,
				"attempt", attempt,
				"wait", c.opts.RateLimitWait,
			)
			if err := domain.SleepWithContext(ctx, c.clock, c.opts.RateLimitWait); err != nil {
				return nil, err
			}
		default:
			return nil, &statusError{code: status, body: truncate(body, 256)}
		}
	}
}

func (c *Client) get(ctx context.Context, u string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("power request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// NASA POWER API response types.

type response struct {
	Header struct {
		FillValue *float64 `json:"fill_value"`
	} `json:"header"`
	Properties struct {
		Parameter map[string]map[string]*float64 `json:"parameter"`
	} `json:"properties"`
}

func parse(body []byte, region domain.Region) ([]domain.RawObservation, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	series := resp.Properties.Parameter
	if len(series) == 0 {
		return nil, ErrNoData
	}

	fill := defaultFillValue
	if resp.Header.FillValue != nil {
		fill = *resp.Header.FillValue
	}

	keys := make(map[string]struct{})
	for _, values := range series {
		for k := range values {
			keys[k] = struct{}{}
		}
	}
	dates := make([]string, 0, len(keys))
	for k := range keys {
		dates = append(dates, k)
	}
	sort.Strings(dates)
	if len(dates) == 0 {
		return nil, ErrNoData
	}

	out := make([]domain.RawObservation, 0, len(dates))
	for _, d := range dates {
		raw := domain.RawObservation{DateKey: d, Region: region}
		for _, p := range domain.Parameters {
			v := series[p.Code][d]
			if v != nil && *v == fill {
				v = nil
			}
			p.Set(&raw.Measurements, v)
		}
		out = append(out, raw)
	}
	return out, nil
}

// statusError carries a non-retryable HTTP status.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("%s %d", ErrUnexpectedStatus, e.code)
	}
	return fmt.Sprintf("%s %d: %s", ErrUnexpectedStatus, e.code, e.body)
}

func (e *statusError) Unwrap() error { return ErrUnexpectedStatus }

func isOverload(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// upstreamFailure reports whether err says something about the API's health
// rather than about one region. Only these count toward opening the breaker.
func upstreamFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrUnexpectedStatus)
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n]
	}
	return s
}
