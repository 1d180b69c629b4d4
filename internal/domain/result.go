package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Outcome classifies a job run.
type Outcome string

const (
	// OutcomeSuccess means every region produced data and persistence succeeded.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means persistence succeeded (or was skipped) but some regions failed.
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means the run could not complete: catalog, snapshot or save failure.
	OutcomeFailed Outcome = "failed"
)

// RegionFailure records why a region yielded no observations.
type RegionFailure struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	Reason  string `json:"reason"`
}

// RunResult summarizes one job invocation.
type RunResult struct {
	RunID      string          `json:"run_id"`
	Outcome    Outcome         `json:"outcome"`
	TargetDate string          `json:"target_date,omitempty"`
	Regions    int             `json:"regions"`
	Succeeded  int             `json:"regions_succeeded"`
	Failures   []RegionFailure `json:"failed_regions,omitempty"`
	Fetched    int             `json:"rows_fetched"`
	Rejected   int             `json:"rows_rejected"`
	Previous   int             `json:"rows_previous"`
	Persisted  int             `json:"rows_persisted"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   time.Duration   `json:"-"`
}

// Fail marks the result as failed with err.
func (r *RunResult) Fail(err error) {
	r.Outcome = OutcomeFailed
	r.Error = err.Error()
}

// Response is the status object returned to the invoking trigger.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Response renders the result for the trigger: 200 for success and partial
// runs, 500 for failed runs. The body is the JSON-encoded summary.
func (r RunResult) Response() Response {
	status := http.StatusOK
	if r.Outcome == OutcomeFailed {
		status = http.StatusInternalServerError
	}

	body, err := json.Marshal(r)
	if err != nil {
		body = []byte(fmt.Sprintf(`{"run_id":%q,"outcome":%q}`, r.RunID, r.Outcome))
	}
	return Response{StatusCode: status, Body: string(body)}
}
