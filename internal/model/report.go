package model

import (
	"time"

	"github.com/google/uuid"
)

// CampaignName is used in place of a target when a run covers several targets.
const CampaignName = "campaign"

// IdentitySampling selects when the identity stored in a record is taken.
type IdentitySampling string

const (
	// SampleAfter takes the identity after the command finished. This is the
	// identity active during or just after the scan.
	SampleAfter IdentitySampling = "after"

	// SampleBefore reuses the identity logged just before the command started.
	SampleBefore IdentitySampling = "before"
)

// ProxyInfo records which proxy endpoints a run used.
type ProxyInfo struct {
	Scheme  string `json:"scheme"`
	Socks   string `json:"socks"`
	Control string `json:"control,omitempty"`
}

// RunReport aggregates the records of one invocation.
// It is owned by the run coordinator and only ever appended to.
type RunReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Profile is the name of the scan profile used.
	Profile ProfileName `json:"profile"`

	// Timestamp is when the run started, in UTC.
	Timestamp time.Time `json:"timestamp"`

	// Target is set only for single-target runs.
	Target string `json:"target,omitempty"`

	// Proxy describes the proxy configuration the run used.
	Proxy *ProxyInfo `json:"proxy,omitempty"`

	// IdentitySampling records when record identities were taken.
	IdentitySampling IdentitySampling `json:"identity_sampling,omitempty"`

	// Results holds one record per executed command, in execution order.
	Results []ExecutionRecord `json:"results"`
}

// NewRunReport creates an empty report stamped with the given time.
func NewRunReport(profile ProfileName, now time.Time) *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		Profile:   profile,
		Timestamp: now.UTC(),
		Results:   make([]ExecutionRecord, 0),
	}
}

// Append adds a record to the report.
func (r *RunReport) Append(rec ExecutionRecord) {
	r.Results = append(r.Results, rec)
}

// Name returns the base name used for result files: the target for
// single-target runs, otherwise "campaign".
func (r *RunReport) Name() string {
	if r.Target != "" {
		return r.Target
	}
	return CampaignName
}

// Summary counts records by status.
func (r *RunReport) Summary() map[Status]int {
	summary := map[Status]int{
		StatusAttempted: 0,
		StatusCompleted: 0,
		StatusNoResults: 0,
		StatusFailed:    0,
	}
	for _, rec := range r.Results {
		summary[rec.Status]++
	}
	return summary
}

// HasFailures reports whether any record failed.
func (r *RunReport) HasFailures() bool {
	for _, rec := range r.Results {
		if rec.Status.IsFailure() {
			return true
		}
	}
	return false
}
