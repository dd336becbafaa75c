package domain

import "time"

// Result is the experiment oracle's output for one candidate.
type Result struct {
	// Key identifies the candidate.
	Key string `json:"key"`

	// Label is the evaluated target value.
	Label float64 `json:"label"`

	// Err is the failure marker. Non-empty means the evaluation failed
	// for this candidate; the candidate is dropped from the pool rather
	// than retried.
	Err string `json:"err,omitempty"`
}

// Failed reports whether the evaluation failed.
func (r Result) Failed() bool {
	return r.Err != ""
}

// Summary is the analyzer's per-iteration report.
type Summary struct {
	// NewDiscoveries counts discoveries among this iteration's
	// acquisitions.
	NewDiscoveries int `json:"new_discoveries"`

	// TotalDiscoveries counts discoveries across the whole seed.
	TotalDiscoveries int `json:"total_discoveries"`

	// Notes carries free-form analyzer commentary.
	Notes string `json:"notes,omitempty"`
}

// IterationRecord is the durable record of one completed iteration.
type IterationRecord struct {
	// ID is a unique identifier for the record.
	ID string `json:"id"`

	// Iteration is the iteration number this record completed
	// (0-based: the first Run produces Iteration 0).
	Iteration int `json:"iteration"`

	// Selected are the keys the agent chose.
	Selected []string `json:"selected"`

	// Acquired are the selected keys that evaluated successfully and
	// moved into the seed.
	Acquired []string `json:"acquired"`

	// Failed are the selected keys whose evaluation failed. They are
	// removed from the pool permanently.
	Failed []string `json:"failed,omitempty"`

	// Summary is the analyzer's report for this iteration.
	Summary Summary `json:"summary"`

	// StartedAt is when the iteration began.
	StartedAt time.Time `json:"started_at"`

	// EndedAt is when the iteration committed.
	EndedAt time.Time `json:"ended_at"`
}

// CampaignState is the persisted record of a campaign's progress.
// Seed and Candidates are always disjoint and together cover the pool
// minus permanently failed candidates. Iteration equals len(History).
type CampaignState struct {
	// Iteration counts committed iterations.
	Iteration int `json:"iteration"`

	// Seed is the labeled subset. Grows monotonically.
	Seed Dataset `json:"seed"`

	// Candidates is the unlabeled subset.
	Candidates Dataset `json:"candidates"`

	// History holds one record per committed iteration, in order.
	History []IterationRecord `json:"history"`
}

// TotalDiscoveries returns the analyzer's running discovery count, or
// zero before the first iteration.
func (s CampaignState) TotalDiscoveries() int {
	if len(s.History) == 0 {
		return 0
	}
	return s.History[len(s.History)-1].Summary.TotalDiscoveries
}
