package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SummaryFile is the run summary file name inside the output directory
const SummaryFile = "run_summary.json"

// AccountSummary represents the outcome of one account pass
type AccountSummary struct {
	Name string `json:"name"`
	ID   string `json:"id"`

	// Listing
	Pages   int `json:"pages"`
	Listed  int `json:"listed"`
	Skipped int `json:"skipped"`

	// Output
	Written      int `json:"written"`
	Incomplete   int `json:"incomplete"`
	DetailErrors int `json:"detail_errors"`

	StartedAt time.Time `json:"started_at"`
	Duration  Duration  `json:"duration"`
	Error     string    `json:"error,omitempty"`
}

// Failed reports whether the pass ended with an error
func (a AccountSummary) Failed() bool {
	return a.Error != ""
}

// RunSummary represents one crawl run across all accounts
type RunSummary struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Duration   Duration         `json:"duration"`
	Cancelled  bool             `json:"cancelled,omitempty"`
	Accounts   []AccountSummary `json:"accounts"`

	// Checkpoint state at the end of the run
	Checkpoint string `json:"checkpoint"`
	Processed  int    `json:"processed"`
	Reconciled int    `json:"reconciled,omitempty"`

	Workbook string `json:"workbook,omitempty"`
}

// NewRunSummary starts a summary with a fresh run id
func NewRunSummary(started time.Time) *RunSummary {
	return &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Accounts:  []AccountSummary{},
	}
}

// Finish stamps the end time
func (r *RunSummary) Finish(at time.Time) {
	r.FinishedAt = at
	r.Duration = Duration(at.Sub(r.StartedAt))
}

// Totals sums the per-account counters
func (r *RunSummary) Totals() (written, skipped, incomplete int) {
	for _, a := range r.Accounts {
		written += a.Written
		skipped += a.Skipped
		incomplete += a.Incomplete
	}
	return written, skipped, incomplete
}

// FailedAccounts returns the names of accounts whose pass failed
func (r *RunSummary) FailedAccounts() []string {
	var failed []string
	for _, a := range r.Accounts {
		if a.Failed() {
			failed = append(failed, a.Name)
		}
	}
	return failed
}

// Save writes the summary to a JSON file
func (r *RunSummary) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

// Load reads a run summary. A missing file returns nil, nil.
func Load(path string) (*RunSummary, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run summary: %w", err)
	}

	var r RunSummary
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
	}
	return &r, nil
}

// Duration marshals as a human readable string such as "1m30s"
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Round(time.Millisecond).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}
