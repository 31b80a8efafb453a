package types

import (
	"fmt"
	"time"
)

// GlobalRegion is the pseudo-region for scanners that inspect
// account-wide services such as IAM.
const GlobalRegion = "global"

// Account is one member account of the organization, with the regions
// discovered for it. Immutable once topology discovery completes.
type Account struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Regions []string `json:"regions"`
}

// ScanTask is the unit of scheduled work: one (account, region, scanner)
// cell of the expanded task space.
type ScanTask struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name,omitempty"`
	Region      string `json:"region"`
	Scanner     string `json:"scanner"`
}

// ID returns the unique triple identifier for the task.
func (t ScanTask) ID() string {
	return fmt.Sprintf("%s/%s/%s", t.AccountID, t.Region, t.Scanner)
}

// Outcome classifies how a task execution ended.
type Outcome string

const (
	// OutcomeSuccess means the task completed cleanly on its first attempt.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means the task eventually succeeded but hit
	// transient failures along the way; findings come from the clean
	// final attempt only.
	OutcomePartial Outcome = "partial_failure"
	// OutcomeFailure means the task exhausted its retries or failed
	// with a terminal error. No findings are emitted.
	OutcomeFailure Outcome = "failure"
)

// TaskResult is emitted exactly once per task by the scheduler.
type TaskResult struct {
	Task     ScanTask      `json:"task"`
	Findings []Finding     `json:"findings,omitempty"`
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
}

// TaskError records a failed task for the final report.
type TaskError struct {
	Task  ScanTask `json:"task"`
	Error string   `json:"error"`
}

// AccountError records an account that could not be scanned at all,
// typically because its runner role was unassumable.
type AccountError struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name,omitempty"`
	Error       string `json:"error"`
}
