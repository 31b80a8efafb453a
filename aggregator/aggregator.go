// Package aggregator merges task results from concurrent workers into a
// single scan report. Absorption is idempotent: a redelivered task
// result or a duplicate finding never double-counts.
package aggregator

import (
	"sort"
	"sync"
	"time"

	"github.com/emptyset-io/cloudsweep/types"
)

// Report is the finalized scan artifact.
type Report struct {
	Accounts           map[string][]string              `json:"accounts"`
	AccountNames       map[string]string                `json:"account_names"`
	ResourceTypeCounts map[string]int                   `json:"resource_type_counts"`
	CombinedCosts      map[string]types.CostBreakdown   `json:"combined_costs,omitempty"`
	Resources          []types.Finding                  `json:"resources"`
	Metrics            types.ScanMetrics                `json:"scan_metrics"`
	TaskErrors         []types.TaskError                `json:"task_errors,omitempty"`
	AccountErrors      []types.AccountError             `json:"account_errors,omitempty"`
}

// Aggregator collects findings and errors from worker goroutines. All
// methods are safe for concurrent use.
type Aggregator struct {
	mu            sync.Mutex
	now           func() time.Time
	started       time.Time
	seenTasks     map[string]struct{}
	seenFindings  map[types.FindingKey]struct{}
	findings      []types.Finding
	taskErrors    []types.TaskError
	accountErrors []types.AccountError
	accountNames  map[string]string
	regions       map[string]map[string]struct{}
	totalScans    int
	failedScans   int
}

func New() *Aggregator {
	now := time.Now
	return &Aggregator{
		now:          now,
		started:      now(),
		seenTasks:    make(map[string]struct{}),
		seenFindings: make(map[types.FindingKey]struct{}),
		accountNames: make(map[string]string),
		regions:      make(map[string]map[string]struct{}),
	}
}

// Absorb merges one task result. A result for an already-absorbed task
// is dropped whole; within a fresh result, findings whose identity was
// already recorded are dropped individually.
func (a *Aggregator) Absorb(result types.TaskResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	taskID := result.Task.ID()
	if _, dup := a.seenTasks[taskID]; dup {
		return
	}
	a.seenTasks[taskID] = struct{}{}

	a.totalScans++
	a.recordAccount(result.Task.AccountID, result.Task.AccountName, result.Task.Region)

	if result.Outcome == types.OutcomeFailure {
		a.failedScans++
		msg := ""
		if result.Err != nil {
			msg = result.Err.Error()
		}
		a.taskErrors = append(a.taskErrors, types.TaskError{Task: result.Task, Error: msg})
		return
	}

	for _, finding := range result.Findings {
		key := finding.Key()
		if _, dup := a.seenFindings[key]; dup {
			continue
		}
		a.seenFindings[key] = struct{}{}
		a.findings = append(a.findings, finding)
	}
}

// RecordAccountError notes an account that could not be scanned at all,
// typically because the runner role exchange failed.
func (a *Aggregator) RecordAccountError(accountID, accountName string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accountNames[accountID] = accountName
	a.accountErrors = append(a.accountErrors, types.AccountError{
		AccountID:   accountID,
		AccountName: accountName,
		Error:       err.Error(),
	})
}

// Finalize closes the scan and builds the report. Call it once, after
// every worker has finished.
func (a *Aggregator) Finalize() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	ended := a.now()
	runTime := ended.Sub(a.started)

	counts := make(map[string]int)
	costs := make(map[string]types.CostBreakdown)
	for _, finding := range a.findings {
		counts[finding.ResourceType]++
		if finding.Cost == nil {
			continue
		}
		if total, ok := costs[finding.ResourceType]; ok {
			costs[finding.ResourceType] = total.Add(*finding.Cost)
		} else {
			costs[finding.ResourceType] = *finding.Cost
		}
	}

	accounts := make(map[string][]string, len(a.regions))
	for accountID, regionSet := range a.regions {
		regions := make([]string, 0, len(regionSet))
		for region := range regionSet {
			regions = append(regions, region)
		}
		sort.Strings(regions)
		accounts[accountID] = regions
	}

	resources := make([]types.Finding, len(a.findings))
	copy(resources, a.findings)
	sort.Slice(resources, func(i, j int) bool {
		if resources[i].AccountID != resources[j].AccountID {
			return resources[i].AccountID < resources[j].AccountID
		}
		if resources[i].Region != resources[j].Region {
			return resources[i].Region < resources[j].Region
		}
		if resources[i].ResourceType != resources[j].ResourceType {
			return resources[i].ResourceType < resources[j].ResourceType
		}
		return resources[i].ResourceID < resources[j].ResourceID
	})

	metrics := types.ScanMetrics{
		TotalScans:    a.totalScans,
		FailedScans:   a.failedScans,
		TotalFindings: len(resources),
		StartTime:     a.started,
		EndTime:       ended,
		TotalRunTime:  runTime,
		CountsByType:  counts,
	}
	if seconds := runTime.Seconds(); seconds > 0 {
		metrics.AvgScansPerSecond = float64(a.totalScans) / seconds
	}

	return &Report{
		Accounts:           accounts,
		AccountNames:       copyNames(a.accountNames),
		ResourceTypeCounts: counts,
		CombinedCosts:      costs,
		Resources:          resources,
		Metrics:            metrics,
		TaskErrors:         append([]types.TaskError(nil), a.taskErrors...),
		AccountErrors:      append([]types.AccountError(nil), a.accountErrors...),
	}
}

// recordAccount notes that a task ran against the account. The global
// pseudo-region stays out of the per-account region list.
func (a *Aggregator) recordAccount(accountID, accountName, region string) {
	if accountName != "" {
		a.accountNames[accountID] = accountName
	}
	set, ok := a.regions[accountID]
	if !ok {
		set = make(map[string]struct{})
		a.regions[accountID] = set
	}
	if region != types.GlobalRegion {
		set[region] = struct{}{}
	}
}

func copyNames(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
