package types

import "time"

// ScanMetrics summarizes a completed run. Counts always equal what the
// aggregator actually absorbed; retries never double-count.
type ScanMetrics struct {
	TotalScans        int            `json:"total_scans"`
	FailedScans       int            `json:"failed_scans"`
	TotalFindings     int            `json:"total_findings"`
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	TotalRunTime      time.Duration  `json:"total_run_time"`
	AvgScansPerSecond float64        `json:"avg_scans_per_second"`
	CountsByType      map[string]int `json:"counts_by_type"`
}
