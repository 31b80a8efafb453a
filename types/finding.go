package types

import "time"

// Finding represents one unused resource discovered by a scanner.
type Finding struct {
	AccountID    string                 `json:"account_id"`
	AccountName  string                 `json:"account_name,omitempty"`
	Region       string                 `json:"region"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Name         string                 `json:"name,omitempty"`
	Reason       string                 `json:"reason"`
	CreatedAt    time.Time              `json:"created_at,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Cost         *CostBreakdown         `json:"cost,omitempty"`
}

// FindingKey uniquely identifies a finding across the whole run.
type FindingKey struct {
	AccountID    string
	Region       string
	ResourceType string
	ResourceID   string
}

// Key returns the uniqueness tuple for deduplication.
func (f *Finding) Key() FindingKey {
	return FindingKey{
		AccountID:    f.AccountID,
		Region:       f.Region,
		ResourceType: f.ResourceType,
		ResourceID:   f.ResourceID,
	}
}

// AgeHours returns how long the resource has existed, or 0 when the
// creation time is unknown.
func (f *Finding) AgeHours(now time.Time) float64 {
	if f.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(f.CreatedAt).Hours()
}

// CostBreakdown holds the derived cost estimate for a finding.
// Unsupported marks resource types without a known billing model;
// their figures are zero and reported as N/A.
type CostBreakdown struct {
	Hourly        float64 `json:"hourly"`
	Daily         float64 `json:"daily"`
	Monthly       float64 `json:"monthly"`
	Yearly        float64 `json:"yearly"`
	Lifetime      float64 `json:"lifetime"`
	LifetimeKnown bool    `json:"lifetime_known"`
	Unsupported   bool    `json:"unsupported,omitempty"`
}

// Add sums two breakdowns for per-type rollups. Lifetime stays known
// only while every contributing breakdown carried a known lifetime.
func (c CostBreakdown) Add(o CostBreakdown) CostBreakdown {
	return CostBreakdown{
		Hourly:        c.Hourly + o.Hourly,
		Daily:         c.Daily + o.Daily,
		Monthly:       c.Monthly + o.Monthly,
		Yearly:        c.Yearly + o.Yearly,
		Lifetime:      c.Lifetime + o.Lifetime,
		LifetimeKnown: c.LifetimeKnown && o.LifetimeKnown,
		Unsupported:   c.Unsupported && o.Unsupported,
	}
}
