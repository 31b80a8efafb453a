package aggregator

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emptyset-io/cloudsweep/types"
)

func volumeFinding(account, region, id string) types.Finding {
	return types.Finding{
		AccountID:    account,
		Region:       region,
		ResourceType: "ebs-volumes",
		ResourceID:   id,
	}
}

func successResult(account, region, scanner string, findings ...types.Finding) types.TaskResult {
	return types.TaskResult{
		Task: types.ScanTask{
			AccountID: account,
			Region:    region,
			Scanner:   scanner,
		},
		Findings: findings,
		Outcome:  types.OutcomeSuccess,
		Attempts: 1,
	}
}

func TestAbsorbIsIdempotentPerTask(t *testing.T) {
	agg := New()
	result := successResult("111111111111", "us-east-1", "ebs-volumes",
		volumeFinding("111111111111", "us-east-1", "vol-1"))

	agg.Absorb(result)
	agg.Absorb(result)

	report := agg.Finalize()
	assert.Equal(t, 1, report.Metrics.TotalScans)
	assert.Len(t, report.Resources, 1)
}

func TestAbsorbDropsDuplicateFindings(t *testing.T) {
	agg := New()
	dup := volumeFinding("111111111111", "us-east-1", "vol-1")

	agg.Absorb(successResult("111111111111", "us-east-1", "ebs-volumes", dup, dup,
		volumeFinding("111111111111", "us-east-1", "vol-2")))
	// Same resource surfacing from a different task keeps one copy.
	agg.Absorb(successResult("111111111111", "us-east-1", "other-scanner", dup))

	report := agg.Finalize()
	assert.Len(t, report.Resources, 2)
	assert.Equal(t, 2, report.ResourceTypeCounts["ebs-volumes"])
}

func TestFinalizeCountsAndRegions(t *testing.T) {
	agg := New()
	agg.Absorb(successResult("111111111111", "us-east-1", "ebs-volumes",
		volumeFinding("111111111111", "us-east-1", "vol-1"),
		volumeFinding("111111111111", "us-east-1", "vol-2")))
	agg.Absorb(successResult("111111111111", "eu-west-1", "ebs-volumes",
		volumeFinding("111111111111", "eu-west-1", "vol-3")))
	agg.Absorb(successResult("111111111111", types.GlobalRegion, "iam-roles"))

	report := agg.Finalize()
	assert.Equal(t, 3, report.ResourceTypeCounts["ebs-volumes"])
	assert.Equal(t, []string{"eu-west-1", "us-east-1"}, report.Accounts["111111111111"],
		"global pseudo-region must not appear in the region list")
	assert.Equal(t, 3, report.Metrics.TotalScans)
	assert.Equal(t, 3, report.Metrics.TotalFindings)
}

func TestFailedTasksAreRecordedNotCounted(t *testing.T) {
	agg := New()
	agg.Absorb(types.TaskResult{
		Task:    types.ScanTask{AccountID: "111111111111", Region: "us-east-1", Scanner: "rds-instances"},
		Outcome: types.OutcomeFailure,
		Err:     errors.New("access denied"),
	})
	agg.Absorb(successResult("111111111111", "us-east-1", "ebs-volumes",
		volumeFinding("111111111111", "us-east-1", "vol-1")))

	report := agg.Finalize()
	assert.Equal(t, 2, report.Metrics.TotalScans)
	assert.Equal(t, 1, report.Metrics.FailedScans)
	assert.Len(t, report.Resources, 1)
	require.Len(t, report.TaskErrors, 1)
	assert.Equal(t, "rds-instances", report.TaskErrors[0].Task.Scanner)
	assert.Equal(t, "access denied", report.TaskErrors[0].Error)
}

func TestRecordAccountError(t *testing.T) {
	agg := New()
	agg.RecordAccountError("222222222222", "prod", errors.New("assume role failed"))

	report := agg.Finalize()
	require.Len(t, report.AccountErrors, 1)
	assert.Equal(t, "222222222222", report.AccountErrors[0].AccountID)
	assert.Equal(t, "prod", report.AccountNames["222222222222"])
}

func TestCombinedCostsSumPerType(t *testing.T) {
	agg := New()
	f1 := volumeFinding("111111111111", "us-east-1", "vol-1")
	f1.Cost = &types.CostBreakdown{Hourly: 0.012, Daily: 0.288, Monthly: 8.64, Yearly: 105.12, Lifetime: 1.0, LifetimeKnown: true}
	f2 := volumeFinding("111111111111", "us-east-1", "vol-2")
	f2.Cost = &types.CostBreakdown{Hourly: 0.01, Daily: 0.24, Monthly: 7.2, Yearly: 87.6, Lifetime: 2.0, LifetimeKnown: true}

	agg.Absorb(successResult("111111111111", "us-east-1", "ebs-volumes", f1, f2))

	report := agg.Finalize()
	combined := report.CombinedCosts["ebs-volumes"]
	assert.InDelta(t, 0.022, combined.Hourly, 1e-9)
	assert.InDelta(t, 3.0, combined.Lifetime, 1e-9)
	assert.True(t, combined.LifetimeKnown)
}

func TestConcurrentAbsorb(t *testing.T) {
	agg := New()
	regions := []string{"us-east-1", "eu-west-1", "ap-south-1", "us-west-2"}

	var wg sync.WaitGroup
	for _, region := range regions {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(region string, i int) {
				defer wg.Done()
				agg.Absorb(successResult("111111111111", region, string(rune('a'+i)),
					volumeFinding("111111111111", region, string(rune('a'+i)))))
			}(region, i)
		}
	}
	wg.Wait()

	report := agg.Finalize()
	assert.Equal(t, 100, report.Metrics.TotalScans)
	assert.Len(t, report.Resources, 100)
	assert.Positive(t, report.Metrics.AvgScansPerSecond)
	assert.False(t, report.Metrics.EndTime.Before(report.Metrics.StartTime))
}
