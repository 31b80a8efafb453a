package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// InstancesAPI is the EC2 surface the instance scanner needs.
type InstancesAPI interface {
	ec2.DescribeInstancesAPIClient
}

// lowCPUThreshold marks a running instance as idle when its average
// CPU utilization over the lookback window stays below this percentage.
const lowCPUThreshold = 1.0

// InstanceScanner reports EC2 instances that are long-stopped or running
// with near-zero CPU over the lookback window.
type InstanceScanner struct {
	newEC2 func(aws.Config) InstancesAPI
	newCW  func(aws.Config) MetricsAPI
	now    func() time.Time
}

func NewInstanceScanner() *InstanceScanner {
	return &InstanceScanner{
		newEC2: func(cfg aws.Config) InstancesAPI { return ec2.NewFromConfig(cfg) },
		newCW:  func(cfg aws.Config) MetricsAPI { return cloudwatch.NewFromConfig(cfg) },
		now:    time.Now,
	}
}

func (s *InstanceScanner) ArgumentName() string { return "ec2-instances" }
func (s *InstanceScanner) Label() string        { return "EC2 Instances" }
func (s *InstanceScanner) Global() bool         { return false }

func (s *InstanceScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newEC2(scope.Config)
	cw := s.newCW(scope.Config)
	now := s.now().UTC()

	var findings []types.Finding
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				finding, ok, err := s.checkInstance(ctx, cw, scope, instance, now)
				if err != nil {
					return nil, err
				}
				if ok {
					findings = append(findings, finding)
				}
			}
		}
	}
	return findings, nil
}

func (s *InstanceScanner) checkInstance(ctx context.Context, cw MetricsAPI, scope scanner.Scope, instance ec2types.Instance, now time.Time) (types.Finding, bool, error) {
	if instance.State == nil {
		return types.Finding{}, false, nil
	}
	var reason string
	switch instance.State.Name {
	case ec2types.InstanceStateNameStopped:
		stoppedDays := s.stoppedDays(instance, now)
		if stoppedDays < scope.DaysThreshold {
			return types.Finding{}, false, nil
		}
		reason = fmt.Sprintf("Instance has been stopped for %d days, exceeding the threshold of %d days",
			stoppedDays, scope.DaysThreshold)
	case ec2types.InstanceStateNameRunning:
		start := now.AddDate(0, 0, -scope.DaysThreshold)
		launched := aws.ToTime(instance.LaunchTime)
		if launched.After(start) {
			start = launched
		}
		avgCPU, err := metricAverage(ctx, cw, "AWS/EC2", "CPUUtilization",
			[]cwtypes.Dimension{dimension("InstanceId", aws.ToString(instance.InstanceId))}, start, now)
		if err != nil {
			return types.Finding{}, false, err
		}
		if avgCPU >= lowCPUThreshold {
			return types.Finding{}, false, nil
		}
		reason = fmt.Sprintf("Average CPU utilization of %.2f%% over the last %d days", avgCPU, scope.DaysThreshold)
	default:
		return types.Finding{}, false, nil
	}

	return types.Finding{
		AccountID:    scope.AccountID,
		AccountName:  scope.AccountName,
		Region:       scope.Region,
		ResourceType: s.ArgumentName(),
		ResourceID:   aws.ToString(instance.InstanceId),
		Name:         tagName(instance.Tags),
		Reason:       reason,
		CreatedAt:    aws.ToTime(instance.LaunchTime),
		Metadata: map[string]interface{}{
			"instance_type": string(instance.InstanceType),
			"state":         string(instance.State.Name),
			"tags":          tagMap(instance.Tags),
		},
	}, true, nil
}

// stoppedDays extracts the stop time from the state transition reason,
// e.g. "User initiated (2024-01-02 15:04:05 GMT)". When the reason carries
// no timestamp the instance is treated as stopped since launch.
func (s *InstanceScanner) stoppedDays(instance ec2types.Instance, now time.Time) int {
	reason := aws.ToString(instance.StateTransitionReason)
	if open := strings.LastIndex(reason, "("); open >= 0 {
		if end := strings.LastIndex(reason, ")"); end > open {
			if at, err := time.Parse("2006-01-02 15:04:05 MST", reason[open+1:end]); err == nil {
				return daysSince(now, at)
			}
		}
	}
	return daysSince(now, aws.ToTime(instance.LaunchTime))
}
