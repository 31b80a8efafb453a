package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// DatabasesAPI is the RDS surface the database scanner needs.
type DatabasesAPI interface {
	rds.DescribeDBInstancesAPIClient
}

// DatabaseScanner reports RDS instances with no connections, near-zero
// CPU, or no disk activity over the lookback window.
type DatabaseScanner struct {
	newRDS func(aws.Config) DatabasesAPI
	newCW  func(aws.Config) MetricsAPI
	now    func() time.Time
}

func NewDatabaseScanner() *DatabaseScanner {
	return &DatabaseScanner{
		newRDS: func(cfg aws.Config) DatabasesAPI { return rds.NewFromConfig(cfg) },
		newCW:  func(cfg aws.Config) MetricsAPI { return cloudwatch.NewFromConfig(cfg) },
		now:    time.Now,
	}
}

func (s *DatabaseScanner) ArgumentName() string { return "rds-instances" }
func (s *DatabaseScanner) Label() string        { return "RDS Instances" }
func (s *DatabaseScanner) Global() bool         { return false }

func (s *DatabaseScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newRDS(scope.Config)
	cw := s.newCW(scope.Config)
	now := s.now().UTC()

	var findings []types.Finding
	paginator := rds.NewDescribeDBInstancesPaginator(client, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe db instances: %w", err)
		}
		for _, db := range output.DBInstances {
			created := aws.ToTime(db.InstanceCreateTime)
			start := now.AddDate(0, 0, -scope.DaysThreshold)
			if created.After(start) {
				start = created
			}
			reason, err := s.checkUsage(ctx, cw, aws.ToString(db.DBInstanceIdentifier), start, now, scope.DaysThreshold)
			if err != nil {
				return nil, err
			}
			if reason == "" {
				continue
			}
			findings = append(findings, types.Finding{
				AccountID:    scope.AccountID,
				AccountName:  scope.AccountName,
				Region:       scope.Region,
				ResourceType: s.ArgumentName(),
				ResourceID:   aws.ToString(db.DBInstanceIdentifier),
				Name:         aws.ToString(db.DBInstanceIdentifier),
				Reason:       reason,
				CreatedAt:    created,
				Metadata: map[string]interface{}{
					"engine":         aws.ToString(db.Engine),
					"instance_class": aws.ToString(db.DBInstanceClass),
					"storage_gb":     aws.ToInt32(db.AllocatedStorage),
					"multi_az":       aws.ToBool(db.MultiAZ),
				},
			})
		}
	}
	return findings, nil
}

func (s *DatabaseScanner) checkUsage(ctx context.Context, cw MetricsAPI, id string, start, end time.Time, days int) (string, error) {
	dims := []cwtypes.Dimension{dimension("DBInstanceIdentifier", id)}

	connections, err := metricSum(ctx, cw, "AWS/RDS", "DatabaseConnections", dims, start, end)
	if err != nil {
		return "", err
	}
	if connections == 0 {
		return fmt.Sprintf("No database connections over the last %d days.", days), nil
	}

	avgCPU, err := metricAverage(ctx, cw, "AWS/RDS", "CPUUtilization", dims, start, end)
	if err != nil {
		return "", err
	}
	if avgCPU < lowCPUThreshold {
		return fmt.Sprintf("Average CPU utilization of %.2f%% over the last %d days.", avgCPU, days), nil
	}

	readIOPS, err := metricSum(ctx, cw, "AWS/RDS", "ReadIOPS", dims, start, end)
	if err != nil {
		return "", err
	}
	writeIOPS, err := metricSum(ctx, cw, "AWS/RDS", "WriteIOPS", dims, start, end)
	if err != nil {
		return "", err
	}
	if readIOPS == 0 && writeIOPS == 0 {
		return fmt.Sprintf("No read or write IOPS over the last %d days.", days), nil
	}
	return "", nil
}
