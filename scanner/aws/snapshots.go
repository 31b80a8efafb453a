package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// SnapshotsAPI is the EC2 surface the snapshot scanner needs.
type SnapshotsAPI interface {
	ec2.DescribeSnapshotsAPIClient
}

// SnapshotScanner reports EBS snapshots owned by the account that are
// older than the age threshold.
type SnapshotScanner struct {
	newEC2 func(aws.Config) SnapshotsAPI
	now    func() time.Time
}

func NewSnapshotScanner() *SnapshotScanner {
	return &SnapshotScanner{
		newEC2: func(cfg aws.Config) SnapshotsAPI { return ec2.NewFromConfig(cfg) },
		now:    time.Now,
	}
}

func (s *SnapshotScanner) ArgumentName() string { return "ebs-snapshots" }
func (s *SnapshotScanner) Label() string        { return "EBS Snapshots" }
func (s *SnapshotScanner) Global() bool         { return false }

func (s *SnapshotScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newEC2(scope.Config)
	now := s.now().UTC()

	var findings []types.Finding
	paginator := ec2.NewDescribeSnapshotsPaginator(client, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe snapshots: %w", err)
		}
		for _, snapshot := range output.Snapshots {
			created := aws.ToTime(snapshot.StartTime)
			if daysSince(now, created) < scope.DaysThreshold {
				continue
			}
			name := tagName(snapshot.Tags)
			if name == "" {
				name = aws.ToString(snapshot.Description)
			}
			findings = append(findings, types.Finding{
				AccountID:    scope.AccountID,
				AccountName:  scope.AccountName,
				Region:       scope.Region,
				ResourceType: s.ArgumentName(),
				ResourceID:   aws.ToString(snapshot.SnapshotId),
				Name:         name,
				Reason: fmt.Sprintf("Snapshot is %s old, exceeding the threshold of %d days",
					formatAge(now.Sub(created)), scope.DaysThreshold),
				CreatedAt: created,
				Metadata: map[string]interface{}{
					"size_gb":   aws.ToInt32(snapshot.VolumeSize),
					"volume_id": aws.ToString(snapshot.VolumeId),
					"tags":      tagMap(snapshot.Tags),
				},
			})
		}
	}
	return findings, nil
}
