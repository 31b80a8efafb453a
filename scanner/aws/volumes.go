package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// VolumesAPI is the EC2 surface the volume scanner needs.
type VolumesAPI interface {
	ec2.DescribeVolumesAPIClient
}

// VolumeScanner reports EBS volumes that have sat unattached past the
// age threshold.
type VolumeScanner struct {
	newEC2 func(aws.Config) VolumesAPI
	now    func() time.Time
}

func NewVolumeScanner() *VolumeScanner {
	return &VolumeScanner{
		newEC2: func(cfg aws.Config) VolumesAPI { return ec2.NewFromConfig(cfg) },
		now:    time.Now,
	}
}

func (s *VolumeScanner) ArgumentName() string { return "ebs-volumes" }
func (s *VolumeScanner) Label() string        { return "EBS Volumes" }
func (s *VolumeScanner) Global() bool         { return false }

func (s *VolumeScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newEC2(scope.Config)
	now := s.now().UTC()

	var findings []types.Finding
	paginator := ec2.NewDescribeVolumesPaginator(client, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{{
			Name:   aws.String("status"),
			Values: []string{string(ec2types.VolumeStateAvailable)},
		}},
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe volumes: %w", err)
		}
		for _, volume := range output.Volumes {
			created := aws.ToTime(volume.CreateTime)
			if daysSince(now, created) < scope.DaysThreshold {
				continue
			}
			findings = append(findings, types.Finding{
				AccountID:    scope.AccountID,
				AccountName:  scope.AccountName,
				Region:       scope.Region,
				ResourceType: s.ArgumentName(),
				ResourceID:   aws.ToString(volume.VolumeId),
				Name:         tagName(volume.Tags),
				Reason: fmt.Sprintf("Volume has been unattached for %s, exceeding the threshold of %d days",
					formatAge(now.Sub(created)), scope.DaysThreshold),
				CreatedAt: created,
				Metadata: map[string]interface{}{
					"size_gb":     aws.ToInt32(volume.Size),
					"volume_type": string(volume.VolumeType),
					"encrypted":   aws.ToBool(volume.Encrypted),
					"tags":        tagMap(volume.Tags),
				},
			})
		}
	}
	return findings, nil
}
