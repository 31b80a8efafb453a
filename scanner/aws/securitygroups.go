package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// SecurityGroupsAPI is the EC2 surface the security group scanner needs.
type SecurityGroupsAPI interface {
	ec2.DescribeSecurityGroupsAPIClient
	DescribeNetworkInterfaces(ctx context.Context, params *ec2.DescribeNetworkInterfacesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error)
}

// SecurityGroupScanner reports security groups that no network
// interface references. The default group of each VPC is skipped; it
// cannot be deleted anyway.
type SecurityGroupScanner struct {
	newEC2 func(aws.Config) SecurityGroupsAPI
}

func NewSecurityGroupScanner() *SecurityGroupScanner {
	return &SecurityGroupScanner{
		newEC2: func(cfg aws.Config) SecurityGroupsAPI { return ec2.NewFromConfig(cfg) },
	}
}

func (s *SecurityGroupScanner) ArgumentName() string { return "security-groups" }
func (s *SecurityGroupScanner) Label() string        { return "Security Groups" }
func (s *SecurityGroupScanner) Global() bool         { return false }

func (s *SecurityGroupScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newEC2(scope.Config)

	var findings []types.Finding
	paginator := ec2.NewDescribeSecurityGroupsPaginator(client, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe security groups: %w", err)
		}
		for _, group := range output.SecurityGroups {
			if aws.ToString(group.GroupName) == "default" {
				continue
			}
			inUse, err := s.groupInUse(ctx, client, aws.ToString(group.GroupId))
			if err != nil {
				return nil, err
			}
			if inUse {
				continue
			}
			findings = append(findings, types.Finding{
				AccountID:    scope.AccountID,
				AccountName:  scope.AccountName,
				Region:       scope.Region,
				ResourceType: s.ArgumentName(),
				ResourceID:   aws.ToString(group.GroupId),
				Name:         aws.ToString(group.GroupName),
				Reason:       "Not associated with any resource (EC2 Instance or ENI).",
				Metadata: map[string]interface{}{
					"description": aws.ToString(group.Description),
					"vpc_id":      aws.ToString(group.VpcId),
					"tags":        tagMap(group.Tags),
				},
			})
		}
	}
	return findings, nil
}

// groupInUse reports whether any network interface references the group.
// One match is enough, so only the first page is consulted.
func (s *SecurityGroupScanner) groupInUse(ctx context.Context, client SecurityGroupsAPI, groupID string) (bool, error) {
	output, err := client.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("group-id"), Values: []string{groupID}},
		},
	})
	if err != nil {
		return false, fmt.Errorf("describe network interfaces for %s: %w", groupID, err)
	}
	return len(output.NetworkInterfaces) > 0, nil
}
