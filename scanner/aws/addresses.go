package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// AddressesAPI is the EC2 surface the elastic IP scanner needs.
// DescribeAddresses is not paginated by the SDK.
type AddressesAPI interface {
	DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
}

// AddressScanner reports elastic IPs that are not attached to anything.
// An address bound to a NAT gateway always carries a network interface,
// so the association check covers that case too.
type AddressScanner struct {
	newEC2 func(aws.Config) AddressesAPI
}

func NewAddressScanner() *AddressScanner {
	return &AddressScanner{
		newEC2: func(cfg aws.Config) AddressesAPI { return ec2.NewFromConfig(cfg) },
	}
}

func (s *AddressScanner) ArgumentName() string { return "elastic-ips" }
func (s *AddressScanner) Label() string        { return "Elastic IPs" }
func (s *AddressScanner) Global() bool         { return false }

func (s *AddressScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newEC2(scope.Config)

	output, err := client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return nil, fmt.Errorf("describe addresses: %w", err)
	}

	var findings []types.Finding
	for _, address := range output.Addresses {
		if address.AssociationId != nil || address.InstanceId != nil || address.NetworkInterfaceId != nil {
			continue
		}
		findings = append(findings, types.Finding{
			AccountID:    scope.AccountID,
			AccountName:  scope.AccountName,
			Region:       scope.Region,
			ResourceType: s.ArgumentName(),
			ResourceID:   aws.ToString(address.AllocationId),
			Name:         tagName(address.Tags),
			Reason:       "Not associated with any resource (EC2 Instance, Network Interface, or NAT Gateway).",
			Metadata: map[string]interface{}{
				"public_ip": aws.ToString(address.PublicIp),
				"tags":      tagMap(address.Tags),
			},
		})
	}
	return findings, nil
}
