package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emptyset-io/cloudsweep/scanner"
)

type fakeAddresses struct {
	addresses []ec2types.Address
}

func (f *fakeAddresses) DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error) {
	return &ec2.DescribeAddressesOutput{Addresses: f.addresses}, nil
}

func TestAddressScannerFlagsUnassociatedAddresses(t *testing.T) {
	fake := &fakeAddresses{addresses: []ec2types.Address{
		{
			AllocationId: aws.String("eipalloc-unused"),
			PublicIp:     aws.String("203.0.113.10"),
		},
		{
			AllocationId:  aws.String("eipalloc-attached"),
			PublicIp:      aws.String("203.0.113.11"),
			AssociationId: aws.String("eipassoc-1"),
			InstanceId:    aws.String("i-abc"),
		},
		{
			AllocationId:       aws.String("eipalloc-nat"),
			PublicIp:           aws.String("203.0.113.12"),
			NetworkInterfaceId: aws.String("eni-nat"),
		},
	}}

	s := NewAddressScanner()
	s.newEC2 = func(aws.Config) AddressesAPI { return fake }

	findings, err := s.Scan(context.Background(), scanner.Scope{
		AccountID: "111111111111",
		Region:    "eu-west-1",
	})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "eipalloc-unused", findings[0].ResourceID)
	assert.Equal(t, "elastic-ips", findings[0].ResourceType)
	assert.Equal(t, "203.0.113.10", findings[0].Metadata["public_ip"])
}
