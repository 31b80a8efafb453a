// Package topology discovers the members of the organization and the
// regions each account actually uses.
package topology

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"golang.org/x/sync/errgroup"

	"github.com/emptyset-io/cloudsweep/telemetry"
	"github.com/emptyset-io/cloudsweep/types"
)

const defaultProbeConcurrency = 4

// RegionsAPI is the slice of the EC2 client used for region enumeration.
type RegionsAPI interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// TaggingAPI probes a region for any provisioned resource.
type TaggingAPI interface {
	GetResources(ctx context.Context, params *resourcegroupstaggingapi.GetResourcesInput, optFns ...func(*resourcegroupstaggingapi.Options)) (*resourcegroupstaggingapi.GetResourcesOutput, error)
}

// ListAccounts returns the active member accounts of the organization,
// ordered by account ID.
func ListAccounts(ctx context.Context, client organizations.ListAccountsAPIClient) ([]types.Account, error) {
	var accounts []types.Account

	paginator := organizations.NewListAccountsPaginator(client, &organizations.ListAccountsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list organization accounts: %w", err)
		}
		for _, account := range page.Accounts {
			if account.Status != orgtypes.AccountStatusActive {
				continue
			}
			accounts = append(accounts, types.Account{
				ID:   aws.ToString(account.Id),
				Name: aws.ToString(account.Name),
			})
		}
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// RegionDiscoverer finds the regions in use for one account, using that
// account's runner credentials.
type RegionDiscoverer struct {
	Regions    RegionsAPI
	NewTagging func(region string) TaggingAPI
	// AllRegions substitutes the full enabled-region catalog for the
	// in-use probe.
	AllRegions bool
	// ProbeConcurrency bounds the parallel per-region probes.
	ProbeConcurrency int

	logger *telemetry.Logger
}

// NewRegionDiscoverer wires a discoverer over real clients.
func NewRegionDiscoverer(cfgFor func(region string) aws.Config, homeRegion string, allRegions bool) *RegionDiscoverer {
	return &RegionDiscoverer{
		Regions: ec2.NewFromConfig(cfgFor(homeRegion)),
		NewTagging: func(region string) TaggingAPI {
			return resourcegroupstaggingapi.NewFromConfig(cfgFor(region))
		},
		AllRegions: allRegions,
	}
}

// EnabledRegions lists every region enabled for the account, sorted.
func (d *RegionDiscoverer) EnabledRegions(ctx context.Context) ([]string, error) {
	out, err := d.Regions.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate regions: %w", err)
	}

	var enabled []string
	for _, region := range out.Regions {
		if name := aws.ToString(region.RegionName); name != "" {
			enabled = append(enabled, name)
		}
	}
	sort.Strings(enabled)
	return enabled, nil
}

// ActiveRegions lists the regions that contain provisioned resources,
// or every enabled region when AllRegions is set. An account with zero
// active regions yields an empty slice, not an error.
func (d *RegionDiscoverer) ActiveRegions(ctx context.Context) ([]string, error) {
	enabled, err := d.EnabledRegions(ctx)
	if err != nil {
		return nil, err
	}
	if d.AllRegions {
		return enabled, nil
	}
	return d.probeRegions(ctx, enabled)
}

// probeRegions keeps only regions where at least one tagged resource
// exists. A failed probe keeps the region rather than silently dropping
// it from the scan.
func (d *RegionDiscoverer) probeRegions(ctx context.Context, regions []string) ([]string, error) {
	concurrency := d.ProbeConcurrency
	if concurrency <= 0 {
		concurrency = defaultProbeConcurrency
	}

	var mu sync.Mutex
	active := make([]string, 0, len(regions))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for _, region := range regions {
		group.Go(func() error {
			inUse, err := d.regionInUse(groupCtx, region)
			if err != nil {
				d.log().WithContext(groupCtx).Warn().
					Err(err).
					Str("region", region).
					Msg("region probe failed, keeping region")
				inUse = true
			}
			if inUse {
				mu.Lock()
				active = append(active, region)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(active)
	return active, nil
}

func (d *RegionDiscoverer) regionInUse(ctx context.Context, region string) (bool, error) {
	out, err := d.NewTagging(region).GetResources(ctx, &resourcegroupstaggingapi.GetResourcesInput{
		ResourcesPerPage: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.ResourceTagMappingList) > 0, nil
}

func (d *RegionDiscoverer) log() *telemetry.Logger {
	if d.logger == nil {
		d.logger = telemetry.NewLogger("topology")
	}
	return d.logger
}
