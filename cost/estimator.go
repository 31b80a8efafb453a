// Package cost prices findings against the AWS Pricing API. Prices are
// fetched on demand and cached per service/filter set, so a fleet of
// identical volumes costs one API call.
package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"

	"github.com/emptyset-io/cloudsweep/telemetry"
	"github.com/emptyset-io/cloudsweep/types"
)

// PricingRegion is where the pricing API lives. It is a global endpoint
// exposed only in a handful of regions.
const PricingRegion = "us-east-1"

const (
	hoursPerDay   = 24
	daysPerMonth  = 30
	daysPerYear   = 365
)

// PricingAPI is the pricing surface the estimator needs.
type PricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// Estimator derives per-resource cost breakdowns from on-demand prices.
// Safe for concurrent use.
type Estimator struct {
	client PricingAPI
	logger *telemetry.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]float64
}

func NewEstimator(client PricingAPI) *Estimator {
	return &Estimator{
		client: client,
		logger: telemetry.NewLogger("cost"),
		now:    time.Now,
		cache:  make(map[string]float64),
	}
}

// Estimate attaches a cost breakdown to the finding. Resource types
// without a pricing mapping get a zeroed breakdown marked unsupported
// rather than an error: cost is advisory, never a reason to fail a scan.
func (e *Estimator) Estimate(ctx context.Context, finding *types.Finding) error {
	serviceCode, filters, ok := pricingFilters(finding)
	if !ok {
		finding.Cost = &types.CostBreakdown{Unsupported: true}
		return nil
	}

	hourly, found, err := e.hourlyPrice(ctx, serviceCode, filters)
	if err != nil {
		return err
	}
	if !found {
		e.logger.Warn().
			Str("resource_type", finding.ResourceType).
			Str("service_code", serviceCode).
			Msg("no pricing information found")
		finding.Cost = &types.CostBreakdown{Unsupported: true}
		return nil
	}

	breakdown := &types.CostBreakdown{
		Hourly:  hourly,
		Daily:   hourly * hoursPerDay,
		Monthly: hourly * hoursPerDay * daysPerMonth,
		Yearly:  hourly * hoursPerDay * daysPerYear,
	}
	if !finding.CreatedAt.IsZero() {
		breakdown.Lifetime = hourly * finding.AgeHours(e.now().UTC())
		breakdown.LifetimeKnown = true
	}
	finding.Cost = breakdown
	return nil
}

// EstimateAll prices a batch of findings. Lookups run concurrently but
// the shared cache keeps repeat prices to one API call each. A pricing
// failure zeroes that finding's cost instead of failing the batch.
func (e *Estimator) EstimateAll(ctx context.Context, findings []types.Finding) []types.Finding {
	sem := make(chan struct{}, 4)
	var wg sync.WaitGroup
	for i := range findings {
		wg.Add(1)
		sem <- struct{}{}
		go func(f *types.Finding) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := e.Estimate(ctx, f); err != nil {
				e.logger.Warn().
					Err(err).
					Str("resource_id", f.ResourceID).
					Msg("cost estimation failed")
				f.Cost = &types.CostBreakdown{Unsupported: true}
			}
		}(&findings[i])
	}
	wg.Wait()
	return findings
}

// hourlyPrice resolves the on-demand USD price for a service/filter set,
// consulting the cache first. The found flag distinguishes "no product
// matched" from an API failure.
func (e *Estimator) hourlyPrice(ctx context.Context, serviceCode string, filters map[string]string) (price float64, found bool, err error) {
	key := cacheKey(serviceCode, filters)
	e.mu.Lock()
	if cached, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return cached, true, nil
	}
	e.mu.Unlock()

	input := &pricing.GetProductsInput{
		ServiceCode: aws.String(serviceCode),
		MaxResults:  aws.Int32(1),
	}
	for _, field := range sortedKeys(filters) {
		input.Filters = append(input.Filters, pricingtypes.Filter{
			Type:  pricingtypes.FilterTypeTermMatch,
			Field: aws.String(field),
			Value: aws.String(filters[field]),
		})
	}

	output, err := e.client.GetProducts(ctx, input)
	if err != nil {
		return 0, false, fmt.Errorf("get products for %s: %w", serviceCode, err)
	}
	if len(output.PriceList) == 0 {
		return 0, false, nil
	}

	price, err = parseOnDemandPrice(output.PriceList[0])
	if err != nil {
		return 0, false, fmt.Errorf("parse price for %s: %w", serviceCode, err)
	}

	e.mu.Lock()
	e.cache[key] = price
	e.mu.Unlock()
	return price, true, nil
}

// parseOnDemandPrice walks a pricing product document down to the USD
// price of its first on-demand price dimension.
func parseOnDemandPrice(document string) (float64, error) {
	var product struct {
		Terms struct {
			OnDemand map[string]struct {
				PriceDimensions map[string]struct {
					PricePerUnit map[string]string `json:"pricePerUnit"`
				} `json:"priceDimensions"`
			} `json:"OnDemand"`
		} `json:"terms"`
	}
	if err := json.Unmarshal([]byte(document), &product); err != nil {
		return 0, err
	}
	for _, term := range product.Terms.OnDemand {
		for _, dimension := range term.PriceDimensions {
			usd, ok := dimension.PricePerUnit["USD"]
			if !ok {
				continue
			}
			return strconv.ParseFloat(usd, 64)
		}
	}
	return 0, fmt.Errorf("no on-demand USD price dimension")
}

// pricingFilters maps a finding to its pricing service code and term
// filters. The region filter keeps each region's price distinct.
func pricingFilters(finding *types.Finding) (string, map[string]string, bool) {
	filters := map[string]string{}
	if finding.Region != "" && finding.Region != types.GlobalRegion {
		filters["regionCode"] = finding.Region
	}

	switch finding.ResourceType {
	case "ebs-volumes":
		filters["productFamily"] = "Storage"
		filters["volumeType"] = "General Purpose"
		return "AmazonEC2", filters, true
	case "ebs-snapshots":
		filters["productFamily"] = "Storage Snapshot"
		return "AmazonEC2", filters, true
	case "ec2-instances":
		instanceType, ok := metadataString(finding, "instance_type")
		if !ok {
			return "", nil, false
		}
		filters["productFamily"] = "Compute Instance"
		filters["instanceType"] = instanceType
		filters["operatingSystem"] = "Linux"
		filters["preInstalledSw"] = "NA"
		filters["tenancy"] = "Shared"
		filters["capacitystatus"] = "Used"
		return "AmazonEC2", filters, true
	case "rds-instances":
		instanceClass, ok := metadataString(finding, "instance_class")
		if !ok {
			return "", nil, false
		}
		filters["productFamily"] = "Database Instance"
		filters["instanceType"] = instanceClass
		return "AmazonRDS", filters, true
	case "dynamodb-tables":
		filters["productFamily"] = "Non-relational Database"
		return "AmazonDynamoDB", filters, true
	case "elastic-ips":
		filters["productFamily"] = "IP Address"
		return "AmazonEC2", filters, true
	case "load-balancers":
		filters["productFamily"] = "Load Balancer"
		return "ElasticLoadBalancing", filters, true
	default:
		return "", nil, false
	}
}

func metadataString(finding *types.Finding, key string) (string, bool) {
	value, ok := finding.Metadata[key].(string)
	return value, ok && value != ""
}

func cacheKey(serviceCode string, filters map[string]string) string {
	var b strings.Builder
	b.WriteString(serviceCode)
	for _, field := range sortedKeys(filters) {
		b.WriteByte('|')
		b.WriteString(field)
		b.WriteByte('=')
		b.WriteString(filters[field])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
