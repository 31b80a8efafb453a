package cost

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emptyset-io/cloudsweep/types"
)

func priceDocument(usd string) string {
	return fmt.Sprintf(`{
		"product": {"productFamily": "Storage"},
		"terms": {
			"OnDemand": {
				"TERM1": {
					"priceDimensions": {
						"DIM1": {"pricePerUnit": {"USD": %q}}
					}
				}
			}
		}
	}`, usd)
}

type fakePricing struct {
	usd   string
	calls int32
	err   error
	empty bool
}

func (f *fakePricing) GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return &pricing.GetProductsOutput{}, nil
	}
	return &pricing.GetProductsOutput{PriceList: []string{priceDocument(f.usd)}}, nil
}

func TestEstimateDerivesAllTimeUnits(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	e := NewEstimator(&fakePricing{usd: "0.012"})
	e.now = func() time.Time { return now }

	finding := types.Finding{
		Region:       "us-east-1",
		ResourceType: "ebs-volumes",
		ResourceID:   "vol-1",
		CreatedAt:    now.Add(-100 * time.Hour),
	}
	require.NoError(t, e.Estimate(context.Background(), &finding))

	require.NotNil(t, finding.Cost)
	assert.InDelta(t, 0.012, finding.Cost.Hourly, 1e-9)
	assert.InDelta(t, 0.288, finding.Cost.Daily, 1e-9)
	assert.InDelta(t, 8.64, finding.Cost.Monthly, 1e-9)
	assert.InDelta(t, 105.12, finding.Cost.Yearly, 1e-9)
	assert.InDelta(t, 1.2, finding.Cost.Lifetime, 1e-9)
	assert.True(t, finding.Cost.LifetimeKnown)
	assert.False(t, finding.Cost.Unsupported)
}

func TestEstimateUnknownCreationTime(t *testing.T) {
	e := NewEstimator(&fakePricing{usd: "0.012"})

	finding := types.Finding{Region: "us-east-1", ResourceType: "elastic-ips", ResourceID: "eipalloc-1"}
	require.NoError(t, e.Estimate(context.Background(), &finding))

	require.NotNil(t, finding.Cost)
	assert.False(t, finding.Cost.LifetimeKnown)
	assert.Zero(t, finding.Cost.Lifetime)
}

func TestEstimateCachesPerFilterSet(t *testing.T) {
	fake := &fakePricing{usd: "0.05"}
	e := NewEstimator(fake)

	for i := 0; i < 5; i++ {
		finding := types.Finding{
			Region:       "us-east-1",
			ResourceType: "ebs-volumes",
			ResourceID:   fmt.Sprintf("vol-%d", i),
		}
		require.NoError(t, e.Estimate(context.Background(), &finding))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.calls))

	// A different region is a different price.
	finding := types.Finding{Region: "eu-west-1", ResourceType: "ebs-volumes", ResourceID: "vol-eu"}
	require.NoError(t, e.Estimate(context.Background(), &finding))
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.calls))
}

func TestEstimateUnsupportedResourceType(t *testing.T) {
	fake := &fakePricing{usd: "0.05"}
	e := NewEstimator(fake)

	finding := types.Finding{Region: types.GlobalRegion, ResourceType: "iam-roles", ResourceID: "arn:aws:iam::1:role/r"}
	require.NoError(t, e.Estimate(context.Background(), &finding))

	require.NotNil(t, finding.Cost)
	assert.True(t, finding.Cost.Unsupported)
	assert.Zero(t, atomic.LoadInt32(&fake.calls), "unsupported types must not hit the pricing API")
}

func TestEstimateNoMatchingProduct(t *testing.T) {
	e := NewEstimator(&fakePricing{empty: true})

	finding := types.Finding{Region: "us-east-1", ResourceType: "ebs-volumes", ResourceID: "vol-1"}
	require.NoError(t, e.Estimate(context.Background(), &finding))
	require.NotNil(t, finding.Cost)
	assert.True(t, finding.Cost.Unsupported)
}

func TestEstimateAllToleratesFailures(t *testing.T) {
	e := NewEstimator(&fakePricing{err: errors.New("endpoint down")})

	findings := e.EstimateAll(context.Background(), []types.Finding{
		{Region: "us-east-1", ResourceType: "ebs-volumes", ResourceID: "vol-1"},
		{Region: "us-east-1", ResourceType: "iam-roles", ResourceID: "role-1"},
	})

	require.Len(t, findings, 2)
	for _, f := range findings {
		require.NotNil(t, f.Cost)
		assert.True(t, f.Cost.Unsupported)
	}
}

func TestParseOnDemandPrice(t *testing.T) {
	price, err := parseOnDemandPrice(priceDocument("0.0416"))
	require.NoError(t, err)
	assert.InDelta(t, 0.0416, price, 1e-9)

	_, err = parseOnDemandPrice(`{"terms":{"OnDemand":{}}}`)
	assert.Error(t, err)

	_, err = parseOnDemandPrice("not json")
	assert.Error(t, err)
}
