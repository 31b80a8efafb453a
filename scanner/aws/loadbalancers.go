package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// LoadBalancersAPI is the ELBv2 surface the load balancer scanner needs.
type LoadBalancersAPI interface {
	elbv2.DescribeLoadBalancersAPIClient
	DescribeTargetGroups(ctx context.Context, params *elbv2.DescribeTargetGroupsInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTargetGroupsOutput, error)
	DescribeTargetHealth(ctx context.Context, params *elbv2.DescribeTargetHealthInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTargetHealthOutput, error)
}

// LoadBalancerScanner reports load balancers with no healthy targets or no
// traffic over the lookback window.
type LoadBalancerScanner struct {
	newELB func(aws.Config) LoadBalancersAPI
	newCW  func(aws.Config) MetricsAPI
	now    func() time.Time
}

func NewLoadBalancerScanner() *LoadBalancerScanner {
	return &LoadBalancerScanner{
		newELB: func(cfg aws.Config) LoadBalancersAPI { return elbv2.NewFromConfig(cfg) },
		newCW:  func(cfg aws.Config) MetricsAPI { return cloudwatch.NewFromConfig(cfg) },
		now:    time.Now,
	}
}

func (s *LoadBalancerScanner) ArgumentName() string { return "load-balancers" }
func (s *LoadBalancerScanner) Label() string        { return "Load Balancers" }
func (s *LoadBalancerScanner) Global() bool         { return false }

func (s *LoadBalancerScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newELB(scope.Config)
	cw := s.newCW(scope.Config)
	now := s.now().UTC()
	start := now.AddDate(0, 0, -scope.DaysThreshold)

	var findings []types.Finding
	paginator := elbv2.NewDescribeLoadBalancersPaginator(client, &elbv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe load balancers: %w", err)
		}
		for _, lb := range output.LoadBalancers {
			reason, err := s.checkLoadBalancer(ctx, client, cw, lb, start, now, scope.DaysThreshold)
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
				ResourceID:   aws.ToString(lb.LoadBalancerArn),
				Name:         aws.ToString(lb.LoadBalancerName),
				Reason:       reason,
				CreatedAt:    aws.ToTime(lb.CreatedTime),
				Metadata: map[string]interface{}{
					"type":   string(lb.Type),
					"scheme": string(lb.Scheme),
				},
			})
		}
	}
	return findings, nil
}

func (s *LoadBalancerScanner) checkLoadBalancer(ctx context.Context, client LoadBalancersAPI, cw MetricsAPI, lb elbv2types.LoadBalancer, start, end time.Time, days int) (string, error) {
	healthy, err := s.healthyTargets(ctx, client, aws.ToString(lb.LoadBalancerArn))
	if err != nil {
		return "", err
	}
	if healthy == 0 {
		return "No healthy targets behind the load balancer.", nil
	}

	namespace, metric := "AWS/ApplicationELB", "RequestCount"
	if lb.Type == elbv2types.LoadBalancerTypeEnumNetwork {
		namespace, metric = "AWS/NetworkELB", "ActiveFlowCount"
	}
	traffic, err := metricSum(ctx, cw, namespace, metric,
		[]cwtypes.Dimension{dimension("LoadBalancer", lbMetricDimension(aws.ToString(lb.LoadBalancerArn)))}, start, end)
	if err != nil {
		return "", err
	}
	if traffic == 0 {
		return fmt.Sprintf("No traffic over the last %d days.", days), nil
	}
	return "", nil
}

func (s *LoadBalancerScanner) healthyTargets(ctx context.Context, client LoadBalancersAPI, lbARN string) (int, error) {
	groups, err := client.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		LoadBalancerArn: aws.String(lbARN),
	})
	if err != nil {
		return 0, fmt.Errorf("describe target groups: %w", err)
	}
	healthy := 0
	for _, group := range groups.TargetGroups {
		health, err := client.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{
			TargetGroupArn: group.TargetGroupArn,
		})
		if err != nil {
			return 0, fmt.Errorf("describe target health: %w", err)
		}
		for _, desc := range health.TargetHealthDescriptions {
			if desc.TargetHealth != nil && desc.TargetHealth.State == elbv2types.TargetHealthStateEnumHealthy {
				healthy++
			}
		}
	}
	return healthy, nil
}

// lbMetricDimension converts a load balancer ARN into the CloudWatch
// dimension value, e.g. "app/my-lb/50dc6c495c0c9188".
func lbMetricDimension(arn string) string {
	if i := strings.Index(arn, ":loadbalancer/"); i >= 0 {
		return arn[i+len(":loadbalancer/"):]
	}
	return arn
}
