package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsAPI is the CloudWatch surface the usage checks need.
type MetricsAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// metricWindow is the period handed to CloudWatch. One-hour datapoints keep
// the response small even for a 90-day lookback.
const metricWindow = 3600 * time.Second

// metricSum returns the sum of a metric over [start, end].
func metricSum(ctx context.Context, cw MetricsAPI, namespace, metric string, dims []cwtypes.Dimension, start, end time.Time) (float64, error) {
	out, err := cw.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(namespace),
		MetricName: aws.String(metric),
		Dimensions: dims,
		StartTime:  aws.Time(start),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(int32(metricWindow.Seconds())),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticSum},
	})
	if err != nil {
		return 0, fmt.Errorf("get %s/%s: %w", namespace, metric, err)
	}
	var total float64
	for _, dp := range out.Datapoints {
		total += aws.ToFloat64(dp.Sum)
	}
	return total, nil
}

// metricAverage returns the mean of a metric's average datapoints over
// [start, end]. Zero datapoints reads as zero activity.
func metricAverage(ctx context.Context, cw MetricsAPI, namespace, metric string, dims []cwtypes.Dimension, start, end time.Time) (float64, error) {
	out, err := cw.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(namespace),
		MetricName: aws.String(metric),
		Dimensions: dims,
		StartTime:  aws.Time(start),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(int32(metricWindow.Seconds())),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
	})
	if err != nil {
		return 0, fmt.Errorf("get %s/%s: %w", namespace, metric, err)
	}
	if len(out.Datapoints) == 0 {
		return 0, nil
	}
	var total float64
	for _, dp := range out.Datapoints {
		total += aws.ToFloat64(dp.Average)
	}
	return total / float64(len(out.Datapoints)), nil
}

func dimension(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
