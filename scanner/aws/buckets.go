package aws

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// BucketsAPI is the S3 surface the bucket scanner needs.
type BucketsAPI interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// BucketScanner reports S3 buckets that are empty or whose object count
// has not moved over the lookback window. It runs once per account;
// bucket listings are account-wide, so each finding carries the bucket's
// own region. Per-bucket calls go through a client pinned to that region.
type BucketScanner struct {
	newS3 func(aws.Config) BucketsAPI
	newCW func(aws.Config) MetricsAPI
	now   func() time.Time
}

func NewBucketScanner() *BucketScanner {
	return &BucketScanner{
		newS3: func(cfg aws.Config) BucketsAPI { return s3.NewFromConfig(cfg) },
		newCW: func(cfg aws.Config) MetricsAPI { return cloudwatch.NewFromConfig(cfg) },
		now:   time.Now,
	}
}

func (s *BucketScanner) ArgumentName() string { return "s3-buckets" }
func (s *BucketScanner) Label() string        { return "S3 Buckets" }
func (s *BucketScanner) Global() bool         { return true }

func (s *BucketScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newS3(scope.Config)
	now := s.now().UTC()

	listed, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	var findings []types.Finding
	for _, bucket := range listed.Buckets {
		name := aws.ToString(bucket.Name)

		location, err := client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
			Bucket: bucket.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("get location for bucket %s: %w", name, err)
		}
		region := string(location.LocationConstraint)
		if region == "" {
			region = "us-east-1"
		}

		regional := scope.Config.Copy()
		regional.Region = region

		reason, objects, err := s.checkBucket(ctx, s.newS3(regional), s.newCW(regional), name, now, scope.DaysThreshold)
		if err != nil {
			return nil, err
		}
		if reason == "" {
			continue
		}
		findings = append(findings, types.Finding{
			AccountID:    scope.AccountID,
			AccountName:  scope.AccountName,
			Region:       region,
			ResourceType: s.ArgumentName(),
			ResourceID:   "arn:aws:s3:::" + name,
			Name:         name,
			Reason:       reason,
			CreatedAt:    aws.ToTime(bucket.CreationDate),
			Metadata: map[string]interface{}{
				"object_count": objects,
			},
		})
	}
	return findings, nil
}

func (s *BucketScanner) checkBucket(ctx context.Context, client BucketsAPI, cw MetricsAPI, name string, now time.Time, days int) (string, int32, error) {
	objects, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(name),
	})
	if err != nil {
		return "", 0, fmt.Errorf("list objects for bucket %s: %w", name, err)
	}
	count := aws.ToInt32(objects.KeyCount)
	if count == 0 {
		return "No objects in bucket.", 0, nil
	}

	// NumberOfObjects is a daily storage metric; sample it around the
	// start of the lookback window and compare against the live count.
	start := now.AddDate(0, 0, -days)
	previous, err := metricAverage(ctx, cw, "AWS/S3", "NumberOfObjects",
		[]cwtypes.Dimension{
			dimension("BucketName", name),
			dimension("StorageType", "AllStorageTypes"),
		}, start, start.Add(48*time.Hour))
	if err != nil {
		return "", 0, err
	}
	if int32(math.Round(previous)) == count {
		return fmt.Sprintf("No change in object count over the %d day threshold period.", days), count, nil
	}
	return "", 0, nil
}
