package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// TablesAPI is the DynamoDB surface the table scanner needs.
type TablesAPI interface {
	dynamodb.ListTablesAPIClient
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// TableScanner reports DynamoDB tables with no consumed read or write
// capacity over the lookback window, or with throttling events.
type TableScanner struct {
	newDDB func(aws.Config) TablesAPI
	newCW  func(aws.Config) MetricsAPI
	now    func() time.Time
}

func NewTableScanner() *TableScanner {
	return &TableScanner{
		newDDB: func(cfg aws.Config) TablesAPI { return dynamodb.NewFromConfig(cfg) },
		newCW:  func(cfg aws.Config) MetricsAPI { return cloudwatch.NewFromConfig(cfg) },
		now:    time.Now,
	}
}

func (s *TableScanner) ArgumentName() string { return "dynamodb-tables" }
func (s *TableScanner) Label() string        { return "DynamoDB Tables" }
func (s *TableScanner) Global() bool         { return false }

func (s *TableScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newDDB(scope.Config)
	cw := s.newCW(scope.Config)
	now := s.now().UTC()

	var findings []types.Finding
	paginator := dynamodb.NewListTablesPaginator(client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		for _, tableName := range output.TableNames {
			described, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
				TableName: aws.String(tableName),
			})
			if err != nil {
				return nil, fmt.Errorf("describe table %s: %w", tableName, err)
			}
			table := described.Table

			created := aws.ToTime(table.CreationDateTime)
			start := now.AddDate(0, 0, -scope.DaysThreshold)
			if created.After(start) {
				start = created
			}

			reason, err := s.checkUsage(ctx, cw, tableName, start, now)
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
				ResourceID:   aws.ToString(table.TableArn),
				Name:         tableName,
				Reason:       reason,
				CreatedAt:    created,
				Metadata: map[string]interface{}{
					"item_count": aws.ToInt64(table.ItemCount),
					"size_bytes": aws.ToInt64(table.TableSizeBytes),
				},
			})
		}
	}
	return findings, nil
}

func (s *TableScanner) checkUsage(ctx context.Context, cw MetricsAPI, tableName string, start, end time.Time) (string, error) {
	dims := []cwtypes.Dimension{dimension("TableName", tableName)}

	reads, err := metricSum(ctx, cw, "AWS/DynamoDB", "ConsumedReadCapacityUnits", dims, start, end)
	if err != nil {
		return "", err
	}
	writes, err := metricSum(ctx, cw, "AWS/DynamoDB", "ConsumedWriteCapacityUnits", dims, start, end)
	if err != nil {
		return "", err
	}
	if reads == 0 && writes == 0 {
		return "No read or write activity.", nil
	}

	throttled, err := metricSum(ctx, cw, "AWS/DynamoDB", "ThrottledRequests", dims, start, end)
	if err != nil {
		return "", err
	}
	if throttled > 0 {
		return fmt.Sprintf("Provisioned throughput exceeded events: %.0f.", throttled), nil
	}
	return "", nil
}
