package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// UsersAPI is the IAM surface the user scanner needs. Key usage is not
// part of the key metadata, so each key costs a GetAccessKeyLastUsed call.
type UsersAPI interface {
	iam.ListUsersAPIClient
	ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error)
	GetAccessKeyLastUsed(ctx context.Context, params *iam.GetAccessKeyLastUsedInput, optFns ...func(*iam.Options)) (*iam.GetAccessKeyLastUsedOutput, error)
}

// UserScanner reports IAM users with no console or access key activity
// inside the threshold window. IAM is account-wide, so the scanner runs
// once per account.
type UserScanner struct {
	newIAM func(aws.Config) UsersAPI
	now    func() time.Time
}

func NewUserScanner() *UserScanner {
	return &UserScanner{
		newIAM: func(cfg aws.Config) UsersAPI { return iam.NewFromConfig(cfg) },
		now:    time.Now,
	}
}

func (s *UserScanner) ArgumentName() string { return "iam-users" }
func (s *UserScanner) Label() string        { return "IAM Users" }
func (s *UserScanner) Global() bool         { return true }

func (s *UserScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newIAM(scope.Config)
	now := s.now().UTC()

	var findings []types.Finding
	paginator := iam.NewListUsersPaginator(client, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		for _, user := range output.Users {
			userName := aws.ToString(user.UserName)

			loginDays := -1
			if user.PasswordLastUsed != nil {
				loginDays = daysSince(now, aws.ToTime(user.PasswordLastUsed))
			}
			keyDays, err := s.latestKeyUsageDays(ctx, client, userName, now)
			if err != nil {
				return nil, err
			}

			var reasons []string
			switch {
			case loginDays < 0 && keyDays < 0:
				reasons = append(reasons, "User has never logged in or used access keys.")
			case loginDays >= scope.DaysThreshold && keyDays >= scope.DaysThreshold:
				reasons = append(reasons,
					fmt.Sprintf("UI login last used %d days ago.", loginDays),
					fmt.Sprintf("Access keys last used %d days ago.", keyDays))
			}
			if len(reasons) == 0 {
				continue
			}

			findings = append(findings, types.Finding{
				AccountID:    scope.AccountID,
				AccountName:  scope.AccountName,
				Region:       scope.Region,
				ResourceType: s.ArgumentName(),
				ResourceID:   aws.ToString(user.Arn),
				Name:         userName,
				Reason:       strings.Join(reasons, "\n"),
				CreatedAt:    aws.ToTime(user.CreateDate),
				Metadata: map[string]interface{}{
					"last_login":     lastUsedLabel(loginDays),
					"last_key_usage": lastUsedLabel(keyDays),
				},
			})
		}
	}
	return findings, nil
}

// latestKeyUsageDays returns days since the most recent access key use
// across all of the user's keys, or -1 when no key was ever used.
func (s *UserScanner) latestKeyUsageDays(ctx context.Context, client UsersAPI, userName string, now time.Time) (int, error) {
	keys, err := client.ListAccessKeys(ctx, &iam.ListAccessKeysInput{
		UserName: aws.String(userName),
	})
	if err != nil {
		return 0, fmt.Errorf("list access keys for %s: %w", userName, err)
	}

	latest := -1
	for _, key := range keys.AccessKeyMetadata {
		used, err := client.GetAccessKeyLastUsed(ctx, &iam.GetAccessKeyLastUsedInput{
			AccessKeyId: key.AccessKeyId,
		})
		if err != nil {
			return 0, fmt.Errorf("get key usage for %s: %w", userName, err)
		}
		if used.AccessKeyLastUsed == nil || used.AccessKeyLastUsed.LastUsedDate == nil {
			continue
		}
		days := daysSince(now, aws.ToTime(used.AccessKeyLastUsed.LastUsedDate))
		if latest < 0 || days < latest {
			latest = days
		}
	}
	return latest, nil
}
