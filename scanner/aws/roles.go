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

// RolesAPI is the IAM surface the role scanner needs. ListRoles omits
// the RoleLastUsed block, so each candidate costs an extra GetRole call.
type RolesAPI interface {
	iam.ListRolesAPIClient
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
	ListRolePolicies(ctx context.Context, params *iam.ListRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error)
	ListInstanceProfilesForRole(ctx context.Context, params *iam.ListInstanceProfilesForRoleInput, optFns ...func(*iam.Options)) (*iam.ListInstanceProfilesForRoleOutput, error)
}

// RoleScanner reports IAM roles that have never been used, have gone
// unused past the threshold, or carry no policies or instance profiles.
// IAM is account-wide, so the scanner runs once per account.
type RoleScanner struct {
	newIAM func(aws.Config) RolesAPI
	now    func() time.Time
}

func NewRoleScanner() *RoleScanner {
	return &RoleScanner{
		newIAM: func(cfg aws.Config) RolesAPI { return iam.NewFromConfig(cfg) },
		now:    time.Now,
	}
}

func (s *RoleScanner) ArgumentName() string { return "iam-roles" }
func (s *RoleScanner) Label() string        { return "IAM Roles" }
func (s *RoleScanner) Global() bool         { return true }

func (s *RoleScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	client := s.newIAM(scope.Config)
	now := s.now().UTC()

	var findings []types.Finding
	paginator := iam.NewListRolesPaginator(client, &iam.ListRolesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list roles: %w", err)
		}
		for _, role := range output.Roles {
			arn := aws.ToString(role.Arn)
			if isReservedRole(arn) {
				continue
			}
			roleName := aws.ToString(role.RoleName)

			lastUsedDays, err := s.lastUsedDays(ctx, client, roleName, now)
			if err != nil {
				return nil, err
			}
			attached, inline, profiles, err := s.rolePolicies(ctx, client, roleName)
			if err != nil {
				return nil, err
			}

			var reasons []string
			if lastUsedDays < 0 {
				reasons = append(reasons, "Role has never been used.")
			} else if lastUsedDays > scope.DaysThreshold {
				reasons = append(reasons, fmt.Sprintf("Role has not been used in the last %d days (%d days ago).",
					scope.DaysThreshold, lastUsedDays))
			}
			if attached == 0 && inline == 0 && profiles == 0 {
				reasons = append(reasons, "No attached policies or instance profiles.")
			}
			if len(reasons) == 0 {
				continue
			}

			findings = append(findings, types.Finding{
				AccountID:    scope.AccountID,
				AccountName:  scope.AccountName,
				Region:       scope.Region,
				ResourceType: s.ArgumentName(),
				ResourceID:   arn,
				Name:         roleName,
				Reason:       strings.Join(reasons, "\n"),
				CreatedAt:    aws.ToTime(role.CreateDate),
				Metadata: map[string]interface{}{
					"last_used":         lastUsedLabel(lastUsedDays),
					"policies_attached": attached + inline,
					"instance_profiles": profiles,
				},
			})
		}
	}
	return findings, nil
}

// lastUsedDays returns days since the role was last used, or -1 when it
// has never been used.
func (s *RoleScanner) lastUsedDays(ctx context.Context, client RolesAPI, roleName string, now time.Time) (int, error) {
	output, err := client.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(roleName)})
	if err != nil {
		return 0, fmt.Errorf("get role %s: %w", roleName, err)
	}
	role := output.Role
	if role.RoleLastUsed == nil || role.RoleLastUsed.LastUsedDate == nil {
		return -1, nil
	}
	return daysSince(now, aws.ToTime(role.RoleLastUsed.LastUsedDate)), nil
}

func (s *RoleScanner) rolePolicies(ctx context.Context, client RolesAPI, roleName string) (attached, inline, profiles int, err error) {
	attachedOut, err := client.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list attached policies for %s: %w", roleName, err)
	}
	inlineOut, err := client.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list inline policies for %s: %w", roleName, err)
	}
	profilesOut, err := client.ListInstanceProfilesForRole(ctx, &iam.ListInstanceProfilesForRoleInput{
		RoleName: aws.String(roleName),
	})
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list instance profiles for %s: %w", roleName, err)
	}
	return len(attachedOut.AttachedPolicies), len(inlineOut.PolicyNames), len(profilesOut.InstanceProfiles), nil
}

func isReservedRole(arn string) bool {
	return strings.Contains(arn, "service-role") || strings.Contains(arn, "aws-reserved")
}

func lastUsedLabel(days int) string {
	if days < 0 {
		return "Never"
	}
	return fmt.Sprintf("%d days ago", days)
}
