// Package aws implements the built-in resource scanners. Each scanner
// inspects one AWS service in a single account/region scope and reports
// resources that look unused. Scanners hold narrow client interfaces so
// tests can substitute fakes without touching the SDK.
package aws

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// tagName extracts the Name tag from an EC2-style tag list.
func tagName(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

// tagMap converts an EC2-style tag list into a plain map for finding metadata.
func tagMap(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		out[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return out
}

// formatAge renders a duration the way it reads in a report: whole days
// below two months, months below two years, years after that.
func formatAge(age time.Duration) string {
	days := int(age.Hours() / 24)
	switch {
	case days >= 730:
		return fmt.Sprintf("%d years", days/365)
	case days >= 60:
		return fmt.Sprintf("%d months", days/30)
	case days == 1:
		return "1 day"
	default:
		return fmt.Sprintf("%d days", days)
	}
}

// daysSince returns whole days elapsed between t and now.
func daysSince(now, t time.Time) int {
	return int(now.Sub(t).Hours() / 24)
}
