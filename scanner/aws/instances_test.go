package aws

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
)

func TestStoppedDaysParsesTransitionReason(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewInstanceScanner()

	instance := ec2types.Instance{
		StateTransitionReason: aws.String("User initiated (2025-11-01 10:30:00 GMT)"),
		LaunchTime:            aws.Time(now.AddDate(-1, 0, 0)),
	}
	// 2025-11-01 10:30 UTC to 2026-03-01 00:00 UTC is 119.56 days.
	assert.Equal(t, 119, s.stoppedDays(instance, now))
}

func TestStoppedDaysFallsBackToLaunchTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewInstanceScanner()

	instance := ec2types.Instance{
		StateTransitionReason: aws.String("User initiated"),
		LaunchTime:            aws.Time(now.AddDate(0, 0, -45)),
	}
	assert.Equal(t, 45, s.stoppedDays(instance, now))
}
