package scheduler

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/smithy-go"
)

// throttlingCodes are API error codes worth retrying: the call may
// succeed once the rate limiter cools down.
var throttlingCodes = map[string]struct{}{
	"Throttling":               {},
	"ThrottlingException":      {},
	"RequestLimitExceeded":     {},
	"TooManyRequestsException": {},
	"RequestThrottled":         {},
	"SlowDown":                 {},
}

// terminalCodes are API error codes that retrying cannot fix.
var terminalCodes = map[string]struct{}{
	"AccessDenied":          {},
	"AccessDeniedException": {},
	"UnauthorizedOperation": {},
	"AuthFailure":           {},
	"UnsupportedOperation":  {},
	"OptInRequired":         {},
}

// isTransient reports whether an error is worth another attempt.
// Throttling and network-level failures are transient; authorization
// and validation failures are terminal. Unrecognized errors default to
// terminal so a broken scanner fails fast instead of burning retries.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if _, ok := throttlingCodes[code]; ok {
			return true
		}
		if _, ok := terminalCodes[code]; ok {
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate exceeded"):
		return true
	case strings.Contains(msg, "service unavailable"), strings.Contains(msg, "connection reset"):
		return true
	}
	return false
}
