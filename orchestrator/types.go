package orchestrator

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/emptyset-io/cloudsweep/session"
	"github.com/emptyset-io/cloudsweep/types"
)

// ErrUnknownRegion marks a requested region absent from the
// enabled-region catalog.
var ErrUnknownRegion = errors.New("unknown region")

// AccountLister resolves the member accounts in scope for the scan.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]types.Account, error)
}

// AccountAccess hands out regional AWS configs carrying one member
// account's runner credentials.
type AccountAccess interface {
	AccountID() string
	Config(ctx context.Context, region string) (aws.Config, error)
}

// Broker opens credential sessions into member accounts.
type Broker interface {
	AccountSession(ctx context.Context, accountID string) (AccountAccess, error)
}

// RegionResolver finds the regions worth scanning for one account.
type RegionResolver interface {
	ActiveRegions(ctx context.Context, access AccountAccess) ([]string, error)
	// EnabledRegions returns the full enabled-region catalog without
	// the in-use filter.
	EnabledRegions(ctx context.Context, access AccountAccess) ([]string, error)
}

// Estimator prices findings in place.
type Estimator interface {
	EstimateAll(ctx context.Context, findings []types.Finding) []types.Finding
}

// NewSessionBroker adapts a session manager to the Broker interface.
func NewSessionBroker(mgr *session.Manager) Broker {
	return sessionBroker{mgr: mgr}
}

type sessionBroker struct {
	mgr *session.Manager
}

func (b sessionBroker) AccountSession(ctx context.Context, accountID string) (AccountAccess, error) {
	sess, err := b.mgr.AccountSession(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
