package session

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// AccountSession owns the runner credentials for one member account.
// Tasks acquire regional configs through it; acquisition transparently
// re-exchanges credentials that are within the refresh margin of expiry,
// so long-running work never rides a near-expired token.
type AccountSession struct {
	mgr       *Manager
	accountID string

	mu    sync.Mutex
	creds Credentials
}

// AccountSession assumes the runner role in the account and wraps the
// result. Returns AccountAuthError when the role is unassumable.
func (m *Manager) AccountSession(ctx context.Context, accountID string) (*AccountSession, error) {
	creds, err := m.RunnerCredentials(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &AccountSession{mgr: m, accountID: accountID, creds: creds}, nil
}

// AccountID returns the account this session is scoped to.
func (s *AccountSession) AccountID() string {
	return s.accountID
}

// Credentials returns valid runner credentials, refreshing when needed.
func (s *AccountSession) Credentials(ctx context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds.Valid(s.mgr.refreshMargin) {
		return s.creds, nil
	}

	creds, err := s.mgr.RunnerCredentials(ctx, s.accountID)
	if err != nil {
		return Credentials{}, err
	}
	s.creds = creds
	return creds, nil
}

// Config returns a regional aws.Config on fresh runner credentials.
func (s *AccountSession) Config(ctx context.Context, region string) (aws.Config, error) {
	creds, err := s.Credentials(ctx)
	if err != nil {
		return aws.Config{}, err
	}
	return s.mgr.ConfigFor(creds, region), nil
}
