// Package session manages the delegated credential chain: base profile
// credentials are exchanged for the organization role, which in turn is
// exchanged for a per-account runner role. Credentials are never shared
// across accounts; each account owns its derived set.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/emptyset-io/cloudsweep/telemetry"
)

// DefaultRefreshMargin is how much remaining lifetime a credential must
// have to be reused; anything closer to expiry triggers a fresh exchange.
const DefaultRefreshMargin = 5 * time.Minute

const sessionName = "CloudsweepScanSession"

// STSAPI is the subset of the STS client the manager needs.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Credentials holds one hop of delegated key material.
type Credentials struct {
	aws.Credentials
	RoleARN string
}

// Valid reports whether the credentials have more than margin of
// lifetime left.
func (c Credentials) Valid(margin time.Duration) bool {
	if c.AccessKeyID == "" {
		return false
	}
	if !c.CanExpire {
		return true
	}
	return time.Until(c.Expires) > margin
}

// Manager performs the trust exchanges and owns the organization-role
// credentials. Runner credentials are handed to per-account sessions.
type Manager struct {
	base          aws.Config
	orgRole       string
	runnerRole    string
	refreshMargin time.Duration
	newSTS        func(aws.Config) STSAPI
	logger        *telemetry.Logger

	mu            sync.Mutex
	homeAccountID string
	org           Credentials
}

// NewManager creates a manager on top of the base (profile) config.
func NewManager(base aws.Config, orgRole, runnerRole string) *Manager {
	return &Manager{
		base:          base,
		orgRole:       orgRole,
		runnerRole:    runnerRole,
		refreshMargin: DefaultRefreshMargin,
		newSTS:        func(cfg aws.Config) STSAPI { return sts.NewFromConfig(cfg) },
		logger:        telemetry.NewLogger("session"),
	}
}

// WithRefreshMargin overrides the expiry safety margin.
func (m *Manager) WithRefreshMargin(margin time.Duration) *Manager {
	m.refreshMargin = margin
	return m
}

// HomeAccountID resolves the account the base credentials belong to.
func (m *Manager) HomeAccountID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.homeAccountIDLocked(ctx)
}

func (m *Manager) homeAccountIDLocked(ctx context.Context) (string, error) {
	if m.homeAccountID != "" {
		return m.homeAccountID, nil
	}
	out, err := m.newSTS(m.base).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	m.homeAccountID = aws.ToString(out.Account)
	return m.homeAccountID, nil
}

// OrganizationCredentials returns credentials for the organization role,
// performing the trust exchange lazily and re-exchanging when the cached
// set is within the refresh margin of expiry. A failure here is fatal to
// the run: without the organization role no accounts are reachable.
func (m *Manager) OrganizationCredentials(ctx context.Context) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.org.Valid(m.refreshMargin) {
		return m.org, nil
	}

	accountID, err := m.homeAccountIDLocked(ctx)
	if err != nil {
		return Credentials{}, &FatalAuthError{Role: m.orgRole, Err: err}
	}

	if m.orgRole == "" {
		// No organization hop configured; the base credentials act as
		// the delegator directly.
		base, err := m.base.Credentials.Retrieve(ctx)
		if err != nil {
			return Credentials{}, &FatalAuthError{Role: m.orgRole, Err: err}
		}
		m.org = Credentials{Credentials: base}
		return m.org, nil
	}

	arn := RoleARN(accountID, m.orgRole)
	creds, err := m.assume(ctx, m.newSTS(m.base), arn)
	if err != nil {
		return Credentials{}, &FatalAuthError{Role: arn, Err: err}
	}

	m.logger.WithContext(ctx).Debug().
		Str("role_arn", arn).
		Time("expires", creds.Expires).
		Msg("assumed organization role")

	m.org = creds
	return m.org, nil
}

// RunnerCredentials exchanges the organization credentials for the
// runner role in one member account. Failure is scoped to that account.
func (m *Manager) RunnerCredentials(ctx context.Context, accountID string) (Credentials, error) {
	org, err := m.OrganizationCredentials(ctx)
	if err != nil {
		return Credentials{}, err
	}

	arn := RoleARN(accountID, m.runnerRole)
	creds, err := m.assume(ctx, m.newSTS(m.ConfigFor(org, m.base.Region)), arn)
	if err != nil {
		return Credentials{}, &AccountAuthError{AccountID: accountID, Role: arn, Err: err}
	}

	m.logger.WithContext(ctx).Debug().
		Str("account_id", accountID).
		Str("role_arn", arn).
		Msg("assumed runner role")

	return creds, nil
}

func (m *Manager) assume(ctx context.Context, client STSAPI, roleARN string) (Credentials, error) {
	out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
	})
	if err != nil {
		return Credentials{}, err
	}

	c := out.Credentials
	return Credentials{
		Credentials: aws.Credentials{
			AccessKeyID:     aws.ToString(c.AccessKeyId),
			SecretAccessKey: aws.ToString(c.SecretAccessKey),
			SessionToken:    aws.ToString(c.SessionToken),
			CanExpire:       c.Expiration != nil,
			Expires:         aws.ToTime(c.Expiration),
		},
		RoleARN: roleARN,
	}, nil
}

// ConfigFor builds a regional aws.Config backed by the given credentials.
func (m *Manager) ConfigFor(creds Credentials, region string) aws.Config {
	cfg := m.base.Copy()
	cfg.Region = region
	cfg.Credentials = credentials.NewStaticCredentialsProvider(
		creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)
	return cfg
}

// RoleARN resolves the full ARN of a role in an account.
func RoleARN(accountID, roleName string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
}
