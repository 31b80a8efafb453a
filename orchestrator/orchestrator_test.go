package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emptyset-io/cloudsweep/config"
	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/session"
	"github.com/emptyset-io/cloudsweep/types"
)

type fakeLister struct {
	accounts []types.Account
	calls    int
}

func (f *fakeLister) ListAccounts(ctx context.Context) ([]types.Account, error) {
	f.calls++
	return f.accounts, nil
}

type fakeAccess struct {
	accountID string

	mu      sync.Mutex
	regions []string
}

func (f *fakeAccess) AccountID() string { return f.accountID }
func (f *fakeAccess) Config(ctx context.Context, region string) (aws.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions = append(f.regions, region)
	return aws.Config{Region: region}, nil
}

type fakeBroker struct {
	failing map[string]error
	opened  map[string]*fakeAccess
}

func (f *fakeBroker) AccountSession(ctx context.Context, accountID string) (AccountAccess, error) {
	if err, ok := f.failing[accountID]; ok {
		return nil, err
	}
	access := &fakeAccess{accountID: accountID}
	if f.opened == nil {
		f.opened = make(map[string]*fakeAccess)
	}
	f.opened[accountID] = access
	return access, nil
}

type fakeRegions struct {
	regions []string
	// catalog defaults to the active regions when unset.
	catalog []string
}

func (f *fakeRegions) ActiveRegions(ctx context.Context, access AccountAccess) ([]string, error) {
	return f.regions, nil
}

func (f *fakeRegions) EnabledRegions(ctx context.Context, access AccountAccess) ([]string, error) {
	if f.catalog != nil {
		return f.catalog, nil
	}
	return f.regions, nil
}

// recordingScanner returns canned findings keyed by region.
type recordingScanner struct {
	name      string
	global    bool
	byRegion  map[string][]types.Finding
	mu        sync.Mutex
	scopesSeen []scanner.Scope
}

func (s *recordingScanner) ArgumentName() string { return s.name }
func (s *recordingScanner) Label() string        { return s.name }
func (s *recordingScanner) Global() bool         { return s.global }
func (s *recordingScanner) Scan(ctx context.Context, scope scanner.Scope) ([]types.Finding, error) {
	s.mu.Lock()
	s.scopesSeen = append(s.scopesSeen, scope)
	s.mu.Unlock()
	return s.byRegion[scope.Region], nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RunnerRole = "runner"
	cfg.MaxWorkers = 2
	cfg.AllRegions = true
	return cfg
}

func volumeFinding(account, region, id string) types.Finding {
	return types.Finding{
		AccountID:    account,
		Region:       region,
		ResourceType: "ebs-volumes",
		ResourceID:   id,
	}
}

func TestRunAggregatesFindingsAcrossRegions(t *testing.T) {
	volumes := &recordingScanner{
		name: "ebs-volumes",
		byRegion: map[string][]types.Finding{
			"us-east-1": {
				volumeFinding("111111111111", "us-east-1", "vol-1"),
				volumeFinding("111111111111", "us-east-1", "vol-2"),
			},
			"eu-west-1": {
				volumeFinding("111111111111", "eu-west-1", "vol-3"),
			},
		},
	}
	registry := scanner.NewRegistry()
	registry.Register(volumes)

	lister := &fakeLister{accounts: []types.Account{{ID: "111111111111", Name: "dev"}}}
	o := New(testConfig(), registry, lister, &fakeBroker{},
		&fakeRegions{regions: []string{"us-east-1", "eu-west-1"}})

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.ResourceTypeCounts["ebs-volumes"])
	assert.Len(t, report.Resources, 3)
	assert.Equal(t, 2, report.Metrics.TotalScans)
	assert.Zero(t, report.Metrics.FailedScans)
	assert.Equal(t, []string{"eu-west-1", "us-east-1"}, report.Accounts["111111111111"])
}

func TestRunIsolatesAccountAuthFailure(t *testing.T) {
	volumes := &recordingScanner{
		name: "ebs-volumes",
		byRegion: map[string][]types.Finding{
			"us-east-1": {volumeFinding("111111111111", "us-east-1", "vol-1")},
		},
	}
	registry := scanner.NewRegistry()
	registry.Register(volumes)

	lister := &fakeLister{accounts: []types.Account{
		{ID: "111111111111", Name: "dev"},
		{ID: "222222222222", Name: "prod"},
	}}
	broker := &fakeBroker{failing: map[string]error{
		"222222222222": &session.AccountAuthError{AccountID: "222222222222", Role: "runner"},
	}}

	o := New(testConfig(), registry, lister, broker, &fakeRegions{regions: []string{"us-east-1"}})
	report, err := o.Run(context.Background())
	require.NoError(t, err, "one bad account must not abort the run")

	assert.Len(t, report.Resources, 1)
	require.Len(t, report.AccountErrors, 1)
	assert.Equal(t, "222222222222", report.AccountErrors[0].AccountID)
	assert.NotContains(t, report.Accounts, "222222222222")
}

func TestRunFailsFastOnUnknownScanner(t *testing.T) {
	registry := scanner.NewRegistry()
	registry.Register(&recordingScanner{name: "ebs-volumes"})

	cfg := testConfig()
	cfg.Scanners = []string{"ebs-volumes", "no-such-scanner"}

	lister := &fakeLister{accounts: []types.Account{{ID: "111111111111"}}}
	o := New(cfg, registry, lister, &fakeBroker{}, &fakeRegions{regions: []string{"us-east-1"}})

	_, err := o.Run(context.Background())
	require.ErrorIs(t, err, scanner.ErrUnknownScanner)
	assert.Zero(t, lister.calls, "no account API call before scanner validation")
}

func TestRunGlobalScannerUsesHomeRegionConfig(t *testing.T) {
	roles := &recordingScanner{
		name:   "iam-roles",
		global: true,
	}
	registry := scanner.NewRegistry()
	registry.Register(roles)

	broker := &fakeBroker{}
	lister := &fakeLister{accounts: []types.Account{{ID: "111111111111", Name: "dev"}}}
	o := New(testConfig(), registry, lister, broker,
		&fakeRegions{regions: []string{"us-east-1", "eu-west-1"}}).
		WithHomeRegion("eu-central-1")

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Metrics.TotalScans, "global scanner runs once per account")
	require.Len(t, roles.scopesSeen, 1)
	assert.Equal(t, types.GlobalRegion, roles.scopesSeen[0].Region)
	assert.Equal(t, "eu-central-1", roles.scopesSeen[0].Config.Region)
}

func TestRunHonorsRegionAllowList(t *testing.T) {
	volumes := &recordingScanner{
		name: "ebs-volumes",
		byRegion: map[string][]types.Finding{
			"us-east-1": {volumeFinding("111111111111", "us-east-1", "vol-1")},
			"eu-west-1": {volumeFinding("111111111111", "eu-west-1", "vol-2")},
		},
	}
	registry := scanner.NewRegistry()
	registry.Register(volumes)

	cfg := testConfig()
	cfg.AllRegions = false
	cfg.Regions = []string{"us-east-1"}

	lister := &fakeLister{accounts: []types.Account{{ID: "111111111111"}}}
	o := New(cfg, registry, lister, &fakeBroker{},
		&fakeRegions{regions: []string{"us-east-1", "eu-west-1"}})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Metrics.TotalScans)
	assert.Len(t, report.Resources, 1)
	assert.Equal(t, "us-east-1", report.Resources[0].Region)
}

func TestRunDefaultConfigScansDiscoveredRegions(t *testing.T) {
	volumes := &recordingScanner{
		name: "ebs-volumes",
		byRegion: map[string][]types.Finding{
			"us-east-1": {volumeFinding("111111111111", "us-east-1", "vol-1")},
		},
	}
	registry := scanner.NewRegistry()
	registry.Register(volumes)

	// Neither --regions nor --all-regions: every discovered region scans.
	cfg := config.Default()
	cfg.RunnerRole = "runner"
	cfg.MaxWorkers = 2

	lister := &fakeLister{accounts: []types.Account{{ID: "111111111111"}}}
	o := New(cfg, registry, lister, &fakeBroker{},
		&fakeRegions{regions: []string{"us-east-1"}})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Metrics.TotalScans)
	assert.Equal(t, 1, report.ResourceTypeCounts["ebs-volumes"])
}

func TestRunFailsFastOnUnknownRegion(t *testing.T) {
	volumes := &recordingScanner{name: "ebs-volumes"}
	registry := scanner.NewRegistry()
	registry.Register(volumes)

	cfg := testConfig()
	cfg.AllRegions = false
	cfg.Regions = []string{"us-esat-1"}

	lister := &fakeLister{accounts: []types.Account{{ID: "111111111111"}}}
	o := New(cfg, registry, lister, &fakeBroker{},
		&fakeRegions{regions: []string{"us-east-1"}, catalog: []string{"eu-west-1", "us-east-1"}})

	_, err := o.Run(context.Background())
	require.ErrorIs(t, err, ErrUnknownRegion)
	assert.ErrorContains(t, err, "us-esat-1")
	assert.Empty(t, volumes.scopesSeen, "no task runs on a bad region request")
}

func TestRunHonorsAccountAllowList(t *testing.T) {
	registry := scanner.NewRegistry()
	registry.Register(&recordingScanner{name: "ebs-volumes"})

	cfg := testConfig()
	cfg.Accounts = []string{"111111111111"}

	broker := &fakeBroker{}
	lister := &fakeLister{accounts: []types.Account{
		{ID: "111111111111"},
		{ID: "222222222222"},
	}}
	o := New(cfg, registry, lister, broker, &fakeRegions{regions: []string{"us-east-1"}})

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, broker.opened, "111111111111")
	assert.NotContains(t, broker.opened, "222222222222")
}
