package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/pricing"

	"github.com/emptyset-io/cloudsweep/config"
	"github.com/emptyset-io/cloudsweep/cost"
	"github.com/emptyset-io/cloudsweep/orchestrator"
	"github.com/emptyset-io/cloudsweep/report"
	scanneraws "github.com/emptyset-io/cloudsweep/scanner/aws"
	"github.com/emptyset-io/cloudsweep/session"
	"github.com/emptyset-io/cloudsweep/telemetry"
	"github.com/emptyset-io/cloudsweep/topology"
	"github.com/emptyset-io/cloudsweep/types"
)

// ScanCommand wires the scan run together from a resolved config.
type ScanCommand struct {
	Config    *config.Config
	SkipCosts bool
}

// loadScanConfig merges the optional config file with flag overrides.
// Flags win.
func loadScanConfig() (*config.Config, error) {
	cfg := config.Default()
	if scanConfigPath != "" {
		loaded, err := config.Load(scanConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if scanProfile != "" {
		cfg.Profile = scanProfile
	}
	if scanOrgRole != "" {
		cfg.OrganizationRole = scanOrgRole
	}
	if scanRunnerRole != "" {
		cfg.RunnerRole = scanRunnerRole
	}
	if len(scanAccounts) > 0 {
		cfg.Accounts = scanAccounts
	}
	if len(scanRegions) > 0 {
		cfg.Regions = scanRegions
	}
	if scanAllRegions {
		cfg.AllRegions = true
	}
	if len(scanScanners) > 0 {
		cfg.Scanners = scanScanners
	}
	if scanAllScanners {
		cfg.Scanners = []string{config.SelectAll}
	}
	if scanMaxWorkers > 0 {
		cfg.MaxWorkers = scanMaxWorkers
	}
	if scanDaysThreshold > 0 {
		cfg.DaysThreshold = scanDaysThreshold
	}
	if scanOutputFormat != "" {
		cfg.Output.Format = scanOutputFormat
	}
	if scanOutputDir != "" {
		cfg.Output.Dir = scanOutputDir
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Run performs the scan and writes the report.
func (c *ScanCommand) Run(ctx context.Context) error {
	cfg := c.Config
	telemetry.SetGlobalLevel(cfg.Log.Level)

	shutdown, err := telemetry.InitTracing(ctx, telemetry.Config{
		ServiceName:    "cloudsweep",
		ServiceVersion: version,
		Endpoint:       cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	base, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	if base.Region == "" {
		base.Region = "us-east-1"
	}

	mgr := session.NewManager(base, cfg.OrganizationRole, cfg.RunnerRole)

	// The organization hop happens up front: if it fails, nothing else
	// is reachable and the run aborts here.
	orgCreds, err := mgr.OrganizationCredentials(ctx)
	if err != nil {
		return err
	}
	orgClient := organizations.NewFromConfig(mgr.ConfigFor(orgCreds, base.Region))

	o := orchestrator.New(cfg, scanneraws.DefaultRegistry(),
		accountListerFunc(func(ctx context.Context) ([]types.Account, error) {
			return topology.ListAccounts(ctx, orgClient)
		}),
		orchestrator.NewSessionBroker(mgr),
		&regionResolver{homeRegion: base.Region, allRegions: cfg.ScanAllRegions()},
	).WithHomeRegion(base.Region)

	if !c.SkipCosts {
		pricingClient := pricing.NewFromConfig(mgr.ConfigFor(orgCreds, cost.PricingRegion))
		o = o.WithEstimator(cost.NewEstimator(pricingClient))
	}

	result, err := o.Run(ctx)
	if err != nil {
		return err
	}

	path, err := report.NewWriter(cfg.Output.Dir, cfg.Output.Format).Write(result)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d tasks (%d failed) across %d accounts in %s (%.2f scans/sec)\n",
		result.Metrics.TotalScans, result.Metrics.FailedScans, len(result.Accounts),
		result.Metrics.TotalRunTime.Round(10*time.Millisecond), result.Metrics.AvgScansPerSecond)
	fmt.Printf("Found %d unused resources. Report: %s\n", result.Metrics.TotalFindings, path)
	return nil
}

type accountListerFunc func(ctx context.Context) ([]types.Account, error)

func (f accountListerFunc) ListAccounts(ctx context.Context) ([]types.Account, error) {
	return f(ctx)
}

// regionResolver adapts the topology discoverer to one account's
// credentials.
type regionResolver struct {
	homeRegion string
	allRegions bool
}

func (r *regionResolver) ActiveRegions(ctx context.Context, access orchestrator.AccountAccess) ([]string, error) {
	discoverer, err := r.discoverer(ctx, access)
	if err != nil {
		return nil, err
	}
	return discoverer.ActiveRegions(ctx)
}

func (r *regionResolver) EnabledRegions(ctx context.Context, access orchestrator.AccountAccess) ([]string, error) {
	discoverer, err := r.discoverer(ctx, access)
	if err != nil {
		return nil, err
	}
	return discoverer.EnabledRegions(ctx)
}

func (r *regionResolver) discoverer(ctx context.Context, access orchestrator.AccountAccess) (*topology.RegionDiscoverer, error) {
	home, err := access.Config(ctx, r.homeRegion)
	if err != nil {
		return nil, err
	}
	cfgFor := func(region string) aws.Config {
		regional := home.Copy()
		regional.Region = region
		return regional
	}
	return topology.NewRegionDiscoverer(cfgFor, r.homeRegion, r.allRegions), nil
}
