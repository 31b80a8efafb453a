// Package orchestrator drives a full scan run: resolve scanners, list
// accounts, open per-account sessions, discover regions, fan the task
// list out over the worker pool, and fold results into the report.
package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/emptyset-io/cloudsweep/aggregator"
	"github.com/emptyset-io/cloudsweep/config"
	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/scheduler"
	"github.com/emptyset-io/cloudsweep/telemetry"
	"github.com/emptyset-io/cloudsweep/types"
)

// Orchestrator coordinates one scan run end to end.
type Orchestrator struct {
	cfg        *config.Config
	registry   *scanner.Registry
	accounts   AccountLister
	broker     Broker
	regions    RegionResolver
	estimator  Estimator
	homeRegion string
	logger     *telemetry.Logger
}

func New(cfg *config.Config, registry *scanner.Registry, accounts AccountLister, broker Broker, regions RegionResolver) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		registry:   registry,
		accounts:   accounts,
		broker:     broker,
		regions:    regions,
		homeRegion: "us-east-1",
		logger:     telemetry.NewLogger("orchestrator"),
	}
}

// WithEstimator enables cost estimation on the run's findings.
func (o *Orchestrator) WithEstimator(e Estimator) *Orchestrator {
	o.estimator = e
	return o
}

// WithHomeRegion sets the region used for account-wide scanner tasks.
func (o *Orchestrator) WithHomeRegion(region string) *Orchestrator {
	if region != "" {
		o.homeRegion = region
	}
	return o
}

// Run executes the scan and returns the finalized report. It fails fast
// on configuration errors and organization-level auth failures; a single
// bad account or task only dents the report, never aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (*aggregator.Report, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "scan.run")
	defer span.End()

	scanners, err := o.selectScanners()
	if err != nil {
		return nil, err
	}

	accounts, err := o.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	accounts = filterAccounts(accounts, o.cfg.Accounts)
	o.logger.WithContext(ctx).Info().
		Int("accounts", len(accounts)).
		Int("scanners", len(scanners)).
		Msg("starting scan")

	agg := aggregator.New()
	scoped, access := o.openAccounts(ctx, accounts, agg)

	if err := o.validateRegions(ctx, scoped, access); err != nil {
		return nil, err
	}

	tasks := scheduler.Expand(scoped, scanners)
	span.SetAttributes(attribute.Int("scan.tasks", len(tasks)))

	pool := scheduler.NewPool(o.cfg.MaxWorkers)
	for result := range pool.Run(ctx, tasks, o.taskFunc(access)) {
		if o.estimator != nil && len(result.Findings) > 0 {
			result.Findings = o.estimator.EstimateAll(ctx, result.Findings)
		}
		agg.Absorb(result)
	}

	report := agg.Finalize()
	o.logger.WithContext(ctx).Info().
		Int("total_scans", report.Metrics.TotalScans).
		Int("failed_scans", report.Metrics.FailedScans).
		Int("findings", report.Metrics.TotalFindings).
		Dur("run_time", report.Metrics.TotalRunTime).
		Msg("scan complete")
	return report, nil
}

// selectScanners resolves the configured scanner subset before any task
// runs; a misspelled name aborts the run here.
func (o *Orchestrator) selectScanners() ([]scanner.Scanner, error) {
	var names []string
	if !o.cfg.ScanAllScanners() {
		names = o.cfg.Scanners
	}
	scanners, err := o.registry.Select(names)
	if err != nil {
		return nil, fmt.Errorf("select scanners: %w", err)
	}
	return scanners, nil
}

// validateRegions checks an explicit region request against the
// enabled-region catalog, so a misspelled region fails the run instead
// of silently intersecting to nothing. The catalog is account-agnostic,
// so one lookup through the first opened account covers the fleet.
func (o *Orchestrator) validateRegions(ctx context.Context, accounts []types.Account, access map[string]AccountAccess) error {
	wanted := o.cfg.Regions
	if len(wanted) == 0 || o.cfg.ScanAllRegions() || len(accounts) == 0 {
		return nil
	}
	catalog, err := o.regions.EnabledRegions(ctx, access[accounts[0].ID])
	if err != nil {
		return fmt.Errorf("enumerate regions: %w", err)
	}
	known := make(map[string]struct{}, len(catalog))
	for _, region := range catalog {
		known[region] = struct{}{}
	}
	for _, region := range wanted {
		if _, ok := known[region]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRegion, region)
		}
	}
	return nil
}

// openAccounts exchanges runner credentials and discovers regions for
// every account. An account that fails either step is recorded and
// skipped; the rest of the fleet proceeds.
func (o *Orchestrator) openAccounts(ctx context.Context, accounts []types.Account, agg *aggregator.Aggregator) ([]types.Account, map[string]AccountAccess) {
	var scoped []types.Account
	access := make(map[string]AccountAccess, len(accounts))

	for _, account := range accounts {
		sess, err := o.broker.AccountSession(ctx, account.ID)
		if err != nil {
			o.logger.LogAccountSkipped(ctx, account.ID, err)
			agg.RecordAccountError(account.ID, account.Name, err)
			continue
		}
		regions, err := o.regions.ActiveRegions(ctx, sess)
		if err != nil {
			o.logger.LogAccountSkipped(ctx, account.ID, err)
			agg.RecordAccountError(account.ID, account.Name, err)
			continue
		}
		// An empty region list means every discovered region, the
		// same way an empty scanner list means every scanner.
		if wanted := o.cfg.Regions; len(wanted) > 0 && !o.cfg.ScanAllRegions() {
			regions = intersect(regions, wanted)
		}
		account.Regions = regions
		scoped = append(scoped, account)
		access[account.ID] = sess
	}
	return scoped, access
}

// taskFunc builds the pool's task body: resolve the scanner, pin a
// regional config to the account's runner credentials, and scan.
func (o *Orchestrator) taskFunc(access map[string]AccountAccess) scheduler.TaskFunc {
	return func(ctx context.Context, task types.ScanTask) ([]types.Finding, error) {
		ctx, span := telemetry.Tracer.Start(ctx, "scan.task", trace.WithAttributes(
			attribute.String("scan.account_id", task.AccountID),
			attribute.String("scan.region", task.Region),
			attribute.String("scan.scanner", task.Scanner),
		))
		defer span.End()

		s, err := o.registry.Resolve(task.Scanner)
		if err != nil {
			return nil, err
		}

		// Account-wide scanners call global services; any region works,
		// so they ride the home region's endpoint.
		cfgRegion := task.Region
		if cfgRegion == types.GlobalRegion {
			cfgRegion = o.homeRegion
		}
		cfg, err := access[task.AccountID].Config(ctx, cfgRegion)
		if err != nil {
			return nil, err
		}

		return s.Scan(ctx, scanner.Scope{
			AccountID:     task.AccountID,
			AccountName:   task.AccountName,
			Region:        task.Region,
			Config:        cfg,
			DaysThreshold: o.cfg.DaysThreshold,
		})
	}
}

// filterAccounts applies the account allow-list. An empty list or the
// "all" sentinel keeps every discovered account.
func filterAccounts(accounts []types.Account, allowed []string) []types.Account {
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == config.SelectAll) {
		return accounts
	}
	allowSet := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		allowSet[id] = struct{}{}
	}
	var kept []types.Account
	for _, account := range accounts {
		if _, ok := allowSet[account.ID]; ok {
			kept = append(kept, account)
		}
	}
	return kept
}

func intersect(regions, wanted []string) []string {
	wantSet := make(map[string]struct{}, len(wanted))
	for _, r := range wanted {
		wantSet[r] = struct{}{}
	}
	var kept []string
	for _, r := range regions {
		if _, ok := wantSet[r]; ok {
			kept = append(kept, r)
		}
	}
	return kept
}
