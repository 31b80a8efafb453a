package main

import (
	"github.com/spf13/cobra"
)

var (
	scanConfigPath    string
	scanProfile       string
	scanOrgRole       string
	scanRunnerRole    string
	scanAccounts      []string
	scanRegions       []string
	scanAllRegions    bool
	scanScanners      []string
	scanAllScanners   bool
	scanMaxWorkers    int
	scanDaysThreshold int
	scanOutputFormat  string
	scanOutputDir     string
	scanNoCosts       bool
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan organization accounts for unused resources",
	Long: `Scan sweeps the organization's member accounts for unused resources.

The scanner assumes the organization role with your base credentials,
lists the member accounts, then assumes the runner role inside each
account to inspect its resources. Accounts it cannot enter are reported
and skipped; the rest of the fleet is scanned regardless.`,
	Example: `  cloudsweep scan --runner-role SweepRunner --all-scanners --all-regions
  cloudsweep scan --runner-role SweepRunner --scanners ebs-volumes,elastic-ips
  cloudsweep scan --config sweep.yaml --accounts 111111111111,222222222222
  cloudsweep scan --runner-role SweepRunner --regions us-east-1 --days-threshold 30`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanConfigPath, "config", "c", "", "Path to YAML config file")
	scanCmd.Flags().StringVar(&scanProfile, "profile", "", "AWS shared config profile for base credentials")
	scanCmd.Flags().StringVar(&scanOrgRole, "organization-role", "", "Role name assumed in the management account")
	scanCmd.Flags().StringVar(&scanRunnerRole, "runner-role", "", "Role name assumed in each member account")
	scanCmd.Flags().StringSliceVar(&scanAccounts, "accounts", nil, "Account IDs to scan (default: every active account)")
	scanCmd.Flags().StringSliceVarP(&scanRegions, "regions", "r", nil, "Regions to scan")
	scanCmd.Flags().BoolVar(&scanAllRegions, "all-regions", false, "Scan every enabled region, skipping the in-use probe")
	scanCmd.Flags().StringSliceVarP(&scanScanners, "scanners", "s", nil, "Scanners to run (see 'cloudsweep scanners')")
	scanCmd.Flags().BoolVar(&scanAllScanners, "all-scanners", false, "Run every registered scanner")
	scanCmd.Flags().IntVarP(&scanMaxWorkers, "max-workers", "w", 0, "Concurrent scan tasks (default: CPUs-1)")
	scanCmd.Flags().IntVarP(&scanDaysThreshold, "days-threshold", "d", 0, "Age in days before a resource counts as unused")
	scanCmd.Flags().StringVarP(&scanOutputFormat, "output", "o", "", "Report format: json or csv")
	scanCmd.Flags().StringVar(&scanOutputDir, "output-dir", "", "Directory for the report file")
	scanCmd.Flags().BoolVar(&scanNoCosts, "no-costs", false, "Skip cost estimation")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadScanConfig()
	if err != nil {
		return err
	}
	return (&ScanCommand{Config: cfg, SkipCosts: scanNoCosts}).Run(cmd.Context())
}
