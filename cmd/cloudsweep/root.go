package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "cloudsweep",
		Short: "Multi-account unused resource scanner",
		Long: `Cloudsweep - Multi-Account Unused Resource Scanner

Cloudsweep sweeps every account in an AWS organization for resources
that look abandoned: unattached volumes, stale snapshots, stopped
instances, idle databases, unassociated elastic IPs and more.

It assumes a runner role in each member account, fans scans out over
active regions, and writes a single consolidated report with cost
estimates for everything it finds.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Cloudsweep {{.Version}} - Multi-Account Unused Resource Scanner
`)
}
