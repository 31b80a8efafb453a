package main

import (
	"fmt"

	"github.com/spf13/cobra"

	scanneraws "github.com/emptyset-io/cloudsweep/scanner/aws"
)

// scannersCmd lists the registered scanners
var scannersCmd = &cobra.Command{
	Use:   "scanners",
	Short: "List the available scanners",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := scanneraws.DefaultRegistry()
		for _, name := range registry.List() {
			s, err := registry.Resolve(name)
			if err != nil {
				return err
			}
			scope := "regional"
			if s.Global() {
				scope = "account-wide"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-18s %-14s %s\n", name, scope, s.Label())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scannersCmd)
}
