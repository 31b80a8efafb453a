// Package scheduler expands the scan topology into tasks and runs them
// on a bounded worker pool with retry on transient failures.
package scheduler

import (
	"github.com/emptyset-io/cloudsweep/scanner"
	"github.com/emptyset-io/cloudsweep/types"
)

// Expand builds the task list: one task per (account, region, scanner)
// triple. Account-wide scanners get a single task per account under the
// global pseudo-region regardless of how many regions the account has.
func Expand(accounts []types.Account, scanners []scanner.Scanner) []types.ScanTask {
	var tasks []types.ScanTask
	for _, account := range accounts {
		for _, s := range scanners {
			if s.Global() {
				tasks = append(tasks, types.ScanTask{
					AccountID:   account.ID,
					AccountName: account.Name,
					Region:      types.GlobalRegion,
					Scanner:     s.ArgumentName(),
				})
				continue
			}
			for _, region := range account.Regions {
				tasks = append(tasks, types.ScanTask{
					AccountID:   account.ID,
					AccountName: account.Name,
					Region:      region,
					Scanner:     s.ArgumentName(),
				})
			}
		}
	}
	return tasks
}
