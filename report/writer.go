// Package report renders the finalized scan report to disk.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/emptyset-io/cloudsweep/aggregator"
	"github.com/emptyset-io/cloudsweep/telemetry"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Writer persists scan reports into a directory, one timestamped file
// per run.
type Writer struct {
	dir    string
	format string
	now    func() time.Time
	logger *telemetry.Logger
}

func NewWriter(dir, format string) *Writer {
	return &Writer{
		dir:    dir,
		format: format,
		now:    time.Now,
		logger: telemetry.NewLogger("report"),
	}
}

// Write renders the report and returns the path it was written to.
func (w *Writer) Write(report *aggregator.Report) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	stamp := w.now().UTC().Format("20060102T150405Z")
	path := filepath.Join(w.dir, fmt.Sprintf("cloudsweep_report_%s.%s", stamp, w.format))

	var err error
	switch w.format {
	case FormatJSON:
		err = writeJSON(path, report)
	case FormatCSV:
		err = writeCSV(path, report)
	default:
		return "", fmt.Errorf("unsupported report format %q", w.format)
	}
	if err != nil {
		return "", err
	}

	w.logger.Info().
		Str("path", path).
		Int("findings", len(report.Resources)).
		Msg("report written")
	return path, nil
}

func writeJSON(path string, report *aggregator.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// writeCSV flattens findings into one row each. Run-level metrics and
// errors stay JSON-only; CSV is for feeding findings to spreadsheets.
func writeCSV(path string, report *aggregator.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	header := []string{
		"account_id", "account_name", "region", "resource_type",
		"resource_id", "name", "reason", "created_at",
		"hourly_cost", "monthly_cost", "yearly_cost", "lifetime_cost",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, finding := range report.Resources {
		row := []string{
			finding.AccountID,
			finding.AccountName,
			finding.Region,
			finding.ResourceType,
			finding.ResourceID,
			finding.Name,
			finding.Reason,
			formatTime(finding.CreatedAt),
		}
		if cost := finding.Cost; cost != nil && !cost.Unsupported {
			row = append(row,
				formatCost(cost.Hourly),
				formatCost(cost.Monthly),
				formatCost(cost.Yearly),
				formatCost(cost.Lifetime),
			)
		} else {
			row = append(row, "", "", "", "")
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatCost(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}
