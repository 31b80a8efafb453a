package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cloudsweep.yaml")

	content := `
profile: scanning
organization_role: OrgReadRole
runner_role: SweepRunnerRole
regions:
  - us-east-1
  - eu-west-1
scanners:
  - ebs-volumes
  - rds
max_workers: 4
days_threshold: 30
output:
  format: csv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "SweepRunnerRole", cfg.RunnerRole)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, cfg.Regions)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 30, cfg.DaysThreshold)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.False(t, cfg.ScanAllScanners())
	assert.False(t, cfg.ScanAllRegions())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/cloudsweep.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err, "runner role is mandatory")

	cfg.RunnerRole = "SweepRunnerRole"
	require.NoError(t, cfg.Validate())

	cfg.Output.Format = "html"
	assert.Error(t, cfg.Validate())
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.GreaterOrEqual(t, cfg.MaxWorkers, 1)
	assert.Equal(t, 90, cfg.DaysThreshold)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.True(t, cfg.ScanAllScanners())
	assert.False(t, cfg.ScanAllRegions())
}

func TestDaysThresholdFromEnv(t *testing.T) {
	t.Setenv("CS_DAYS_THRESHOLD", "14")

	cfg := Default()
	assert.Equal(t, 14, cfg.DaysThreshold)
}

func TestSelectAll(t *testing.T) {
	cfg := Default()
	cfg.Scanners = []string{SelectAll}
	cfg.Regions = []string{SelectAll}

	assert.True(t, cfg.ScanAllScanners())
	assert.True(t, cfg.ScanAllRegions())
}
