package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 1990, cfg.Model.CutoffYear)
	assert.Equal(t, 2022, cfg.Model.BaselineYear)
	assert.Equal(t, 2050, cfg.Model.Horizon1)
	assert.Equal(t, 2080, cfg.Model.Horizon2)
	assert.Equal(t, 4, cfg.Workers.Projection)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, "school_projections_by_region.csv", cfg.Outputs.Projections)
	assert.Equal(t, DefaultDataflows, cfg.Istat.Dataflows)
	assert.Equal(t, 60*time.Second, cfg.Istat.Timeout)
	assert.Equal(t, 3, cfg.Istat.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Istat.Retry.InitialDelay)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfgPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
model:
  baseline_year: 2021
  horizon1: 2040
workers:
  projection: 2
log:
  level: warn
`), 0o644))

	t.Setenv("SCHOOLPROJ_MODEL__HORIZON1", "2045")
	t.Setenv("SCHOOLPROJ_DATABASE", "from-env.db")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("database", "", "")
	flags.Int("workers", 0, "")
	require.NoError(t, flags.Parse([]string{"--database", "from-flag.db"}))

	cfg, err := Load(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, 2021, cfg.Model.BaselineYear, "file overrides default")
	assert.Equal(t, 2045, cfg.Model.Horizon1, "env overrides file")
	assert.Equal(t, "from-flag.db", cfg.Database, "flag overrides env")
	assert.Equal(t, 2, cfg.Workers.Projection, "unset flag keeps file value")
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestVerboseForcesDebug(t *testing.T) {
	chdir(t, t.TempDir())

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Parse([]string{"--verbose"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Model:   ModelConfig{CutoffYear: 1990, BaselineYear: 2022, Horizon1: 2050, Horizon2: 2080},
			Workers: WorkersConfig{Projection: 1},
		}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"horizon before baseline", func(c *Config) { c.Model.Horizon1 = 2020 }, "model.horizon1"},
		{"horizons out of order", func(c *Config) { c.Model.Horizon2 = 2040 }, "model.horizon2"},
		{"cutoff after baseline", func(c *Config) { c.Model.CutoffYear = 2030 }, "model.cutoff_year"},
		{"no workers", func(c *Config) { c.Workers.Projection = 0 }, "workers.projection"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			c.Istat.Retry.MaxAttempts = 1
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHorizons(t *testing.T) {
	h := ModelConfig{CutoffYear: 1990, BaselineYear: 2022, Horizon1: 2050, Horizon2: 2080}.Horizons()
	assert.Equal(t, 2022, h.Baseline)
	assert.Equal(t, 2080, h.H2)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
