// Package config holds the run configuration and its layered loader.
package config

import (
	"errors"
	"fmt"
	"time"

	"go-school-projections/internal/model"
)

// Defaults
const (
	DefaultConfigFile   = "schoolproj.yaml"
	DefaultDatabase     = "pipeline.db"
	DefaultCutoffYear   = 1990
	DefaultBaselineYear = 2022
	DefaultHorizon1     = 2050
	DefaultHorizon2     = 2080
	DefaultIstatBaseURL = "https://sdmx.istat.it/SDMXWS/rest"
)

// DefaultDataflows are tried in order when fetching the school dataflow
var DefaultDataflows = []string{
	"52_1044_DF_DCIS_SCUOLE_5",
	"DCIS_SCUOLE_5",
	"DF_DCIS_SCUOLE_5",
	"52_1044",
}

// Config is the effective configuration of one invocation
type Config struct {
	Inputs   InputsConfig  `koanf:"inputs" json:"inputs"`
	Outputs  OutputsConfig `koanf:"outputs" json:"outputs"`
	Model    ModelConfig   `koanf:"model" json:"model"`
	Workers  WorkersConfig `koanf:"workers" json:"workers"`
	Database string        `koanf:"database" json:"database"`
	Log      LogConfig     `koanf:"log" json:"log"`
	Istat    IstatConfig   `koanf:"istat" json:"istat"`
	Server   ServerConfig  `koanf:"server" json:"server"`
	Verbose  bool          `koanf:"verbose" json:"verbose"`
}

type InputsConfig struct {
	Schools        string `koanf:"schools" json:"schools"`
	Population     string `koanf:"population" json:"population"`
	PopulationDir  string `koanf:"population_dir" json:"population_dir"`
	PopulationGlob string `koanf:"population_glob" json:"population_glob"`
}

type OutputsConfig struct {
	Dir         string `koanf:"dir" json:"dir"`
	Projections string `koanf:"projections" json:"projections"`
	Statistics  string `koanf:"statistics" json:"statistics"`
	Summary     string `koanf:"summary" json:"summary"`
	Workbook    string `koanf:"workbook" json:"workbook"`
	Charts      bool   `koanf:"charts" json:"charts"`
	JSON        bool   `koanf:"json" json:"json"`
	TopN        int    `koanf:"top_n" json:"top_n"`
}

// ModelConfig carries the reference years of the projection.
type ModelConfig struct {
	CutoffYear   int `koanf:"cutoff_year" json:"cutoff_year"`
	BaselineYear int `koanf:"baseline_year" json:"baseline_year"`
	Horizon1     int `koanf:"horizon1" json:"horizon1"`
	Horizon2     int `koanf:"horizon2" json:"horizon2"`
}

// Horizons converts the model section into the run's reference years.
func (m ModelConfig) Horizons() model.Horizons {
	return model.Horizons{
		Cutoff:   m.CutoffYear,
		Baseline: m.BaselineYear,
		H1:       m.Horizon1,
		H2:       m.Horizon2,
	}
}

type WorkersConfig struct {
	Projection int `koanf:"projection" json:"projection"`
}

type LogConfig struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
}

type IstatConfig struct {
	BaseURL   string            `koanf:"base_url" json:"base_url"`
	Dataflows []string          `koanf:"dataflows" json:"dataflows"`
	Timeout   time.Duration     `koanf:"timeout" json:"timeout"`
	MinYear   int               `koanf:"min_year" json:"min_year"`
	Output    string            `koanf:"output" json:"output"`
	Retry     model.RetryConfig `koanf:"retry" json:"retry"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" json:"addr"`
}

// Validate rejects configurations the projection cannot run with.
func (c *Config) Validate() error {
	var errs []error
	m := c.Model
	if m.CutoffYear >= m.BaselineYear {
		errs = append(errs, fmt.Errorf("model.cutoff_year (%d) must be before model.baseline_year (%d)", m.CutoffYear, m.BaselineYear))
	}
	if m.Horizon1 <= m.BaselineYear {
		errs = append(errs, fmt.Errorf("model.horizon1 (%d) must be after model.baseline_year (%d)", m.Horizon1, m.BaselineYear))
	}
	if m.Horizon2 <= m.Horizon1 {
		errs = append(errs, fmt.Errorf("model.horizon2 (%d) must be after model.horizon1 (%d)", m.Horizon2, m.Horizon1))
	}
	if c.Workers.Projection < 1 {
		errs = append(errs, fmt.Errorf("workers.projection must be at least 1, got %d", c.Workers.Projection))
	}
	if c.Istat.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("istat.retry.max_attempts must be at least 1, got %d", c.Istat.Retry.MaxAttempts))
	}
	return errors.Join(errs...)
}
