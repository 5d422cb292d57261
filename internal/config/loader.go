package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use a double
// underscore: SCHOOLPROJ_MODEL__BASELINE_YEAR -> model.baseline_year.
const EnvPrefix = "SCHOOLPROJ_"

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"schools":        "inputs.schools",
	"population":     "inputs.population",
	"out":            "outputs.dir",
	"charts":         "outputs.charts",
	"json":           "outputs.json",
	"top":            "outputs.top_n",
	"cutoff":         "model.cutoff_year",
	"baseline":       "model.baseline_year",
	"horizon1":       "model.horizon1",
	"horizon2":       "model.horizon2",
	"workers":        "workers.projection",
	"database":       "database",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"verbose":        "verbose",
	"addr":           "server.addr",
	"istat-url":      "istat.base_url",
	"min-year":       "istat.min_year",
	"output":         "istat.output",
	"population-dir": "inputs.population_dir",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"inputs.schools":                 "elementari.csv",
		"inputs.population":              "elementary_children_by_region_year.csv",
		"inputs.population_dir":          "population",
		"inputs.population_glob":         "it-Popolazione_per_eta_-_Regione_*.csv",
		"outputs.dir":                    "output",
		"outputs.projections":            "school_projections_by_region.csv",
		"outputs.statistics":             "regional_school_decline_statistics.csv",
		"outputs.summary":                "regional_school_summary_table.csv",
		"outputs.workbook":               "regional_school_projections.xlsx",
		"outputs.charts":                 true,
		"outputs.json":                   false,
		"outputs.top_n":                  10,
		"model.cutoff_year":              DefaultCutoffYear,
		"model.baseline_year":            DefaultBaselineYear,
		"model.horizon1":                 DefaultHorizon1,
		"model.horizon2":                 DefaultHorizon2,
		"workers.projection":             4,
		"database":                       DefaultDatabase,
		"log.level":                      "info",
		"log.format":                     "console",
		"istat.base_url":                 DefaultIstatBaseURL,
		"istat.dataflows":                DefaultDataflows,
		"istat.timeout":                  "60s",
		"istat.min_year":                 2010,
		"istat.output":                   "elementari.csv",
		"istat.retry.max_attempts":       3,
		"istat.retry.initial_delay":      "1s",
		"istat.retry.max_delay":          "30s",
		"istat.retry.backoff_multiplier": 2.0,
		"server.addr":                    ":8080",
		"verbose":                        false,
	}
}

// Load builds the configuration from defaults, the config file, environment
// variables and explicitly set flags, in increasing order of precedence.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if cfg.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
