// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the dispatcher's sizing and weight policy from a
// YAML file and environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/mcpdispatch/internal/dispatch"
	dispatcherrors "github.com/tombee/mcpdispatch/pkg/errors"
)

// defaultWeightKey is the reserved weight-table entry every Config must
// define; it is the weight applied to any tool with no explicit entry.
const defaultWeightKey = "default"

// LogConfig holds the log section of the configuration file. The daemon in
// cmd/mcpdispatchd builds its logger from log.FromEnv and does not read
// these fields.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
}

// Config is the on-disk shape of the dispatcher's configuration. Every
// duration field is expressed in seconds so the YAML stays readable without
// a custom duration unmarshaler.
type Config struct {
	MinActive        int `yaml:"min_active"`
	MaxActive        int `yaml:"max_active"`
	StandbyCount     int `yaml:"standby_count"`
	ScaleUpPct       int `yaml:"scale_up_pct"`
	ScaleDownIdleSec int `yaml:"scale_down_idle_seconds"`
	MaxLoadPerWorker int `yaml:"max_load_per_worker"`
	SupervisorSec    int `yaml:"supervisor_period_seconds"`

	PriorityMinActive int `yaml:"priority_min_active"`
	PriorityMaxActive int `yaml:"priority_max_active"`

	Weights map[string]int `yaml:"weights"`

	Log LogConfig `yaml:"log"`
}

// Default returns a Config with sensible defaults for a single-node
// deployment: one active normal worker, two standby, no priority lane.
func Default() *Config {
	return &Config{
		MinActive:         1,
		MaxActive:         10,
		StandbyCount:      2,
		ScaleUpPct:        80,
		ScaleDownIdleSec:  300,
		MaxLoadPerWorker:  100,
		SupervisorSec:     1,
		PriorityMinActive: 0,
		PriorityMaxActive: 0,
		Weights:           map[string]int{defaultWeightKey: 1},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path, falling back to the XDG default path
// when path is empty, then applies environment overrides and validates the
// result. A missing file at the default path is not an error: Load returns
// Default() with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved := path
	if resolved == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, &dispatcherrors.ConfigError{Key: "config_path", Reason: "resolving default config path", Cause: err}
		}
		resolved = p
	}

	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, &dispatcherrors.ConfigError{Key: "config_file", Reason: fmt.Sprintf("parsing %s", resolved), Cause: err}
		}
	case path == "" && os.IsNotExist(err):
		// No config file at the default location; defaults plus env stand.
	default:
		return nil, &dispatcherrors.ConfigError{Key: "config_file", Reason: fmt.Sprintf("reading %s", resolved), Cause: err}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &dispatcherrors.ConfigError{Key: "validation", Reason: "configuration validation failed", Cause: err}
	}

	return cfg, nil
}

// loadFromEnv applies MCPDISPATCH_-prefixed environment overrides on top of
// whatever Load has already populated from file/defaults.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("MCPDISPATCH_MIN_ACTIVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MinActive = n
		}
	}
	if v := os.Getenv("MCPDISPATCH_MAX_ACTIVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxActive = n
		}
	}
	if v := os.Getenv("MCPDISPATCH_STANDBY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.StandbyCount = n
		}
	}
	if v := os.Getenv("MCPDISPATCH_SCALE_UP_PCT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ScaleUpPct = n
		}
	}
	if v := os.Getenv("MCPDISPATCH_MAX_LOAD_PER_WORKER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxLoadPerWorker = n
		}
	}
	if v := os.Getenv("MCPDISPATCH_PRIORITY_MIN_ACTIVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PriorityMinActive = n
		}
	}
	if v := os.Getenv("MCPDISPATCH_PRIORITY_MAX_ACTIVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PriorityMaxActive = n
		}
	}
	if v := os.Getenv("MCPDISPATCH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MCPDISPATCH_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Validate checks the invariants the dispatcher assumes hold: positive
// sizing, a reserved default weight, and active bounds that make sense.
func (c *Config) Validate() error {
	if c.MinActive < 1 {
		return fmt.Errorf("min_active must be at least 1, got %d", c.MinActive)
	}
	if c.MaxActive < c.MinActive {
		return fmt.Errorf("max_active (%d) must be >= min_active (%d)", c.MaxActive, c.MinActive)
	}
	if c.StandbyCount < 0 {
		return fmt.Errorf("standby_count must be non-negative, got %d", c.StandbyCount)
	}
	if c.ScaleUpPct <= 0 || c.ScaleUpPct > 100 {
		return fmt.Errorf("scale_up_pct must be in (0, 100], got %d", c.ScaleUpPct)
	}
	if c.ScaleDownIdleSec <= 0 {
		return fmt.Errorf("scale_down_idle_seconds must be positive, got %d", c.ScaleDownIdleSec)
	}
	if c.MaxLoadPerWorker <= 0 {
		return fmt.Errorf("max_load_per_worker must be positive, got %d", c.MaxLoadPerWorker)
	}
	if c.SupervisorSec <= 0 {
		return fmt.Errorf("supervisor_period_seconds must be positive, got %d", c.SupervisorSec)
	}
	if c.PriorityMinActive < 0 {
		return fmt.Errorf("priority_min_active must be non-negative, got %d", c.PriorityMinActive)
	}
	if c.PriorityMaxActive < c.PriorityMinActive {
		return fmt.Errorf("priority_max_active (%d) must be >= priority_min_active (%d)", c.PriorityMaxActive, c.PriorityMinActive)
	}
	if _, ok := c.Weights[defaultWeightKey]; !ok {
		return fmt.Errorf("weights must define a %q entry", defaultWeightKey)
	}
	return nil
}

// ToDispatchConfig converts the on-disk, seconds-based Config into the
// dispatch.Config the dispatcher actually runs against.
func (c *Config) ToDispatchConfig() dispatch.Config {
	return dispatch.Config{
		MinActive:         c.MinActive,
		MaxActive:         c.MaxActive,
		StandbyCount:      c.StandbyCount,
		ScaleUpPct:        c.ScaleUpPct,
		ScaleDownIdle:     time.Duration(c.ScaleDownIdleSec) * time.Second,
		MaxLoadPerWorker:  c.MaxLoadPerWorker,
		SupervisorPeriod:  time.Duration(c.SupervisorSec) * time.Second,
		PriorityMinActive: c.PriorityMinActive,
		PriorityMaxActive: c.PriorityMaxActive,
	}
}

// ToWeightTable builds the dispatch.WeightTable described by Weights.
func (c *Config) ToWeightTable() (*dispatch.WeightTable, error) {
	return dispatch.NewWeightTable(c.Weights)
}
