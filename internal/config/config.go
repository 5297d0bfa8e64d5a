// ============================================================================
// ringpool Config - YAML Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: Loads the demonstration CLI's construction-time knobs (pool,
// metrics, log) from a YAML file. The core engine (pkg/task,
// pkg/ringqueue, internal/promise, internal/worker, internal/pool) takes no
// on-disk format of its own - configuration is only a concern of the
// surrounding CLI/demo binary, per spec.md §6.
//
// Grounded on the teacher's internal/cli/cli.go Config struct (yaml-tagged,
// nested-struct-per-concern) and gopkg.in/yaml.v3 loader.
//
// ============================================================================

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete demonstration CLI configuration, loaded from YAML.
type Config struct {
	Pool struct {
		NumThreads         int           `yaml:"num_threads"`
		MaxQueueSize       int           `yaml:"max_queue_size"`
		MaxIdleLoopCount   uint64        `yaml:"max_idle_loop_count"`
		EnableWorkStealing bool          `yaml:"enable_work_stealing"`
		TaskTimeout        time.Duration `yaml:"task_timeout"`
	} `yaml:"pool"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Pool.NumThreads = 4
	cfg.Pool.MaxQueueSize = 1024
	cfg.Pool.MaxIdleLoopCount = 0xFFFFFF
	cfg.Pool.EnableWorkStealing = false
	cfg.Pool.TaskTimeout = 30 * time.Second
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090
	cfg.Log.Level = "info"
	return cfg
}

// Load reads and parses a YAML config file, keeping the documented defaults
// for any key the file omits. A key set explicitly, even to a zero value,
// overrides its default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return cfg, nil
}
