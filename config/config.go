package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/riskgov/earnback"
	"github.com/rustyeddy/riskgov/globalmode"
	"github.com/rustyeddy/riskgov/internal/logger"
	"github.com/rustyeddy/riskgov/internal/metrics"
	"github.com/rustyeddy/riskgov/journal"
	"github.com/rustyeddy/riskgov/pkg/duration"
	"github.com/rustyeddy/riskgov/policy"
	"github.com/rustyeddy/riskgov/quarantine"
	"github.com/rustyeddy/riskgov/recovery"
	"github.com/rustyeddy/riskgov/risk"
)

// Environment overrides applied by ApplyEnv.
const (
	EnvDataDir   = "RISKGOV_DATA_DIR"
	EnvPinMode   = "RISKGOV_PIN_MODE"
	EnvLogLevel  = "RISKGOV_LOG_LEVEL"
	EnvJournalDB = "RISKGOV_JOURNAL_DB"
)

// Config represents the complete governance configuration
type Config struct {
	Paths        PathsConfig       `json:"paths" yaml:"paths"`
	RiskOffModes risk.ModeSet      `json:"risk_off_modes" yaml:"risk_off_modes"`
	GlobalMode   globalmode.Config `json:"global_mode" yaml:"global_mode"`
	Quarantine   quarantine.Config `json:"quarantine" yaml:"quarantine"`
	Recovery     recovery.Config   `json:"recovery" yaml:"recovery"`
	EarnBack     earnback.Config   `json:"earnback" yaml:"earnback"`
	Policy       policy.Config     `json:"policy" yaml:"policy"`
	Journal      journal.Config    `json:"journal" yaml:"journal"`
	Log          logger.Config     `json:"log" yaml:"log"`
	Schedule     ScheduleConfig    `json:"schedule" yaml:"schedule"`
	Metrics      metrics.Config    `json:"metrics" yaml:"metrics"`
	Server       ServerConfig      `json:"server" yaml:"server"`
}

// PathsConfig locates the upstream inputs and the persisted state.
type PathsConfig struct {
	Inputs string `json:"inputs" yaml:"inputs"`
	State  string `json:"state" yaml:"state"`

	// MaxInputAge marks classification inputs (exec quality, drift,
	// promotions, portfolio) stale. Zero disables the check.
	MaxInputAge duration.Duration `json:"max_input_age" yaml:"max_input_age"`
}

// Input returns the path of an input document.
func (p PathsConfig) Input(name string) string { return filepath.Join(p.Inputs, name) }

// StateFile returns the path of a persisted document.
func (p PathsConfig) StateFile(name string) string { return filepath.Join(p.State, name) }

// ScheduleConfig drives the daemon.
type ScheduleConfig struct {
	Cron string `json:"cron" yaml:"cron"` // e.g. "@every 5m", "0 */5 * * * *"
}

// ServerConfig is the optional read-only HTTP API. Port 0 disables it.
type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON).
// Sections missing from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads the given .env files (missing ones are ignored) and then
// applies RISKGOV_* overrides from the process environment.
func (c *Config) ApplyEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	if dir := os.Getenv(EnvDataDir); dir != "" {
		c.SetDataDir(dir)
	}
	if pin := os.Getenv(EnvPinMode); pin != "" {
		c.GlobalMode.PinnedMode = pin
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		c.Log.Level = lvl
	}
	if db := os.Getenv(EnvJournalDB); db != "" {
		c.Journal.Type = "sqlite"
		c.Journal.DBPath = db
	}
	return c.Validate()
}

// SetDataDir points inputs and state at <dir>/inputs and <dir>/state.
func (c *Config) SetDataDir(dir string) {
	c.Paths.Inputs = filepath.Join(dir, "inputs")
	c.Paths.State = filepath.Join(dir, "state")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Paths.Inputs == "" {
		return fmt.Errorf("paths.inputs is required")
	}
	if c.Paths.State == "" {
		return fmt.Errorf("paths.state is required")
	}
	if c.Paths.MaxInputAge.Duration < 0 {
		return fmt.Errorf("paths.max_input_age must not be negative")
	}
	if len(c.RiskOffModes) == 0 {
		return fmt.Errorf("risk_off_modes must name at least one mode")
	}
	for _, m := range c.RiskOffModes {
		if !m.Valid() {
			return fmt.Errorf("risk_off_modes: unknown mode %q", m)
		}
	}

	validators := []interface{ Validate() error }{
		c.GlobalMode, c.Quarantine, c.Recovery, c.EarnBack, c.Policy, c.Journal,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	if c.Schedule.Cron == "" {
		return fmt.Errorf("schedule.cron is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Inputs:      "./data/inputs",
			State:       "./data/state",
			MaxInputAge: duration.Of(24 * time.Hour),
		},
		RiskOffModes: risk.DefaultRiskOff(),
		GlobalMode:   globalmode.DefaultConfig(),
		Quarantine:   quarantine.DefaultConfig(),
		Recovery:     recovery.DefaultConfig(),
		EarnBack:     earnback.DefaultConfig(),
		Policy:       policy.DefaultConfig(),
		Journal:      journal.Config{Type: "none"},
		Log:          logger.Config{Level: "info"},
		Schedule:     ScheduleConfig{Cron: "@every 5m"},
	}
}
