// Package config loads and saves the simulator's TOML settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config represents the persisted simulator settings. Command-line
// flags override whatever is loaded from here.
type Config struct {
	// Assembler settings
	Assembler struct {
		ExtendedMode      bool `toml:"extended_mode"`
		WarningsAreErrors bool `toml:"warnings_are_errors"`
		ErrorLimit        int  `toml:"error_limit"`
	} `toml:"assembler"`

	// Simulator settings
	Simulator struct {
		DelayedBranching  bool   `toml:"delayed_branching"`
		SelfModifyingCode bool   `toml:"self_modifying_code"`
		BigEndian         bool   `toml:"big_endian"`
		MemoryConfig      string `toml:"memory_configuration"`
		MaxSteps          int    `toml:"max_steps"`
		BackstepCapacity  int    `toml:"backstep_capacity"`
	} `toml:"simulator"`

	// Debugger settings
	Debugger struct {
		HistorySize   int  `toml:"history_size"`
		ShowRegisters bool `toml:"show_registers"`
		MemoryRows    int  `toml:"memory_rows"`
	} `toml:"debugger"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Assembler.ExtendedMode = true
	cfg.Assembler.WarningsAreErrors = false
	cfg.Assembler.ErrorLimit = 200

	cfg.Simulator.DelayedBranching = false
	cfg.Simulator.SelfModifyingCode = false
	cfg.Simulator.BigEndian = false
	cfg.Simulator.MemoryConfig = "default"
	cfg.Simulator.MaxSteps = 0 // unlimited
	cfg.Simulator.BackstepCapacity = 2000

	cfg.Debugger.HistorySize = 1000
	cfg.Debugger.ShowRegisters = true
	cfg.Debugger.MemoryRows = 16

	return cfg
}

// GetConfigPath returns the platform-specific config file path
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "mars-red")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "mars-red")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from the specified file; a missing file
// yields the defaults
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
