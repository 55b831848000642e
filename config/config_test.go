package config_test

import (
	"path/filepath"
	"testing"

	"github.com/myaltaccountsthis/mars-red/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	if !cfg.Assembler.ExtendedMode {
		t.Errorf("extended mode should default on")
	}
	if cfg.Simulator.DelayedBranching {
		t.Errorf("delayed branching should default off")
	}
	if cfg.Simulator.MemoryConfig != "default" {
		t.Errorf("memory configuration: %q", cfg.Simulator.MemoryConfig)
	}
	if cfg.Assembler.ErrorLimit != 200 {
		t.Errorf("error limit: %d", cfg.Assembler.ErrorLimit)
	}
}

func TestLoadFrom_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulator.BackstepCapacity != 2000 {
		t.Errorf("backstep capacity: %d", cfg.Simulator.BackstepCapacity)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := config.DefaultConfig()
	cfg.Simulator.DelayedBranching = true
	cfg.Simulator.MemoryConfig = "compact"
	cfg.Debugger.MemoryRows = 32

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Simulator.DelayedBranching {
		t.Errorf("delayed branching not persisted")
	}
	if loaded.Simulator.MemoryConfig != "compact" {
		t.Errorf("memory configuration: %q", loaded.Simulator.MemoryConfig)
	}
	if loaded.Debugger.MemoryRows != 32 {
		t.Errorf("memory rows: %d", loaded.Debugger.MemoryRows)
	}
}
