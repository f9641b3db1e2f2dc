package seed

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/selune/engine/internal/world"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.OutPath != "worlds/moonfall.yaml" {
		t.Fatalf("out path = %q", cfg.OutPath)
	}
	if cfg.Force {
		t.Fatal("force defaulted to true")
	}
}

func TestStarterWorldParses(t *testing.T) {
	def, err := world.Parse([]byte(starterWorld))
	if err != nil {
		t.Fatalf("starter world invalid: %v", err)
	}
	if def.ID != "moonfall" {
		t.Errorf("world id = %q", def.ID)
	}
	if def.Companion("Elara") == nil {
		t.Error("starter world missing Elara")
	}
	if len(def.Arc.Beats) != 2 {
		t.Errorf("beats = %d, want 2", len(def.Arc.Beats))
	}
	quest := def.Quests["coolant_leak"]
	if quest == nil {
		t.Fatal("starter world missing coolant_leak quest")
	}
	if quest.StartStage != "start" {
		t.Errorf("start stage = %q, want start", quest.StartStage)
	}
}

func TestWriteRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	if err := os.WriteFile(path, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Write(Config{OutPath: path}); err == nil {
		t.Fatal("Write overwrote existing file without -force")
	}
	if err := Write(Config{OutPath: path, Force: true}); err != nil {
		t.Fatalf("Write with force: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := world.Parse(data); err != nil {
		t.Fatalf("written world invalid: %v", err)
	}
}

func TestWriteCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "worlds", "world.yaml")
	if err := Write(Config{OutPath: path}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("world file missing: %v", err)
	}
}
