package play

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.WorldPath != "worlds/moonfall.yaml" {
		t.Fatalf("world path = %q", cfg.WorldPath)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("driver = %q, want sqlite", cfg.DBDriver)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("history limit = %d, want 50", cfg.HistoryLimit)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-world", "w.yaml", "-driver", "bbolt", "-session", "abc"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.WorldPath != "w.yaml" {
		t.Fatalf("world path = %q", cfg.WorldPath)
	}
	if cfg.DBDriver != "bbolt" {
		t.Fatalf("driver = %q", cfg.DBDriver)
	}
	if cfg.SessionID != "abc" {
		t.Fatalf("session = %q", cfg.SessionID)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, err := openStore(Config{DBDriver: "postgres"}); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
