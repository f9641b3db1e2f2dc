package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	HistoryLimit int `env:"SELUNE_TEST_HISTORY_LIMIT" envDefault:"50"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("history limit = %d, want 50", cfg.HistoryLimit)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("SELUNE_TEST_HISTORY_LIMIT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
