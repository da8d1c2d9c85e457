package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Addr    string        `env:"TEST_ADDR" envDefault:":8080"`
	Budget  time.Duration `env:"TEST_BUDGET" envDefault:"100ms"`
	Rounds  int           `env:"TEST_ROUNDS"`
	Players []string      `env:"TEST_PLAYERS" envSeparator:","`
}

func TestParseEnv_Defaults(t *testing.T) {
	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Budget != 100*time.Millisecond || cfg.Rounds != 0 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestParseEnv_UsesPrefix(t *testing.T) {
	t.Setenv("MINEOPOLY_TEST_ROUNDS", "12")
	t.Setenv("MINEOPOLY_TEST_PLAYERS", "greedy,random")
	t.Setenv("TEST_ADDR", ":9999")

	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Rounds != 12 || len(cfg.Players) != 2 || cfg.Players[1] != "random" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unprefixed variable leaked in: %q", cfg.Addr)
	}
}

func TestParseEnv_Error(t *testing.T) {
	t.Setenv("MINEOPOLY_TEST_BUDGET", "soon")
	var cfg envTestConfig
	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
