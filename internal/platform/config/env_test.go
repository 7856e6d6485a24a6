package config

import (
	"testing"
	"time"
)

func TestParseEnvServer(t *testing.T) {
	t.Setenv("QS_ADDR", ":9000")
	t.Setenv("QS_STORE_BACKEND", "http")
	t.Setenv("QS_STORE_TIMEOUT", "250ms")
	t.Setenv("QS_DISABLE_JOURNAL", "true")

	var cfg ServerEnv
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.StoreBackend != "http" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.StoreTimeout != 250*time.Millisecond || !cfg.DisableLog {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestParseEnvDefaults(t *testing.T) {
	t.Setenv("QS_STORE_TIMEOUT", "")
	var cfg ServerEnv
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Fatalf("timeout=%v", cfg.StoreTimeout)
	}
}

func TestParseEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("QS_STORE_TIMEOUT", "soon")
	var cfg ServerEnv
	if err := ParseEnv(&cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPick(t *testing.T) {
	if Pick("", "a") != "a" || Pick("b", "a") != "b" {
		t.Fatalf("pick")
	}
}

func TestParseEnvOffsite(t *testing.T) {
	t.Setenv("QS_OFFSITE_ENDPOINT", "https://r2.example.com")
	t.Setenv("QS_OFFSITE_BUCKET", "quest")
	var cfg ServerEnv
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Offsite.Enabled() || cfg.Offsite.Bucket != "quest" || cfg.Offsite.Region != "auto" {
		t.Fatalf("offsite=%+v", cfg.Offsite)
	}
}
