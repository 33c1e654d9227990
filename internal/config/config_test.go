package config

import (
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SENDGRID_API_KEY", "SG.test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabasePath != ".emaildb" {
		t.Errorf("DatabasePath = %s, want .emaildb", cfg.DatabasePath)
	}
	if cfg.SendGridTimeoutSec != 10 {
		t.Errorf("SendGridTimeoutSec = %d, want 10", cfg.SendGridTimeoutSec)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SENDGRID_API_KEY", "SG.test-key")
	t.Setenv("EMAILDB_PATH", "/tmp/conference.db")
	t.Setenv("SENDGRID_TIMEOUT_SEC", "30")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabasePath != "/tmp/conference.db" {
		t.Errorf("DatabasePath = %s, want /tmp/conference.db", cfg.DatabasePath)
	}
	if cfg.SendGridTimeoutSec != 30 {
		t.Errorf("SendGridTimeoutSec = %d, want 30", cfg.SendGridTimeoutSec)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
}

func TestLoad_MissingAPIKeyIsNotFatal(t *testing.T) {
	// The credential is checked at first provider use, so config load must
	// succeed without it.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = cfg.SendGridAPIKey
}
