package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TWITCH_CHANNELS", "")
	t.Setenv("TWITCH_SCOPES", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("SNAPSHOT_INTERVAL", "")
	t.Setenv("HTTP_ADDR", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TwitchScopes == "" {
		t.Error("expected default scopes, got empty")
	}
	if cfg.DBDsn == "" {
		t.Error("expected default DSN, got empty")
	}
	if cfg.SnapshotInterval != time.Minute {
		t.Errorf("SnapshotInterval = %v, want 1m", cfg.SnapshotInterval)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
}

func TestChannelListParsing(t *testing.T) {
	t.Setenv("TWITCH_CHANNELS", " somechannel, Another ,,third ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := []string{"somechannel", "Another", "third"}
	if len(cfg.Channels) != len(want) {
		t.Fatalf("Channels = %v, want %v", cfg.Channels, want)
	}
	for i := range want {
		if cfg.Channels[i] != want[i] {
			t.Errorf("Channels[%d] = %q, want %q", i, cfg.Channels[i], want[i])
		}
	}
}

func TestInvalidSnapshotInterval(t *testing.T) {
	t.Setenv("SNAPSHOT_INTERVAL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid SNAPSHOT_INTERVAL")
	}
}

func TestValidateChatReady(t *testing.T) {
	t.Setenv("TWITCH_CHANNELS", "chan")
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "oauth:token")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}
	if err := os.Unsetenv("TWITCH_CHANNELS"); err != nil {
		t.Fatalf("failed to unset TWITCH_CHANNELS: %v", err)
	}
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}

func TestHelixReady(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	cfg, _ := Load()
	if !cfg.HelixReady() {
		t.Error("expected HelixReady with id and secret set")
	}
	t.Setenv("TWITCH_CLIENT_SECRET", "")
	cfg, _ = Load()
	if cfg.HelixReady() {
		t.Error("HelixReady should require the client secret")
	}
}
