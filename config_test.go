package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	if cfg != want {
		t.Errorf("LoadConfig() = %+v, want %+v", cfg, want)
	}
	if cfg.Addr != ":10000" || cfg.DefaultRoom != DefaultRoomName || !cfg.Validate {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MYTHICA_DB", "/tmp/m.db")
	t.Setenv("MYTHICA_TICK_RATE", "30")
	t.Setenv("MYTHICA_VALIDATE_MOVES", "false")
	t.Setenv("MYTHICA_STEP_INTERVAL", "200ms")
	t.Setenv("MYTHICA_MAP_SEED", "99")
	t.Setenv("MYTHICA_DEFAULT_ROOM", "lobby")
	t.Setenv("MYTHICA_ADMIN_TOKEN", "tok")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.DBPath != "/tmp/m.db" || cfg.TickRate != 30 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Validate || cfg.StepInterval != 200*time.Millisecond || cfg.MapSeed != 99 || cfg.DefaultRoom != "lobby" || cfg.AdminToken != "tok" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MYTHICA_TICK_RATE", "30")

	cfg, err := LoadConfig([]string{"-addr", ":7000", "-tick", "10", "-db", "x.db"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr != ":7000" || cfg.TickRate != 10 || cfg.DBPath != "x.db" {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"MYTHICA_TICK_RATE", "fast"},
		{"MYTHICA_TICK_RATE", "0"},
		{"MYTHICA_MAX_PLAYERS", "-1"},
		{"MYTHICA_VALIDATE_MOVES", "maybe"},
		{"MYTHICA_STEP_INTERVAL", "soon"},
		{"MYTHICA_MAP_SEED", "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := LoadConfig(nil); !errors.Is(err, errBadConfig) {
				t.Errorf("expected errBadConfig, got %v", err)
			}
		})
	}
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MYTHICA_PUBLIC_URL=https://play.example/\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("MYTHICA_PUBLIC_URL", "")
	os.Unsetenv("MYTHICA_PUBLIC_URL")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PublicURL != "https://play.example/" {
		t.Errorf("expected .env value, got %q", cfg.PublicURL)
	}
}
