package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.WS.PongWait != 60*time.Second {
		t.Errorf("PongWait = %v", cfg.WS.PongWait)
	}
	if cfg.HistoryPageSize != 50 || cfg.HistoryMaxPageSize != 200 {
		t.Errorf("history sizes = %d/%d", cfg.HistoryPageSize, cfg.HistoryMaxPageSize)
	}
	if cfg.JWTEnabled() {
		t.Error("JWT should be disabled without a secret")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("WS_PONG_WAIT", "15s")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TEMP_ID_TTL", "2m")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.WS.PongWait != 15*time.Second {
		t.Errorf("PongWait = %v", cfg.WS.PongWait)
	}
	if len(cfg.WS.AllowedOrigins) != 2 || cfg.WS.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.WS.AllowedOrigins)
	}
	if !cfg.JWTEnabled() {
		t.Error("JWT should be enabled")
	}
	if cfg.TempIDTTL != 2*time.Minute {
		t.Errorf("TempIDTTL = %v", cfg.TempIDTTL)
	}
}
