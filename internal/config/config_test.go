package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.StorageDriver != "postgres" || cfg.NotifyMode != "poll" {
		t.Fatalf("driver=%q mode=%q", cfg.StorageDriver, cfg.NotifyMode)
	}
	if cfg.HorizonDays != 60 || cfg.WeeksAhead != 8 || cfg.LowWater != 5 || cfg.HoldTTL != 5*time.Minute {
		t.Fatalf("scheduling defaults = %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("KafkaBrokers = %v, want none", cfg.KafkaBrokers)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SLOTENGINE_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("SLOTENGINE_STORAGE_DRIVER", "memory")
	t.Setenv("SLOTENGINE_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SLOTENGINE_SCHEDULING_TIMEZONE", "Europe/Berlin")
	t.Setenv("SLOTENGINE_SCHEDULING_HOLD_TTL", "90s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr() != "127.0.0.1:6000" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.StorageDriver != "memory" {
		t.Fatalf("StorageDriver = %q", cfg.StorageDriver)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Berlin" {
		t.Fatalf("Location = %v, %v", loc, err)
	}
	if cfg.HoldTTL != 90*time.Second || cfg.LogLevel != "debug" {
		t.Fatalf("HoldTTL=%v LogLevel=%q", cfg.HoldTTL, cfg.LogLevel)
	}
}

func TestLoad_RejectsUnknownValues(t *testing.T) {
	tests := map[string]string{
		"SLOTENGINE_STORAGE_DRIVER":      "sqlite",
		"SLOTENGINE_NOTIFY_MODE":         "carrier-pigeon",
		"SLOTENGINE_SCHEDULING_TIMEZONE": "Nowhere/Land",
		"SLOTENGINE_SHUTDOWN_TIMEOUT":    "soon",
	}
	for env, val := range tests {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", env, val)
			}
		})
	}
}
