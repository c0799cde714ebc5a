package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "STORE_BACKEND", "REGISTRY_TX_RETRIES", "REPAIR_PAGE_SIZE", "REDIS_URL", "MEILI_URL", "MINIO_ENDPOINT", "MINIO_USE_SSL"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()
	if cfg.Addr != ":8080" || cfg.StoreBackend != BackendPostgres {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TxRetries != 3 || cfg.RepairPage != 200 || cfg.RetryBackoff != 25*time.Millisecond {
		t.Fatalf("unexpected numeric defaults: %+v", cfg)
	}
	if cfg.RedisURL != "" || cfg.MeiliURL != "" || cfg.MinioEndpoint != "" || cfg.MinioUseSSL {
		t.Fatalf("optional backends should default to disabled: %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REGISTRY_TX_RETRIES", "5")
	t.Setenv("REPAIR_PAGE_SIZE", "not-a-number")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")

	cfg := FromEnv()
	if cfg.StoreBackend != BackendMemory || cfg.TxRetries != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.RepairPage != 200 {
		t.Fatalf("invalid int should fall back, got %d", cfg.RepairPage)
	}
	if !cfg.MinioUseSSL || cfg.RedisURL != "redis://cache:6379/2" {
		t.Fatalf("unexpected optional backend config: %+v", cfg)
	}
}
