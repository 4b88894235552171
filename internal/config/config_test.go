package config

import (
	"strings"
	"testing"
)

func TestDefaultNeedsOnlyAKey(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "private key") {
		t.Fatalf("expected missing key error, got %v", err)
	}
	cfg.PrivateKey = "0x01"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with key should validate: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Addr = ""
	cfg.ParentDomain = "eth"
	cfg.Store = StorePostgres
	cfg.SignatureTTL = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"listen address", "parent domain", "private key", "signature ttl", "database url"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestValidateStores(t *testing.T) {
	cfg := Default()
	cfg.PrivateKey = "0x01"

	cfg.Store = StoreMemory
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory store: %v", err)
	}
	cfg.Store = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown store should fail")
	}
	cfg.Store = StoreSQLite
	cfg.RedisAddr = "localhost:6379"
	cfg.CacheTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("redis without ttl should fail")
	}
}
