package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.AllowAutoCreateTenants {
		t.Fatalf("default allow auto create should be true")
	}
	if cfg.DefaultTenantID != "default" {
		t.Fatalf("default tenant id")
	}
	if cfg.TenantDefaults.MaxSubscriptionsPerConn != 20 {
		t.Fatalf("max subs default")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nostrhub.json")
	data := []byte(`{"allowAutoCreateTenants":false,"defaultTenantId":"prod","tenantDefaults":{"maxSubscriptionsPerConn":32,"maxReqFilterSize":5,"maxEventBytes":2048}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AllowAutoCreateTenants {
		t.Fatalf("expected false")
	}
	if cfg.DefaultTenantID != "prod" {
		t.Fatalf("expected prod")
	}
	if cfg.TenantDefaults.MaxSubscriptionsPerConn != 32 {
		t.Fatalf("expected 32")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nostrhub.yaml")
	data := []byte("allowAutoCreateTenants: false\ndefaultTenantId: prod\ntenantDefaults:\n  maxSubscriptionsPerConn: 8\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AllowAutoCreateTenants {
		t.Fatalf("expected false")
	}
	if cfg.DefaultTenantID != "prod" {
		t.Fatalf("expected prod")
	}
	if cfg.TenantDefaults.MaxSubscriptionsPerConn != 8 {
		t.Fatalf("expected 8")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("NOSTRHUB_ALLOW_AUTO_CREATE_TENANTS", "false")
	os.Setenv("NOSTRHUB_DEFAULT_TENANT_ID", "staging")
	os.Setenv("NOSTRHUB_TENANT_DEFAULTS_MAX_SUBS_PER_CONN", "24")
	t.Cleanup(func() {
		os.Unsetenv("NOSTRHUB_ALLOW_AUTO_CREATE_TENANTS")
		os.Unsetenv("NOSTRHUB_DEFAULT_TENANT_ID")
		os.Unsetenv("NOSTRHUB_TENANT_DEFAULTS_MAX_SUBS_PER_CONN")
	})
	FromEnv(&cfg)
	if cfg.AllowAutoCreateTenants {
		t.Fatalf("env override bool")
	}
	if cfg.DefaultTenantID != "staging" {
		t.Fatalf("env override name")
	}
	if cfg.TenantDefaults.MaxSubscriptionsPerConn != 24 {
		t.Fatalf("env override max subs")
	}
}
