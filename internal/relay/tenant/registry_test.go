package tenant

import (
	"testing"

	pebblestore "github.com/nostrhub/nostrhub/internal/storage/pebble"
)

func TestRegistryOpensAndCachesEnv(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir, pebblestore.Options{Fsync: pebblestore.FsyncModeAlways})
	t.Cleanup(func() { _ = r.Close() })

	e1, err := r.Env("acme")
	if err != nil {
		t.Fatalf("open env: %v", err)
	}
	e2, err := r.Env("acme")
	if err != nil {
		t.Fatalf("reopen env: %v", err)
	}
	if e1 != e2 {
		t.Fatalf("expected cached env to be returned on second lookup")
	}
}

func TestRegistryIsolatesTenants(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir, pebblestore.Options{Fsync: pebblestore.FsyncModeAlways})
	t.Cleanup(func() { _ = r.Close() })

	a, err := r.Env("acme")
	if err != nil {
		t.Fatalf("open acme: %v", err)
	}
	b, err := r.Env("beta")
	if err != nil {
		t.Fatalf("open beta: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct environments per tenant")
	}

	tenants := r.Tenants()
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants tracked, got %v", tenants)
	}
}
