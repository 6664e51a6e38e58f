package tenant

import "testing"

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"acme":        true,
		"acme-corp":   true,
		"a":           true,
		"-leading":    false,
		"trailing-":   false,
		"":            false,
		"has space":   false,
		"has_under":   false,
		"UPPERCASE-1": true,
	}
	for id, want := range cases {
		if got := Valid(id); got != want {
			t.Errorf("Valid(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestExtractIDPathPrecedence(t *testing.T) {
	if got := ExtractID("acme.example.com", "/other-tenant"); got != "other-tenant" {
		t.Fatalf("expected path to win, got %q", got)
	}
}

func TestExtractIDRootPathYieldsDefault(t *testing.T) {
	if got := ExtractID("acme.example.com", "/"); got != DefaultTenantID {
		t.Fatalf("expected default tenant for root path, got %q", got)
	}
}

func TestExtractIDInvalidPathFallsBackToDefault(t *testing.T) {
	if got := ExtractID("acme.example.com", "/has space"); got != DefaultTenantID {
		t.Fatalf("expected default tenant for invalid path, got %q", got)
	}
}

func TestExtractIDFromHostSubdomain(t *testing.T) {
	if got := ExtractID("acme.example.com", ""); got != "acme" {
		t.Fatalf("expected acme, got %q", got)
	}
}

func TestExtractIDStripsPort(t *testing.T) {
	if got := ExtractID("acme.example.com:8080", ""); got != "acme" {
		t.Fatalf("expected acme, got %q", got)
	}
}

func TestExtractIDNoDotFallsBackToDefault(t *testing.T) {
	if got := ExtractID("localhost", ""); got != DefaultTenantID {
		t.Fatalf("expected default tenant for bare host, got %q", got)
	}
}

func TestExtractIDInvalidSubdomainFallsBackToDefault(t *testing.T) {
	if got := ExtractID("has_under.example.com", ""); got != DefaultTenantID {
		t.Fatalf("expected default tenant for invalid subdomain, got %q", got)
	}
}
