// Package tenant derives tenant ids from connection addressing, registers
// and caches per-tenant storage environments, and tracks role-based
// membership (who may write to which tenant).
package tenant

import (
	"strings"
)

// DefaultTenantID is the reserved, always-auto-provisioned tenant.
const DefaultTenantID = "default"

// Valid reports whether id satisfies the tenant-id grammar from spec.md
// §3/§4.1: length 1-63, alphanumeric or ASCII hyphen, no leading or
// trailing hyphen.
func Valid(id string) bool {
	if len(id) < 1 || len(id) > 63 {
		return false
	}
	if id[0] == '-' || id[len(id)-1] == '-' {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum && c != '-' {
			return false
		}
	}
	return true
}

// ExtractID derives the tenant id from the HTTP Host header and URL path,
// following spec.md §4.1: URL path takes precedence over Host header; any
// validation failure falls through to DefaultTenantID.
func ExtractID(host, path string) string {
	if path != "" && path != "/" {
		candidate := strings.TrimPrefix(path, "/")
		candidate = strings.TrimSuffix(candidate, "/")
		if Valid(candidate) {
			return candidate
		}
		return DefaultTenantID
	}
	if path == "/" {
		return DefaultTenantID
	}

	hostname := host
	if idx := strings.IndexByte(hostname, ':'); idx >= 0 {
		hostname = hostname[:idx]
	}
	dot := strings.IndexByte(hostname, '.')
	if dot < 0 {
		return DefaultTenantID
	}
	candidate := hostname[:dot]
	if Valid(candidate) {
		return candidate
	}
	return DefaultTenantID
}
