package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the default data directory based on the host OS.
// It prefers standard locations when available and falls back to a dotdir
// in the user's home directory.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	// XDG (Linux) override
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "nostrhub")
	}

	// Common Linux/Unix system dir
	if isDir("/var/lib") {
		return "/var/lib/nostrhub"
	}

	// macOS: ~/Library/Application Support/Nostrhub
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "Nostrhub")
	}

	// Windows: %USERPROFILE%/AppData/Local/Nostrhub
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "Nostrhub")
	}

	// Fallback: ~/.nostrhub
	return filepath.Join(homeDir, ".nostrhub")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// TenantsSubdir is the directory name holding every tenant's storage
// environment underneath a data dir (spec.md §6's on-disk layout:
// "{dataDir}/tenants/{tenantId}/").
const TenantsSubdir = "tenants"

// TenantDataDir returns the on-disk path for tenantId's storage environment
// given the process's root data dir. tenant.Registry is the only caller; it
// exists here rather than inline in the registry so the layout has one
// definition alongside the rest of the process's path conventions.
func TenantDataDir(dataDir, tenantID string) string {
	return filepath.Join(dataDir, TenantsSubdir, tenantID)
}
