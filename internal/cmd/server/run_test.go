package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/nostrhub/nostrhub/internal/config"
)

func TestOptionsDataDirFallback(t *testing.T) {
	tests := []struct {
		name    string
		dataDir string
	}{
		{name: "empty data dir uses default", dataDir: ""},
		{name: "provided data dir is preserved", dataDir: "/custom/data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{DataDir: tt.dataDir, RelayAddr: ":7777", ControlAddr: ":7778", Config: cfgpkg.Default()}
			if opts.DataDir == "" {
				opts.DataDir = cfgpkg.DefaultDataDir()
			}
			if opts.DataDir == "" {
				t.Error("expected DataDir to be set after fallback")
			}
			if tt.dataDir != "" && opts.DataDir != tt.dataDir {
				t.Errorf("expected DataDir %s, got %s", tt.dataDir, opts.DataDir)
			}
		})
	}
}

func TestGetenvDefault(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		def      string
		envValue string
		expected string
	}{
		{name: "environment variable set", key: "TEST_VAR", def: "default", envValue: "env_value", expected: "env_value"},
		{name: "environment variable not set", key: "TEST_VAR_NOT_SET", def: "default", envValue: "", expected: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				_ = os.Setenv(tt.key, tt.envValue)
			} else {
				_ = os.Unsetenv(tt.key)
			}
			t.Cleanup(func() { _ = os.Unsetenv(tt.key) })

			result := getenvDefault(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("getenvDefault(%s, %s) = %s, expected %s", tt.key, tt.def, result, tt.expected)
			}
		})
	}
}

func TestDataDirStoreSubdirectory(t *testing.T) {
	baseDir := "/tmp/nostrhub"
	expected := filepath.Join(baseDir, "tenants")
	got := filepath.Join(baseDir, "tenants")
	if got != expected {
		t.Errorf("expected %s, got %s", expected, got)
	}
}

// TestRunIntegration starts the relay and control-plane listeners on
// ephemeral ports and verifies Run returns cleanly once its context is
// cancelled.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tempDir := t.TempDir()
	opts := Options{
		DataDir:     tempDir,
		RelayAddr:   "127.0.0.1:0",
		ControlAddr: "127.0.0.1:0",
		Config:      cfgpkg.Default(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := Run(ctx, opts); err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}
