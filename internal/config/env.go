package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays NOSTRHUB_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("NOSTRHUB_ALLOW_AUTO_CREATE_TENANTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowAutoCreateTenants = b
		}
	}
	if v := os.Getenv("NOSTRHUB_DEFAULT_TENANT_ID"); v != "" {
		cfg.DefaultTenantID = v
	}
	if v := os.Getenv("NOSTRHUB_TENANT_ID_REGEX"); v != "" {
		cfg.TenantIDRegex = v
	}
	if v := os.Getenv("NOSTRHUB_MAX_TENANTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTenants = n
		}
	}
	if v := os.Getenv("NOSTRHUB_ALLOWED_TENANTS"); v != "" {
		parts := strings.Split(v, ",")
		cfg.AllowedTenants = nil
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.AllowedTenants = append(cfg.AllowedTenants, p)
			}
		}
	}
	if v := os.Getenv("NOSTRHUB_TENANT_DEFAULTS_MAX_SUBS_PER_CONN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TenantDefaults.MaxSubscriptionsPerConn = n
		}
	}
	if v := os.Getenv("NOSTRHUB_TENANT_DEFAULTS_MAX_REQ_FILTER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TenantDefaults.MaxReqFilterSize = n
		}
	}
	if v := os.Getenv("NOSTRHUB_TENANT_DEFAULTS_MAX_EVENT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TenantDefaults.MaxEventBytes = n
		}
	}
	if v := os.Getenv("NOSTRHUB_RELAY_NAME"); v != "" {
		cfg.Relay.Name = v
	}
	if v := os.Getenv("NOSTRHUB_RELAY_PUBKEY"); v != "" {
		cfg.Relay.Pubkey = v
	}
	if v := os.Getenv("NOSTRHUB_THREADS_INGESTER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Threads.Ingester = n
		}
	}
	if v := os.Getenv("NOSTRHUB_THREADS_REQ_WORKER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Threads.ReqWorker = n
		}
	}
	if v := os.Getenv("NOSTRHUB_THREADS_REQ_MONITOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Threads.ReqMonitor = n
		}
	}
	if v := os.Getenv("NOSTRHUB_THREADS_NEGENTROPY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Threads.Negentropy = n
		}
	}
	if v := os.Getenv("NOSTRHUB_AUTH_REQUIRE_FOR_PROTECTED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.RequireForProtectedEvents = b
		}
	}
	if v := os.Getenv("NOSTRHUB_RELAY_SERVICE_URL"); v != "" {
		cfg.Relay.ServiceURL = v
	}
	if v := os.Getenv("NOSTRHUB_RELAY_MAX_REQ_FILTER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Relay.MaxReqFilterSize = n
		}
	}
	if v := os.Getenv("NOSTRHUB_RELAY_NEGENTROPY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Relay.Negentropy.Enabled = b
		}
	}
	if v := os.Getenv("NOSTRHUB_RELAY_NEGENTROPY_MAX_SYNC_EVENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Relay.Negentropy.MaxSyncEvents = n
		}
	}
}
