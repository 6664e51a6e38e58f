package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	AllowAutoCreateTenants bool           `json:"allowAutoCreateTenants" yaml:"allowAutoCreateTenants"`
	DefaultTenantID        string         `json:"defaultTenantId" yaml:"defaultTenantId"`
	TenantIDRegex          string         `json:"tenantIdRegex" yaml:"tenantIdRegex"`
	MaxTenants             int            `json:"maxTenants" yaml:"maxTenants"`
	AllowedTenants         []string       `json:"allowedTenants" yaml:"allowedTenants"`
	TenantDefaults         TenantDefaults `json:"tenantDefaults" yaml:"tenantDefaults"`
	Relay                  RelayInfo      `json:"relay" yaml:"relay"`
	Events                 EventsConfig   `json:"events" yaml:"events"`
	Threads                ThreadsConfig  `json:"threads" yaml:"threads"`
	Auth                   AuthConfig     `json:"auth" yaml:"auth"`
	DBParams               DBParams       `json:"dbParams" yaml:"dbParams"`
}

// DBParams tunes the storage engine (`dbParams.*`). mapsize and maxreaders
// are LMDB-era names the spec's source system used; pebble has no mmap
// region to size or reader-slot table to bound, so they translate to
// pebble's closest equivalents: Cache bytes and MaxOpenFiles.
type DBParams struct {
	MapSize     int64 `json:"mapsize" yaml:"mapsize"`
	MaxReaders  int   `json:"maxreaders" yaml:"maxreaders"`
	NoReadAhead bool  `json:"noReadAhead" yaml:"noReadAhead"`
}

// TenantDefaults captures per-tenant baseline limits. The relay reads only
// MaxSubscriptionsPerConn, applying it to every tenant alike in Req Worker
// and Req Monitor; MaxReqFilterSize and MaxEventBytes are loaded but not
// read by the relay (REQ size is bounded by relay.maxReqFilterSize).
type TenantDefaults struct {
	MaxSubscriptionsPerConn int `json:"maxSubscriptionsPerConn" yaml:"maxSubscriptionsPerConn"`
	MaxReqFilterSize        int `json:"maxReqFilterSize" yaml:"maxReqFilterSize"`
	MaxEventBytes           int `json:"maxEventBytes" yaml:"maxEventBytes"`
}

// RelayInfo holds the relay's self-reported identity (NIP-11 style) plus
// the core config keys spec.md §6 lists under the `relay.*` namespace.
type RelayInfo struct {
	Name   string `json:"name" yaml:"name"`
	Pubkey string `json:"pubkey" yaml:"pubkey"`

	// ServiceURL is this relay's own wss:// URL. Required for AUTH and
	// protected events (`relay.serviceUrl`); empty flatly rejects
	// protected events.
	ServiceURL string `json:"serviceUrl" yaml:"serviceUrl"`

	// MaxReqFilterSize caps filters per REQ (`relay.maxReqFilterSize`).
	MaxReqFilterSize int `json:"maxReqFilterSize" yaml:"maxReqFilterSize"`

	Negentropy NegentropyConfig `json:"negentropy" yaml:"negentropy"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// NegentropyConfig gates and sizes the NEG-* commands
// (`relay.negentropy.*`).
type NegentropyConfig struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	MaxSyncEvents int  `json:"maxSyncEvents" yaml:"maxSyncEvents"`
}

// LoggingConfig toggles verbose input mirroring
// (`relay.logging.dump{InAll,InEvents,InReqs,InvalidEvents}`).
type LoggingConfig struct {
	DumpInAll         bool `json:"dumpInAll" yaml:"dumpInAll"`
	DumpInEvents      bool `json:"dumpInEvents" yaml:"dumpInEvents"`
	DumpInReqs        bool `json:"dumpInReqs" yaml:"dumpInReqs"`
	DumpInvalidEvents bool `json:"dumpInvalidEvents" yaml:"dumpInvalidEvents"`
}

// EventsConfig controls ephemeral-event retention and rejection windows.
type EventsConfig struct {
	EphemeralLifetimeSeconds        int `json:"ephemeralLifetimeSeconds" yaml:"ephemeralLifetimeSeconds"`
	RejectEphemeralOlderThanSeconds int `json:"rejectEphemeralOlderThanSeconds" yaml:"rejectEphemeralOlderThanSeconds"`
}

// ThreadsConfig sizes the relay's worker pools.
type ThreadsConfig struct {
	Ingester   int `json:"ingester" yaml:"ingester"`
	ReqWorker  int `json:"reqWorker" yaml:"reqWorker"`
	ReqMonitor int `json:"reqMonitor" yaml:"reqMonitor"`
	Negentropy int `json:"negentropy" yaml:"negentropy"`
}

// AuthConfig controls NIP-42-style AUTH gating.
type AuthConfig struct {
	RequireForProtectedEvents bool `json:"requireForProtectedEvents" yaml:"requireForProtectedEvents"`
	ChallengeBytes            int  `json:"challengeBytes" yaml:"challengeBytes"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		AllowAutoCreateTenants: true,
		DefaultTenantID:        "default",
		TenantIDRegex:          "[a-z0-9-]{1,63}",
		MaxTenants:             0,
		TenantDefaults: TenantDefaults{
			MaxSubscriptionsPerConn: 20,
			MaxReqFilterSize:        10,
			MaxEventBytes:           256 << 10,
		},
		Events: EventsConfig{
			EphemeralLifetimeSeconds:        3600,
			RejectEphemeralOlderThanSeconds: 600,
		},
		Threads: ThreadsConfig{
			Ingester:   4,
			ReqWorker:  4,
			ReqMonitor: 4,
			Negentropy: 2,
		},
		Auth: AuthConfig{
			RequireForProtectedEvents: true,
			ChallengeBytes:            16,
		},
		Relay: RelayInfo{
			MaxReqFilterSize: 10,
			Negentropy: NegentropyConfig{
				Enabled:       true,
				MaxSyncEvents: 1_000_000,
			},
		},
		DBParams: DBParams{
			MapSize:     1 << 30,
			MaxReaders:  126,
			NoReadAhead: false,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json", "":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse json config: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	return cfg, nil
}
