// Package config provides loading and environment overlay for nostrhub's
// runtime configuration. It exposes a Default() baseline and helpers to
// build a config.Config from a JSON or YAML file plus NOSTRHUB_* env vars.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/nostrhub.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
