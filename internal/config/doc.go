// Package config provides loading and environment overlay for paystream
// runtime configuration. It exposes a Default() baseline, a JSON file loader,
// and a PAYSTREAM_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/paystream.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config
