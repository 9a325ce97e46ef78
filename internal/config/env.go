package config

import "os"

// FromEnv overlays PAYSTREAM_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("PAYSTREAM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PAYSTREAM_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("PAYSTREAM_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("PAYSTREAM_HOST_ACCOUNT"); v != "" {
		cfg.HostAccount = v
	}
	if v := os.Getenv("PAYSTREAM_AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
	if v := os.Getenv("PAYSTREAM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
