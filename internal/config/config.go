package config

import (
	"encoding/json"
	"os"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// DataDir is the ledger database directory.
	DataDir string `json:"dataDir"`
	// HTTPAddr is the bind address of the HTTP boundary.
	HTTPAddr string `json:"httpAddr"`
	// Fsync selects the storage durability mode: always|interval|never.
	Fsync string `json:"fsync"`
	// HostAccount is the only account allowed to initialize the ledger.
	HostAccount string `json:"hostAccount"`
	// AuthSecret is the HMAC secret for bearer tokens. When empty the server
	// trusts the X-Paystream-Account header (development mode only).
	AuthSecret string `json:"authSecret"`
	// LogLevel is the minimum log level: debug|info|warn|error.
	LogLevel string `json:"logLevel"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:     DefaultDataDir(),
		HTTPAddr:    ":8080",
		Fsync:       "interval",
		HostAccount: "paystream",
		LogLevel:    "info",
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
