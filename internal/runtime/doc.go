// Package runtime wires storage and config into a single-node paystream
// instance. It exposes Open/Close, basic health checks, and a helper to open
// the ledger store used by the payments service.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	store := rt.OpenLedger()
package runtime
