package runtime

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/rzbill/paystream/internal/config"
	"github.com/rzbill/paystream/internal/ledger"
	pebblestore "github.com/rzbill/paystream/internal/storage/pebble"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	// FsyncInterval is the group-commit window when Fsync is interval mode.
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Metrics is an optional storage observation hook.
	Metrics pebblestore.MetricsHook
}

// Runtime wires storage and config for a single-node instance.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Runtime{db: db, config: opts.Config}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// OpenLedger returns the stream ledger store over the runtime's database.
func (r *Runtime) OpenLedger() *ledger.Store {
	return ledger.New(r.db)
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
