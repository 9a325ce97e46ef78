// Package pebblestore wraps a Pebble database for the payment ledger.
//
// The wrapper pins down the durability policy (WAL fsync behavior) and funnels
// every mutation through batches so multi-key updates commit atomically. The
// ledger's triple-index invariant rests on that: one batch either applies all
// of its index mutations or none of them.
package pebblestore
