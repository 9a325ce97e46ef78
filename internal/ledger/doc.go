// Package ledger persists payment stream records under three mutually
// consistent indexes: by issuer account, by receiver account, and by stream id.
//
// A stream id exists in the record index iff it exists in both party indexes.
// Every mutation that touches more than one index goes through a single Pebble
// batch after all preconditions are checked, so a failed operation leaves the
// indexes exactly as they were.
package ledger
