// Package paymentsvc implements the payment stream lifecycle over the ledger
// store: create, approve, claim, and reject/cancel.
//
// Each operation validates the caller's role against the ledger indexes, runs
// the vesting calculator when the stream's financial state matters, mutates
// the record and/or the indexes through the store's atomic operations, and
// returns the amounts the boundary must transfer. The service itself never
// moves funds.
//
// Operations are serialized by a service mutex: each one is a transaction over
// the ledger state and no two interleave.
package paymentsvc
