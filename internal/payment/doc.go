// Package payment holds the vesting calculator for periodic payment streams.
//
// A Schedule carries the timing and amount fields of one stream. Status derives
// from elapsed time how much is claimable right now, Remainder derives the
// unclaimed portion owed back to the issuer on cancellation. Both are pure
// functions of the schedule fields and the supplied timestamp; they never touch
// storage.
package payment
