package payment

import "errors"

// Error kinds surfaced by the ledger and the lifecycle operations. Callers
// match them with errors.Is; call sites wrap them with stream/account
// attribution via fmt.Errorf("...: %w", ...).
var (
	// ErrInitialize rejects initialization by anyone but the host account, a
	// wrong deposit, or a second initialization.
	ErrInitialize = errors.New("ledger initialization refused")
	// ErrInvalidCreationParams rejects a create call with a zero deposit,
	// payment amount, or period duration.
	ErrInvalidCreationParams = errors.New("creation parameters must be strictly positive")
	// ErrNonDivisibleAmount rejects a deposit that is not an exact multiple of
	// the per-period payment amount.
	ErrNonDivisibleAmount = errors.New("deposit is not divisible by the payment amount")
	// ErrAccountIndexMissing reports an account with no entry at all in the
	// issuer or receiver index.
	ErrAccountIndexMissing = errors.New("account has no entry in the role index")
	// ErrStreamNotFound reports a stream id absent from the consulted index.
	ErrStreamNotFound = errors.New("stream id not found")
	// ErrStreamNotActivated reports a status query against a stream that was
	// never approved.
	ErrStreamNotActivated = errors.New("stream is not activated")
	// ErrStreamAlreadyActivated reports an approval of a stream whose vesting
	// clock already started. Re-approval would silently reset the clock, so it
	// is refused outright.
	ErrStreamAlreadyActivated = errors.New("stream is already activated")
	// ErrCalculationOverflow reports failed checked arithmetic during vesting
	// or remainder calculation.
	ErrCalculationOverflow = errors.New("payment calculation overflow")
	// ErrDuplicateStream reports an id collision on insert. The counter is
	// monotonic, so seeing this means the counter state is corrupt.
	ErrDuplicateStream = errors.New("stream id already exists")
)
