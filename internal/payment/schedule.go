package payment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NanosPerDay is the period unit used by the create boundary, which accepts
// period durations in whole days.
const NanosPerDay = uint64(24 * time.Hour)

// PeriodFromDays converts a whole-day period into nanoseconds with a checked
// multiply.
func PeriodFromDays(days uint64) (uint64, error) {
	nanos, ok := mulChecked(days, NanosPerDay)
	if !ok {
		return 0, fmt.Errorf("period of %d days: %w", days, ErrCalculationOverflow)
	}
	return nanos, nil
}

// Role identifies which side of a stream an account plays.
type Role string

// Stream roles
const (
	RoleIssuer   Role = "issuer"
	RoleReceiver Role = "receiver"
)

// ParseRole converts a wire role name into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleIssuer:
		return RoleIssuer, nil
	case RoleReceiver:
		return RoleReceiver, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// StatusKind classifies the outcome of a vesting calculation.
type StatusKind int

const (
	// StatusAbsent means nothing is claimable right now.
	StatusAbsent StatusKind = iota
	// StatusReady means Amount is claimable and the stream continues.
	StatusReady
	// StatusFinal means Amount is claimable and exhausts the stream; the
	// record must be destroyed after payout.
	StatusFinal
)

// Status is the result of a vesting calculation at a given instant.
type Status struct {
	Kind   StatusKind
	Amount decimal.Decimal
}

// Schedule carries the vesting fields of one payment stream. Timestamps are
// host-supplied nanoseconds. InitiatedAt is nil until the receiver approves the
// stream; LastPaymentAt is nil until the first claim.
type Schedule struct {
	PeriodDuration uint64          `json:"period_duration"`
	PaymentAmount  decimal.Decimal `json:"payment_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	InitiatedAt    *uint64         `json:"initiated_at,omitempty"`
	LastPaymentAt  *uint64         `json:"last_payment_at,omitempty"`
}

// NewSchedule returns a pending schedule with the vesting clock unset.
func NewSchedule(periodDuration uint64, paymentAmount, totalAmount decimal.Decimal) Schedule {
	return Schedule{
		PeriodDuration: periodDuration,
		PaymentAmount:  paymentAmount,
		TotalAmount:    totalAmount,
	}
}

// Status computes what is claimable at now. streamID is used only for error
// attribution.
//
// Derivation: elapsed whole periods since the last payment (or since approval
// when nothing was claimed yet) are claimable, capped so that claimable plus
// already-paid periods never exceed total/payment. The subtraction clamps to
// zero when now precedes the anchor, which should not happen with a
// non-decreasing host clock but is not assumed.
func (s *Schedule) Status(streamID uint64, now uint64) (Status, error) {
	if s.InitiatedAt == nil {
		return Status{}, fmt.Errorf("stream %d: %w", streamID, ErrStreamNotActivated)
	}
	initiatedAt := *s.InitiatedAt

	lastReceived := initiatedAt
	if s.LastPaymentAt != nil {
		lastReceived = *s.LastPaymentAt
	}

	available := periodsBetween(lastReceived, now, s.PeriodDuration)
	made := periodsBetween(initiatedAt, lastReceived, s.PeriodDuration)

	maxPeriods, err := s.maxPeriods(streamID)
	if err != nil {
		return Status{}, err
	}
	if available+made > maxPeriods {
		available = subClamp(maxPeriods, made)
	}

	span, ok := mulChecked(maxPeriods, s.PeriodDuration)
	if !ok {
		return Status{}, fmt.Errorf("stream %d: %w", streamID, ErrCalculationOverflow)
	}
	endDate, ok := addChecked(initiatedAt, span)
	if !ok {
		return Status{}, fmt.Errorf("stream %d: %w", streamID, ErrCalculationOverflow)
	}

	amount := s.PaymentAmount.Mul(decimal.NewFromUint64(available))
	switch {
	case amount.IsZero():
		return Status{Kind: StatusAbsent, Amount: decimal.Zero}, nil
	case now >= endDate:
		return Status{Kind: StatusFinal, Amount: amount}, nil
	default:
		return Status{Kind: StatusReady, Amount: amount}, nil
	}
}

// Remainder computes the unclaimed portion of the total owed back to the
// issuer on cancellation. A stream that was never approved, or never claimed
// from, still owes the full total.
func (s *Schedule) Remainder(streamID uint64) (decimal.Decimal, error) {
	if s.InitiatedAt == nil || s.LastPaymentAt == nil {
		return s.TotalAmount, nil
	}
	initiatedAt, lastPaymentAt := *s.InitiatedAt, *s.LastPaymentAt
	if lastPaymentAt < initiatedAt || s.PeriodDuration == 0 {
		return decimal.Zero, fmt.Errorf("stream %d: %w", streamID, ErrCalculationOverflow)
	}
	made := (lastPaymentAt - initiatedAt) / s.PeriodDuration

	paid := s.PaymentAmount.Mul(decimal.NewFromUint64(made))
	remainder := s.TotalAmount.Sub(paid)
	if remainder.IsNegative() {
		return decimal.Zero, fmt.Errorf("stream %d: %w", streamID, ErrCalculationOverflow)
	}
	return remainder, nil
}

// maxPeriods returns total/payment as the number of installments the escrow
// covers. Creation guarantees divisibility, so the division is exact.
func (s *Schedule) maxPeriods(streamID uint64) (uint64, error) {
	if !s.PaymentAmount.IsPositive() {
		return 0, fmt.Errorf("stream %d: %w", streamID, ErrCalculationOverflow)
	}
	quo, _ := s.TotalAmount.QuoRem(s.PaymentAmount, 0)
	bi := quo.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("stream %d: %w", streamID, ErrCalculationOverflow)
	}
	return bi.Uint64(), nil
}

// periodsBetween counts whole periods elapsed from a to b, clamping to zero
// when b precedes a or the period duration is zero.
func periodsBetween(a, b, period uint64) uint64 {
	if b < a || period == 0 {
		return 0
	}
	return (b - a) / period
}

func subClamp(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

func addChecked(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}

func mulChecked(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	prod := a * b
	return prod, prod/a == b
}
