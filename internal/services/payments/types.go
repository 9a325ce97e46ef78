package paymentsvc

import (
	"github.com/shopspring/decimal"
)

// ProcessDecision selects how a pending stream is resolved by its receiver.
type ProcessDecision string

// Decisions for ProcessRequest.
const (
	ProcessApprove ProcessDecision = "approve"
	ProcessReject  ProcessDecision = "reject"
)

// ProcessRequest resolves one pending stream.
type ProcessRequest struct {
	Decision ProcessDecision `json:"decision"`
	StreamID uint64          `json:"stream_id"`
}

// Payout is one amount owed to one account as the result of an operation.
// A zero amount means no transfer is required.
type Payout struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// Settlement is the two-sided payout split produced by a rejection.
type Settlement struct {
	Issuer   Payout `json:"issuer"`
	Receiver Payout `json:"receiver"`
}

// StreamInfo is the query-surface view of one stream record.
type StreamInfo struct {
	ID             uint64          `json:"id"`
	Issuer         string          `json:"issuer"`
	Receiver       string          `json:"receiver"`
	PeriodDuration uint64          `json:"period_duration"`
	PaymentAmount  decimal.Decimal `json:"payment_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Approved       bool            `json:"approved"`
	InitiatedAt    *uint64         `json:"initiated_at,omitempty"`
	LastPaymentAt  *uint64         `json:"last_payment_at,omitempty"`
}

// ListOptions controls the List query. Filter is an optional CEL expression
// evaluated per stream; when empty every stream of the account is returned.
type ListOptions struct {
	Filter string
	Limit  int
}
