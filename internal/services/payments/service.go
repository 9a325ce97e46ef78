package paymentsvc

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rzbill/paystream/internal/ledger"
	"github.com/rzbill/paystream/internal/payment"
	"github.com/rzbill/paystream/internal/runtime"
	logpkg "github.com/rzbill/paystream/pkg/log"
	"github.com/shopspring/decimal"
)

// accountRe bounds account identifiers so they embed cleanly in the keyspace.
var accountRe = regexp.MustCompile(`^[a-z0-9._-]{2,64}$`)

// oneUnit is the initialization deposit: the smallest indivisible unit of
// value, an anti-accident guard rather than an economic amount.
var oneUnit = decimal.NewFromInt(1)

// Service implements the payment stream lifecycle over the ledger store.
type Service struct {
	rt     *runtime.Runtime
	store  *ledger.Store
	logger logpkg.Logger

	// mu serializes lifecycle operations; each is one transaction over the
	// ledger state.
	mu sync.Mutex

	// now supplies the host clock in nanoseconds. Overridden in tests.
	now func() uint64
}

// New returns a Service using a default logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, nil)
}

// NewWithLogger constructs the service with an injected logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("payments"))
	}
	return &Service{
		rt:     rt,
		store:  rt.OpenLedger(),
		logger: logger,
		now:    func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// Initialize performs the one-time ledger initialization. Only the configured
// host account may call it, and the deposit must be exactly one unit.
func (s *Service) Initialize(caller string, deposit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.rt.Config().HostAccount {
		return fmt.Errorf("caller %s is not the host account: %w", caller, payment.ErrInitialize)
	}
	if !deposit.Equal(oneUnit) {
		return fmt.Errorf("initialization deposit must be exactly one unit, got %s: %w",
			deposit, payment.ErrInitialize)
	}
	if err := s.store.Initialize(); err != nil {
		return err
	}
	s.logger.Info("ledger initialized", logpkg.Str("host", caller))
	return nil
}

// Create escrows the caller's attached deposit as a new pending stream for
// receiver and returns the assigned stream id. The deposit must be a positive
// integral amount divisible by the per-period payment amount, and the period
// must be a positive number of days.
func (s *Service) Create(caller, receiver string, periodDays uint64, paymentAmount, deposit decimal.Decimal) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range []string{caller, receiver} {
		if !accountRe.MatchString(account) {
			return 0, fmt.Errorf("invalid account %q: %w", account, payment.ErrInvalidCreationParams)
		}
	}
	if !deposit.IsPositive() || !paymentAmount.IsPositive() || periodDays == 0 {
		return 0, fmt.Errorf("deposit=%s payment_amount=%s period_days=%d: %w",
			deposit, paymentAmount, periodDays, payment.ErrInvalidCreationParams)
	}
	if !deposit.IsInteger() || !paymentAmount.IsInteger() {
		return 0, fmt.Errorf("deposit=%s payment_amount=%s must be whole units: %w",
			deposit, paymentAmount, payment.ErrInvalidCreationParams)
	}
	// Guarantees an integral number of periods and that the final period
	// exhausts the escrow exactly.
	if _, rem := deposit.QuoRem(paymentAmount, 0); !rem.IsZero() {
		return 0, fmt.Errorf("deposit=%s payment_amount=%s: %w",
			deposit, paymentAmount, payment.ErrNonDivisibleAmount)
	}
	periodDuration, err := payment.PeriodFromDays(periodDays)
	if err != nil {
		return 0, err
	}

	id, err := s.store.Create(ledger.RecordV1{
		Issuer:   caller,
		Receiver: receiver,
		Schedule: payment.NewSchedule(periodDuration, paymentAmount, deposit),
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("payment stream created",
		logpkg.Uint64("stream_id", id),
		logpkg.Str("issuer", caller),
		logpkg.Str("receiver", receiver),
		logpkg.Str("total", deposit.String()),
	)
	return id, nil
}

// Process resolves a pending stream. Approve starts the vesting clock; Reject
// removes the stream and owes the full escrow back to the issuer. Both require
// the caller to be the stream's receiver.
//
// Reject here is the pending-stream path: the stream is assumed unstarted and
// the refund is the whole total. Cancelling a running stream with a proper
// split is Reject(caller, id, role).
func (s *Service) Process(caller string, req ProcessRequest) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Decision {
	case ProcessApprove:
		return nil, s.approve(caller, req.StreamID)
	case ProcessReject:
		if err := s.store.LookupAsReceiver(caller, req.StreamID); err != nil {
			return nil, err
		}
		rec, err := s.store.Get(req.StreamID)
		if err != nil {
			return nil, err
		}
		if err := s.store.Remove(req.StreamID, rec.Issuer, caller); err != nil {
			return nil, err
		}
		s.logger.Info("pending stream rejected",
			logpkg.Uint64("stream_id", req.StreamID),
			logpkg.Str("refund", rec.Schedule.TotalAmount.String()),
		)
		return &Settlement{
			Issuer:   Payout{Account: rec.Issuer, Amount: rec.Schedule.TotalAmount},
			Receiver: Payout{Account: caller, Amount: decimal.Zero},
		}, nil
	default:
		return nil, fmt.Errorf("unknown process decision %q", req.Decision)
	}
}

func (s *Service) approve(caller string, id uint64) error {
	if err := s.store.LookupAsReceiver(caller, id); err != nil {
		return err
	}
	rec, err := s.store.Get(id)
	if err != nil {
		return err
	}
	// Re-approval would reset the vesting clock and move value between the
	// parties retroactively; refuse it.
	if rec.Schedule.InitiatedAt != nil {
		return fmt.Errorf("stream %d: %w", id, payment.ErrStreamAlreadyActivated)
	}
	now := s.now()
	rec.Schedule.InitiatedAt = &now
	if err := s.store.Put(id, *rec); err != nil {
		return err
	}
	s.logger.Info("payment stream approved",
		logpkg.Uint64("stream_id", id),
		logpkg.Uint64("initiated_at", now),
	)
	return nil
}

// Claim pays out every period that vested since the caller's last claim.
// Returns the amount owed to the caller; zero with no error when nothing has
// vested yet. When the claim exhausts the stream the record is destroyed.
func (s *Service) Claim(caller string, id uint64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.LookupAsReceiver(caller, id); err != nil {
		return decimal.Zero, err
	}
	rec, err := s.store.Get(id)
	if err != nil {
		return decimal.Zero, err
	}

	now := s.now()
	status, err := rec.Schedule.Status(id, now)
	if err != nil {
		return decimal.Zero, err
	}

	switch status.Kind {
	case payment.StatusAbsent:
		// Nothing vested; not an error.
		return decimal.Zero, nil
	case payment.StatusReady:
		rec.Schedule.LastPaymentAt = &now
		if err := s.store.Put(id, *rec); err != nil {
			return decimal.Zero, err
		}
		s.logger.Info("payment claimed",
			logpkg.Uint64("stream_id", id),
			logpkg.Str("amount", status.Amount.String()),
		)
		return status.Amount, nil
	default: // payment.StatusFinal
		if err := s.store.Remove(id, rec.Issuer, caller); err != nil {
			return decimal.Zero, err
		}
		s.logger.Info("payment stream exhausted",
			logpkg.Uint64("stream_id", id),
			logpkg.Str("amount", status.Amount.String()),
		)
		return status.Amount, nil
	}
}

// Reject cancels a stream from either side. role names which ownership the
// caller claims; the caller must match it. The escrow splits as of the call
// instant: whatever already vested goes to the receiver, the unclaimed
// remainder back to the issuer. The record is destroyed in all cases.
func (s *Service) Reject(caller string, id uint64, role payment.Role) (Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lookupAs(caller, id, role); err != nil {
		return Settlement{}, err
	}
	rec, err := s.store.Get(id)
	if err != nil {
		return Settlement{}, err
	}

	// A pending stream has no vesting clock; nothing vested, so it settles
	// through the Absent branch.
	status := payment.Status{Kind: payment.StatusAbsent}
	if rec.Schedule.InitiatedAt != nil {
		status, err = rec.Schedule.Status(id, s.now())
		if err != nil {
			return Settlement{}, err
		}
	}

	settlement := Settlement{
		Issuer:   Payout{Account: rec.Issuer, Amount: decimal.Zero},
		Receiver: Payout{Account: rec.Receiver, Amount: decimal.Zero},
	}
	switch status.Kind {
	case payment.StatusAbsent:
		remainder, err := rec.Schedule.Remainder(id)
		if err != nil {
			return Settlement{}, err
		}
		settlement.Issuer.Amount = remainder
	case payment.StatusReady:
		// The issuer recovers what is left after every payout, past and
		// present: remainder already excludes prior claims, and the currently
		// vested amount goes to the receiver here.
		remainder, err := rec.Schedule.Remainder(id)
		if err != nil {
			return Settlement{}, err
		}
		refund := remainder.Sub(status.Amount)
		if refund.IsNegative() {
			return Settlement{}, fmt.Errorf("stream %d: %w", id, payment.ErrCalculationOverflow)
		}
		settlement.Receiver.Amount = status.Amount
		settlement.Issuer.Amount = refund
	case payment.StatusFinal:
		settlement.Receiver.Amount = status.Amount
	}

	if err := s.store.Remove(id, rec.Issuer, rec.Receiver); err != nil {
		return Settlement{}, err
	}
	s.logger.Info("payment stream rejected",
		logpkg.Uint64("stream_id", id),
		logpkg.Str("role", string(role)),
		logpkg.Str("issuer_refund", settlement.Issuer.Amount.String()),
		logpkg.Str("receiver_payout", settlement.Receiver.Amount.String()),
	)
	return settlement, nil
}

// Get returns one stream the account participates in under the given role.
func (s *Service) Get(account string, id uint64, role payment.Role) (StreamInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lookupAs(account, id, role); err != nil {
		return StreamInfo{}, err
	}
	rec, err := s.store.Get(id)
	if err != nil {
		return StreamInfo{}, err
	}
	return infoFromRecord(id, rec), nil
}

// List returns the account's streams under the given role, optionally
// narrowed by a CEL filter expression.
func (s *Service) List(account string, role payment.Role, opts ListOptions) ([]StreamInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter, err := newCELFilter(opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("list filter: %w", err)
	}

	var ids []uint64
	if role == payment.RoleIssuer {
		ids, err = s.store.ListByIssuer(account)
	} else {
		ids, err = s.store.ListByReceiver(account)
	}
	if err != nil {
		return nil, err
	}

	out := make([]StreamInfo, 0, len(ids))
	for _, id := range ids {
		rec, err := s.store.Get(id)
		if err != nil {
			return nil, err
		}
		info := infoFromRecord(id, rec)
		if !filter.Eval(info) {
			continue
		}
		out = append(out, info)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *Service) lookupAs(account string, id uint64, role payment.Role) error {
	if role == payment.RoleIssuer {
		return s.store.LookupAsIssuer(account, id)
	}
	return s.store.LookupAsReceiver(account, id)
}

func infoFromRecord(id uint64, rec *ledger.RecordV1) StreamInfo {
	return StreamInfo{
		ID:             id,
		Issuer:         rec.Issuer,
		Receiver:       rec.Receiver,
		PeriodDuration: rec.Schedule.PeriodDuration,
		PaymentAmount:  rec.Schedule.PaymentAmount,
		TotalAmount:    rec.Schedule.TotalAmount,
		Approved:       rec.Schedule.InitiatedAt != nil,
		InitiatedAt:    rec.Schedule.InitiatedAt,
		LastPaymentAt:  rec.Schedule.LastPaymentAt,
	}
}
