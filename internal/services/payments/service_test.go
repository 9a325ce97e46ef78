package paymentsvc

import (
	"errors"
	"testing"

	cfgpkg "github.com/rzbill/paystream/internal/config"
	"github.com/rzbill/paystream/internal/payment"
	"github.com/rzbill/paystream/internal/runtime"
	pebblestore "github.com/rzbill/paystream/internal/storage/pebble"
	"github.com/shopspring/decimal"
)

const day = payment.NanosPerDay

// fakeClock lets tests march the host clock forward deterministically.
type fakeClock struct {
	now uint64
}

func (c *fakeClock) advance(d uint64) { c.now += d }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.HostAccount = "host"
	rt, err := runtime.Open(runtime.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfg,
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })

	svc := New(rt)
	clk := &fakeClock{now: 1}
	svc.now = func() uint64 { return clk.now }
	if err := svc.Initialize("host", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return svc, clk
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestInitializeGuards(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.HostAccount = "host"
	rt, err := runtime.Open(runtime.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfg,
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	svc := New(rt)

	if err := svc.Initialize("mallory", dec(1)); !errors.Is(err, payment.ErrInitialize) {
		t.Fatalf("non-host initialize: got %v, want ErrInitialize", err)
	}
	if err := svc.Initialize("host", dec(2)); !errors.Is(err, payment.ErrInitialize) {
		t.Fatalf("wrong deposit: got %v, want ErrInitialize", err)
	}
	if err := svc.Initialize("host", dec(1)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := svc.Initialize("host", dec(1)); !errors.Is(err, payment.ErrInitialize) {
		t.Fatalf("double initialize: got %v, want ErrInitialize", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name            string
		issuer, recv    string
		days            uint64
		payment, total  decimal.Decimal
		want            error
	}{
		{"zero deposit", "alice", "bob", 1, dec(100), dec(0), payment.ErrInvalidCreationParams},
		{"zero payment", "alice", "bob", 1, dec(0), dec(500), payment.ErrInvalidCreationParams},
		{"zero period", "alice", "bob", 0, dec(100), dec(500), payment.ErrInvalidCreationParams},
		{"fractional deposit", "alice", "bob", 1, dec(100), decimal.NewFromFloat(500.5), payment.ErrInvalidCreationParams},
		{"bad account", "alice", "B!ob", 1, dec(100), dec(500), payment.ErrInvalidCreationParams},
		{"non-divisible", "alice", "bob", 1, dec(300), dec(500), payment.ErrNonDivisibleAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(tc.issuer, tc.recv, tc.days, tc.payment, tc.total)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	svc, _ := newTestService(t)

	id1, err := svc.Create("alice", "bob", 1, dec(100), dec(500))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id2, err := svc.Create("alice", "carol", 1, dec(100), dec(500))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id2 != id1+1 {
		t.Fatalf("ids not sequential: %d then %d", id1, id2)
	}
}

// Mirrors the steady-claim path: approve, claim after five periods, then one
// more period later claim again.
func TestClaimAfterApproval(t *testing.T) {
	svc, clk := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(1000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Process("bob", ProcessRequest{Decision: ProcessApprove, StreamID: id}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	clk.advance(5*day + 1)
	got, err := svc.Claim("bob", id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !got.Equal(dec(500)) {
		t.Fatalf("first claim: got %s, want 500", got)
	}

	clk.advance(day)
	got, err = svc.Claim("bob", id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !got.Equal(dec(100)) {
		t.Fatalf("second claim: got %s, want 100", got)
	}
}

// The stream runs past its end date; the final claim pays out the whole escrow
// and destroys the record.
func TestClaimExhaustsStream(t *testing.T) {
	svc, clk := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(1000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Process("bob", ProcessRequest{Decision: ProcessApprove, StreamID: id}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	clk.advance(10*day + 1)
	got, err := svc.Claim("bob", id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !got.Equal(dec(1000)) {
		t.Fatalf("final claim: got %s, want 1000", got)
	}

	if _, err := svc.Claim("bob", id); !errors.Is(err, payment.ErrStreamNotFound) {
		t.Fatalf("claim after exhaustion: got %v, want ErrStreamNotFound", err)
	}
}

func TestClaimBeforeFirstPeriod(t *testing.T) {
	svc, clk := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(1000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Process("bob", ProcessRequest{Decision: ProcessApprove, StreamID: id}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	clk.advance(day / 2)
	got, err := svc.Claim("bob", id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("half-period claim: got %s, want 0", got)
	}
}

func TestClaimBeforeApproval(t *testing.T) {
	svc, clk := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(1000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	clk.advance(3 * day)
	if _, err := svc.Claim("bob", id); !errors.Is(err, payment.ErrStreamNotActivated) {
		t.Fatalf("claim on pending stream: got %v, want ErrStreamNotActivated", err)
	}
}

func TestProcessRejectRefundsEverything(t *testing.T) {
	svc, _ := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(500))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	st, err := svc.Process("bob", ProcessRequest{Decision: ProcessReject, StreamID: id})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if st.Issuer.Account != "alice" || !st.Issuer.Amount.Equal(dec(500)) {
		t.Fatalf("issuer refund: got %s to %s, want 500 to alice", st.Issuer.Amount, st.Issuer.Account)
	}
	if !st.Receiver.Amount.IsZero() {
		t.Fatalf("receiver payout: got %s, want 0", st.Receiver.Amount)
	}
	if _, err := svc.Get("alice", id, payment.RoleIssuer); !errors.Is(err, payment.ErrAccountIndexMissing) {
		t.Fatalf("record after reject: got %v, want ErrAccountIndexMissing", err)
	}
}

func TestProcessRequiresReceiver(t *testing.T) {
	svc, _ := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(500))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Process("alice", ProcessRequest{Decision: ProcessApprove, StreamID: id}); !errors.Is(err, payment.ErrAccountIndexMissing) {
		t.Fatalf("issuer approving: got %v, want ErrAccountIndexMissing", err)
	}
}

func TestReApprovalRefused(t *testing.T) {
	svc, _ := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(500))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Process("bob", ProcessRequest{Decision: ProcessApprove, StreamID: id}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err = svc.Process("bob", ProcessRequest{Decision: ProcessApprove, StreamID: id})
	if !errors.Is(err, payment.ErrStreamAlreadyActivated) {
		t.Fatalf("re-approve: got %v, want ErrStreamAlreadyActivated", err)
	}
}

// Cancelling mid-stream splits the escrow: the vested portion to the
// receiver, the rest back to the issuer, and the two always sum to the
// original deposit.
func TestRejectSplitsEscrow(t *testing.T) {
	svc, clk := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(1000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Process("bob", ProcessRequest{Decision: ProcessApprove, StreamID: id}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	clk.advance(3*day + 1)
	st, err := svc.Reject("alice", id, payment.RoleIssuer)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !st.Receiver.Amount.Equal(dec(300)) {
		t.Fatalf("receiver payout: got %s, want 300", st.Receiver.Amount)
	}
	if !st.Issuer.Amount.Equal(dec(700)) {
		t.Fatalf("issuer refund: got %s, want 700", st.Issuer.Amount)
	}
	if !st.Issuer.Amount.Add(st.Receiver.Amount).Equal(dec(1000)) {
		t.Fatalf("settlement does not conserve the deposit")
	}
}

// Value is conserved across a claim followed by a cancellation: everything
// ever paid out plus the final refund sums to the original deposit.
func TestRejectAfterClaimConservesDeposit(t *testing.T) {
	svc, clk := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(1000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Process("bob", ProcessRequest{Decision: ProcessApprove, StreamID: id}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	clk.advance(3*day + 1)
	claimed, err := svc.Claim("bob", id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed.Equal(dec(300)) {
		t.Fatalf("claim: got %s, want 300", claimed)
	}

	clk.advance(2 * day)
	st, err := svc.Reject("alice", id, payment.RoleIssuer)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !st.Receiver.Amount.Equal(dec(200)) {
		t.Fatalf("receiver payout: got %s, want 200", st.Receiver.Amount)
	}
	total := claimed.Add(st.Receiver.Amount).Add(st.Issuer.Amount)
	if !total.Equal(dec(1000)) {
		t.Fatalf("deposit not conserved: claimed %s + payout %s + refund %s = %s",
			claimed, st.Receiver.Amount, st.Issuer.Amount, total)
	}
}

func TestRejectPendingStreamByIssuer(t *testing.T) {
	svc, clk := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(1000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	clk.advance(7 * day)
	st, err := svc.Reject("alice", id, payment.RoleIssuer)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !st.Issuer.Amount.Equal(dec(1000)) {
		t.Fatalf("issuer refund: got %s, want full 1000", st.Issuer.Amount)
	}
	if !st.Receiver.Amount.IsZero() {
		t.Fatalf("receiver payout: got %s, want 0", st.Receiver.Amount)
	}
}

func TestRejectFinalizedStream(t *testing.T) {
	svc, clk := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(500))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Process("bob", ProcessRequest{Decision: ProcessApprove, StreamID: id}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	clk.advance(9 * day)
	st, err := svc.Reject("bob", id, payment.RoleReceiver)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !st.Receiver.Amount.Equal(dec(500)) {
		t.Fatalf("receiver payout: got %s, want 500", st.Receiver.Amount)
	}
	if !st.Issuer.Amount.IsZero() {
		t.Fatalf("issuer refund: got %s, want 0", st.Issuer.Amount)
	}
}

// The caller must hold the role they claim; an issuer posing as the receiver
// does not reach the stream even though the id exists.
func TestRejectRoleMismatch(t *testing.T) {
	svc, _ := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(500))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.Reject("alice", id, payment.RoleReceiver)
	if !errors.Is(err, payment.ErrAccountIndexMissing) {
		t.Fatalf("role mismatch: got %v, want ErrAccountIndexMissing", err)
	}
}

func TestRejectDestroysRecordOnce(t *testing.T) {
	svc, _ := newTestService(t)

	id, err := svc.Create("alice", "bob", 1, dec(100), dec(500))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Reject("alice", id, payment.RoleIssuer); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := svc.Reject("alice", id, payment.RoleIssuer); !errors.Is(err, payment.ErrAccountIndexMissing) {
		t.Fatalf("double reject: got %v, want ErrAccountIndexMissing", err)
	}
}

func TestGetAndList(t *testing.T) {
	svc, _ := newTestService(t)

	id1, err := svc.Create("alice", "bob", 1, dec(100), dec(500))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id2, err := svc.Create("alice", "carol", 2, dec(50), dec(200))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	info, err := svc.Get("bob", id1, payment.RoleReceiver)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.Issuer != "alice" || info.Approved {
		t.Fatalf("unexpected info: %+v", info)
	}

	all, err := svc.List("alice", payment.RoleIssuer, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list: got %d streams, want 2", len(all))
	}

	filtered, err := svc.List("alice", payment.RoleIssuer, ListOptions{Filter: `receiver == "carol"`})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != id2 {
		t.Fatalf("filtered list: got %+v", filtered)
	}

	if _, err := svc.List("alice", payment.RoleIssuer, ListOptions{Filter: "receiver =="}); err == nil {
		t.Fatal("bad filter expression accepted")
	}
}

func TestListAsReceiver(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Create("alice", "bob", 1, dec(100), dec(500)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create("carol", "bob", 1, dec(10), dec(100)); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.List("bob", payment.RoleReceiver, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("list: got %d streams, want 2", len(got))
	}
}
