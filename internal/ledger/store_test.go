package ledger

import (
	"errors"
	"testing"

	"github.com/rzbill/paystream/internal/payment"
	pebblestore "github.com/rzbill/paystream/internal/storage/pebble"
	"github.com/shopspring/decimal"
)

func newStoreForTest(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func mustCreate(t *testing.T, s *Store, issuer, receiver string) uint64 {
	t.Helper()
	id, err := s.Create(RecordV1{
		Issuer:   issuer,
		Receiver: receiver,
		Schedule: payment.NewSchedule(60, decimal.NewFromInt(1), decimal.NewFromInt(10)),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestInitializeOnce(t *testing.T) {
	s := newStoreForTest(t)
	done, err := s.Initialized()
	if err != nil || done {
		t.Fatalf("fresh store should be uninitialized: %v %v", done, err)
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	done, err = s.Initialized()
	if err != nil || !done {
		t.Fatalf("marker missing after initialize: %v %v", done, err)
	}
	if err := s.Initialize(); !errors.Is(err, payment.ErrInitialize) {
		t.Fatalf("want ErrInitialize on repeat, got %v", err)
	}
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	s := newStoreForTest(t)
	if id := mustCreate(t, s, "alice", "bob"); id != 1 {
		t.Fatalf("first id should be 1, got %d", id)
	}
	if id := mustCreate(t, s, "alice", "carol"); id != 2 {
		t.Fatalf("second id should be 2, got %d", id)
	}
}

func TestCreatePopulatesAllIndexes(t *testing.T) {
	s := newStoreForTest(t)
	id := mustCreate(t, s, "alice", "bob")

	if err := s.LookupAsIssuer("alice", id); err != nil {
		t.Fatalf("issuer lookup: %v", err)
	}
	if err := s.LookupAsReceiver("bob", id); err != nil {
		t.Fatalf("receiver lookup: %v", err)
	}
	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Issuer != "alice" || rec.Receiver != "bob" {
		t.Fatalf("record parties wrong: %+v", rec)
	}
}

func TestLookupDistinguishesMissingAccountFromMissingID(t *testing.T) {
	s := newStoreForTest(t)
	id := mustCreate(t, s, "alice", "bob")

	if err := s.LookupAsIssuer("mallory", id); !errors.Is(err, payment.ErrAccountIndexMissing) {
		t.Fatalf("want ErrAccountIndexMissing, got %v", err)
	}
	if err := s.LookupAsIssuer("alice", id+100); !errors.Is(err, payment.ErrStreamNotFound) {
		t.Fatalf("want ErrStreamNotFound, got %v", err)
	}
	// The issuer has no receiver entry for this stream.
	if err := s.LookupAsReceiver("alice", id); !errors.Is(err, payment.ErrAccountIndexMissing) {
		t.Fatalf("want ErrAccountIndexMissing for wrong role, got %v", err)
	}
}

func TestPutUpdatesRecord(t *testing.T) {
	s := newStoreForTest(t)
	id := mustCreate(t, s, "alice", "bob")

	rec, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	ts := uint64(99)
	rec.Schedule.InitiatedAt = &ts
	if err := s.Put(id, *rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("get after put: %v", err)
	}
	if got.Schedule.InitiatedAt == nil || *got.Schedule.InitiatedAt != 99 {
		t.Fatalf("update lost: %+v", got.Schedule)
	}

	if err := s.Put(id+100, *rec); !errors.Is(err, payment.ErrStreamNotFound) {
		t.Fatalf("want ErrStreamNotFound for absent id, got %v", err)
	}
}

func TestRemoveClearsAllIndexes(t *testing.T) {
	s := newStoreForTest(t)
	id := mustCreate(t, s, "alice", "bob")

	if err := s.Remove(id, "alice", "bob"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Get(id); !errors.Is(err, payment.ErrStreamNotFound) {
		t.Fatalf("record survived remove: %v", err)
	}
	ids, err := s.ListByIssuer("alice")
	if err != nil || len(ids) != 0 {
		t.Fatalf("issuer index survived remove: %v %v", ids, err)
	}
	ids, err = s.ListByReceiver("bob")
	if err != nil || len(ids) != 0 {
		t.Fatalf("receiver index survived remove: %v %v", ids, err)
	}
	// No double free.
	if err := s.Remove(id, "alice", "bob"); err == nil {
		t.Fatalf("second remove should fail")
	}
}

func TestRemoveWrongReceiverLeavesStateUntouched(t *testing.T) {
	s := newStoreForTest(t)
	id := mustCreate(t, s, "alice", "bob")

	err := s.Remove(id, "alice", "alice")
	if !errors.Is(err, payment.ErrAccountIndexMissing) {
		t.Fatalf("want ErrAccountIndexMissing, got %v", err)
	}
	// Nothing was deleted.
	if err := s.LookupAsIssuer("alice", id); err != nil {
		t.Fatalf("issuer entry lost on failed remove: %v", err)
	}
	if err := s.LookupAsReceiver("bob", id); err != nil {
		t.Fatalf("receiver entry lost on failed remove: %v", err)
	}
	if _, err := s.Get(id); err != nil {
		t.Fatalf("record lost on failed remove: %v", err)
	}
}

func TestListByRole(t *testing.T) {
	s := newStoreForTest(t)
	a := mustCreate(t, s, "alice", "bob")
	b := mustCreate(t, s, "alice", "carol")
	c := mustCreate(t, s, "dan", "bob")

	ids, err := s.ListByIssuer("alice")
	if err != nil {
		t.Fatalf("list issuer: %v", err)
	}
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Fatalf("issuer list wrong: %v", ids)
	}
	ids, err = s.ListByReceiver("bob")
	if err != nil {
		t.Fatalf("list receiver: %v", err)
	}
	if len(ids) != 2 || ids[0] != a || ids[1] != c {
		t.Fatalf("receiver list wrong: %v", ids)
	}
}

func TestCounterSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	s := New(db)
	id1 := mustCreate(t, s, "alice", "bob")
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer db.Close()
	s = New(db)
	id2 := mustCreate(t, s, "alice", "bob")
	if id2 != id1+1 {
		t.Fatalf("counter did not persist: %d then %d", id1, id2)
	}
}
