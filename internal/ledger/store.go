package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/paystream/internal/payment"
	pebblestore "github.com/rzbill/paystream/internal/storage/pebble"
)

// firstStreamID is where the id counter starts; ids are assigned sequentially
// from there and never reused.
const firstStreamID = 1

// InitMeta records when the ledger was initialized.
type InitMeta struct {
	InitializedAtMs int64 `json:"initialized_at_ms"`
}

// Store maintains the three stream indexes over a Pebble database. All
// multi-key mutations are two-phase: every precondition is checked against the
// live state first, then all key changes commit in one batch.
type Store struct {
	db *pebblestore.DB
}

// New returns a Store over the given database.
func New(db *pebblestore.DB) *Store { return &Store{db: db} }

// Initialized reports whether the one-time initialization marker is present.
func (s *Store) Initialized() (bool, error) {
	return s.db.Has(sysInitKey)
}

// Initialize writes the one-time marker and seeds the id counter. A second
// call fails; the counter is never reset once present.
func (s *Store) Initialize() error {
	done, err := s.Initialized()
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("ledger already initialized: %w", payment.ErrInitialize)
	}
	meta, err := json.Marshal(InitMeta{InitializedAtMs: time.Now().UnixMilli()})
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(sysInitKey, meta, nil); err != nil {
		return err
	}
	hasCounter, err := s.db.Has(sysCounterKey)
	if err != nil {
		return err
	}
	if !hasCounter {
		if err := b.Set(sysCounterKey, beUint64(firstStreamID), nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(b)
}

// Create assigns the next stream id and inserts the record into all three
// indexes atomically. The counter bump commits in the same batch, so a failed
// create burns nothing.
func (s *Store) Create(rec RecordV1) (uint64, error) {
	id, err := s.nextID()
	if err != nil {
		return 0, err
	}

	// Precondition: the id must be unseen in every index. The counter is
	// monotonic, so a hit means counter corruption.
	for _, key := range [][]byte{
		keyStream(id),
		keyIssuerEntry(rec.Issuer, id),
		keyReceiverEntry(rec.Receiver, id),
	} {
		exists, err := s.db.Has(key)
		if err != nil {
			return 0, err
		}
		if exists {
			return 0, fmt.Errorf("stream %d: %w", id, payment.ErrDuplicateStream)
		}
	}

	encoded, err := encodeRecord(NewRecord(rec))
	if err != nil {
		return 0, err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(sysCounterKey, beUint64(id+1), nil); err != nil {
		return 0, err
	}
	if err := b.Set(keyIssuerEntry(rec.Issuer, id), nil, nil); err != nil {
		return 0, err
	}
	if err := b.Set(keyReceiverEntry(rec.Receiver, id), nil, nil); err != nil {
		return 0, err
	}
	if err := b.Set(keyStream(id), encoded, nil); err != nil {
		return 0, err
	}
	if err := s.db.CommitBatch(b); err != nil {
		return 0, err
	}
	return id, nil
}

// Get loads the record for a stream id at the current schema version.
func (s *Store) Get(id uint64) (*RecordV1, error) {
	raw, err := s.db.Get(keyStream(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, fmt.Errorf("stream %d: %w", id, payment.ErrStreamNotFound)
		}
		return nil, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return rec.Current()
}

// Put overwrites the record for an existing stream id.
func (s *Store) Put(id uint64, rec RecordV1) error {
	exists, err := s.db.Has(keyStream(id))
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("stream %d: %w", id, payment.ErrStreamNotFound)
	}
	encoded, err := encodeRecord(NewRecord(rec))
	if err != nil {
		return err
	}
	return s.db.Set(keyStream(id), encoded)
}

// LookupAsIssuer verifies the account issued the given stream. An account with
// no issuer entries at all reports ErrAccountIndexMissing; an account that has
// entries but not this id reports ErrStreamNotFound.
func (s *Store) LookupAsIssuer(account string, id uint64) error {
	return s.lookup(account, id, payment.RoleIssuer)
}

// LookupAsReceiver verifies the account is the receiver of the given stream.
func (s *Store) LookupAsReceiver(account string, id uint64) error {
	return s.lookup(account, id, payment.RoleReceiver)
}

func (s *Store) lookup(account string, id uint64, role payment.Role) error {
	scope, entry := keyIssuerScope(account), keyIssuerEntry(account, id)
	if role == payment.RoleReceiver {
		scope, entry = keyReceiverScope(account), keyReceiverEntry(account, id)
	}
	any, err := s.hasPrefix(scope)
	if err != nil {
		return err
	}
	if !any {
		return fmt.Errorf("account %s has no %s entries: %w", account, role, payment.ErrAccountIndexMissing)
	}
	has, err := s.db.Has(entry)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("stream %d: %w", id, payment.ErrStreamNotFound)
	}
	return nil
}

// Remove deletes the stream from all three indexes. Every expected entry is
// verified first; a missing one surfaces as an error with nothing deleted,
// rather than a silent partial removal.
func (s *Store) Remove(id uint64, issuer, receiver string) error {
	if err := s.lookup(issuer, id, payment.RoleIssuer); err != nil {
		return err
	}
	exists, err := s.db.Has(keyStream(id))
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("stream %d: %w", id, payment.ErrStreamNotFound)
	}
	if err := s.lookup(receiver, id, payment.RoleReceiver); err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(keyIssuerEntry(issuer, id), nil); err != nil {
		return err
	}
	if err := b.Delete(keyStream(id), nil); err != nil {
		return err
	}
	if err := b.Delete(keyReceiverEntry(receiver, id), nil); err != nil {
		return err
	}
	return s.db.CommitBatch(b)
}

// ListByIssuer returns the ids of all streams the account issued, ascending.
func (s *Store) ListByIssuer(account string) ([]uint64, error) {
	return s.listScope(keyIssuerScope(account))
}

// ListByReceiver returns the ids of all streams addressed to the account,
// ascending.
func (s *Store) ListByReceiver(account string) ([]uint64, error) {
	return s.listScope(keyReceiverScope(account))
}

func (s *Store) listScope(scope []byte) ([]uint64, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: scope,
		UpperBound: prefixUpperBound(scope),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var ids []uint64
	for it.First(); it.Valid(); it.Next() {
		if id, ok := idFromEntryKey(it.Key()); ok {
			ids = append(ids, id)
		}
	}
	return ids, it.Error()
}

func (s *Store) hasPrefix(scope []byte) (bool, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: scope,
		UpperBound: prefixUpperBound(scope),
	})
	if err != nil {
		return false, err
	}
	defer it.Close()
	return it.First(), it.Error()
}

func (s *Store) nextID() (uint64, error) {
	raw, err := s.db.Get(sysCounterKey)
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return firstStreamID, nil
		}
		return 0, err
	}
	if len(raw) != 8 {
		return 0, errors.New("ledger: corrupt stream id counter")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func beUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
