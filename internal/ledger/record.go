package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/rzbill/paystream/internal/payment"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)
// The header is a single schema-version byte; the payload is the JSON encoding
// of that version's struct.

const recordVersionV1 = 1

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ErrCorruptRecord reports a stored record that fails framing or checksum
// validation.
var ErrCorruptRecord = errors.New("ledger: corrupt stream record")

// RecordV1 is the version-1 stream record schema: the two party accounts plus
// the vesting schedule.
type RecordV1 struct {
	Issuer   string           `json:"issuer"`
	Receiver string           `json:"receiver"`
	Schedule payment.Schedule `json:"schedule"`
}

// Record is the versioned envelope persisted for one stream. Future schema
// versions add fields alongside V1; Current fails loudly when a record was
// written by a schema this binary does not know how to read.
type Record struct {
	Version uint8
	V1      *RecordV1
}

// NewRecord wraps a V1 record in the envelope.
func NewRecord(v1 RecordV1) Record {
	return Record{Version: recordVersionV1, V1: &v1}
}

// Current returns the record at the current schema version.
func (r *Record) Current() (*RecordV1, error) {
	if r.Version == recordVersionV1 && r.V1 != nil {
		return r.V1, nil
	}
	return nil, fmt.Errorf("ledger: record version %d has no migration path", r.Version)
}

func encodeRecord(r Record) ([]byte, error) {
	cur, err := r.Current()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(cur)
	if err != nil {
		return nil, err
	}
	header := []byte{r.Version}

	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out, nil
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < 1+4 {
		return Record{}, ErrCorruptRecord
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || int(hlen) == 0 || n+int(hlen)+4 > len(b) {
		return Record{}, ErrCorruptRecord
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return Record{}, ErrCorruptRecord
	}

	version := header[0]
	if version != recordVersionV1 {
		// Unknown version: keep the tag so Current can report it.
		return Record{Version: version}, nil
	}
	var v1 RecordV1
	if err := json.Unmarshal(payload, &v1); err != nil {
		return Record{}, ErrCorruptRecord
	}
	return Record{Version: version, V1: &v1}, nil
}
