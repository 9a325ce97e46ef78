package ledger

import "encoding/binary"

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - pay/issuer/{account}/{id_be8}
// - pay/receiver/{account}/{id_be8}
// - pay/stream/{id_be8}
// - pay/sys/counter
// - pay/sys/init

var (
	sep            = byte('/')
	issuerPrefix   = []byte("pay/issuer/")
	receiverPrefix = []byte("pay/receiver/")
	streamPrefix   = []byte("pay/stream/")
	sysCounterKey  = []byte("pay/sys/counter")
	sysInitKey     = []byte("pay/sys/init")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyIssuerEntry builds the issuer-index entry key for one stream.
func keyIssuerEntry(account string, id uint64) []byte {
	k := make([]byte, 0, len(issuerPrefix)+len(account)+9)
	k = append(k, issuerPrefix...)
	k = append(k, account...)
	k = append(k, sep)
	return appendBE8(k, id)
}

// keyIssuerScope is the prefix covering all of an account's issuer entries.
func keyIssuerScope(account string) []byte {
	k := make([]byte, 0, len(issuerPrefix)+len(account)+1)
	k = append(k, issuerPrefix...)
	k = append(k, account...)
	return append(k, sep)
}

// keyReceiverEntry builds the receiver-index entry key for one stream.
func keyReceiverEntry(account string, id uint64) []byte {
	k := make([]byte, 0, len(receiverPrefix)+len(account)+9)
	k = append(k, receiverPrefix...)
	k = append(k, account...)
	k = append(k, sep)
	return appendBE8(k, id)
}

// keyReceiverScope is the prefix covering all of an account's receiver entries.
func keyReceiverScope(account string) []byte {
	k := make([]byte, 0, len(receiverPrefix)+len(account)+1)
	k = append(k, receiverPrefix...)
	k = append(k, account...)
	return append(k, sep)
}

// keyStream builds the record key with a big-endian id for ordered scans.
func keyStream(id uint64) []byte {
	k := make([]byte, 0, len(streamPrefix)+8)
	k = append(k, streamPrefix...)
	return appendBE8(k, id)
}

// idFromEntryKey recovers the stream id from the trailing 8 bytes of an index
// entry key.
func idFromEntryKey(key []byte) (uint64, bool) {
	if len(key) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), true
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, for iterator upper bounds.
func prefixUpperBound(prefix []byte) []byte {
	ub := append([]byte(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil
}
