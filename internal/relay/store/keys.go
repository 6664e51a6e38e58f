package store

import "encoding/binary"

// Keyspace layout (byte-wise, lexicographically sortable), one Pebble
// instance per tenant directory (the tenant boundary is the directory
// itself, not a key prefix — see tenant.Registry):
//
//   meta                                    -> schema-version JSON record
//   ev/{levId_be8}                          -> primary record (packed event bytes)
//   idx/id/{id_32}                          -> levId_be8 (uniqueness index)
//   idx/pa/{pubkey_32}/{created_be8}/{levId_be8} -> "" (pubkey+created_at index)
//   idx/ki/{kind_be4}/{created_be8}/{levId_be8}  -> "" (kind+created_at index)
//   idx/ca/{created_be8}/{levId_be8}             -> "" (created_at index)
//   idx/tg/{letter}/{value}/{created_be8}/{levId_be8} -> "" (per-tag-letter index)
//   neg/{id_32}                              -> "" (negentropy B-tree member set)
//
// All index entries carry no value payload; the key itself encodes what a
// scan needs (levId to fetch the primary record), mirroring the teacher's
// sortable-key style in internal/eventlog/keys.go.
var (
	metaKey   = []byte("meta")
	evPrefix  = []byte("ev/")
	idxIDPre  = []byte("idx/id/")
	idxPAPre  = []byte("idx/pa/")
	idxKIPre  = []byte("idx/ki/")
	idxCAPre  = []byte("idx/ca/")
	idxTGPre  = []byte("idx/tg/")
	negPrefix = []byte("neg/")
	sep       = byte('/')
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyMeta returns the schema-meta record key.
func KeyMeta() []byte { return metaKey }

// KeyEvent returns the primary record key for levId.
func KeyEvent(levID uint64) []byte {
	k := make([]byte, 0, len(evPrefix)+8)
	k = append(k, evPrefix...)
	return appendBE8(k, levID)
}

// KeyEventPrefix is the prefix over every primary record, used to scan in
// levId order.
func KeyEventPrefix() []byte { return evPrefix }

// KeyIndexID returns the id-uniqueness index key for a 32-byte event id.
func KeyIndexID(id [32]byte) []byte {
	k := make([]byte, 0, len(idxIDPre)+32)
	k = append(k, idxIDPre...)
	return append(k, id[:]...)
}

// KeyIndexPubkeyCreated returns the pubkey+created_at index key.
func KeyIndexPubkeyCreated(pubkey [32]byte, createdAt int64, levID uint64) []byte {
	k := make([]byte, 0, len(idxPAPre)+32+16)
	k = append(k, idxPAPre...)
	k = append(k, pubkey[:]...)
	k = append(k, sep)
	k = appendBE8(k, descSortable(createdAt))
	k = append(k, sep)
	return appendBE8(k, levID)
}

// KeyIndexPubkeyPrefix returns the prefix to scan one author's events.
func KeyIndexPubkeyPrefix(pubkey [32]byte) []byte {
	k := make([]byte, 0, len(idxPAPre)+33)
	k = append(k, idxPAPre...)
	k = append(k, pubkey[:]...)
	return append(k, sep)
}

// KeyIndexKindCreated returns the kind+created_at index key.
func KeyIndexKindCreated(kind uint32, createdAt int64, levID uint64) []byte {
	k := make([]byte, 0, len(idxKIPre)+20)
	k = append(k, idxKIPre...)
	k = appendBE4(k, kind)
	k = append(k, sep)
	k = appendBE8(k, descSortable(createdAt))
	k = append(k, sep)
	return appendBE8(k, levID)
}

// KeyIndexKindPrefix returns the prefix to scan one kind's events.
func KeyIndexKindPrefix(kind uint32) []byte {
	k := make([]byte, 0, len(idxKIPre)+5)
	k = append(k, idxKIPre...)
	k = appendBE4(k, kind)
	return append(k, sep)
}

// KeyIndexCreated returns the created_at index key.
func KeyIndexCreated(createdAt int64, levID uint64) []byte {
	k := make([]byte, 0, len(idxCAPre)+16)
	k = append(k, idxCAPre...)
	k = appendBE8(k, descSortable(createdAt))
	k = append(k, sep)
	return appendBE8(k, levID)
}

// KeyIndexCreatedPrefix returns the prefix over the entire created_at index.
func KeyIndexCreatedPrefix() []byte { return idxCAPre }

// KeyIndexTag returns the per-tag-letter index key.
func KeyIndexTag(letter, value string, createdAt int64, levID uint64) []byte {
	k := make([]byte, 0, len(idxTGPre)+len(letter)+len(value)+18)
	k = append(k, idxTGPre...)
	k = append(k, letter...)
	k = append(k, sep)
	k = append(k, value...)
	k = append(k, sep)
	k = appendBE8(k, descSortable(createdAt))
	k = append(k, sep)
	return appendBE8(k, levID)
}

// KeyIndexTagPrefix returns the prefix to scan one (letter, value) pair.
func KeyIndexTagPrefix(letter, value string) []byte {
	k := make([]byte, 0, len(idxTGPre)+len(letter)+len(value)+2)
	k = append(k, idxTGPre...)
	k = append(k, letter...)
	k = append(k, sep)
	k = append(k, value...)
	return append(k, sep)
}

// KeyNegentropyMember returns the negentropy B-tree membership key for id.
func KeyNegentropyMember(id [32]byte) []byte {
	k := make([]byte, 0, len(negPrefix)+32)
	k = append(k, negPrefix...)
	return append(k, id[:]...)
}

// KeyNegentropyPrefix is the prefix over the entire negentropy member set.
func KeyNegentropyPrefix() []byte { return negPrefix }

// descSortable maps a created_at timestamp so that iterating the index's
// byte-sortable keys in ascending key order visits descending created_at,
// matching spec.md §4.5 ("iterates in descending created_at"). The sign bit
// is flipped before the complement so the order also holds across negative
// and positive timestamps (math.MaxInt64 maps to 0, math.MinInt64 to the
// all-ones key).
func descSortable(createdAt int64) uint64 {
	return ^(uint64(createdAt) ^ (1 << 63))
}
