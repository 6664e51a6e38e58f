package store

import (
	"context"
	"fmt"
	"math"

	"github.com/cockroachdb/pebble"

	"github.com/nostrhub/nostrhub/internal/relay/nostr"
)

// ErrDuplicate is returned by Insert when the event id already exists.
var ErrDuplicate = fmt.Errorf("event already exists")

// LookupByID returns the packed event for id, or (nil, false) if absent.
// Used by the Ingester's pre-write dedup check and the Writer's re-check
// inside the same transaction (spec.md §4.2, §4.4).
func (e *Env) LookupByID(id [32]byte) (*nostr.PackedEvent, bool, error) {
	return e.lookupByIDLocked(id)
}

// lookupByIDLocked is LookupByID's body, callable from under e.mu so Insert
// can re-check and allocate a levId as one atomic step.
func (e *Env) lookupByIDLocked(id [32]byte) (*nostr.PackedEvent, bool, error) {
	levBytes, err := e.db.Get(KeyIndexID(id))
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	levID := decodeBE8(levBytes)
	p, err := e.getByLevID(levID)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (e *Env) getByLevID(levID uint64) (*nostr.PackedEvent, error) {
	raw, err := e.db.Get(KeyEvent(levID))
	if err != nil {
		return nil, err
	}
	return decodePacked(raw)
}

// Insert assigns a new levId to p and writes the primary record plus every
// secondary index in one atomic batch. The dedup re-check and the levId
// allocation happen under the same lock so two Writer goroutines racing on
// the same tenant (affinity hashing pins by connId, not tenantId, so this
// is possible) can never both insert the same id — this is the "re-check"
// spec.md §4.4 calls out as preventing a concurrent double-insert.
func (e *Env) Insert(ctx context.Context, p *nostr.PackedEvent) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, found, err := e.lookupByIDLocked(p.ID); err != nil {
		return 0, err
	} else if found {
		return 0, ErrDuplicate
	}

	e.lastLevID++
	levID := e.lastLevID
	batch := e.db.NewBatch()
	defer batch.Close()

	encoded := encodePacked(p)
	if err := batch.Set(KeyEvent(levID), encoded, nil); err != nil {
		return 0, err
	}
	if err := batch.Set(KeyIndexID(p.ID), encodeLevID(levID), nil); err != nil {
		return 0, err
	}
	if err := batch.Set(KeyIndexPubkeyCreated(p.Pubkey, p.CreatedAt, levID), nil, nil); err != nil {
		return 0, err
	}
	if err := batch.Set(KeyIndexKindCreated(p.Kind, p.CreatedAt, levID), nil, nil); err != nil {
		return 0, err
	}
	if err := batch.Set(KeyIndexCreated(p.CreatedAt, levID), nil, nil); err != nil {
		return 0, err
	}
	p.WalkTags(func(letter, value string) bool {
		_ = batch.Set(KeyIndexTag(letter, value, p.CreatedAt, levID), nil, nil)
		return true
	})
	if err := batch.Set(KeyNegentropyMember(p.ID), nil, nil); err != nil {
		return 0, err
	}

	if err := e.db.CommitBatch(ctx, batch); err != nil {
		return 0, err
	}
	return levID, nil
}

func encodeLevID(levID uint64) []byte {
	return appendBE8(nil, levID)
}

// IterEventsFrom iterates primary records with levId > after, in ascending
// levId order, calling fn for each. Stops early if fn returns false. Used
// by Req Monitor to close the backfill-to-tail gap and to tail new commits
// (spec.md §4.6).
func (e *Env) IterEventsFrom(after uint64, fn func(levID uint64, p *nostr.PackedEvent) bool) error {
	iter, err := e.db.NewIter(&pebble.IterOptions{
		LowerBound: KeyEvent(after + 1),
		UpperBound: prefixUpperBound(KeyEventPrefix()),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for valid := iter.First(); valid; valid = iter.Next() {
		key := iter.Key()
		levID := decodeBE8(key[len(key)-8:])
		p, err := decodePacked(iter.Value())
		if err != nil {
			return err
		}
		if !fn(levID, p) {
			break
		}
	}
	return iter.Error()
}

func decodeBE8(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// boundsForRange returns the lower/upper key bounds for an index scan
// restricted to [since, until] created_at, given the index's fixed-prefix
// key-builder. Because index keys store a descending encoding of created_at
// (descSortable), the *upper* timestamp produces the *lower* key bound and
// vice versa.
func boundsForRange(build func(createdAt int64, levID uint64) []byte, since, until *int64) (lower, upper []byte) {
	hi := int64(math.MaxInt64)
	if until != nil {
		hi = *until
	}
	lo := int64(math.MinInt64)
	if since != nil {
		lo = *since
	}
	lower = build(hi, 0)
	upper = build(lo, math.MaxUint64)
	upper = append(upper, 0x00) // exclusive upper bound is inclusive-of-levId max, bump one byte
	return lower, upper
}

// scanIndex walks a secondary index between the given bounds in ascending
// key order (i.e. descending created_at, per spec.md §4.5), resolving and
// passing the primary record for each entry to fn until it returns false or
// limit records have been yielded.
func (e *Env) scanIndex(lower, upper []byte, limit int, fn func(levID uint64, p *nostr.PackedEvent) bool) error {
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	yielded := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		if limit > 0 && yielded >= limit {
			break
		}
		key := iter.Key()
		levID := decodeBE8(key[len(key)-8:])
		p, err := e.getByLevID(levID)
		if err != nil {
			if isNotFound(err) {
				continue // index entry outlived its primary record (shouldn't happen, but don't crash a scan over it)
			}
			return err
		}
		yielded++
		if !fn(levID, p) {
			break
		}
	}
	return iter.Error()
}

// IterByPubkeyCreated scans one author's events within [since, until],
// descending by created_at, for the Query Scheduler's author access path
// (spec.md §4.5).
func (e *Env) IterByPubkeyCreated(pubkey [32]byte, since, until *int64, limit int, fn func(levID uint64, p *nostr.PackedEvent) bool) error {
	lower, upper := boundsForRange(func(createdAt int64, levID uint64) []byte {
		return KeyIndexPubkeyCreated(pubkey, createdAt, levID)
	}, since, until)
	return e.scanIndex(lower, upper, limit, fn)
}

// IterByKindCreated scans one kind's events within [since, until],
// descending by created_at, for the Query Scheduler's kind access path.
func (e *Env) IterByKindCreated(kind uint32, since, until *int64, limit int, fn func(levID uint64, p *nostr.PackedEvent) bool) error {
	lower, upper := boundsForRange(func(createdAt int64, levID uint64) []byte {
		return KeyIndexKindCreated(kind, createdAt, levID)
	}, since, until)
	return e.scanIndex(lower, upper, limit, fn)
}

// IterByCreated scans the full created_at index within [since, until],
// descending, for the Query Scheduler's fallback access path when no
// author/kind/tag filter narrows the scan.
func (e *Env) IterByCreated(since, until *int64, limit int, fn func(levID uint64, p *nostr.PackedEvent) bool) error {
	lower, upper := boundsForRange(KeyIndexCreated, since, until)
	return e.scanIndex(lower, upper, limit, fn)
}

// IterByTag scans the (letter, value) tag index within [since, until],
// descending, for the Query Scheduler's highest-priority access path.
func (e *Env) IterByTag(letter, value string, since, until *int64, limit int, fn func(levID uint64, p *nostr.PackedEvent) bool) error {
	lower, upper := boundsForRange(func(createdAt int64, levID uint64) []byte {
		return KeyIndexTag(letter, value, createdAt, levID)
	}, since, until)
	return e.scanIndex(lower, upper, limit, fn)
}

// NegentropyIDs returns every event id currently in the negentropy member
// set, in id order, for the negentropy session handler's initiate/query
// range-fingerprint computation (spec.md §1/§4.7).
func (e *Env) NegentropyIDs(fn func(id [32]byte) bool) error {
	iter, err := e.db.NewIter(&pebble.IterOptions{
		LowerBound: KeyNegentropyPrefix(),
		UpperBound: prefixUpperBound(KeyNegentropyPrefix()),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for valid := iter.First(); valid; valid = iter.Next() {
		key := iter.Key()
		var id [32]byte
		copy(id[:], key[len(key)-32:])
		if !fn(id) {
			break
		}
	}
	return iter.Error()
}

// HasNegentropyMember reports whether id is in the negentropy member set,
// used by the reconciliation session to answer "have" queries without a
// full primary-record fetch.
func (e *Env) HasNegentropyMember(id [32]byte) (bool, error) {
	_, err := e.db.Get(KeyNegentropyMember(id))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
