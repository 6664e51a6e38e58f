// Package store implements the per-tenant storage environment described in
// spec.md §3/§4.1: a meta record, an events table keyed by a monotonic
// internal sequence number levId, five secondary indices, and a negentropy
// B-tree membership index. It is built on the teacher's Pebble wrapper
// (internal/storage/pebble), one instance per tenant directory.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/nostrhub/nostrhub/internal/storage/pebble"
)

// SchemaVersion is written into the meta record on first open.
const SchemaVersion = 1

// Meta is the per-tenant schema-meta record (spec.md §3/§6: "Schema-version
// meta record must be present after first open").
type Meta struct {
	SchemaVersion int    `json:"schemaVersion"`
	TenantID      string `json:"tenantId"`
}

// Env is one tenant's storage environment: a Pebble instance plus the
// monotonic levId sequence generator guarding atomic batch commits.
type Env struct {
	TenantID string
	dataDir  string

	db *pebblestore.DB

	mu        sync.Mutex
	lastLevID uint64
}

// Open opens (or creates) the storage environment at dataDir for tenantID,
// writing the meta record if absent, per spec.md §4.1(e)/§6. The negentropy
// index needs no initialization: it is the (initially empty) neg/ key range.
func Open(tenantID, dataDir string, opts pebblestore.Options) (*Env, error) {
	opts.DataDir = dataDir
	opts.TenantID = tenantID
	db, err := pebblestore.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open tenant env %q: %w", tenantID, err)
	}

	e := &Env{TenantID: tenantID, dataDir: dataDir, db: db}

	existing, err := db.Get(KeyMeta())
	if err != nil && !isNotFound(err) {
		db.Close()
		return nil, fmt.Errorf("read meta for tenant %q: %w", tenantID, err)
	}
	if isNotFound(err) {
		meta := Meta{SchemaVersion: SchemaVersion, TenantID: tenantID}
		b, err := json.Marshal(meta)
		if err != nil {
			db.Close()
			return nil, err
		}
		if err := db.Set(KeyMeta(), b); err != nil {
			db.Close()
			return nil, fmt.Errorf("init meta for tenant %q: %w", tenantID, err)
		}
	} else {
		_ = existing
	}

	lastLevID, err := e.scanMaxLevID()
	if err != nil {
		db.Close()
		return nil, err
	}
	e.lastLevID = lastLevID

	return e, nil
}

func isNotFound(err error) bool {
	return err == pebble.ErrNotFound
}

// scanMaxLevID finds the highest already-assigned levId by seeking to the
// end of the primary events table. Called once on open.
func (e *Env) scanMaxLevID() (uint64, error) {
	iter, err := e.db.NewIter(&pebble.IterOptions{
		LowerBound: KeyEventPrefix(),
		UpperBound: prefixUpperBound(KeyEventPrefix()),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, nil
	}
	key := iter.Key()
	if len(key) < 8 {
		return 0, fmt.Errorf("corrupt event key %q", key)
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), nil
}

// prefixUpperBound returns the smallest byte string that sorts after every
// key beginning with prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

// Close closes the underlying database.
func (e *Env) Close() error { return e.db.Close() }

// NextLevID allocates and returns the next monotonic sequence number outside
// of an Insert call. Exposed for callers (tests, migrations) that need a
// reserved levId without going through the dedup-checked Insert path.
func (e *Env) NextLevID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastLevID++
	return e.lastLevID
}

// MaxLevID returns the highest levId currently committed, used by Req
// Monitor/Req Worker to seed latestEventId (spec.md §4.5/§4.6).
func (e *Env) MaxLevID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastLevID
}

// DB exposes the underlying Pebble wrapper for batch construction by the
// Writer and for raw iteration by Req Worker/Req Monitor.
func (e *Env) DB() *pebblestore.DB { return e.db }

// DataPath returns the path fsnotify should watch for tenant-local commit
// activity; Pebble's WAL/manifest live under this directory.
func (e *Env) DataPath() string {
	return e.dataDir
}
