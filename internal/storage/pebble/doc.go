// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// snapshots, batches, and minimal metrics hooks. The registry (internal/relay/tenant)
// opens one DB per tenant; every MetricsHook observation carries that tenant's
// id so a process-wide metrics sink can attribute storage cost per tenant.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    TenantID: "acme",
//	    DataDir:  "./data/tenants/acme",
//	    Fsync:    pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Atomic updates with batches
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
//
//	// Point ops
//	_ = db.Set([]byte("k2"), []byte("v2"))
//	v, _ := db.Get([]byte("k2"))
package pebblestore
