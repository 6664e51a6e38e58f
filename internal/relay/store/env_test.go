package store

import (
	"context"
	"encoding/json"
	"testing"

	pebblestore "github.com/nostrhub/nostrhub/internal/storage/pebble"

	"github.com/nostrhub/nostrhub/internal/relay/nostr"
)

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	dir := t.TempDir()
	e, err := Open("acme", dir, pebblestore.Options{Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open env: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func packedFixture(id byte, pubkey byte, createdAt int64, kind uint32, tags ...nostr.Tag) *nostr.PackedEvent {
	ev := &nostr.Event{
		Pubkey:    padHex(pubkey),
		CreatedAt: createdAt,
		Kind:      int(kind),
		Tags:      tags,
		Content:   "x",
	}
	var idb [32]byte
	idb[0] = id
	ev.ID = hexOf(idb)

	evJSON, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	p, err := nostr.Pack(ev, evJSON)
	if err != nil {
		panic(err)
	}
	return p
}

func padHex(b byte) string {
	buf := make([]byte, 32)
	buf[0] = b
	return hexOf32(buf)
}

func hexOf(b [32]byte) string { return hexOf32(b[:]) }

func hexOf32(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

func TestInsertAndLookupByID(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	p := packedFixture(1, 2, 1000, 1, nostr.Tag{"e", "deadbeef"})
	levID, err := e.Insert(ctx, p)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if levID == 0 {
		t.Fatalf("expected nonzero levId")
	}

	got, found, err := e.LookupByID(p.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found {
		t.Fatalf("expected to find inserted event")
	}
	if got.CreatedAt != p.CreatedAt || got.Kind != p.Kind {
		t.Fatalf("round-tripped event mismatch: %+v vs %+v", got, p)
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	p := packedFixture(3, 4, 1000, 1)
	if _, err := e.Insert(ctx, p); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := e.Insert(ctx, p); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestIterEventsFromExcludesAlreadySeen(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first, err := e.Insert(ctx, packedFixture(5, 6, 1000, 1))
	if err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if _, err := e.Insert(ctx, packedFixture(7, 8, 1001, 1)); err != nil {
		t.Fatalf("insert 2: %v", err)
	}

	var seen []uint64
	if err := e.IterEventsFrom(first, func(levID uint64, _ *nostr.PackedEvent) bool {
		seen = append(seen, levID)
		return true
	}); err != nil {
		t.Fatalf("iter: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected exactly the event after %d, got %v", first, seen)
	}
}

func TestIterByCreatedDescendingOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	timestamps := []int64{100, 300, 200}
	for i, ts := range timestamps {
		if _, err := e.Insert(ctx, packedFixture(byte(10+i), 1, ts, 1)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	var got []int64
	if err := e.IterByCreated(nil, nil, 0, func(_ uint64, p *nostr.PackedEvent) bool {
		got = append(got, p.CreatedAt)
		return true
	}); err != nil {
		t.Fatalf("iter: %v", err)
	}
	want := []int64{300, 200, 100}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestIterByCreatedRespectsSinceUntil(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for i, ts := range []int64{100, 200, 300, 400} {
		if _, err := e.Insert(ctx, packedFixture(byte(20+i), 1, ts, 1)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	since, until := int64(150), int64(350)
	var got []int64
	if err := e.IterByCreated(&since, &until, 0, func(_ uint64, p *nostr.PackedEvent) bool {
		got = append(got, p.CreatedAt)
		return true
	}); err != nil {
		t.Fatalf("iter: %v", err)
	}
	want := []int64{300, 200}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestIterByCreatedRespectsLimit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for i, ts := range []int64{100, 200, 300} {
		if _, err := e.Insert(ctx, packedFixture(byte(30+i), 1, ts, 1)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	var got []int64
	if err := e.IterByCreated(nil, nil, 2, func(_ uint64, p *nostr.PackedEvent) bool {
		got = append(got, p.CreatedAt)
		return true
	}); err != nil {
		t.Fatalf("iter: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit to cap at 2 results, got %v", got)
	}
}

func TestIterByPubkeyCreatedOnlyMatchesAuthor(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := packedFixture(40, 1, 100, 1)
	b := packedFixture(41, 2, 200, 1)
	if _, err := e.Insert(ctx, a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if _, err := e.Insert(ctx, b); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	var got []nostr.PackedEvent
	if err := e.IterByPubkeyCreated(a.Pubkey, nil, nil, 0, func(_ uint64, p *nostr.PackedEvent) bool {
		got = append(got, *p)
		return true
	}); err != nil {
		t.Fatalf("iter: %v", err)
	}
	if len(got) != 1 || got[0].Pubkey != a.Pubkey {
		t.Fatalf("expected only a's event, got %v", got)
	}
}

func TestIterByTagMatchesOnlyTaggedEvents(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	tagged := packedFixture(50, 1, 100, 1, nostr.Tag{"e", "target"})
	untagged := packedFixture(51, 1, 200, 1)
	if _, err := e.Insert(ctx, tagged); err != nil {
		t.Fatalf("insert tagged: %v", err)
	}
	if _, err := e.Insert(ctx, untagged); err != nil {
		t.Fatalf("insert untagged: %v", err)
	}

	var got int
	if err := e.IterByTag("e", "target", nil, nil, 0, func(_ uint64, p *nostr.PackedEvent) bool {
		got++
		return true
	}); err != nil {
		t.Fatalf("iter: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected exactly one tag match, got %d", got)
	}
}

func TestNegentropyMembershipTracksInserts(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	p := packedFixture(60, 1, 100, 1)

	has, err := e.HasNegentropyMember(p.ID)
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if has {
		t.Fatalf("expected no membership before insert")
	}

	if _, err := e.Insert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	has, err = e.HasNegentropyMember(p.ID)
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if !has {
		t.Fatalf("expected membership after insert")
	}

	var ids [][32]byte
	if err := e.NegentropyIDs(func(id [32]byte) bool {
		ids = append(ids, id)
		return true
	}); err != nil {
		t.Fatalf("iterate ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != p.ID {
		t.Fatalf("expected single negentropy member matching inserted id, got %v", ids)
	}
}

func TestReopenRestoresMaxLevID(t *testing.T) {
	dir := t.TempDir()
	e, err := Open("acme", dir, pebblestore.Options{Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	levID, err := e.Insert(ctx, packedFixture(70, 1, 100, 1))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	e2, err := Open("acme", dir, pebblestore.Options{Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = e2.Close() })
	if e2.MaxLevID() != levID {
		t.Fatalf("expected restored MaxLevID %d, got %d", levID, e2.MaxLevID())
	}
	next := e2.NextLevID()
	if next <= levID {
		t.Fatalf("expected next levId to continue past reopen, got %d after %d", next, levID)
	}
}
