package filter

import (
	"encoding/json"
	"testing"

	"github.com/nostrhub/nostrhub/internal/relay/nostr"
)

func packedFor(t *testing.T, id, pubkey string, kind int, createdAt int64, tags []nostr.Tag) *nostr.PackedEvent {
	t.Helper()
	e := &nostr.Event{
		ID:        id,
		Pubkey:    pubkey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
	}
	p, err := nostr.Pack(e, []byte(`{}`))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return p
}

const id32 = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const pk32 = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

func TestFilterMatchKindAndTag(t *testing.T) {
	p := packedFor(t, id32, pk32, 1, 1000, []nostr.Tag{{"e", "deadbeef"}})
	f := Filter{Kinds: []int{1}, Tags: map[string][]string{"e": {"deadbeef"}}}
	if !f.Match(p) {
		t.Fatalf("expected match")
	}
	f2 := Filter{Kinds: []int{2}}
	if f2.Match(p) {
		t.Fatalf("expected kind mismatch to reject")
	}
}

func TestFilterMatchTimeWindow(t *testing.T) {
	p := packedFor(t, id32, pk32, 1, 1000, nil)
	since := int64(1001)
	f := Filter{Since: &since}
	if f.Match(p) {
		t.Fatalf("expected since to reject earlier event")
	}
}

func TestGroupIsDisjunction(t *testing.T) {
	p := packedFor(t, id32, pk32, 3, 1000, nil)
	g := Group{
		{Kinds: []int{1}},
		{Kinds: []int{3}},
	}
	if !g.Match(p) {
		t.Fatalf("expected group to match via second filter")
	}
}

func TestFilterJSONRoundTripWithTagKeys(t *testing.T) {
	raw := []byte(`{"kinds":[1],"#e":["deadbeef"],"limit":10}`)
	var f Filter
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Tags["e"][0] != "deadbeef" {
		t.Fatalf("expected tag filter to decode, got %v", f.Tags)
	}
	if f.Limit == nil || *f.Limit != 10 {
		t.Fatalf("expected limit 10")
	}
	out, err := json.Marshal(&f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round Filter
	if err := json.Unmarshal(out, &round); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if round.Tags["e"][0] != "deadbeef" {
		t.Fatalf("round trip lost tag filter")
	}
}

func TestChooseAccessPathPriority(t *testing.T) {
	f := Filter{Authors: []string{pk32}, Kinds: []int{1}, Tags: map[string][]string{"e": {"x"}}}
	if ap := f.ChooseAccessPath(); ap.Kind != AccessPathTag {
		t.Fatalf("expected tag access path to win, got %v", ap.Kind)
	}
	f2 := Filter{Authors: []string{pk32}, Kinds: []int{1}}
	if ap := f2.ChooseAccessPath(); ap.Kind != AccessPathAuthor {
		t.Fatalf("expected author access path, got %v", ap.Kind)
	}
}

func TestStripTimeBounds(t *testing.T) {
	since, until := int64(1), int64(2)
	g := Group{{Since: &since, Until: &until}}
	g.StripTimeBounds()
	if g[0].Since != nil || g[0].Until != nil {
		t.Fatalf("expected time bounds stripped")
	}
}
