package nostr

import (
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

func signedTestEvent(t *testing.T, content string, tags []Tag) *Event {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub := priv.PubKey()

	e := &Event{
		Pubkey:    hex.EncodeToString(pub.SerializeCompressed()[1:]),
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      tags,
		Content:   content,
	}
	digest, err := e.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	e.ID = hex.EncodeToString(digest)

	sig, err := schnorr.Sign(priv, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return e
}

func TestVerifyRoundTrip(t *testing.T) {
	e := signedTestEvent(t, "hello", []Tag{{"e", "deadbeef"}, {"-", ""}})
	v := NewVerifier()
	if err := v.Verify(e); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !e.IsProtected() {
		t.Fatalf("expected protected event")
	}
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	e := signedTestEvent(t, "hello", nil)
	e.Content = "goodbye"
	v := NewVerifier()
	if err := v.Verify(e); err == nil {
		t.Fatalf("expected verification failure after tampering")
	}
}

func TestVerifyRejectsBadID(t *testing.T) {
	e := signedTestEvent(t, "hello", nil)
	e.ID = "00" + e.ID[2:]
	v := NewVerifier()
	if err := v.Verify(e); err == nil {
		t.Fatalf("expected id mismatch error")
	}
}

func TestCanonicalJSONIsDeterministic(t *testing.T) {
	e := signedTestEvent(t, "hello", []Tag{{"p", "abc"}})
	b1, err := e.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	b2, err := e.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("canonical json not deterministic: %s vs %s", b1, b2)
	}
}

func TestPackedEventTagWalk(t *testing.T) {
	e := signedTestEvent(t, "hello", []Tag{{"e", "id1"}, {"p", "pub1"}, {"e", "id2"}})
	evJSON, err := e.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	p, err := Pack(e, evJSON)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if p.IDHex() != e.ID {
		t.Fatalf("id mismatch after pack")
	}
	var got []string
	p.WalkTags(func(letter, value string) bool {
		got = append(got, letter+":"+value)
		return true
	})
	want := []string{"e:id1", "p:pub1", "e:id2"}
	if len(got) != len(want) {
		t.Fatalf("tag walk length mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tag walk mismatch at %d: got %s want %s", i, got[i], want[i])
		}
	}
	if !p.HasTagValue("e", "id2") {
		t.Fatalf("expected HasTagValue to find e:id2")
	}
}
