package auth

import (
	"testing"

	"github.com/nostrhub/nostrhub/internal/relay/nostr"
)

const serviceURL = "wss://r.example"

// pubkeyA/pubkeyAUpper are the same secp256k1 x-only pubkey (the curve
// generator's x-coordinate) in different hex case; pubkeyB is the x-only
// pubkey for privkey=2, a genuinely different point. Tests that exercise
// CheckProtected's post-auth identity comparison need real parseable
// pubkeys now that it compares canonical (parsed) form via
// nostr.ParsePubkeyHex rather than raw strings.
const (
	pubkeyA      = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	pubkeyAUpper = "79BE667EF9DCBBAC55A06295CE870B07029BFCDB2DCE28D959F2815B16F81798"
	pubkeyB      = "c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
)

func TestCheckProtectedBlockedWithoutServiceURL(t *testing.T) {
	g := NewGate(0)
	d, err := g.CheckProtected(1, "pub1", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Allow || d.OKMessage != "blocked: event marked as protected" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestCheckProtectedIssuesChallengeOnce(t *testing.T) {
	g := NewGate(0)
	d1, err := g.CheckProtected(1, "pub1", serviceURL)
	if err != nil {
		t.Fatalf("check 1: %v", err)
	}
	if d1.Allow || d1.ChallengeToSend == "" || d1.OKMessage != "auth-required: event marked as protected" {
		t.Fatalf("expected a fresh challenge on first check, got %+v", d1)
	}

	d2, err := g.CheckProtected(1, "pub1", serviceURL)
	if err != nil {
		t.Fatalf("check 2: %v", err)
	}
	if d2.Allow || d2.ChallengeToSend != "" {
		t.Fatalf("expected no second challenge while still Challenged, got %+v", d2)
	}
}

func TestProcessAuthTransitionsToAuthed(t *testing.T) {
	g := NewGate(0)
	d, err := g.CheckProtected(1, pubkeyA, serviceURL)
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	ev := &nostr.Event{
		Pubkey: pubkeyA,
		Kind:   AuthKind,
		Tags: []nostr.Tag{
			{"challenge", d.ChallengeToSend},
			{"relay", serviceURL},
		},
	}
	pubkey, err := g.ProcessAuth(1, ev, serviceURL)
	if err != nil {
		t.Fatalf("process auth: %v", err)
	}
	if pubkey != pubkeyA {
		t.Fatalf("expected authed pubkey %s, got %q", pubkeyA, pubkey)
	}

	allowed, err := g.CheckProtected(1, pubkeyA, serviceURL)
	if err != nil {
		t.Fatalf("check after auth: %v", err)
	}
	if !allowed.Allow {
		t.Fatalf("expected protected event to be allowed after auth, got %+v", allowed)
	}
}

// TestProcessAuthAllowsHexCaseDifference demonstrates why CheckProtected
// compares parsed pubkeys rather than raw hex: an event publisher sending
// its pubkey in a different hex case than the AUTH event used must still be
// recognized as the same author.
func TestProcessAuthAllowsHexCaseDifference(t *testing.T) {
	g := NewGate(0)
	d, err := g.CheckProtected(1, pubkeyA, serviceURL)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	ev := &nostr.Event{
		Pubkey: pubkeyA,
		Kind:   AuthKind,
		Tags: []nostr.Tag{
			{"challenge", d.ChallengeToSend},
			{"relay", serviceURL},
		},
	}
	if _, err := g.ProcessAuth(1, ev, serviceURL); err != nil {
		t.Fatalf("process auth: %v", err)
	}

	allowed, err := g.CheckProtected(1, pubkeyAUpper, serviceURL)
	if err != nil {
		t.Fatalf("check after auth: %v", err)
	}
	if !allowed.Allow {
		t.Fatalf("expected same pubkey in different hex case to be allowed, got %+v", allowed)
	}
}

func TestProcessAuthRejectsWrongKind(t *testing.T) {
	g := NewGate(0)
	g.CheckProtected(1, "pub1", serviceURL)
	ev := &nostr.Event{Pubkey: "pub1", Kind: 1}
	if _, err := g.ProcessAuth(1, ev, serviceURL); err == nil {
		t.Fatalf("expected error for wrong kind")
	}
}

func TestProcessAuthRejectsChallengeMismatch(t *testing.T) {
	g := NewGate(0)
	g.CheckProtected(1, "pub1", serviceURL)
	ev := &nostr.Event{
		Pubkey: "pub1",
		Kind:   AuthKind,
		Tags: []nostr.Tag{
			{"challenge", "wrong"},
			{"relay", serviceURL},
		},
	}
	_, err := g.ProcessAuth(1, ev, serviceURL)
	if err == nil {
		t.Fatalf("expected challenge mismatch error")
	}
	if _, ok := err.(*ErrAuthFailed); !ok {
		t.Fatalf("expected *ErrAuthFailed, got %T", err)
	}
}

func TestProcessAuthRejectsWrongRelay(t *testing.T) {
	g := NewGate(0)
	d, _ := g.CheckProtected(1, "pub1", serviceURL)
	ev := &nostr.Event{
		Pubkey: "pub1",
		Kind:   AuthKind,
		Tags: []nostr.Tag{
			{"challenge", d.ChallengeToSend},
			{"relay", "wss://someone-else.example"},
		},
	}
	if _, err := g.ProcessAuth(1, ev, serviceURL); err == nil {
		t.Fatalf("expected relay mismatch error")
	}
}

func TestProcessAuthRejectsAlreadyAuthenticated(t *testing.T) {
	g := NewGate(0)
	d, _ := g.CheckProtected(1, "pub1", serviceURL)
	ev := &nostr.Event{
		Pubkey: "pub1",
		Kind:   AuthKind,
		Tags:   []nostr.Tag{{"challenge", d.ChallengeToSend}, {"relay", serviceURL}},
	}
	if _, err := g.ProcessAuth(1, ev, serviceURL); err != nil {
		t.Fatalf("first auth: %v", err)
	}
	if _, err := g.ProcessAuth(1, ev, serviceURL); err == nil {
		t.Fatalf("expected rejection of a second AUTH on an already-authed connection")
	}
}

func TestCheckProtectedRejectsMismatchedAuthor(t *testing.T) {
	g := NewGate(0)
	d, _ := g.CheckProtected(1, pubkeyA, serviceURL)
	ev := &nostr.Event{
		Pubkey: pubkeyA,
		Kind:   AuthKind,
		Tags:   []nostr.Tag{{"challenge", d.ChallengeToSend}, {"relay", serviceURL}},
	}
	if _, err := g.ProcessAuth(1, ev, serviceURL); err != nil {
		t.Fatalf("auth: %v", err)
	}

	decision, err := g.CheckProtected(1, pubkeyB, serviceURL)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allow || decision.OKMessage != "restricted: must be published by the author" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestRemovePurgesState(t *testing.T) {
	g := NewGate(0)
	g.CheckProtected(1, "pub1", serviceURL)
	g.Remove(1)
	if s := g.State(1); s.Status != StatusUnchallenged {
		t.Fatalf("expected fresh Unchallenged state after Remove, got %+v", s)
	}
}

func TestChallengesAreUniquePerConnection(t *testing.T) {
	g := NewGate(0)
	d1, _ := g.CheckProtected(1, "pub1", serviceURL)
	d2, _ := g.CheckProtected(2, "pub2", serviceURL)
	if d1.ChallengeToSend == d2.ChallengeToSend {
		t.Fatalf("expected distinct challenges per connection, got equal: %q", d1.ChallengeToSend)
	}
}
