// Package auth implements the per-connection NIP-42 AUTH gate described in
// spec.md §4.3: a small state machine (Unchallenged, Challenged, Authed)
// that guards admission of protected events and validates challenge
// responses. A Gate is worker-local — one Ingester shard owns a Gate and
// touches it only from its own goroutine (connId affinity hashing, spec.md
// §4.4), so the mutex here exists only to let tests and the occasional
// cross-shard introspection call be safe, not because the hot path needs it.
package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/nostrhub/nostrhub/internal/relay/nostr"
)

// AuthKind is the designated NIP-42 challenge-response event kind.
const AuthKind = 22242

// Status is a connection's position in the AUTH state machine.
type Status int

const (
	StatusUnchallenged Status = iota
	StatusChallenged
	StatusAuthed
)

func (s Status) String() string {
	switch s {
	case StatusChallenged:
		return "challenged"
	case StatusAuthed:
		return "authed"
	default:
		return "unchallenged"
	}
}

// State is one connection's AUTH progress.
type State struct {
	Status    Status
	Challenge string
	Pubkey    string
}

// ErrAuthFailed carries the exact failure reason surfaced to the client as
// `NOTICE auth failed: <reason>` (spec.md §4.3).
type ErrAuthFailed struct{ Reason string }

func (e *ErrAuthFailed) Error() string { return "auth failed: " + e.Reason }

// ProtectedDecision is the AUTH gate's verdict on a protected-event
// admission check.
type ProtectedDecision struct {
	// Allow is true once the connection's authed pubkey matches the event's
	// author; the Ingester may proceed to the dedup check and enqueue the
	// write.
	Allow bool
	// ChallengeToSend is non-empty exactly when a fresh AUTH challenge frame
	// must be sent to the client (first protected event on a connection).
	ChallengeToSend string
	// OKMessage is the message to carry in the OK=false reply; empty when
	// Allow is true.
	OKMessage string
}

// Gate tracks AUTH state for every connection owned by one worker shard.
type Gate struct {
	mu             sync.Mutex
	states         map[uint64]*State
	challengeBytes int
}

// NewGate returns an empty gate. challengeBytes sizes the random challenge
// (0 defaults to 16, matching config.AuthConfig.ChallengeBytes' default).
func NewGate(challengeBytes int) *Gate {
	if challengeBytes <= 0 {
		challengeBytes = 16
	}
	return &Gate{states: map[uint64]*State{}, challengeBytes: challengeBytes}
}

// Remove purges connID's state. Called on connection close (spec.md §2:
// "on destruction, every pool must purge state keyed by this id").
func (g *Gate) Remove(connID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, connID)
}

func (g *Gate) stateFor(connID uint64) *State {
	s, ok := g.states[connID]
	if !ok {
		s = &State{Status: StatusUnchallenged}
		g.states[connID] = s
	}
	return s
}

// State returns a snapshot of connID's current AUTH state.
func (g *Gate) State(connID uint64) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.stateFor(connID)
}

func (g *Gate) generateChallenge() (string, error) {
	b := make([]byte, g.challengeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate auth challenge: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CheckProtected applies the protected-event admission rule (spec.md §4.3):
// an empty serviceURL flatly blocks protected publication; otherwise the
// connection must reach Authed with a pubkey matching the event's author
// before the event may proceed to the Writer.
func (g *Gate) CheckProtected(connID uint64, eventPubkey, serviceURL string) (ProtectedDecision, error) {
	if serviceURL == "" {
		return ProtectedDecision{OKMessage: "blocked: event marked as protected"}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stateFor(connID)

	switch s.Status {
	case StatusAuthed:
		if pubkeysEqual(s.Pubkey, eventPubkey) {
			return ProtectedDecision{Allow: true}, nil
		}
		return ProtectedDecision{OKMessage: "restricted: must be published by the author"}, nil
	case StatusChallenged:
		return ProtectedDecision{OKMessage: "auth-required: event marked as protected"}, nil
	default:
		c, err := g.generateChallenge()
		if err != nil {
			return ProtectedDecision{}, err
		}
		s.Status = StatusChallenged
		s.Challenge = c
		return ProtectedDecision{ChallengeToSend: c, OKMessage: "auth-required: event marked as protected"}, nil
	}
}

// ProcessAuth validates ev — already id/signature-verified by the caller —
// as a response to connID's outstanding challenge. On success it
// transitions the connection to Authed and returns the authenticated
// pubkey; on any failure it returns *ErrAuthFailed and leaves the state
// unchanged (spec.md §4.3).
func (g *Gate) ProcessAuth(connID uint64, ev *nostr.Event, serviceURL string) (string, error) {
	if ev.Kind != AuthKind {
		return "", &ErrAuthFailed{Reason: fmt.Sprintf("wrong event kind, expected %d", AuthKind)}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stateFor(connID)

	if s.Status == StatusAuthed {
		return "", &ErrAuthFailed{Reason: "already authenticated"}
	}
	if s.Status != StatusChallenged {
		return "", &ErrAuthFailed{Reason: "no auth challenge outstanding for this connection"}
	}

	var foundChallenge, foundRelay bool
	for _, t := range ev.Tags {
		if len(t) < 2 {
			continue
		}
		switch t.Letter() {
		case "challenge":
			if t.Value() == s.Challenge {
				foundChallenge = true
			}
		case "relay":
			if t.Value() == serviceURL {
				foundRelay = true
			}
		}
	}
	if !foundChallenge {
		return "", &ErrAuthFailed{Reason: "challenge string mismatch"}
	}
	if !foundRelay {
		return "", &ErrAuthFailed{Reason: "incorrect or missing relay tag, expected: " + serviceURL}
	}

	s.Status = StatusAuthed
	s.Pubkey = ev.Pubkey
	s.Challenge = ""
	return ev.Pubkey, nil
}

// pubkeysEqual compares two hex-encoded pubkeys by their parsed
// (secp256k1-normalized) form via nostr.ParsePubkeyHex, rather than raw hex
// bytes, so that a hex-case difference between the connection's authed
// pubkey and an event's author can't desynchronize the identity check. An
// unparsable pubkey on either side never matches.
func pubkeysEqual(a, b string) bool {
	pa, err := nostr.ParsePubkeyHex(a)
	if err != nil {
		return false
	}
	pb, err := nostr.ParsePubkeyHex(b)
	if err != nil {
		return false
	}
	return bytes.Equal(pa.SerializeCompressed(), pb.SerializeCompressed())
}
