package nostr

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// Verifier checks an event's id and Schnorr signature. It holds no mutable
// state and is safe to share across Ingester workers, but each worker keeps
// its own Verifier value to mirror the per-worker libsecp context the
// original implementation holds (see spec.md §4.2).
type Verifier struct{}

// NewVerifier returns a Verifier. It exists (rather than using bare
// functions) so Ingester workers hold a per-worker value, matching the
// per-worker signature-verification context described in spec.md §4.2.
func NewVerifier() *Verifier { return &Verifier{} }

// Verify checks that e.ID matches the canonical digest and that e.Sig is a
// valid Schnorr signature over that digest under e.Pubkey.
func (v *Verifier) Verify(e *Event) error {
	if err := e.VerifyID(); err != nil {
		return err
	}

	pubkeyBytes, err := hex.DecodeString(e.Pubkey)
	if err != nil || len(pubkeyBytes) != 32 {
		return fmt.Errorf("invalid pubkey encoding")
	}
	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil || len(sigBytes) != 64 {
		return fmt.Errorf("invalid signature encoding")
	}
	digest, err := e.Digest()
	if err != nil {
		return fmt.Errorf("canonicalize event: %w", err)
	}

	pubkey, err := schnorr.ParsePubKey(pubkeyBytes)
	if err != nil {
		return fmt.Errorf("parse pubkey: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}
	if !sig.Verify(digest, pubkey) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

// ParsePubkeyHex is a small helper used by the AUTH gate to compare pubkeys
// by their canonical (secp256k1-normalized) form rather than by raw hex, so
// that capitalization or compressed/uncompressed differences in future wire
// extensions can't desynchronize an identity comparison.
func ParsePubkeyHex(h string) (*secp256k1.PublicKey, error) {
	b, err := hex.DecodeString(h)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("invalid pubkey encoding")
	}
	return schnorr.ParsePubKey(b)
}
