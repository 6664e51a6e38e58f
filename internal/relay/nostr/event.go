// Package nostr defines the signed-event wire format nostrhub stores and
// distributes: canonical serialization, the id digest, and a packed
// in-memory layout that avoids reparsing JSON on the hot matching path.
package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Tag is an ordered list of strings; by convention element 0 is the tag's
// single-letter name ("e", "p", "-", ...) and the rest are its values.
type Tag []string

// Letter returns the tag's leading letter, or "" if the tag is empty.
func (t Tag) Letter() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the tag's first value (element 1), or "" if absent.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Event is a signed record as described in the wire protocol: the id is the
// sha256 digest of the event's canonical serialization, and the event is
// valid only when both the id matches that digest and the signature
// verifies under the author's public key.
type Event struct {
	ID        string `json:"id"`
	Pubkey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// canonicalArray is the exact 6-element array NIP-01 hashes to produce an
// event id: [0, pubkey, created_at, kind, tags, content].
func (e *Event) canonicalArray() []interface{} {
	tags := make([][]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = []string(t)
	}
	return []interface{}{0, e.Pubkey, e.CreatedAt, e.Kind, tags, e.Content}
}

// CanonicalJSON returns the exact byte sequence the id digest is computed
// over. encoding/json's default map ordering is irrelevant here because the
// canonical array has no map values — only the array's own field order,
// which canonicalArray fixes explicitly.
func (e *Event) CanonicalJSON() ([]byte, error) {
	return json.Marshal(e.canonicalArray())
}

// Digest computes the sha256 digest of the canonical serialization, which
// must equal the hex-decoded ID for a valid event.
func (e *Event) Digest() ([]byte, error) {
	b, err := e.CanonicalJSON()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

// VerifyID checks that e.ID equals the hex encoding of Digest().
func (e *Event) VerifyID() error {
	digest, err := e.Digest()
	if err != nil {
		return fmt.Errorf("canonicalize event: %w", err)
	}
	want := hex.EncodeToString(digest)
	if want != e.ID {
		return fmt.Errorf("id mismatch: computed %s, event claims %s", want, e.ID)
	}
	return nil
}

// IsProtected reports whether the event carries a "-" tag (NIP-70).
func (e *Event) IsProtected() bool {
	for _, t := range e.Tags {
		if t.Letter() == "-" {
			return true
		}
	}
	return false
}

// TagValues returns every value (element 1) of tags with the given letter,
// in event order.
func (e *Event) TagValues(letter string) []string {
	var out []string
	for _, t := range e.Tags {
		if t.Letter() == letter {
			out = append(out, t.Value())
		}
	}
	return out
}

// FirstTagValue returns the first value of the first tag with the given
// letter, and whether one was found.
func (e *Event) FirstTagValue(letter string) (string, bool) {
	for _, t := range e.Tags {
		if t.Letter() == letter {
			return t.Value(), true
		}
	}
	return "", false
}

// sortedTagLetters returns the distinct tag letters present, sorted, used by
// the storage layer to decide which per-letter secondary indices to update.
func (e *Event) sortedTagLetters() []string {
	seen := map[string]bool{}
	for _, t := range e.Tags {
		l := t.Letter()
		if l == "" || len(l) != 1 {
			continue
		}
		seen[l] = true
	}
	letters := make([]string, 0, len(seen))
	for l := range seen {
		letters = append(letters, l)
	}
	sort.Strings(letters)
	return letters
}

// TagLetters is the public accessor for sortedTagLetters.
func (e *Event) TagLetters() []string { return e.sortedTagLetters() }
