package nostr

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// PackedEvent is the in-memory byte layout over an event used by the
// matching hot path (filter evaluation, secondary index construction)
// without reparsing JSON for every access. Both the packed form and the
// canonical JSON are kept (spec.md §3): PackedEvent.JSON holds the latter.
type PackedEvent struct {
	ID        [32]byte
	Pubkey    [32]byte
	CreatedAt int64
	Kind      uint32
	tagWalker []byte // length-prefixed (letter, value) pairs, see appendTag
	JSON      []byte
}

// appendTag writes one (letter, value) pair as: 1-byte letter-length,
// letter bytes, 2-byte big-endian value-length, value bytes. Letters are
// always length 1 for indexed tags per spec.md's "per-tag-letter" model,
// but the layout tolerates longer leading tokens defensively.
func appendTag(buf []byte, letter, value string) []byte {
	buf = append(buf, byte(len(letter)))
	buf = append(buf, letter...)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(value)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, value...)
	return buf
}

// Pack builds a PackedEvent from a validated Event plus its canonical JSON
// encoding (callers typically already have the JSON because it came in over
// the wire, so Pack doesn't re-marshal it).
func Pack(e *Event, evJSON []byte) (*PackedEvent, error) {
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil || len(idBytes) != 32 {
		return nil, fmt.Errorf("pack: invalid id")
	}
	pkBytes, err := hex.DecodeString(e.Pubkey)
	if err != nil || len(pkBytes) != 32 {
		return nil, fmt.Errorf("pack: invalid pubkey")
	}

	p := &PackedEvent{
		CreatedAt: e.CreatedAt,
		Kind:      uint32(e.Kind),
		JSON:      evJSON,
	}
	copy(p.ID[:], idBytes)
	copy(p.Pubkey[:], pkBytes)

	for _, t := range e.Tags {
		letter := t.Letter()
		if len(letter) != 1 {
			continue
		}
		p.tagWalker = appendTag(p.tagWalker, letter, t.Value())
	}
	return p, nil
}

// IDHex returns the hex-encoded event id.
func (p *PackedEvent) IDHex() string { return hex.EncodeToString(p.ID[:]) }

// PubkeyHex returns the hex-encoded author pubkey.
func (p *PackedEvent) PubkeyHex() string { return hex.EncodeToString(p.Pubkey[:]) }

// WalkTags calls fn for every (letter, value) pair packed into the event,
// stopping early if fn returns false.
func (p *PackedEvent) WalkTags(fn func(letter, value string) bool) {
	buf := p.tagWalker
	for len(buf) > 0 {
		llen := int(buf[0])
		buf = buf[1:]
		if len(buf) < llen+2 {
			return
		}
		letter := string(buf[:llen])
		buf = buf[llen:]
		vlen := int(binary.BigEndian.Uint16(buf[:2]))
		buf = buf[2:]
		if len(buf) < vlen {
			return
		}
		value := string(buf[:vlen])
		buf = buf[vlen:]
		if !fn(letter, value) {
			return
		}
	}
}

// HasTagValue reports whether the event has a tag with the given letter and
// exact value.
func (p *PackedEvent) HasTagValue(letter, value string) bool {
	found := false
	p.WalkTags(func(l, v string) bool {
		if l == letter && v == value {
			found = true
			return false
		}
		return true
	})
	return found
}

// Unmarshal decodes the kept canonical JSON back into an Event, used where
// callers need the full structured form (e.g. replying with an EVENT frame
// already has p.JSON; this is for places that need individual fields not
// exposed by the packed layout, like Content).
func (p *PackedEvent) Unmarshal() (*Event, error) {
	var e Event
	if err := json.Unmarshal(p.JSON, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
