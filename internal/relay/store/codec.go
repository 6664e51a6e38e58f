package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/nostrhub/nostrhub/internal/relay/nostr"
)

// Primary-record encoding, generalized from the teacher's eventlog record
// codec (internal/eventlog/record.go): a fixed header (id, pubkey,
// created_at, kind) followed by the varint-length-prefixed canonical JSON
// payload and a CRC32C (Castagnoli) trailer over header+payload. This lets
// Req Worker/Req Monitor reconstruct a nostr.PackedEvent directly from the
// stored bytes without a second JSON parse pass for the packed fields.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const headerLen = 32 + 32 + 8 + 4 // id + pubkey + created_at + kind

func encodePacked(p *nostr.PackedEvent) []byte {
	var header [headerLen]byte
	copy(header[0:32], p.ID[:])
	copy(header[32:64], p.Pubkey[:])
	binary.BigEndian.PutUint64(header[64:72], uint64(p.CreatedAt))
	binary.BigEndian.PutUint32(header[72:76], p.Kind)

	var lenBuf [10]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(p.JSON)))

	out := make([]byte, 0, headerLen+n+len(p.JSON)+4)
	out = append(out, header[:]...)
	out = append(out, lenBuf[:n]...)
	out = append(out, p.JSON...)

	crc := crc32.Checksum(out, castagnoli)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	return append(out, crcBuf[:]...)
}

func decodePacked(b []byte) (*nostr.PackedEvent, error) {
	if len(b) < headerLen+1+4 {
		return nil, fmt.Errorf("corrupt primary record: too short")
	}
	body := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(body, castagnoli) != expect {
		return nil, fmt.Errorf("corrupt primary record: checksum mismatch")
	}

	var p nostr.PackedEvent
	copy(p.ID[:], body[0:32])
	copy(p.Pubkey[:], body[32:64])
	p.CreatedAt = int64(binary.BigEndian.Uint64(body[64:72]))
	p.Kind = binary.BigEndian.Uint32(body[72:76])

	rest := body[headerLen:]
	jsonLen, n := binary.Uvarint(rest)
	if n <= 0 || uint64(len(rest)-n) < jsonLen {
		return nil, fmt.Errorf("corrupt primary record: bad payload length")
	}
	payload := rest[n : n+int(jsonLen)]
	p.JSON = append([]byte(nil), payload...)

	tagEvent, err := p.Unmarshal()
	if err != nil {
		return nil, fmt.Errorf("decode tags from payload: %w", err)
	}
	return nostr.Pack(tagEvent, p.JSON)
}
