// Package relaymsg defines the messages passed between the relay's pools
// (spec.md §4: Ingester -> Writer/Req Worker/Req Monitor/Negentropy) and the
// small interfaces each pool needs of its neighbors, breaking what would
// otherwise be an import cycle between the pool implementations themselves.
package relaymsg

import (
	"github.com/nostrhub/nostrhub/internal/relay/filter"
	"github.com/nostrhub/nostrhub/internal/relay/nostr"
)

// Sender delivers encoded wire frames to connections. Implemented by the
// Websocket pool; every other pool only needs this much of it.
type Sender interface {
	Send(connID uint64, data []byte)

	// SendEventToBatch fans one event out to every recipient in a single
	// operation (spec.md §4.8), synthesizing a `["EVENT", subId, evJson]`
	// frame per recipient. Req Monitor uses this for both its gap-closing
	// rescan on a new subscription and its DBChange fanout, since either
	// can match several recipients against the same stored event.
	SendEventToBatch(recipients []Recipient, evJSON []byte)
}

// Recipient is one (connId, subId) destination an event is fanned out to.
type Recipient struct {
	ConnID uint64
	SubID  string
}

// Subscription is one REQ's live state, shared between the Req Worker
// (backfill) and Req Monitor (tailing) pools (spec.md §4.5/§4.6).
type Subscription struct {
	ConnID   uint64
	ID       string
	TenantID string
	Filters  filter.Group

	// LatestEventID is the highest levId already delivered to this
	// subscription. The Query Scheduler sets it to the tenant's high-water
	// levId just before its backfill scan;
	// Req Monitor's first action on receiving the sub re-scans from this
	// value to close the gap between EOSE and the moment it starts
	// watching (spec.md §4.6's explicit invariant).
	LatestEventID uint64
}

// IngestMsgKind discriminates IngestMsg's payload, mirroring the Ingester's
// two message variants (client frame, connection close) (spec.md §4.2).
type IngestMsgKind int

const (
	IngestClientMessage IngestMsgKind = iota
	IngestCloseConn
)

// IngestMsg is dispatched to the Ingester pool.
type IngestMsg struct {
	Kind     IngestMsgKind
	ConnID   uint64
	IPAddr   string
	TenantID string
	Payload  []byte
}

func (m IngestMsg) AffinityKey() uint64 { return m.ConnID }

// WriterMsgKind discriminates WriterMsg's payload.
type WriterMsgKind int

const (
	WriterAddEvent WriterMsgKind = iota
	WriterCloseConn
)

// WriterMsg is dispatched to the Writer pool (spec.md §4.4).
type WriterMsg struct {
	Kind     WriterMsgKind
	ConnID   uint64
	IPAddr   string
	TenantID string
	Packed   *nostr.PackedEvent
	IDHex    string
}

func (m WriterMsg) AffinityKey() uint64 { return m.ConnID }

// ReqWorkerMsgKind discriminates ReqWorkerMsg's payload.
type ReqWorkerMsgKind int

const (
	ReqWorkerNewSub ReqWorkerMsgKind = iota
	ReqWorkerRemoveSub
	ReqWorkerCloseConn
)

// ReqWorkerMsg is dispatched to the Query Scheduler pool (spec.md §4.5).
type ReqWorkerMsg struct {
	Kind   ReqWorkerMsgKind
	ConnID uint64
	Sub    *Subscription
	SubID  string
}

func (m ReqWorkerMsg) AffinityKey() uint64 { return m.ConnID }

// ReqMonitorMsgKind discriminates ReqMonitorMsg's payload.
type ReqMonitorMsgKind int

const (
	ReqMonitorNewSub ReqMonitorMsgKind = iota
	ReqMonitorRemoveSub
	ReqMonitorCloseConn
	ReqMonitorDBChange
)

// ReqMonitorMsg is dispatched to the live-tailing pool (spec.md §4.6).
// DBChange carries no connId; it is broadcast to every shard via
// pool.Pool.DispatchAll rather than routed by affinity.
type ReqMonitorMsg struct {
	Kind     ReqMonitorMsgKind
	ConnID   uint64
	Sub      *Subscription
	SubID    string
	TenantID string
}

func (m ReqMonitorMsg) AffinityKey() uint64 { return m.ConnID }

// NegentropyMsgKind discriminates NegentropyMsg's payload.
type NegentropyMsgKind int

const (
	NegentropyOpen NegentropyMsgKind = iota
	NegentropyContinue
	NegentropyClose
	NegentropyCloseConn
)

// NegentropyMsg is dispatched to the set-reconciliation pool (spec.md §4.7).
type NegentropyMsg struct {
	Kind       NegentropyMsgKind
	ConnID     uint64
	SubID      string
	TenantID   string
	FilterJSON string // NEG-OPEN only: the filter with since/until stripped
	Payload    []byte // hex/snappy-decoded reconciliation payload
}

func (m NegentropyMsg) AffinityKey() uint64 { return m.ConnID }
