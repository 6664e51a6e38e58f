// Package negentropy (pool handler) wires Session onto the relay's
// dispatch model: one shard owns every session whose connId hashes to it
// (spec.md §4.7), keyed by (connId, subId), exactly like the Req Worker's
// per-connection subscription map.
package negentropy

import (
	"encoding/hex"
	"encoding/json"

	"github.com/nostrhub/nostrhub/internal/relay/filter"
	"github.com/nostrhub/nostrhub/internal/relay/relaymsg"
	"github.com/nostrhub/nostrhub/internal/relay/store"
	"github.com/nostrhub/nostrhub/internal/relay/tenant"
	"github.com/nostrhub/nostrhub/internal/relay/wire"
	"github.com/nostrhub/nostrhub/pkg/log"
)

// Deps collects what a Negentropy shard needs.
type Deps struct {
	Registry *tenant.Registry
	Sender   relaymsg.Sender

	// MaxSyncEvents caps how many items a session's filter may resolve to;
	// the Ingester already clamps the filter's Limit to this+1 before the
	// session is opened (config key relay.negentropy.maxSyncEvents).
	MaxSyncEvents int

	Logger log.Logger
}

type sessionKey struct {
	connID uint64
	subID  string
}

type shard struct {
	deps     Deps
	logger   log.Logger
	sessions map[sessionKey]*Session
}

// NewHandlerFactory returns the per-shard handler constructor.
func NewHandlerFactory(deps Deps) func(shardIdx int) func(relaymsg.NegentropyMsg) {
	return func(shardIdx int) func(relaymsg.NegentropyMsg) {
		s := &shard{
			deps:     deps,
			logger:   deps.Logger.WithComponent("negentropy").With(log.Int("shard", shardIdx)),
			sessions: map[sessionKey]*Session{},
		}
		return s.handle
	}
}

func (s *shard) handle(msg relaymsg.NegentropyMsg) {
	switch msg.Kind {
	case relaymsg.NegentropyOpen:
		s.open(msg)
	case relaymsg.NegentropyContinue:
		s.continueSession(msg)
	case relaymsg.NegentropyClose:
		delete(s.sessions, sessionKey{msg.ConnID, msg.SubID})
	case relaymsg.NegentropyCloseConn:
		s.closeConn(msg.ConnID)
	}
}

// open implements NEG-OPEN (spec.md §4.7): build the session's item set
// from the tenant's negentropy index filtered by the (time-bound-stripped)
// filter, then feed the client's opening payload straight through
// Reconcile — the client always initiates, so the relay's first reply is
// itself a Reconcile result, never Session.Initiate.
func (s *shard) open(msg relaymsg.NegentropyMsg) {
	var f filter.Filter
	if err := json.Unmarshal([]byte(msg.FilterJSON), &f); err != nil {
		s.deps.Sender.Send(msg.ConnID, wire.NoticeError("negentropy error: bad filter: "+err.Error()))
		return
	}

	env, err := s.deps.Registry.Env(msg.TenantID)
	if err != nil {
		s.deps.Sender.Send(msg.ConnID, wire.NoticeError("negentropy error: "+err.Error()))
		return
	}

	items, err := collectItems(env, &f, s.deps.MaxSyncEvents+1)
	if err != nil {
		s.deps.Sender.Send(msg.ConnID, wire.NoticeError("negentropy error: "+err.Error()))
		return
	}

	key := sessionKey{msg.ConnID, msg.SubID}
	sess := NewSession(items)
	s.sessions[key] = sess
	s.reconcile(msg.ConnID, msg.SubID, sess, msg.Payload)
}

func (s *shard) continueSession(msg relaymsg.NegentropyMsg) {
	key := sessionKey{msg.ConnID, msg.SubID}
	sess, ok := s.sessions[key]
	if !ok {
		s.deps.Sender.Send(msg.ConnID, wire.NoticeError("negentropy error: no session for this subscription"))
		return
	}
	s.reconcile(msg.ConnID, msg.SubID, sess, msg.Payload)
}

func (s *shard) reconcile(connID uint64, subID string, sess *Session, payload []byte) {
	reply, done, err := sess.Reconcile(payload)
	if err != nil {
		s.deps.Sender.Send(connID, wire.NoticeError("negentropy error: "+err.Error()))
		delete(s.sessions, sessionKey{connID, subID})
		return
	}
	if done {
		delete(s.sessions, sessionKey{connID, subID})
		return
	}
	s.deps.Sender.Send(connID, wire.NegMsg(subID, hex.EncodeToString(reply)))
}

func (s *shard) closeConn(connID uint64) {
	for key := range s.sessions {
		if key.connID == connID {
			delete(s.sessions, key)
		}
	}
}

// collectItems walks the tenant's flat negentropy id set, keeping only ids
// whose event matches f, up to limit items. The negentropy index tracks
// membership only (no tag/kind/author breakdown), so the filter is applied
// by one LookupByID probe per member rather than a secondary-index scan.
func collectItems(env *store.Env, f *filter.Filter, limit int) ([]Item, error) {
	var items []Item
	err := env.NegentropyIDs(func(id [32]byte) bool {
		p, found, err := env.LookupByID(id)
		if err != nil || !found {
			return true
		}
		if !f.Match(p) {
			return true
		}
		items = append(items, Item{CreatedAt: p.CreatedAt, ID: p.ID})
		return limit <= 0 || len(items) < limit
	})
	return items, err
}
