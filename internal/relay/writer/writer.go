// Package writer implements the Writer pool: the only component that
// commits events to a tenant's storage environment (spec.md §4.4). Pinned
// by connId like every other pool, but the pinning here is incidental —
// the correctness-critical lock is store.Env.Insert's own dedup re-check,
// since two shards can legitimately hold connections writing to the same
// tenant concurrently.
package writer

import (
	"context"

	"github.com/nostrhub/nostrhub/internal/relay/relaymsg"
	"github.com/nostrhub/nostrhub/internal/relay/store"
	"github.com/nostrhub/nostrhub/internal/relay/tenant"
	"github.com/nostrhub/nostrhub/internal/relay/wire"
	"github.com/nostrhub/nostrhub/pkg/log"
)

// Deps collects what a Writer shard needs to commit an event and reply.
type Deps struct {
	Registry *tenant.Registry
	Sender   relaymsg.Sender
	Logger   log.Logger
}

type shard struct {
	deps   Deps
	logger log.Logger
}

// NewHandlerFactory returns the per-shard handler constructor for
// pool.NewWithFactory. Writer shards hold no private state beyond a
// component-tagged logger, but the factory shape is kept for symmetry with
// the other pools and in case per-shard batching state is added later.
func NewHandlerFactory(deps Deps) func(shardIdx int) func(relaymsg.WriterMsg) {
	return func(shardIdx int) func(relaymsg.WriterMsg) {
		s := &shard{deps: deps, logger: deps.Logger.WithComponent("writer").With(log.Int("shard", shardIdx))}
		return s.handle
	}
}

func (s *shard) handle(msg relaymsg.WriterMsg) {
	switch msg.Kind {
	case relaymsg.WriterAddEvent:
		s.addEvent(msg)
	case relaymsg.WriterCloseConn:
		// No per-connection state is held here; this exists for message-shape
		// symmetry with the other pools (spec.md §4.4 names it explicitly).
	}
}

// addEvent implements spec.md §4.4: re-check id existence, allocate a
// levId, write the primary record and every secondary index in one atomic
// batch, then reply OK. The Writer does not directly notify Req Monitor —
// that pool discovers new commits by watching the tenant's storage
// directory for mtime changes (spec.md §4.5/§4.6).
func (s *shard) addEvent(msg relaymsg.WriterMsg) {
	env, err := s.deps.Registry.Env(msg.TenantID)
	if err != nil {
		s.deps.Sender.Send(msg.ConnID, wire.OK(msg.IDHex, false, wire.PrefixError+err.Error()))
		return
	}

	if _, err := env.Insert(context.Background(), msg.Packed); err != nil {
		if err == store.ErrDuplicate {
			s.deps.Sender.Send(msg.ConnID, wire.OK(msg.IDHex, true, "duplicate: have this event"))
			return
		}
		s.logger.Error("commit failed", log.Err(err), log.Str("tenant", msg.TenantID))
		s.deps.Sender.Send(msg.ConnID, wire.OK(msg.IDHex, false, wire.PrefixError+err.Error()))
		return
	}

	s.deps.Sender.Send(msg.ConnID, wire.OK(msg.IDHex, true, ""))
}
