// Package reqworker implements the Query Scheduler (spec.md §4.5): the
// historical-backfill half of a live subscription. A NewSub snapshots the
// tenant's current high-water levId before scanning so the later handoff to
// Req Monitor can close the gap without ever double-delivering an event
// (spec.md §4.6's ordering guarantee).
package reqworker

import (
	"encoding/hex"
	"fmt"

	"github.com/nostrhub/nostrhub/internal/relay/filter"
	"github.com/nostrhub/nostrhub/internal/relay/nostr"
	"github.com/nostrhub/nostrhub/internal/relay/pool"
	"github.com/nostrhub/nostrhub/internal/relay/relaymsg"
	"github.com/nostrhub/nostrhub/internal/relay/store"
	"github.com/nostrhub/nostrhub/internal/relay/tenant"
	"github.com/nostrhub/nostrhub/internal/relay/wire"
	"github.com/nostrhub/nostrhub/pkg/log"
)

// Deps collects what a Req Worker shard needs.
type Deps struct {
	Registry       *tenant.Registry
	Sender         relaymsg.Sender
	ReqMonitorPool *pool.Pool[relaymsg.ReqMonitorMsg]

	// MaxSubscriptionsPerConn caps live subscriptions per connection
	// (spec.md §4.5/§4.6, config key tenantDefaults.maxSubscriptionsPerConn).
	MaxSubscriptionsPerConn int

	Logger log.Logger
}

// shard owns every subscription whose connId hashes to this worker. The
// per-connection subscription count replaces the original's scheduler
// object's own bookkeeping (spec.md's running-subs cap).
type shard struct {
	deps        Deps
	logger      log.Logger
	subsPerConn map[uint64]int
}

// NewHandlerFactory returns the per-shard handler constructor. Each shard's
// subsPerConn map is touched only by its own goroutine, matching the
// connId-affinity invariant (spec.md §5).
func NewHandlerFactory(deps Deps) func(shardIdx int) func(relaymsg.ReqWorkerMsg) {
	return func(shardIdx int) func(relaymsg.ReqWorkerMsg) {
		s := &shard{
			deps:        deps,
			logger:      deps.Logger.WithComponent("reqworker").With(log.Int("shard", shardIdx)),
			subsPerConn: map[uint64]int{},
		}
		return s.handle
	}
}

func (s *shard) handle(msg relaymsg.ReqWorkerMsg) {
	switch msg.Kind {
	case relaymsg.ReqWorkerNewSub:
		s.newSub(msg.Sub)
	case relaymsg.ReqWorkerRemoveSub:
		s.removeSub(msg.ConnID, msg.SubID)
	case relaymsg.ReqWorkerCloseConn:
		s.closeConn(msg.ConnID)
	}
}

// newSub implements spec.md §4.5: open the tenant env, run every filter in
// the sub's group to completion against the best access path for each,
// send EOSE, then hand off to Req Monitor with the pre-scan high-water
// levId.
func (s *shard) newSub(sub *relaymsg.Subscription) {
	if s.subsPerConn[sub.ConnID] >= s.deps.MaxSubscriptionsPerConn {
		s.deps.Sender.Send(sub.ConnID, wire.NoticeError(wire.MsgTooManyConcurrentReqs))
		return
	}

	env, err := s.deps.Registry.Env(sub.TenantID)
	if err != nil {
		s.deps.Sender.Send(sub.ConnID, wire.NoticeError("bad req: "+err.Error()))
		return
	}

	sub.LatestEventID = env.MaxLevID()
	s.subsPerConn[sub.ConnID]++

	seen := map[[32]byte]bool{}
	for i := range sub.Filters {
		s.backfillFilter(env, sub, &sub.Filters[i], seen)
	}

	s.deps.Sender.Send(sub.ConnID, wire.EOSE(sub.ID))
	s.deps.ReqMonitorPool.Dispatch(relaymsg.ReqMonitorMsg{
		Kind:     relaymsg.ReqMonitorNewSub,
		ConnID:   sub.ConnID,
		Sub:      sub,
		TenantID: sub.TenantID,
	})
}

func (s *shard) backfillFilter(env *store.Env, sub *relaymsg.Subscription, f *filter.Filter, seen map[[32]byte]bool) {
	limit := -1
	if f.Limit != nil {
		limit = *f.Limit
	}
	sent := 0

	visit := func(levID uint64, p *nostr.PackedEvent) bool {
		if limit >= 0 && sent >= limit {
			return false
		}
		// Events committed after the snapshot are left to Req Monitor's
		// gap-closing rescan, which would otherwise send them a second time.
		if levID > sub.LatestEventID || seen[p.ID] {
			return true
		}
		if !f.Match(p) {
			return true
		}
		seen[p.ID] = true
		sent++
		s.deps.Sender.Send(sub.ConnID, wire.Event(sub.ID, p.JSON))
		return limit < 0 || sent < limit
	}

	if err := scanAccessPath(env, f, visit); err != nil {
		s.logger.Error("backfill scan failed", log.Err(err), log.Str("tenant", sub.TenantID))
	}
}

// scanAccessPath walks the index spec.md §4.5 names as the chosen access
// path for f (tag > author > kind > created_at priority), calling visit in
// descending created_at order until visit returns false.
func scanAccessPath(env *store.Env, f *filter.Filter, visit func(levID uint64, p *nostr.PackedEvent) bool) error {
	path := f.ChooseAccessPath()
	stopped := false
	wrapped := func(levID uint64, p *nostr.PackedEvent) bool {
		cont := visit(levID, p)
		if !cont {
			stopped = true
		}
		return cont
	}

	switch path.Kind {
	case filter.AccessPathTag:
		for _, value := range f.Tags[path.Letter] {
			if stopped {
				break
			}
			if err := env.IterByTag(path.Letter, value, f.Since, f.Until, 0, wrapped); err != nil {
				return err
			}
		}
	case filter.AccessPathAuthor:
		for _, authorHex := range f.Authors {
			if stopped {
				break
			}
			pubkey, err := decodeHex32(authorHex)
			if err != nil {
				continue
			}
			if err := env.IterByPubkeyCreated(pubkey, f.Since, f.Until, 0, wrapped); err != nil {
				return err
			}
		}
	case filter.AccessPathKindIndex:
		for _, kind := range f.Kinds {
			if stopped {
				break
			}
			if err := env.IterByKindCreated(uint32(kind), f.Since, f.Until, 0, wrapped); err != nil {
				return err
			}
		}
	default:
		if err := env.IterByCreated(f.Since, f.Until, 0, wrapped); err != nil {
			return err
		}
	}
	return nil
}

func decodeHex32(h string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(h)
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("invalid hex32 %q", h)
	}
	copy(out[:], b)
	return out, nil
}

func (s *shard) removeSub(connID uint64, subID string) {
	if s.subsPerConn[connID] > 0 {
		s.subsPerConn[connID]--
	}
	s.deps.ReqMonitorPool.Dispatch(relaymsg.ReqMonitorMsg{
		Kind:   relaymsg.ReqMonitorRemoveSub,
		ConnID: connID,
		SubID:  subID,
	})
}

func (s *shard) closeConn(connID uint64) {
	delete(s.subsPerConn, connID)
	s.deps.ReqMonitorPool.Dispatch(relaymsg.ReqMonitorMsg{
		Kind:   relaymsg.ReqMonitorCloseConn,
		ConnID: connID,
	})
}
