// Package reqmonitor implements Req Monitor, the live-tailing half of a
// subscription (spec.md §4.6). Each shard owns its own nested
// tenant -> {subs, currEventId, watcher} structure and its own fsnotify
// watcher per tenant it has subs for, mirroring orig:RelayReqMonitor.cpp's
// thread-local monitorsBySubdomain/currEventIds/dbChangeWatchers maps.
package reqmonitor

import (
	"math"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nostrhub/nostrhub/internal/relay/nostr"
	"github.com/nostrhub/nostrhub/internal/relay/pool"
	"github.com/nostrhub/nostrhub/internal/relay/relaymsg"
	"github.com/nostrhub/nostrhub/internal/relay/tenant"
	"github.com/nostrhub/nostrhub/internal/relay/wire"
	"github.com/nostrhub/nostrhub/pkg/log"
)

// debounceWindow matches orig:RelayReqMonitor.cpp's setDebounce(100).
const debounceWindow = 100 * time.Millisecond

// PoolHandle lets a shard's fsnotify watcher broadcast a DBChange to every
// shard in the Req Monitor pool. It exists because the pool itself doesn't
// exist yet when the per-shard handler factories are constructed — callers
// build the pool, then call Set with it.
type PoolHandle struct {
	p *pool.Pool[relaymsg.ReqMonitorMsg]
}

// NewPoolHandle returns an empty handle; Set it once the pool exists.
func NewPoolHandle() *PoolHandle { return &PoolHandle{} }

// Set installs the constructed pool. Must be called before any watcher
// fires; safe to call exactly once during startup wiring.
func (h *PoolHandle) Set(p *pool.Pool[relaymsg.ReqMonitorMsg]) { h.p = p }

func (h *PoolHandle) dispatchAll(build func(shardIdx int) relaymsg.ReqMonitorMsg) {
	if h.p != nil {
		h.p.DispatchAll(build)
	}
}

// Deps collects what a Req Monitor shard needs.
type Deps struct {
	Registry                *tenant.Registry
	Sender                  relaymsg.Sender
	SelfPool                *PoolHandle
	MaxSubscriptionsPerConn int
	Logger                  log.Logger
}

type subKey struct {
	connID uint64
	subID  string
}

// tenantMonitor is one tenant's live-tailing state within one shard.
type tenantMonitor struct {
	subs        map[subKey]*relaymsg.Subscription
	subsPerConn map[uint64]int
	currEventID uint64
	watcher     *fsnotify.Watcher
}

type shard struct {
	deps     Deps
	logger   log.Logger
	monitors map[string]*tenantMonitor
}

// NewHandlerFactory returns the per-shard handler constructor. Each shard's
// monitors map, and every fsnotify watcher it starts, are touched only
// from this shard's own goroutine plus the watcher's own debounce timer
// callback, which only ever calls dispatchAll (safe to call from any
// goroutine since it routes through the pool's own inboxes).
func NewHandlerFactory(deps Deps) func(shardIdx int) func(relaymsg.ReqMonitorMsg) {
	return func(shardIdx int) func(relaymsg.ReqMonitorMsg) {
		s := &shard{
			deps:     deps,
			logger:   deps.Logger.WithComponent("reqmonitor").With(log.Int("shard", shardIdx)),
			monitors: map[string]*tenantMonitor{},
		}
		return s.handle
	}
}

func (s *shard) handle(msg relaymsg.ReqMonitorMsg) {
	switch msg.Kind {
	case relaymsg.ReqMonitorNewSub:
		s.newSub(msg.Sub)
	case relaymsg.ReqMonitorRemoveSub:
		s.removeSub(msg.ConnID, msg.SubID)
	case relaymsg.ReqMonitorCloseConn:
		s.closeConn(msg.ConnID)
	case relaymsg.ReqMonitorDBChange:
		s.dbChange(msg.TenantID)
	}
}

// monitorFor returns tenantID's monitor, creating it and starting its
// debounced fsnotify watcher on first use (spec.md §4.6: "on first
// subscription for a tenant, create the monitor and start a watcher").
func (s *shard) monitorFor(tenantID string) *tenantMonitor {
	if tm, ok := s.monitors[tenantID]; ok {
		return tm
	}
	tm := &tenantMonitor{
		subs:        map[subKey]*relaymsg.Subscription{},
		subsPerConn: map[uint64]int{},
		currEventID: math.MaxUint64,
	}
	s.monitors[tenantID] = tm
	s.startWatcher(tenantID, tm)
	return tm
}

func (s *shard) startWatcher(tenantID string, tm *tenantMonitor) {
	env, err := s.deps.Registry.Env(tenantID)
	if err != nil {
		s.logger.Error("open tenant env for watch failed", log.Err(err), log.Str("tenant", tenantID))
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Error("create fsnotify watcher failed", log.Err(err))
		return
	}
	if err := watcher.Add(env.DataPath()); err != nil {
		s.logger.Error("watch tenant data dir failed", log.Err(err), log.Str("tenant", tenantID))
		_ = watcher.Close()
		return
	}
	tm.watcher = watcher

	go func() {
		var debounce *time.Timer
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if debounce == nil {
					debounce = time.AfterFunc(debounceWindow, func() {
						s.deps.SelfPool.dispatchAll(func(int) relaymsg.ReqMonitorMsg {
							return relaymsg.ReqMonitorMsg{Kind: relaymsg.ReqMonitorDBChange, TenantID: tenantID}
						})
					})
				} else {
					debounce.Reset(debounceWindow)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// newSub implements spec.md §4.6: re-scan from the Query Scheduler's
// pre-backfill high-water levId to close the EOSE/monitor handoff gap,
// then register the sub for tailing.
func (s *shard) newSub(sub *relaymsg.Subscription) {
	tm := s.monitorFor(sub.TenantID)

	env, err := s.deps.Registry.Env(sub.TenantID)
	if err != nil {
		s.deps.Sender.Send(sub.ConnID, wire.NoticeError("bad req: "+err.Error()))
		return
	}

	latestEventID := env.MaxLevID()
	if tm.currEventID > latestEventID {
		tm.currEventID = latestEventID
	}

	gapStart := sub.LatestEventID
	if err := env.IterEventsFrom(gapStart, func(levID uint64, p *nostr.PackedEvent) bool {
		if sub.Filters.Match(p) {
			s.deps.Sender.SendEventToBatch([]relaymsg.Recipient{{ConnID: sub.ConnID, SubID: sub.ID}}, p.JSON)
		}
		return true
	}); err != nil {
		s.logger.Error("gap-closing rescan failed", log.Err(err), log.Str("tenant", sub.TenantID))
	}
	sub.LatestEventID = latestEventID

	if tm.subsPerConn[sub.ConnID] >= s.deps.MaxSubscriptionsPerConn {
		s.deps.Sender.Send(sub.ConnID, wire.NoticeError(wire.MsgTooManyConcurrentReqs))
		return
	}
	tm.subs[subKey{sub.ConnID, sub.ID}] = sub
	tm.subsPerConn[sub.ConnID]++
}

// dbChange implements spec.md §4.6's DBChange handler: re-scan new commits
// since currEventId and fan them out to every matching live sub.
func (s *shard) dbChange(tenantID string) {
	tm, ok := s.monitors[tenantID]
	if !ok {
		return
	}
	env, err := s.deps.Registry.Env(tenantID)
	if err != nil {
		s.logger.Error("open tenant env on db change failed", log.Err(err), log.Str("tenant", tenantID))
		return
	}

	latestEventID := env.MaxLevID()
	if err := env.IterEventsFrom(tm.currEventID, func(levID uint64, p *nostr.PackedEvent) bool {
		var recipients []relaymsg.Recipient
		for _, sub := range tm.subs {
			if sub.Filters.Match(p) {
				recipients = append(recipients, relaymsg.Recipient{ConnID: sub.ConnID, SubID: sub.ID})
			}
		}
		if len(recipients) > 0 {
			s.deps.Sender.SendEventToBatch(recipients, p.JSON)
		}
		return true
	}); err != nil {
		s.logger.Error("db change rescan failed", log.Err(err), log.Str("tenant", tenantID))
		return
	}
	tm.currEventID = latestEventID
}

// removeSub implements spec.md §4.6: "RemoveSub iterates every tenant's
// monitor" because this pool doesn't know which tenant a bare (connId,
// subId) pair belongs to.
func (s *shard) removeSub(connID uint64, subID string) {
	key := subKey{connID, subID}
	for _, tm := range s.monitors {
		if _, ok := tm.subs[key]; ok {
			delete(tm.subs, key)
			if tm.subsPerConn[connID] > 0 {
				tm.subsPerConn[connID]--
			}
		}
	}
}

func (s *shard) closeConn(connID uint64) {
	for _, tm := range s.monitors {
		for k := range tm.subs {
			if k.connID == connID {
				delete(tm.subs, k)
			}
		}
		delete(tm.subsPerConn, connID)
	}
}
