// Package ingest implements the Ingester pool: the first stage every
// client frame passes through after the Websocket pool hands it off
// (spec.md §4.2). One shard handles every frame from the connIds hashed to
// it, owns a private nostr.Verifier and auth.Gate, and never touches
// another shard's state — the concurrency model generalized from
// orig:RelayIngester.cpp's per-thread flat_hash_map<connId,AuthStatus*>.
package ingest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang/snappy"

	"github.com/nostrhub/nostrhub/internal/relay/auth"
	"github.com/nostrhub/nostrhub/internal/relay/filter"
	"github.com/nostrhub/nostrhub/internal/relay/nostr"
	"github.com/nostrhub/nostrhub/internal/relay/pool"
	"github.com/nostrhub/nostrhub/internal/relay/relaymsg"
	"github.com/nostrhub/nostrhub/internal/relay/tenant"
	"github.com/nostrhub/nostrhub/internal/relay/wire"
	"github.com/nostrhub/nostrhub/pkg/log"
)

// Deps collects everything one Ingester shard needs to resolve a frame into
// a dispatch on a downstream pool. All fields are shared read-mostly state
// except the per-shard pieces NewHandlerFactory constructs (auth.Gate,
// nostr.Verifier, the snappy scratch buffer).
type Deps struct {
	Registry  *tenant.Registry
	Directory *tenant.Directory

	Sender relaymsg.Sender

	WriterPool     *pool.Pool[relaymsg.WriterMsg]
	ReqWorkerPool  *pool.Pool[relaymsg.ReqWorkerMsg]
	NegentropyPool *pool.Pool[relaymsg.NegentropyMsg]

	// ServiceURL is the relay's own wss:// URL used to validate AUTH's
	// "relay" tag and to gate protected events at all (spec.md §4.3): a
	// blank value flatly blocks every protected event.
	ServiceURL string

	MaxReqFilterSize  int
	ChallengeBytes    int
	NegentropyEnabled bool
	MaxSyncEvents     int

	Logger log.Logger
}

// shard holds one Ingester worker's private state.
type shard struct {
	deps     Deps
	verifier *nostr.Verifier
	gate     *auth.Gate
	scratch  []byte
	logger   log.Logger
}

// NewHandlerFactory returns the per-shard handler constructor for
// pool.NewWithFactory: each shard gets its own Verifier, Gate, and
// decompression scratch buffer, never shared across goroutines.
func NewHandlerFactory(deps Deps) func(shardIdx int) func(relaymsg.IngestMsg) {
	return func(shardIdx int) func(relaymsg.IngestMsg) {
		s := &shard{
			deps:     deps,
			verifier: nostr.NewVerifier(),
			gate:     auth.NewGate(deps.ChallengeBytes),
			logger:   deps.Logger.WithComponent("ingest").With(log.Int("shard", shardIdx)),
		}
		return s.handle
	}
}

func (s *shard) handle(msg relaymsg.IngestMsg) {
	switch msg.Kind {
	case relaymsg.IngestClientMessage:
		s.handleClientMessage(msg)
	case relaymsg.IngestCloseConn:
		s.handleCloseConn(msg.ConnID)
	}
}

func (s *shard) handleCloseConn(connID uint64) {
	s.gate.Remove(connID)
	s.deps.WriterPool.Dispatch(relaymsg.WriterMsg{Kind: relaymsg.WriterCloseConn, ConnID: connID})
	s.deps.ReqWorkerPool.Dispatch(relaymsg.ReqWorkerMsg{Kind: relaymsg.ReqWorkerCloseConn, ConnID: connID})
	if s.deps.NegentropyEnabled {
		s.deps.NegentropyPool.Dispatch(relaymsg.NegentropyMsg{Kind: relaymsg.NegentropyCloseConn, ConnID: connID})
	}
}

func (s *shard) handleClientMessage(msg relaymsg.IngestMsg) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handling client message recovered", log.Any("panic", r), log.Uint64("connId", msg.ConnID))
			s.sendNoticeError(msg.ConnID, "bad msg: internal error")
		}
	}()

	payload := bytes.TrimSpace(msg.Payload)
	if len(payload) == 0 {
		return // newline-only debug pings are silently ignored, matching orig
	}
	if payload[0] != '[' {
		s.sendNoticeError(msg.ConnID, "unparseable message")
		return
	}

	frame, err := wire.Parse(payload)
	if err != nil {
		s.sendNoticeError(msg.ConnID, err.Error())
		return
	}

	switch frame.Command {
	case wire.CmdEvent:
		s.processEvent(msg.ConnID, msg.TenantID, frame)
	case wire.CmdAuth:
		s.processAuth(msg.ConnID, frame)
	case wire.CmdReq:
		if err := s.processReq(msg.ConnID, msg.TenantID, frame); err != nil {
			s.sendNoticeError(msg.ConnID, "bad req: "+err.Error())
		}
	case wire.CmdClose:
		if err := s.processClose(msg.ConnID, frame); err != nil {
			s.sendNoticeError(msg.ConnID, "bad close: "+err.Error())
		}
	default:
		if strings.HasPrefix(string(frame.Command), "NEG-") {
			if !s.deps.NegentropyEnabled {
				s.sendNoticeError(msg.ConnID, "negentropy error: negentropy disabled")
				return
			}
			if err := s.processNegentropy(msg.ConnID, msg.TenantID, frame); err != nil {
				s.sendNoticeError(msg.ConnID, "negentropy error: "+err.Error())
			}
			return
		}
		s.sendNoticeError(msg.ConnID, "unknown cmd")
	}
}

func (s *shard) sendNoticeError(connID uint64, msg string) {
	s.deps.Sender.Send(connID, wire.NoticeError(msg))
}

func (s *shard) sendOK(connID uint64, idHex string, ok bool, msg string) {
	s.deps.Sender.Send(connID, wire.OK(idHex, ok, msg))
}

// processEvent implements spec.md §4.2/§4.3's EVENT path: parse, verify,
// tenant-write-check, protected-event AUTH gate, dedup, enqueue to Writer.
// Any failure here becomes `OK=false` with a prefixed reason (`invalid:`,
// `restricted:`, the AUTH gate's `blocked:`/`auth-required:`, or `error:`),
// never a NOTICE — the client needs the event id to correlate the rejection.
func (s *shard) processEvent(connID uint64, tenantID string, frame wire.Frame) {
	if len(frame.Args) < 1 {
		s.sendOK(connID, "?", false, "invalid: missing event object")
		return
	}
	rawEvent := frame.Args[0]

	var ev nostr.Event
	if err := json.Unmarshal(rawEvent, &ev); err != nil {
		s.sendOK(connID, "?", false, "invalid: "+err.Error())
		return
	}
	idHex := ev.ID
	if idHex == "" {
		idHex = "?"
	}

	if err := s.verifier.Verify(&ev); err != nil {
		s.sendOK(connID, idHex, false, "invalid: "+err.Error())
		return
	}

	packed, err := nostr.Pack(&ev, rawEvent)
	if err != nil {
		s.sendOK(connID, idHex, false, "invalid: "+err.Error())
		return
	}
	idHex = packed.IDHex()

	if s.deps.Directory != nil && !s.deps.Directory.CanWrite(tenantID, ev.Pubkey) {
		s.sendOK(connID, idHex, false, "restricted: access denied to this tenant")
		return
	}

	if ev.IsProtected() {
		decision, err := s.gate.CheckProtected(connID, ev.Pubkey, s.deps.ServiceURL)
		if err != nil {
			s.sendOK(connID, idHex, false, "error: "+err.Error())
			return
		}
		if decision.ChallengeToSend != "" {
			s.deps.Sender.Send(connID, wire.AuthChallenge(decision.ChallengeToSend))
		}
		if !decision.Allow {
			s.sendOK(connID, idHex, false, decision.OKMessage)
			return
		}
	}

	env, err := s.deps.Registry.Env(tenantID)
	if err != nil {
		s.sendOK(connID, idHex, false, "error: "+err.Error())
		return
	}
	if _, found, err := env.LookupByID(packed.ID); err != nil {
		s.sendOK(connID, idHex, false, "error: "+err.Error())
		return
	} else if found {
		s.sendOK(connID, idHex, true, "duplicate: have this event")
		return
	}

	s.deps.WriterPool.Dispatch(relaymsg.WriterMsg{
		Kind:     relaymsg.WriterAddEvent,
		ConnID:   connID,
		TenantID: tenantID,
		Packed:   packed,
		IDHex:    idHex,
	})
}

// processAuth implements spec.md §4.3's AUTH command: parse+verify the
// challenge-response event, hand it to the shard's Gate.
func (s *shard) processAuth(connID uint64, frame wire.Frame) {
	if s.deps.ServiceURL == "" {
		s.deps.Sender.Send(connID, wire.Notice("auth failed: relay needs serviceUrl to be configured before AUTH can work"))
		return
	}
	if len(frame.Args) < 1 {
		s.deps.Sender.Send(connID, wire.Notice("auth failed: missing event object"))
		return
	}

	var ev nostr.Event
	if err := json.Unmarshal(frame.Args[0], &ev); err != nil {
		s.deps.Sender.Send(connID, wire.Notice("auth failed: "+err.Error()))
		return
	}
	if err := s.verifier.Verify(&ev); err != nil {
		s.deps.Sender.Send(connID, wire.Notice("auth failed: "+err.Error()))
		return
	}

	pubkey, err := s.gate.ProcessAuth(connID, &ev, s.deps.ServiceURL)
	if err != nil {
		s.deps.Sender.Send(connID, wire.Notice(err.Error()))
		return
	}
	_ = pubkey
	s.sendOK(connID, ev.ID, true, wire.MsgSuccessfullyAuthenticated)
}

// processReq implements spec.md §4.2/§4.5's REQ command: array-size bounds,
// build the filter group, hand the subscription to the Query Scheduler.
func (s *shard) processReq(connID uint64, tenantID string, frame wire.Frame) error {
	if len(frame.Args) < 2 {
		return fmt.Errorf("arr too small")
	}
	if len(frame.Args) > 1+s.deps.MaxReqFilterSize {
		return fmt.Errorf("arr too big")
	}

	subID, err := frame.StringArg(0, "REQ subscription id")
	if err != nil {
		return err
	}

	group := make(filter.Group, 0, len(frame.Args)-1)
	for _, raw := range frame.Args[1:] {
		var f filter.Filter
		if err := json.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("bad filter: %w", err)
		}
		group = append(group, f)
	}

	s.deps.ReqWorkerPool.Dispatch(relaymsg.ReqWorkerMsg{
		Kind:   relaymsg.ReqWorkerNewSub,
		ConnID: connID,
		Sub: &relaymsg.Subscription{
			ConnID:   connID,
			ID:       subID,
			TenantID: tenantID,
			Filters:  group,
		},
	})
	return nil
}

// processClose implements spec.md §4.2's CLOSE command: array size must
// equal exactly 2. Forwarded only to the Query Scheduler, which decrements
// its per-connection count and forwards the removal to Req Monitor
// (orig:RelayReqWorker.cpp's RemoveSub handler).
func (s *shard) processClose(connID uint64, frame wire.Frame) error {
	if len(frame.Args) != 1 {
		return fmt.Errorf("arr too small/big")
	}
	subID, err := frame.StringArg(0, "CLOSE subscription id")
	if err != nil {
		return err
	}
	s.deps.ReqWorkerPool.Dispatch(relaymsg.ReqWorkerMsg{
		Kind:   relaymsg.ReqWorkerRemoveSub,
		ConnID: connID,
		SubID:  subID,
	})
	return nil
}

// processNegentropy implements spec.md §4.2/§4.7's NEG-* commands.
// Payloads are hex-decoded then run through the shard's reusable snappy
// scratch buffer; a payload that isn't valid snappy is passed through
// unchanged, so both compressed and plain hex payloads interoperate.
func (s *shard) processNegentropy(connID uint64, tenantID string, frame wire.Frame) error {
	if len(frame.Args) < 1 {
		return fmt.Errorf("missing subscription id")
	}
	subID, err := frame.StringArg(0, "NEG-OPEN subscription id")
	if err != nil {
		return err
	}

	switch frame.Command {
	case wire.CmdNegOpen:
		if len(frame.Args) < 3 {
			return fmt.Errorf("negentropy query missing elements")
		}
		maxFilterLimit := s.deps.MaxSyncEvents + 1

		var f filter.Filter
		if err := json.Unmarshal(frame.Args[1], &f); err != nil {
			return fmt.Errorf("bad filter: %w", err)
		}
		f.StripTimeBounds()
		if f.Limit == nil || *f.Limit > maxFilterLimit {
			f.Limit = &maxFilterLimit
		}
		strippedJSON, err := json.Marshal(&f)
		if err != nil {
			return err
		}

		payloadHex, err := frame.StringArg(2, "negentropy payload")
		if err != nil {
			return err
		}
		payload, err := s.decodePayload(payloadHex)
		if err != nil {
			return err
		}

		s.deps.NegentropyPool.Dispatch(relaymsg.NegentropyMsg{
			Kind:       relaymsg.NegentropyOpen,
			ConnID:     connID,
			SubID:      subID,
			TenantID:   tenantID,
			FilterJSON: string(strippedJSON),
			Payload:    payload,
		})
	case wire.CmdNegMsg:
		payloadHex, err := frame.StringArg(1, "negentropy payload")
		if err != nil {
			return err
		}
		payload, err := s.decodePayload(payloadHex)
		if err != nil {
			return err
		}
		s.deps.NegentropyPool.Dispatch(relaymsg.NegentropyMsg{
			Kind:   relaymsg.NegentropyContinue,
			ConnID: connID,
			SubID:  subID,
			Payload: payload,
		})
	case wire.CmdNegClose:
		s.deps.NegentropyPool.Dispatch(relaymsg.NegentropyMsg{
			Kind:   relaymsg.NegentropyClose,
			ConnID: connID,
			SubID:  subID,
		})
	default:
		return fmt.Errorf("unknown command")
	}
	return nil
}

// decodePayload hex-decodes raw wire bytes then opportunistically
// snappy-decompresses them, reusing the shard's scratch buffer (spec.md
// §4.2's "decompression scratch buffer for negentropy").
func (s *shard) decodePayload(payloadHex string) ([]byte, error) {
	raw, err := hex.DecodeString(payloadHex)
	if err != nil {
		return nil, fmt.Errorf("negentropy payload not valid hex: %w", err)
	}
	decoded, err := snappy.Decode(s.scratch[:0], raw)
	if err != nil {
		return raw, nil // not snappy-compressed; pass through verbatim
	}
	s.scratch = decoded
	out := make([]byte, len(decoded))
	copy(out, decoded)
	return out, nil
}
