// Package ws implements the Websocket pool (spec.md §4.8): the transport
// layer every other pool reaches through relaymsg.Sender. Grounded on
// mb0-daql's hub/wshub (gorilla/websocket upgrade, one read loop plus one
// write loop per connection, a ticker-driven ping), adapted from daql's
// Subj/Tok/Raw message framing to this relay's raw JSON-array frames.
package ws

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostrhub/nostrhub/internal/relay/pool"
	"github.com/nostrhub/nostrhub/internal/relay/relaymsg"
	"github.com/nostrhub/nostrhub/internal/relay/wire"
	"github.com/nostrhub/nostrhub/pkg/log"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 55 * time.Second
	defaultSendCap = 256
)

// Deps collects what the Websocket pool needs to route an incoming frame
// onward to the Ingester.
type Deps struct {
	IngestPool *pool.Pool[relaymsg.IngestMsg]

	// SendBufferCap bounds each connection's outbound queue. A connection
	// that can't keep up has its oldest unsent frame dropped rather than
	// stalling the sender (spec.md §4.8 names no back-pressure policy for
	// this boundary since the transport, not a pool inbox, owns it).
	SendBufferCap int

	Logger log.Logger
}

// Pool owns every live connection and satisfies relaymsg.Sender for the
// rest of the relay.
type Pool struct {
	deps     Deps
	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu    sync.RWMutex
	conns map[uint64]*conn
}

// conn is one upgraded connection's write-side state.
type conn struct {
	id   uint64
	wc   *websocket.Conn
	send chan []byte
}

// New builds the pool. Deps.IngestPool may be nil at construction time —
// every other pool needs this Pool as their relaymsg.Sender before the
// Ingester pool exists to hand it, so callers wire it in afterward with
// SetIngestPool, mirroring reqmonitor.PoolHandle's construct-inject-set
// sequence.
func New(deps Deps) *Pool {
	if deps.SendBufferCap <= 0 {
		deps.SendBufferCap = defaultSendCap
	}
	return &Pool{
		deps:     deps,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    map[uint64]*conn{},
	}
}

// SetIngestPool completes construction once the Ingester pool exists.
// Must be called before Handler serves any connection.
func (p *Pool) SetIngestPool(ingestPool *pool.Pool[relaymsg.IngestMsg]) {
	p.deps.IngestPool = ingestPool
}

// Handler upgrades the request and blocks for the connection's lifetime.
// tenantID is resolved by the caller (the HTTP server, per spec.md §4.1)
// and carried on every frame the connection produces.
func (p *Pool) Handler(tenantID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wc, err := p.upgrader.Upgrade(w, r, nil)
		if err != nil {
			p.deps.Logger.Error("websocket upgrade failed", log.Err(err))
			return
		}

		connID := p.nextID.Add(1)
		c := &conn{id: connID, wc: wc, send: make(chan []byte, p.deps.SendBufferCap)}

		p.mu.Lock()
		p.conns[connID] = c
		p.mu.Unlock()

		ipAddr := r.RemoteAddr

		done := make(chan struct{})
		go p.writeLoop(c, done)

		p.readLoop(c, tenantID, ipAddr)
		close(done)

		p.mu.Lock()
		delete(p.conns, connID)
		p.mu.Unlock()

		_ = wc.Close()
		p.deps.IngestPool.Dispatch(relaymsg.IngestMsg{Kind: relaymsg.IngestCloseConn, ConnID: connID})
	}
}

func (p *Pool) readLoop(c *conn, tenantID, ipAddr string) {
	for {
		op, r, err := c.wc.NextReader()
		if err != nil {
			return
		}
		if op != websocket.TextMessage {
			continue
		}
		payload, err := readAll(r)
		if err != nil {
			return
		}
		p.deps.IngestPool.Dispatch(relaymsg.IngestMsg{
			Kind:     relaymsg.IngestClientMessage,
			ConnID:   c.id,
			IPAddr:   ipAddr,
			TenantID: tenantID,
			Payload:  payload,
		})
	}
}

func (p *Pool) writeLoop(c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readAll(r io.Reader) ([]byte, error) {
	buf := make([]byte, 0, 1024)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return buf, nil
			}
			return buf, err
		}
	}
}

// Send implements relaymsg.Sender: queue payload for connID, dropping the
// oldest queued frame if the connection's buffer is full.
func (p *Pool) Send(connID uint64, data []byte) {
	p.mu.RLock()
	c, ok := p.conns[connID]
	p.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// SendBinary delivers a raw binary frame, used for transport-level probes
// that don't carry a JSON command (spec.md §4.8 names this as a distinct
// operation from Send).
func (p *Pool) SendBinary(connID uint64, data []byte) {
	p.mu.RLock()
	c, ok := p.conns[connID]
	p.mu.RUnlock()
	if !ok {
		return
	}
	c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.wc.WriteMessage(websocket.BinaryMessage, data)
}

// SendEventToBatch implements relaymsg.Sender: synthesize one
// `["EVENT", subId, evJson]` per recipient and write it to that
// recipient's connection (spec.md §4.8).
func (p *Pool) SendEventToBatch(recipients []relaymsg.Recipient, evJSON []byte) {
	for _, r := range recipients {
		p.Send(r.ConnID, wire.Event(r.SubID, evJSON))
	}
}

// GracefulShutdown sends a normal-closure close frame to every live
// connection and closes it; frames still queued for a connection are not
// flushed. It then blocks until ctx is done.
func (p *Pool) GracefulShutdown(ctx context.Context) {
	p.mu.RLock()
	conns := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	for _, c := range conns {
		c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.wc.Close()
	}

	done := ctx.Done()
	if done != nil {
		<-done
	}
}

// ConnCount reports the number of live connections, used by introspection
// endpoints.
func (p *Pool) ConnCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}
