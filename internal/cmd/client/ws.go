// Package client provides a small websocket debug client for talking to a
// relay's EVENT/REQ/CLOSE frames from a terminal, grounded on
// mb0-daql:hub/wshub/cli.go's Client/Dialer/TokenProvider shape.
package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// TokenProvider supplies an AUTH header for a relay URL, mirroring
// mb0-daql's client-side token cache.
type TokenProvider interface {
	Token(url string) (http.Header, error)
}

type nilProvider struct{}

func (*nilProvider) Token(string) (http.Header, error) { return nil, nil }

// Client dials one relay connection and exchanges raw Nostr frames.
type Client struct {
	url string
	*websocket.Dialer
	TokenProvider
}

// NewClient builds a debug client targeting url (e.g. "ws://127.0.0.1:7777/").
func NewClient(url string) *Client {
	return &Client{url: url}
}

func (c *Client) init() {
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.TokenProvider == nil {
		c.TokenProvider = (*nilProvider)(nil)
	}
}

// Conn is one open debug session.
type Conn struct {
	wc *websocket.Conn
}

// Connect dials the relay and returns an open Conn.
func (c *Client) Connect() (*Conn, error) {
	c.init()
	hdr, err := c.Token(c.url)
	if err != nil {
		return nil, err
	}
	wc, _, err := c.Dial(c.url, hdr)
	if err != nil {
		return nil, err
	}
	return &Conn{wc: wc}, nil
}

// SendEvent writes an `["EVENT", <event>]` frame.
func (c *Conn) SendEvent(event json.RawMessage) error {
	frame, err := json.Marshal([]any{"EVENT", event})
	if err != nil {
		return err
	}
	return c.wc.WriteMessage(websocket.TextMessage, frame)
}

// SendReq writes an `["REQ", subID, filters...]` frame.
func (c *Conn) SendReq(subID string, filters ...json.RawMessage) error {
	frame := []any{"REQ", subID}
	for _, f := range filters {
		frame = append(frame, f)
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.wc.WriteMessage(websocket.TextMessage, b)
}

// SendClose writes a `["CLOSE", subID]` frame.
func (c *Conn) SendClose(subID string) error {
	b, err := json.Marshal([]any{"CLOSE", subID})
	if err != nil {
		return err
	}
	return c.wc.WriteMessage(websocket.TextMessage, b)
}

// ReadFrame blocks for the next text frame and returns it decoded as a raw
// JSON array (["EVENT", ...], ["EOSE", ...], ["NOTICE", ...], etc).
func (c *Conn) ReadFrame() ([]json.RawMessage, error) {
	_, data, err := c.wc.ReadMessage()
	if err != nil {
		return nil, err
	}
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.wc.Close() }
