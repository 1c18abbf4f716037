// Package ws adapts a gorilla/websocket connection to the session.Conn
// contract (spec.md §4.H / SPEC_FULL.md §4.H): binary frames carrying the
// wire-encoded envelope, one message per websocket frame.
package ws

import (
	"bytes"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/relayforge/hostess/internal/ratemeter"
	"github.com/relayforge/hostess/internal/wire"
)

// Conn implements session.Conn. Send blocks until the underlying write
// completes or fails — deliberately, unlike a fire-and-forget broadcast
// queue: a slow client only ever slows its own fan-out, never another
// client's delivery or the owning instance's tick clock (spec.md §5).
type Conn struct {
	ws   *websocket.Conn
	rate *ratemeter.Meter
}

// New wraps an already-upgraded websocket connection.
func New(wsConn *websocket.Conn) *Conn {
	return &Conn{ws: wsConn, rate: ratemeter.New()}
}

// Send encodes and writes one server message as a single binary frame.
func (c *Conn) Send(msg wire.ServerMsg) error {
	frame, err := wire.EncodeServerMsg(msg)
	if err != nil {
		return fmt.Errorf("ws: encode server msg: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("ws: write: %w", err)
	}
	c.rate.Add(len(frame))
	return nil
}

// BytesPerSecond reports this connection's smoothed outbound send rate,
// read by the instance runtime on Ping.
func (c *Conn) BytesPerSecond() float32 { return c.rate.PerSecond() }

// Next reads and decodes exactly one client message, blocking until a
// frame arrives or the connection errors/closes.
func (c *Conn) Next() (wire.ClientMsg, error) {
	kind, data, err := c.ws.ReadMessage()
	if err != nil {
		return wire.ClientMsg{}, fmt.Errorf("ws: read: %w", err)
	}
	if kind != websocket.BinaryMessage {
		return wire.ClientMsg{}, fmt.Errorf("ws: unexpected frame kind %d, want binary", kind)
	}

	msg, err := wire.DecodeClientMsg(bytes.NewReader(data))
	if err != nil {
		return wire.ClientMsg{}, fmt.Errorf("ws: decode client msg: %w", err)
	}
	return msg, nil
}

// Close tears down the underlying websocket connection.
func (c *Conn) Close() error { return c.ws.Close() }
