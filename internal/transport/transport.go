// Package transport is the full-duplex text channel between the client and the game
// server. Connections never reconnect on their own; the session decides when to dial.
package transport

import (
	"context"
	"errors"
)

var ErrNotConnected = errors.New("transport: not connected")

// Conn is one physical connection. Send is safe for concurrent use.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Handler receives connection events. Every callback carries the Conn it belongs to
// so a consumer can drop events from a connection it has already replaced.
// Callbacks run on transport goroutines and must not block for long.
type Handler interface {
	OnOpen(c Conn)
	OnMessage(c Conn, payload []byte)
	OnError(c Conn, err error)
	OnClose(c Conn, err error)
}

// Dialer starts a connection attempt. Open returns immediately; the outcome arrives
// via OnOpen, or OnError followed by OnClose. ctx bounds the connection lifetime.
type Dialer interface {
	Open(ctx context.Context, h Handler) (Conn, error)
}
