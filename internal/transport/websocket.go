package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// HeaderProvider supplies extra handshake headers (e.g. Origin).
type HeaderProvider func() map[string]string

type WebSocketOptions struct {
	DialTimeout    time.Duration
	PingInterval   time.Duration
	PingTimeout    time.Duration
	ReadLimit      int64
	HeaderProvider HeaderProvider
	Logger         *zap.Logger
}

// WebSocketDialer dials the game server over nhooyr websocket.
type WebSocketDialer struct {
	url  string
	opts WebSocketOptions
}

func NewWebSocketDialer(url string, opts WebSocketOptions) *WebSocketDialer {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 3 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &WebSocketDialer{url: url, opts: opts}
}

func (d *WebSocketDialer) Open(ctx context.Context, h Handler) (Conn, error) {
	if h == nil {
		return nil, errors.New("transport: nil handler")
	}
	if strings.TrimSpace(d.url) == "" {
		return nil, errors.New("transport: empty url")
	}
	rootCtx, cancel := context.WithCancel(ctx)
	c := &wsConn{dialer: d, handler: h, ctx: rootCtx, cancel: cancel}
	go c.run()
	return c, nil
}

func (d *WebSocketDialer) buildHeaders() http.Header {
	hdr := http.Header{}
	if d.opts.HeaderProvider == nil {
		return hdr
	}
	for k, v := range d.opts.HeaderProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

type wsConn struct {
	dialer  *WebSocketDialer
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	conn    *websocket.Conn
	closing bool

	finishOnce sync.Once
}

func (c *wsConn) run() {
	log := c.dialer.opts.Logger
	dialCtx, cancel := context.WithTimeout(c.ctx, c.dialer.opts.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.dialer.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.dialer.buildHeaders(),
	})
	cancel()
	if err != nil {
		if c.isClosing() {
			c.finish(nil)
			return
		}
		log.Warn("ws_dial_failed", zap.String("url", c.dialer.url), zap.Error(err))
		c.handler.OnError(c, fmt.Errorf("dial: %w", err))
		c.finish(err)
		return
	}
	conn.SetReadLimit(c.dialer.opts.ReadLimit)

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "close")
		c.finish(nil)
		return
	}
	c.conn = conn
	c.mu.Unlock()

	log.Debug("ws_connected", zap.String("url", c.dialer.url))
	c.handler.OnOpen(c)

	go c.pingLoop(conn)
	c.listen(conn)
}

func (c *wsConn) listen(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.isClosing() {
				c.finish(nil)
				return
			}
			c.dialer.opts.Logger.Debug("ws_read_ended", zap.Error(err))
			c.finish(err)
			return
		}
		c.handler.OnMessage(c, data)
	}
}

func (c *wsConn) pingLoop(conn *websocket.Conn) {
	t := time.NewTicker(c.dialer.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.ctx, c.dialer.opts.PingTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.dialer.opts.Logger.Warn("ws_ping_failed", zap.Error(err))
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// finish reports the close exactly once and releases the connection.
func (c *wsConn) finish(err error) {
	c.finishOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusGoingAway, "closed")
		}
		c.handler.OnClose(c, err)
	})
}

func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	c.mu.RLock()
	conn := c.conn
	closing := c.closing
	c.mu.RUnlock()
	if conn == nil || closing {
		return ErrNotConnected
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

// Close returns before the close handshake completes; OnClose follows.
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	conn := c.conn
	c.mu.Unlock()

	go func() {
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "close")
		}
		if c.cancel != nil {
			c.cancel()
		}
	}()
	return nil
}

func (c *wsConn) isClosing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closing
}
