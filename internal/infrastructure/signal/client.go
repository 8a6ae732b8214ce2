package signal

import (
	"context"
	"sync"
	"time"

	"camgate/internal/core/domain"
	apperrors "camgate/pkg/errors"
	"camgate/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientOptions configure the signaling link.
type ClientOptions struct {
	URL            string
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	ReconnectDelay time.Duration
	ReconnectMax   time.Duration
}

func (o *ClientOptions) fillDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
}

// Client maintains the WebSocket link to the signaling server, reconnecting
// with exponential backoff for the life of the process. It implements
// ports.SignalSender; sends while disconnected fail fast rather than queue,
// since stale signaling is worthless after a reconnect.
type Client struct {
	opts   ClientOptions
	codec  Codec
	router *Router
	log    *zap.SugaredLogger

	// register builds the registration frame for each (re)connect, so a
	// fresh auth token is minted every time.
	register func() domain.Registration
	// onConnect runs after successful registration on every connect.
	onConnect func(ctx context.Context)

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(opts ClientOptions, register func() domain.Registration, onConnect func(ctx context.Context), log *zap.SugaredLogger) *Client {
	opts.fillDefaults()
	return &Client{
		opts:      opts,
		register:  register,
		onConnect: onConnect,
		log:       log,
	}
}

// BindRouter attaches the inbound frame router. The client doubles as the
// session manager's sender, so the router cannot exist at construction time;
// it must be bound before Run.
func (c *Client) BindRouter(router *Router) {
	c.router = router
}

// Run dials and serves the link until the context ends. Each established
// connection is read by a single loop, preserving server frame order.
func (c *Client) Run(ctx context.Context) {
	backoff := retry.Backoff{
		Initial:    c.opts.ReconnectDelay,
		Max:        c.opts.ReconnectMax,
		Multiplier: 2.0,
		Jitter:     true,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.connect(ctx); err != nil {
			delay := backoff.Next()
			c.log.Warnw("signaling connect failed", "url", c.opts.URL, "retry_in", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		backoff.Reset()

		c.serve(ctx)

		if ctx.Err() != nil {
			return
		}
		delay := backoff.Next()
		c.log.Warnw("signaling link lost, reconnecting", "retry_in", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "signaling dial failed")
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.Send(c.register()); err != nil {
		c.dropConn(conn)
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "registration send failed")
	}
	c.log.Infow("registered with signaling server", "url", c.opts.URL)

	if c.onConnect != nil {
		c.onConnect(ctx)
	}
	return nil
}

// serve reads frames until the connection dies, pinging in the background.
func (c *Client) serve(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	go func() {
		<-pingCtx.Done()
		// Unblocks ReadMessage on shutdown.
		if ctx.Err() != nil {
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warnw("signaling read failed", "error", err)
			}
			break
		}
		c.router.HandleFrame(ctx, data)
	}

	c.dropConn(conn)
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			c.mu.Unlock()
			if err != nil {
				c.log.Debugw("ping failed", "error", err)
				return
			}
		}
	}
}

// Send encodes and writes one outbound message. Fails with a transport error
// while the link is down.
func (c *Client) Send(msg domain.Outbound) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return apperrors.New(apperrors.ErrCodeTransport, "signaling link down")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "signaling write failed")
	}
	return nil
}

// Close tears the current connection down. Run's loop treats this like any
// other link loss unless its context has ended.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}
