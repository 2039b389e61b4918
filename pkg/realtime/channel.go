// Package realtime is the long-lived WebSocket connection to the chat
// server. Inbound events are published onto the message bus; outbound
// events are written directly, serialized and optionally paced.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tinyland-inc/picochat/pkg/bus"
	"github.com/tinyland-inc/picochat/pkg/chat"
	"github.com/tinyland-inc/picochat/pkg/logger"
)

// ErrNotConnected is returned by Emit when the channel is not running.
var ErrNotConnected = errors.New("realtime channel not connected")

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

type Option func(*Channel)

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Channel) { c.dialer.HandshakeTimeout = d }
}

// WithPingInterval enables keepalive pings; the read deadline is set to
// twice the interval and extended on every pong.
func WithPingInterval(d time.Duration) Option {
	return func(c *Channel) { c.pingInterval = d }
}

// WithEmitRate paces outbound events with a token bucket. A zero rate disables pacing.
func WithEmitRate(perSecond float64, burst int) Option {
	return func(c *Channel) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithHeader(h http.Header) Option {
	return func(c *Channel) { c.header = h }
}

type Channel struct {
	url    string
	selfID string
	bus    *bus.MessageBus

	dialer       *websocket.Dialer
	header       http.Header
	pingInterval time.Duration
	limiter      *rate.Limiter

	writeMu  sync.Mutex
	conn     *websocket.Conn
	running  atomic.Bool
	stopping atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewChannel(url, selfID string, mb *bus.MessageBus, opts ...Option) *Channel {
	d := *websocket.DefaultDialer
	c := &Channel{
		url:    url,
		selfID: selfID,
		bus:    mb,
		dialer: &d,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Name() string {
	return "realtime"
}

func (c *Channel) IsRunning() bool {
	return c.running.Load()
}

// Start dials the server and identifies this connection before any other
// event is written.
func (c *Channel) Start(ctx context.Context) error {
	if c.running.Load() {
		return nil
	}
	if c.selfID == "" {
		return errors.New("realtime: user id is required")
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	if err := c.write(EventIdentify, c.selfID); err != nil {
		conn.Close()
		return fmt.Errorf("identify: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.stopping.Store(false)
	c.running.Store(true)

	c.wg.Add(1)
	go c.readPump(pumpCtx, conn)
	if c.pingInterval > 0 {
		c.wg.Add(1)
		go c.pingPump(pumpCtx, conn)
	}

	logger.InfoCF("realtime", "Connected", map[string]any{
		"url":     c.url,
		"user_id": c.selfID,
	})
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()
	if conn == nil {
		return nil
	}

	c.stopping.Store(true)
	c.running.Store(false)
	if c.cancel != nil {
		c.cancel()
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	conn.Close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.writeMu.Lock()
	c.conn = nil
	c.writeMu.Unlock()
	logger.InfoC("realtime", "Disconnected")
	return nil
}

// Emit sends a sendMessage event. Delivery is fire-and-forget.
func (c *Channel) Emit(ctx context.Context, msg chat.Message) error {
	return c.send(ctx, EventSendMessage, msg)
}

// RequestContacts asks for the roster; the reply arrives as a contacts bus event.
func (c *Channel) RequestContacts(ctx context.Context, excludeID string) error {
	return c.send(ctx, EventGetUsers, getUsersPayload{ExcludeID: excludeID})
}

func (c *Channel) send(ctx context.Context, event string, payload any) error {
	if !c.running.Load() {
		return ErrNotConnected
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.write(event, payload)
}

func (c *Channel) write(event string, payload any) error {
	frame, err := encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Channel) readPump(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	defer c.running.Store(false)

	if c.pingInterval > 0 {
		pongWait := 2 * c.pingInterval
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !c.stopping.Load() {
				logger.WarnCF("realtime", "Connection lost", map[string]any{
					"error": err.Error(),
				})
			}
			return
		}
		c.dispatch(ctx, frame)
	}
}

func (c *Channel) dispatch(ctx context.Context, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		logger.DebugCF("realtime", "Dropping malformed frame", map[string]any{
			"error": err.Error(),
		})
		return
	}

	var ev bus.Event
	switch env.Event {
	case EventReceiveMessage:
		var msg chat.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			logger.WarnCF("realtime", "Bad receiveMessage payload", map[string]any{
				"error": err.Error(),
			})
			return
		}
		ev = bus.MessageEvent(msg)
	case EventUsersList:
		var contacts []chat.Contact
		if err := json.Unmarshal(env.Data, &contacts); err != nil {
			logger.WarnCF("realtime", "Bad usersList payload", map[string]any{
				"error": err.Error(),
			})
			return
		}
		ev = bus.ContactsEvent(contacts)
	default:
		logger.DebugCF("realtime", "Ignoring event", map[string]any{"event": env.Event})
		return
	}

	if err := c.bus.PublishInbound(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		logger.WarnCF("realtime", "Inbound event dropped", map[string]any{
			"event": env.Event,
			"error": err.Error(),
		})
	}
}

func (c *Channel) pingPump(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.DebugCF("realtime", "Ping failed", map[string]any{"error": err.Error()})
				return
			}
		}
	}
}
