package binance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrAlreadyConnected is returned by Connect when the manager is not Disconnected.
var ErrAlreadyConnected = errors.New("binance: connection already active")

// EventHandler receives decoded events on the receive goroutine, in frame order.
// Implementations must not block.
type EventHandler interface {
	OnTrade(*Trade)
	OnMiniTicker(*MiniTicker)
	OnKline(*Kline)
}

type noopHandler struct{}

func (noopHandler) OnTrade(*Trade)           {}
func (noopHandler) OnMiniTicker(*MiniTicker) {}
func (noopHandler) OnKline(*Kline)           {}

// Config holds the connection parameters of a Manager.
type Config struct {
	URL           string
	Streams       []string
	SubscribeID   int64
	UnsubscribeID int64

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 disables the idle deadline
	WriteTimeout     time.Duration
	CloseTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 5 * time.Second
	}
}

// Manager owns one websocket connection to the market-data relay: it
// subscribes, answers keep-alive pings, decodes frames and hands events to
// its EventHandler. It never reconnects on its own; supervisors watch
// IsConnected and Done.
type Manager struct {
	cfg     Config
	handler EventHandler
	logger  *zap.Logger
	dialer  *websocket.Dialer

	state    atomic.Int32
	lastPing atomic.Int64

	mu   sync.Mutex // guards conn and done
	conn *websocket.Conn
	done chan struct{}

	writeMu sync.Mutex
}

// NewManager creates a Disconnected manager for the given subscription set.
func NewManager(cfg Config, handler EventHandler, logger *zap.Logger) *Manager {
	cfg.applyDefaults()
	cfg.Streams = append([]string(nil), cfg.Streams...)
	if handler == nil {
		handler = noopHandler{}
	}

	done := make(chan struct{})
	close(done)

	return &Manager{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("url", cfg.URL)),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		done: done,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsConnected reports whether the connection is Open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

// LastPing returns when the server last pinged us, zero if never.
func (m *Manager) LastPing() time.Time {
	ns := m.lastPing.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Done is closed when the receive loop of the latest connection has exited.
// Before the first Connect it is already closed.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Subscriptions returns a copy of the subscription set.
func (m *Manager) Subscriptions() []string {
	return append([]string(nil), m.cfg.Streams...)
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	connectionState.Set(float64(s))
}

func (m *Manager) transition(from, to State) bool {
	if !m.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	connectionState.Set(float64(to))
	return true
}

// Connect dials the relay, subscribes to the full subscription set and starts
// the receive loop on its own goroutine. ctx bounds the handshake only.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.transition(StateDisconnected, StateConnecting) {
		return ErrAlreadyConnected
	}

	conn, resp, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		m.setState(StateDisconnected)
		connectsTotal.WithLabelValues("error").Inc()
		fields := errorFields(err)
		if resp != nil {
			fields = append(fields, zap.Int("http_status", resp.StatusCode))
		}
		m.logger.Error("websocket dial failed", fields...)
		return fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	conn.SetPingHandler(func(payload string) error { return m.onPing(conn, payload) })
	conn.SetPongHandler(func(payload string) error { return m.onPong(conn, payload) })

	done := make(chan struct{})
	m.mu.Lock()
	m.conn = conn
	m.done = done
	m.mu.Unlock()
	m.logger.Info("websocket connected")

	// Close is a no-op until Open, so SUBSCRIBE always precedes UNSUBSCRIBE
	sub := NewSubscribe(m.cfg.Streams, m.cfg.SubscribeID)
	if err := m.writeRequest(conn, sub); err != nil {
		_ = conn.Close()
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		m.setState(StateDisconnected)
		close(done)
		connectsTotal.WithLabelValues("error").Inc()
		m.logger.Error("failed to send subscription", errorFields(err)...)
		return fmt.Errorf("subscribe: %w", err)
	}
	m.setState(StateOpen)
	connectsTotal.WithLabelValues("success").Inc()
	m.logger.Info("subscription sent", zap.Strings("streams", sub.Params), zap.Int64("id", sub.ID))

	go m.receive(conn, done)
	return nil
}

// Close unsubscribes, performs the close handshake and waits for the receive
// loop to exit. It is a no-op unless the connection is Open.
func (m *Manager) Close() error {
	if !m.transition(StateOpen, StateClosing) {
		return nil
	}

	m.mu.Lock()
	conn, done := m.conn, m.done
	m.mu.Unlock()
	if conn == nil {
		// receive loop is already tearing down
		<-done
		return nil
	}

	var errs []error
	unsub := NewUnsubscribe(m.cfg.Streams, m.cfg.UnsubscribeID)
	if err := m.writeRequest(conn, unsub); err != nil {
		errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
	} else {
		m.logger.Info("unsubscribe sent", zap.Strings("streams", unsub.Params), zap.Int64("id", unsub.ID))
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(m.cfg.WriteTimeout))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		errs = append(errs, fmt.Errorf("close handshake: %w", err))
	}

	if len(errs) > 0 {
		_ = conn.Close()
		<-done
		return errors.Join(errs...)
	}

	select {
	case <-done:
	case <-time.After(m.cfg.CloseTimeout):
		m.logger.Warn("close handshake timed out, dropping connection")
		_ = conn.Close()
		<-done
	}
	return nil
}

func (m *Manager) writeRequest(conn *websocket.Conn, req StreamRequest) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return conn.WriteJSON(req)
}

// receive is the only reader of conn. Ping, pong and close frames are handled
// by gorilla inside ReadMessage, so pongs go out within the same read cycle.
func (m *Manager) receive(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		_ = conn.Close()
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		m.setState(StateDisconnected)
		close(done)
		m.logger.Info("websocket disconnected")
	}()

	for {
		m.extendDeadline(conn)
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				m.onClose(closeErr.Code, closeErr.Text)
			} else {
				m.onError(err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			m.logger.Debug("ignoring non-text frame", zap.Int("type", msgType))
			continue
		}
		m.onMessage(data)
	}
}

func (m *Manager) extendDeadline(conn *websocket.Conn) {
	if m.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
	}
}

// onPing echoes the payload back as a pong.
func (m *Manager) onPing(conn *websocket.Conn, payload string) error {
	m.lastPing.Store(time.Now().UnixNano())
	pingsTotal.Inc()
	m.extendDeadline(conn)

	err := conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(m.cfg.WriteTimeout))
	if err == nil || errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		m.logger.Warn("pong write timed out")
		return nil
	}
	return err
}

func (m *Manager) onPong(conn *websocket.Conn, payload string) error {
	m.logger.Debug("pong received", zap.Int("bytes", len(payload)))
	m.extendDeadline(conn)
	return nil
}

// onMessage decodes one frame and dispatches it. Nothing here may end the loop.
func (m *Manager) onMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panicked", zap.Any("panic", r))
		}
	}()

	ev, err := Decode(data)
	if err != nil {
		m.discard(data, err)
		return
	}
	framesTotal.WithLabelValues(string(ev.EventType())).Inc()

	switch e := ev.(type) {
	case *Trade:
		m.handler.OnTrade(e)
	case *MiniTicker:
		m.handler.OnMiniTicker(e)
	case *Kline:
		m.handler.OnKline(e)
	}
}

func (m *Manager) discard(data []byte, err error) {
	if !errors.Is(err, ErrUnknownType) {
		decodeErrorsTotal.WithLabelValues("malformed").Inc()
		m.logger.Warn("discarding malformed frame", zap.Error(err), zap.ByteString("frame", truncate(data, 256)))
		return
	}

	if resp, ok := ParseResponse(data); ok {
		decodeErrorsTotal.WithLabelValues("response").Inc()
		if resp.Error != nil {
			m.logger.Warn("stream request rejected", zap.Int64("id", resp.ID), zap.Error(resp.Error))
			return
		}
		m.logger.Info("stream request acknowledged", zap.Int64("id", resp.ID))
		return
	}

	decodeErrorsTotal.WithLabelValues("unknown_type").Inc()
	m.logger.Debug("ignoring frame", zap.Error(err))
}

func (m *Manager) onClose(code int, reason string) {
	fields := []zap.Field{zap.Int("code", code), zap.String("reason", reason)}
	if m.State() == StateClosing || code == websocket.CloseNormalClosure {
		m.logger.Info("websocket closed", fields...)
		return
	}
	m.logger.Warn("websocket closed by peer", fields...)
}

func (m *Manager) onError(err error) {
	if m.State() == StateClosing {
		m.logger.Debug("receive loop stopped during close", zap.Error(err))
		return
	}
	m.logger.Error("websocket error", errorFields(err)...)
}

// errorFields describes err with its Go type and, when present, the
// underlying errno and network operation.
func errorFields(err error) []zap.Field {
	fields := []zap.Field{
		zap.String("error_kind", fmt.Sprintf("%T", err)),
		zap.Error(err),
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		fields = append(fields, zap.Int("errno", int(errno)), zap.String("strerror", errno.Error()))
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		fields = append(fields, zap.String("op", opErr.Op))
	}
	return fields
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
