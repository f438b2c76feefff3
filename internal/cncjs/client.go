package cncjs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenPendantBridge/internal/machine"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the server
	writeWait = 10 * time.Second

	// Engine.IO v3 default, replaced by the server handshake
	defaultPingInterval = 25 * time.Second

	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

var (
	ErrNoPort       = errors.New("no serial port open")
	ErrSerialPort   = errors.New("serial port error")
	ErrDisconnected = errors.New("disconnected from cncjs")
	ErrClosed       = errors.New("cncjs client closed")
)

// Handler receives controller notifications.
type Handler interface {
	OnState(state machine.MachineState)
	OnSettings(settings machine.Settings)
}

// Config describes how to reach CNCjs and which port to open.
type Config struct {
	Host           string
	Port           int
	Token          string
	SerialPort     string
	Baudrate       int
	ControllerType string
	PingInterval   time.Duration
}

// URL returns the websocket endpoint for cfg.
func (cfg Config) URL() string {
	q := url.Values{}
	q.Set("EIO", "3")
	q.Set("transport", "websocket")
	q.Set("token", cfg.Token)

	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/socket.io/",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Client is a Socket.IO v2 client for the CNCjs server.
type Client struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger

	conn      *websocket.Conn
	send      chan []byte
	pingReset chan time.Duration
	done      chan struct{}
	closeOnce sync.Once

	connected atomic.Bool

	mu           sync.RWMutex
	port         string
	senderStatus json.RawMessage
	writeErr     error
}

// Dial opens the websocket connection. Call Run to start processing.
func Dial(ctx context.Context, cfg Config, handler Handler, logger *zap.Logger) (*Client, error) {
	logger = logger.With(zap.String("component", "cncjs"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cncjs at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("Connected to CNCjs",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port))

	return &Client{
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		pingReset: make(chan time.Duration, 1),
		done:      make(chan struct{}),
	}, nil
}

// Run processes server frames until ctx is cancelled or the connection fails.
// The returned error is terminal.
func (c *Client) Run(ctx context.Context) error {
	go c.writePump()

	errCh := make(chan error, 1)
	go func() { errCh <- c.readPump() }()

	select {
	case <-ctx.Done():
		c.Close()
		<-errCh
		return nil
	case err := <-errCh:
		c.Close()
		return err
	}
}

// Close terminates the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.connected.Store(false)
		err = c.conn.Close()
	})
	return err
}

// Connected reports whether the Socket.IO namespace is connected.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Port returns the serial port CNCjs opened for us, or "".
func (c *Client) Port() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port
}

// SenderStatus returns the last sender:status payload.
func (c *Client) SenderStatus() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.senderStatus
}

// Emit queues an event for the server.
func (c *Client) Emit(event string, args ...any) error {
	frame, err := EncodeEvent(event, args...)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// WriteLine sends one controller line through the open serial port.
func (c *Client) WriteLine(ctx context.Context, line string) error {
	port := c.Port()
	if port == "" {
		return ErrNoPort
	}

	frame, err := EncodeEvent("write", port, line)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) readPump() error {
	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				c.mu.RLock()
				defer c.mu.RUnlock()
				return c.writeErr
			default:
			}
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("Ignoring malformed frame", zap.Error(err), zap.ByteString("frame", data))
			continue
		}

		if err := c.handleFrame(frame); err != nil {
			return err
		}
	}
}

func (c *Client) handleFrame(f Frame) error {
	switch f.Kind {
	case FrameOpen:
		c.logger.Debug("Engine.IO handshake",
			zap.String("sid", f.Handshake.SID),
			zap.Int("ping_interval_ms", f.Handshake.PingInterval))
		if c.cfg.PingInterval == 0 && f.Handshake.PingInterval > 0 {
			select {
			case c.pingReset <- time.Duration(f.Handshake.PingInterval) * time.Millisecond:
			default:
			}
		}

	case FrameConnect:
		c.connected.Store(true)
		c.logger.Info("Socket.IO connected, requesting port list")
		return c.Emit("list", nil)

	case FramePing:
		return c.enqueue(append(append([]byte(nil), pongFrame...), f.Payload...))

	case FramePong, FrameNoop:

	case FrameClose, FrameDisconnect:
		c.connected.Store(false)
		return ErrDisconnected

	case FrameError:
		return fmt.Errorf("cncjs rejected connection: %s", f.Payload)

	case FrameEvent:
		return c.handleEvent(f.Event, f.Args)
	}
	return nil
}

func (c *Client) handleEvent(event string, args []json.RawMessage) error {
	arg := func(i int) json.RawMessage {
		if i < len(args) {
			return args[i]
		}
		return json.RawMessage("null")
	}

	switch event {
	case "serialport:list":
		var ports []PortInfo
		if err := json.Unmarshal(arg(0), &ports); err != nil {
			c.logger.Warn("Invalid serialport:list payload", zap.Error(err))
		}

		port := SelectPort(ports, c.cfg.SerialPort)
		c.logger.Info("Opening serial port",
			zap.String("port", port),
			zap.Int("available", len(ports)))

		return c.Emit("open", port, OpenOptions{
			Baudrate:       c.cfg.Baudrate,
			ControllerType: c.cfg.ControllerType,
		})

	case "serialport:open":
		var p serialPortPayload
		_ = json.Unmarshal(arg(0), &p)

		c.mu.Lock()
		c.port = p.Port
		c.mu.Unlock()

		c.logger.Info("Serial port open",
			zap.String("port", p.Port),
			zap.Int("baudrate", p.Baudrate))

	case "serialport:close":
		c.mu.Lock()
		c.port = ""
		c.mu.Unlock()
		c.logger.Warn("Serial port closed")

	case "serialport:error":
		var p serialPortPayload
		_ = json.Unmarshal(arg(0), &p)
		return fmt.Errorf("%w: %s", ErrSerialPort, p.Port)

	case "serialport:read", "serialport:write":
		var line string
		_ = json.Unmarshal(arg(0), &line)
		c.logger.Debug(event, zap.String("data", line))

	case "sender:status":
		c.mu.Lock()
		c.senderStatus = append(json.RawMessage(nil), arg(0)...)
		c.mu.Unlock()

	case "Grbl:state":
		state, err := ParseState(arg(0))
		if err != nil {
			c.logger.Warn("Dropping controller state", zap.Error(err))
			return nil
		}
		c.handler.OnState(state)

	case "Grbl:settings":
		settings, err := ParseSettings(arg(0))
		if err != nil {
			c.logger.Warn("Dropping controller settings", zap.Error(err))
			return nil
		}
		c.logger.Info("Controller settings received", zap.Int("count", len(settings)))
		c.handler.OnSettings(settings)

	default:
		c.logger.Debug("Unhandled event", zap.String("event", event))
	}
	return nil
}

func (c *Client) writePump() {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case d := <-c.pingReset:
			ticker.Reset(d)

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.fail(fmt.Errorf("%w: write: %v", ErrDisconnected, err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, pingFrame); err != nil {
				c.fail(fmt.Errorf("%w: ping: %v", ErrDisconnected, err))
				return
			}
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()

	c.Close()
}
