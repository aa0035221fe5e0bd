package cec

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Adapter daemon message types.
//
// Every message on the socket is framed as size(2) + type(2) + payload, where
// size counts the type field and the payload but not itself.
const (
	// adapterOpen claims logical addresses on the bus.
	// Request payload: logical address mask (2, bit n = address n).
	// Response payload: physical address of the adapter port (2).
	adapterOpen uint16 = 0x0001

	// adapterFrame carries one bus frame in either direction.
	adapterFrame uint16 = 0x0002

	// adapterHotplug reports a change on an input port.
	// Payload: port(1) + connected(1).
	adapterHotplug uint16 = 0x0003

	// adapterClose closes the connection gracefully.
	adapterClose uint16 = 0x0006

	adapterHeaderSize = 4
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for adapter communication.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultReconnectInterval = 5 * time.Second
	maxReconnectInterval     = 2 * time.Minute

	// readBufferSize covers the largest bus frame (16 bytes) plus framing.
	readBufferSize = 64

	// eventQueueSize is the buffer size for the inbound event queue.
	eventQueueSize = 100
)

// AdapterConfig holds adapter daemon connection configuration.
type AdapterConfig struct {
	// Connection is the adapter connection URL.
	// Supported formats:
	//   - "unix:///run/cec-adapter.sock" (Unix socket)
	//   - "tcp://localhost:9526" (TCP)
	Connection string

	// LogicalAddresses are the addresses claimed for the hosted devices.
	LogicalAddresses []LogicalAddress

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for read operations.
	// Default: 30 seconds.
	ReadTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration
}

// AdapterStats holds operational statistics.
type AdapterStats struct {
	FramesTx        uint64
	FramesRx        uint64
	FramesDropped   uint64 // Queue full
	FramesMalformed uint64 // Rejected by ParseFrame
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector is the message transport consumed by the source-device engine.
type Connector interface {
	Send(ctx context.Context, msg Message) error
	SetOnMessage(callback func(Message))
	SetOnHotplug(callback func(port int, connected bool))
	IsConnected() bool
	Stats() AdapterStats
	Close() error
}

// Ensure AdapterClient implements Connector.
var _ Connector = (*AdapterClient)(nil)

// inboundEvent is either a decoded frame or a hotplug report.
type inboundEvent struct {
	msg       *Message
	port      int
	connected bool
}

// AdapterClient provides a connection to the CEC adapter daemon.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Callbacks are invoked from a single delivery goroutine, in arrival order.
//
// Auto-Reconnection:
//   - When the connection is lost, the client reconnects with exponential
//     backoff from ReconnectInterval up to maxReconnectInterval (2min).
//   - Reconnection stops only when Close() is called.
type AdapterClient struct {
	cfg  AdapterConfig
	conn net.Conn

	connMu    sync.RWMutex
	connected bool
	ownPA     atomic.Uint32

	reconnecting   atomic.Bool
	reconnectCount atomic.Int32

	onMessage  func(Message)
	onHotplug  func(port int, connected bool)
	callbackMu sync.RWMutex

	events chan inboundEvent

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	framesDropped   atomic.Uint64
	framesMalformed atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// Connect establishes a connection to the adapter daemon and claims the
// configured logical addresses.
//
// Parameters:
//   - ctx: Context for cancellation (used for initial connection)
//   - cfg: Connection configuration
//
// Returns:
//   - *AdapterClient: Connected client ready for use
//   - error: If connection or handshake fails
func Connect(ctx context.Context, cfg AdapterConfig) (*AdapterClient, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	network, address, err := parseConnectionURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	client := &AdapterClient{
		cfg:    cfg,
		conn:   conn,
		done:   newCloseOnce(),
		events: make(chan inboundEvent, eventQueueSize),
	}
	client.ownPA.Store(uint32(InvalidPhysicalAddress))
	client.lastActivity.Store(time.Now().Unix())

	if err := client.open(connectCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	// One delivery goroutine keeps frames in arrival order.
	client.wg.Add(2) //nolint:mnd // delivery + receive goroutines
	go client.deliveryLoop()
	go client.receiveLoop()

	return client, nil
}

// parseConnectionURL parses an adapter connection URL into network and address.
func parseConnectionURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost:9526"
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// Probe checks that the adapter daemon at connURL accepts connections.
// The connection is closed immediately; no address is claimed.
func Probe(ctx context.Context, connURL string) error {
	network, address, err := parseConnectionURL(connURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return conn.Close()
}

// encodeAdapterMessage frames a payload for the adapter socket.
func encodeAdapterMessage(msgType uint16, payload []byte) []byte {
	buf := make([]byte, adapterHeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(2+len(payload))) //nolint:gosec // payload bounded by frame size
	binary.BigEndian.PutUint16(buf[2:4], msgType)
	copy(buf[adapterHeaderSize:], payload)
	return buf
}

// parseAdapterMessage splits a complete framed message into type and payload.
func parseAdapterMessage(data []byte) (uint16, []byte, error) {
	if len(data) < adapterHeaderSize {
		return 0, nil, fmt.Errorf("%w: adapter message too short (%d bytes)", ErrInvalidMessage, len(data))
	}
	size := int(binary.BigEndian.Uint16(data[0:2]))
	if size+2 != len(data) {
		return 0, nil, fmt.Errorf("%w: adapter size field %d does not match %d bytes", ErrInvalidMessage, size, len(data))
	}
	return binary.BigEndian.Uint16(data[2:4]), data[adapterHeaderSize:], nil
}

// addressMask encodes the claimed logical addresses as a bit mask.
func addressMask(addrs []LogicalAddress) uint16 {
	var mask uint16
	for _, la := range addrs {
		if la.IsValid() && la != AddrUnregistered {
			mask |= 1 << la
		}
	}
	return mask
}

// open performs the address-claim handshake, respecting the context deadline.
func (c *AdapterClient) open(ctx context.Context) error {
	payload := make([]byte, 2) //nolint:mnd // address mask
	binary.BigEndian.PutUint16(payload, addressMask(c.cfg.LogicalAddresses))
	msg := encodeAdapterMessage(adapterOpen, payload)

	writeDeadline := time.Now().Add(defaultWriteTimeout)
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(writeDeadline) {
		writeDeadline = deadline
	}
	if err := c.conn.SetWriteDeadline(writeDeadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if _, err := c.conn.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	readDeadline := time.Now().Add(c.cfg.ReadTimeout)
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(readDeadline) {
		readDeadline = deadline
	}
	if err := c.conn.SetReadDeadline(readDeadline); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, readBufferSize)
	msgType, resp, err := c.readFrom(c.conn, buf)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if msgType != adapterOpen {
		return fmt.Errorf("unexpected response type: 0x%04X", msgType)
	}
	if len(resp) >= paSize {
		c.ownPA.Store(uint32(binary.BigEndian.Uint16(resp[:paSize])))
	}
	return nil
}

// readFrom reads one framed message. Oversized messages return ErrProtocolDesync.
func (c *AdapterClient) readFrom(conn net.Conn, buf []byte) (uint16, []byte, error) {
	if _, err := io.ReadFull(conn, buf[:2]); err != nil {
		return 0, nil, fmt.Errorf("read size: %w", err)
	}

	msgSize := int(binary.BigEndian.Uint16(buf[:2]))
	if msgSize < 2 { //nolint:mnd // type field
		c.errorsTotal.Add(1)
		return 0, nil, fmt.Errorf("%w: invalid message size %d", ErrProtocolDesync, msgSize)
	}

	totalLen := 2 + msgSize
	if totalLen > len(buf) {
		c.errorsTotal.Add(1)
		return 0, nil, fmt.Errorf("%w: size %d exceeds buffer %d", ErrProtocolDesync, totalLen, len(buf))
	}

	if _, err := io.ReadFull(conn, buf[2:totalLen]); err != nil {
		return 0, nil, fmt.Errorf("read message: %w", err)
	}
	return parseAdapterMessage(buf[:totalLen])
}

// receiveLoop reads messages from the adapter until Close is called,
// reconnecting on connection loss.
func (c *AdapterClient) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)

	for {
		if c.isClosed() {
			return
		}

		msgType, payload, err := c.readMessage(buf)
		if err != nil {
			if c.handleReadError(err) {
				if c.isClosed() {
					return
				}
				if !c.reconnect() {
					return
				}
			}
			continue
		}

		switch msgType {
		case adapterFrame:
			c.handleFrame(payload)
		case adapterHotplug:
			if len(payload) >= 2 { //nolint:mnd // port + state
				c.enqueue(inboundEvent{port: int(payload[0]), connected: payload[1] != 0})
			}
		case adapterClose:
			c.logInfo("adapter closed the connection")
			c.handleReadError(io.EOF)
			if c.isClosed() || !c.reconnect() {
				return
			}
		}
	}
}

// readMessage reads a single adapter message from the current connection.
func (c *AdapterClient) readMessage(buf []byte) (uint16, []byte, error) {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return 0, nil, ErrNotConnected
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return 0, nil, fmt.Errorf("set deadline: %w", err)
	}
	return c.readFrom(conn, buf)
}

// handleReadError processes a read error and returns true if the connection
// must be re-established.
func (c *AdapterClient) handleReadError(err error) bool {
	if c.isClosed() {
		return true
	}

	if errors.Is(err, ErrProtocolDesync) {
		c.logError("protocol desync detected, closing socket", err)
		c.closeOldConnection()
		c.handleDisconnect()
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}

	c.logError("read failed", err)
	c.errorsTotal.Add(1)
	c.handleDisconnect()
	return true
}

// handleFrame decodes a received frame and queues it for delivery.
func (c *AdapterClient) handleFrame(payload []byte) {
	msg, err := ParseFrame(payload)
	if err != nil {
		c.logWarn("dropping malformed frame", "error", err, "bytes", fmt.Sprintf("% X", payload))
		c.framesMalformed.Add(1)
		return
	}

	c.framesRx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	c.enqueue(inboundEvent{msg: &msg})
}

// enqueue hands an event to the delivery goroutine, dropping it if the queue is full.
func (c *AdapterClient) enqueue(ev inboundEvent) {
	select {
	case c.events <- ev:
	default:
		c.logError("event queue full, dropping event", nil)
		c.framesDropped.Add(1)
		c.errorsTotal.Add(1)
	}
}

// deliveryLoop invokes the callbacks for queued events, one at a time.
func (c *AdapterClient) deliveryLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainEvents()
			return
		case ev := <-c.events:
			c.deliver(ev)
		}
	}
}

func (c *AdapterClient) deliver(ev inboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("callback panic", fmt.Errorf("%v", r))
		}
	}()

	c.callbackMu.RLock()
	onMessage, onHotplug := c.onMessage, c.onHotplug
	c.callbackMu.RUnlock()

	switch {
	case ev.msg != nil && onMessage != nil:
		onMessage(*ev.msg)
	case ev.msg == nil && onHotplug != nil:
		onHotplug(ev.port, ev.connected)
	}
}

// drainEvents discards queued events during shutdown.
func (c *AdapterClient) drainEvents() {
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}

// handleDisconnect marks the client disconnected.
func (c *AdapterClient) handleDisconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("connection lost, will attempt reconnection")
	}
}

// reconnect re-establishes the connection with exponential backoff.
// Returns true if reconnection succeeded, false if shutdown was signalled.
func (c *AdapterClient) reconnect() bool {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return false
	}
	defer c.reconnecting.Store(false)

	network, address, err := parseConnectionURL(c.cfg.Connection)
	if err != nil {
		c.logError("reconnect: invalid connection URL", err)
		return false
	}

	backoff := c.cfg.ReconnectInterval
	for {
		if c.isClosed() {
			return false
		}

		attempt := c.reconnectCount.Add(1)
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		c.closeOldConnection()

		conn, err := c.dialWithTimeout(network, address)
		if err == nil {
			err = c.establishConnection(conn)
		}
		if err != nil {
			backoff = c.handleReconnectFailure(err, backoff)
			if backoff == 0 {
				return false
			}
			continue
		}

		c.connMu.Lock()
		c.connected = true
		c.connMu.Unlock()

		c.reconnectCount.Store(0)
		c.reconnectsTotal.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
		return true
	}
}

func (c *AdapterClient) closeOldConnection() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

func (c *AdapterClient) dialWithTimeout(network, address string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s://%s: %w", network, address, err)
	}
	return conn, nil
}

// establishConnection installs conn and repeats the address-claim handshake.
func (c *AdapterClient) establishConnection(conn net.Conn) error {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	if err := c.open(ctx); err != nil {
		c.closeOldConnection()
		return fmt.Errorf("handshake failed: %w", err)
	}
	return nil
}

// handleReconnectFailure waits out the backoff and returns the next one,
// or 0 if shutdown was signalled.
func (c *AdapterClient) handleReconnectFailure(err error, backoff time.Duration) time.Duration {
	c.logError("reconnect failed", err)
	c.errorsTotal.Add(1)

	select {
	case <-c.done.Done():
		return 0
	case <-time.After(backoff):
	}

	next := time.Duration(float64(backoff) * 1.5) //nolint:mnd // backoff factor
	if next > maxReconnectInterval {
		next = maxReconnectInterval
	}
	return next
}

func (c *AdapterClient) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close gracefully closes the connection.
//
// It signals the goroutines to stop and closes the underlying network
// connection. Safe to call multiple times.
func (c *AdapterClient) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	conn := c.conn
	c.connMu.Unlock()

	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
		_, _ = conn.Write(encodeAdapterMessage(adapterClose, nil))
		conn.Close()
	}

	c.wg.Wait()

	c.logInfo("connection closed")
	return nil
}

// Send transmits a message on the bus.
//
// Parameters:
//   - ctx: Context for cancellation
//   - msg: Message to send
//
// Returns:
//   - error: ErrNotConnected, or ErrSendFailed wrapping the cause
func (c *AdapterClient) Send(ctx context.Context, msg Message) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	frame := encodeAdapterMessage(adapterFrame, msg.Encode())

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}
	if _, err := conn.Write(frame); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	c.framesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// SetOnMessage sets the callback for received messages.
// Panics in the callback are recovered and logged.
func (c *AdapterClient) SetOnMessage(callback func(Message)) {
	c.callbackMu.Lock()
	c.onMessage = callback
	c.callbackMu.Unlock()
}

// SetOnHotplug sets the callback for input-port hotplug reports.
func (c *AdapterClient) SetOnHotplug(callback func(port int, connected bool)) {
	c.callbackMu.Lock()
	c.onHotplug = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *AdapterClient) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// PhysicalAddress returns the address the adapter reported during the
// handshake, or InvalidPhysicalAddress if it did not report one.
func (c *AdapterClient) PhysicalAddress() PhysicalAddress {
	return PhysicalAddress(c.ownPA.Load()) //nolint:gosec // stored from a uint16
}

// IsConnected returns true if connected to the adapter.
func (c *AdapterClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *AdapterClient) Stats() AdapterStats {
	return AdapterStats{
		FramesTx:        c.framesTx.Load(),
		FramesRx:        c.framesRx.Load(),
		FramesDropped:   c.framesDropped.Load(),
		FramesMalformed: c.framesMalformed.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
	}
}

func (c *AdapterClient) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *AdapterClient) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *AdapterClient) logError(msg string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (c *AdapterClient) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
