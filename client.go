// Package gateway implements a client for the Discord real-time Gateway.
// It opens a persistent WebSocket, performs the opcode handshake
// (HELLO → IDENTIFY → READY), maintains the server-dictated heartbeat, and
// folds the READY snapshot plus incremental dispatches into an in-memory
// view of the user's guilds, channels, DMs, and friends.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/vscord/discord-gateway-go/frame"
	"github.com/vscord/discord-gateway-go/wire"
)

// Config holds connection parameters.
type Config struct {
	Endpoint string // Gateway WebSocket URL; wire.DefaultGatewayURL if empty
	Token    string // OAuth bearer token; may also be set later via SetCredential
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	// Grace between HELLO and IDENTIFY: sending immediately after transport
	// establishment risks loss on some links.
	defaultIdentifySettle = 250 * time.Millisecond
	// Pause before an automatic reconnect, so repeated INVALID_SESSION
	// responses cannot drive a hot loop.
	defaultReconnectDelay = 2 * time.Second
	// Heartbeats sent without an intervening ACK before the connection is
	// declared a zombie and replaced.
	maxMissedAcks = 3

	sendBuffer  = 64
	frameBuffer = 16
)

// Client maintains at most one Gateway connection at a time and exposes the
// session's state through snapshot accessors. The zero value is not usable;
// construct with New.
type Client struct {
	mu       sync.Mutex
	endpoint string
	token    string
	conn     *connection // nil while disconnected

	onReady     func(ReadyEvent)
	onMessage   func(Message)
	onReconnect func(reason string)

	state *sessionState
	log   *slog.Logger

	// Bumped by Disconnect; a pending automatic reconnect re-checks it
	// after its pause and stands down when it changed.
	gen uint64

	// Protocol timing, overridable in tests.
	handshakeTimeout time.Duration
	identifySettle   time.Duration
	reconnectDelay   time.Duration
}

// New creates a client. The zero Config is valid: the endpoint defaults to
// the public Gateway and the credential can be supplied later through
// SetCredential.
func New(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = wire.DefaultGatewayURL
	}
	return &Client{
		endpoint:         endpoint,
		token:            cfg.Token,
		state:            newSessionState(),
		log:              slog.Default().With("component", "gateway"),
		handshakeTimeout: defaultHandshakeTimeout,
		identifySettle:   defaultIdentifySettle,
		reconnectDelay:   defaultReconnectDelay,
	}
}

// SetCredential stores the OAuth bearer token used to identify. Replacing
// the token takes effect on the next Connect.
func (c *Client) SetCredential(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// OnReady registers a handler invoked after each READY snapshot has been
// fully reduced. Handlers chain: every call adds a subscriber.
func (c *Client) OnReady(fn func(ReadyEvent)) {
	c.mu.Lock()
	c.onReady = chainHandler(c.onReady, fn)
	c.mu.Unlock()
}

// OnMessage registers a handler for MESSAGE_CREATE dispatches.
func (c *Client) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.onMessage = chainHandler(c.onMessage, fn)
	c.mu.Unlock()
}

// OnReconnect registers a handler invoked when the client tears a session
// down and re-identifies on its own (invalid session, zombie heartbeat).
func (c *Client) OnReconnect(fn func(reason string)) {
	c.mu.Lock()
	c.onReconnect = chainHandler(c.onReconnect, fn)
	c.mu.Unlock()
}

// connection owns the resources of a single Gateway session: the socket,
// the loops, and the heartbeat timer. A fresh connection is built for every
// Connect; teardown is all-or-nothing.
type connection struct {
	client *Client
	id     string // correlation ID for logs
	token  string
	sock   net.Conn

	frames chan []byte   // readLoop -> run loop
	sendCh chan []byte   // run loop -> writeLoop
	done   chan struct{} // closed exactly once on teardown

	closeOnce sync.Once
	readyOnce sync.Once
	readyCh   chan struct{} // closed after READY is fully reduced
	failCh    chan error    // buffered; first transport error before READY

	// Owned by the run-loop goroutine.
	seq        int64
	hasSeq     bool
	heartbeat  time.Duration
	missedAcks int
}

// Connect dials the Gateway, performs the handshake, and returns once the
// READY snapshot has been fully reduced. It fails with ErrMissingCredential
// when no token is set (no I/O performed), ErrAlreadyConnected when a
// connection is open or in flight, ErrHandshakeTimeout when READY is not
// observed within the handshake window, and an ErrConnection-wrapped
// transport error when the socket fails before READY.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		return ErrMissingCredential
	}
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	conn := &connection{
		client:  c,
		id:      uuid.NewString(),
		token:   c.token,
		frames:  make(chan []byte, frameBuffer),
		sendCh:  make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		readyCh: make(chan struct{}),
		failCh:  make(chan error, 1),
	}
	c.conn = conn
	endpoint := c.endpoint
	c.mu.Unlock()

	sock, _, _, err := ws.Dial(ctx, endpoint)
	if err != nil {
		c.detach(conn)
		return fmt.Errorf("%w: dial: %w", ErrConnection, err)
	}
	conn.sock = sock
	c.log.Info("gateway socket open", "conn", conn.id, "endpoint", endpoint)

	go conn.readLoop()
	go conn.writeLoop()
	go conn.run()

	select {
	case <-conn.readyCh:
		return nil
	case err := <-conn.failCh:
		c.teardown(conn, "transport error before READY")
		return fmt.Errorf("%w: %w", ErrConnection, err)
	case <-conn.done:
		// READY may have been reduced in the same instant the connection was
		// torn down again (e.g. an immediate INVALID_SESSION); that connect
		// still succeeded. Otherwise prefer the recorded transport error.
		select {
		case <-conn.readyCh:
			return nil
		default:
		}
		select {
		case err := <-conn.failCh:
			return fmt.Errorf("%w: %w", ErrConnection, err)
		default:
			return ErrConnectionClosed
		}
	case <-time.After(c.handshakeTimeout):
		c.teardown(conn, "handshake timeout")
		return ErrHandshakeTimeout
	case <-ctx.Done():
		c.teardown(conn, "connect canceled")
		return ctx.Err()
	}
}

// Disconnect closes the active connection and stops its heartbeat. It is
// idempotent: calling it with nothing open, or twice in a row, is a no-op.
// A Connect pending on the same connection settles with ErrConnectionClosed,
// and any automatic reconnect waiting out its pause is canceled.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.teardown(conn, "disconnect requested")
}

// IsReady reports whether a READY snapshot has been fully processed on the
// current connection.
func (c *Client) IsReady() bool { return c.state.isReady() }

// Guilds returns a snapshot of the known guilds.
func (c *Client) Guilds() []Guild { return c.state.Guilds() }

// GuildChannels returns a snapshot of the retained channels of one guild.
func (c *Client) GuildChannels(guildID string) []Channel { return c.state.GuildChannels(guildID) }

// DMChannels returns a snapshot of the DM and group-DM channels.
func (c *Client) DMChannels() []Channel { return c.state.DMChannels() }

// Friends returns a snapshot of the friend relationships.
func (c *Client) Friends() []User { return c.state.Friends() }

// CurrentUser returns the authenticated identity and whether one is known.
func (c *Client) CurrentUser() (User, bool) { return c.state.CurrentUser() }

// teardown closes the connection exactly once and detaches it from the
// client. Safe to call from any goroutine and safe to call repeatedly; the
// run loop stops the heartbeat timer on its way out. markClosed runs inside
// the once so a late duplicate teardown of an already-dead connection cannot
// flip a replacement session's ready flag.
func (c *Client) teardown(conn *connection, reason string) {
	conn.closeOnce.Do(func() {
		close(conn.done)
		if conn.sock != nil {
			conn.sock.Close()
		}
		c.state.markClosed()
		c.log.Info("gateway connection closed", "conn", conn.id, "reason", reason)
	})
	c.detach(conn)
}

func (c *Client) detach(conn *connection) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

// reconnect replaces a dead session with a fresh identify-from-scratch
// connection after a short pause. The caller is notified through the
// OnReconnect handler; a reconnect is an event, not an error. A Disconnect
// issued during the pause cancels the reconnect.
func (c *Client) reconnect(conn *connection, reason string) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	c.teardown(conn, reason)
	c.emitReconnect(reason)
	time.Sleep(c.reconnectDelay)

	c.mu.Lock()
	canceled := c.gen != gen
	c.mu.Unlock()
	if canceled {
		c.log.Debug("reconnect canceled by disconnect", "reason", reason)
		return
	}
	if err := c.Connect(context.Background()); err != nil {
		c.log.Warn("reconnect failed", "reason", reason, "error", err)
	}
}

// --- Loops ---

// run is the single event-processing goroutine: inbound frames, heartbeat
// fires, and the identify timer are serviced one at a time, so no reduction
// ever overlaps another.
func (conn *connection) run() {
	c := conn.client
	var hb *time.Ticker
	var hbC <-chan time.Time
	var identifyC <-chan time.Time
	defer func() {
		if hb != nil {
			hb.Stop()
		}
	}()

	for {
		select {
		case <-conn.done:
			return

		case <-identifyC:
			identifyC = nil
			conn.sendIdentify()

		case <-hbC:
			if conn.missedAcks >= maxMissedAcks {
				c.log.Warn("heartbeat unacknowledged, replacing zombie connection",
					"conn", conn.id, "missed", conn.missedAcks)
				go c.reconnect(conn, "missed heartbeat acks")
				return
			}
			conn.sendHeartbeat()

		case data, ok := <-conn.frames:
			if !ok {
				c.teardown(conn, "transport closed")
				return
			}
			switch conn.handleFrame(data) {
			case actionHello:
				// Immediate heartbeat, then the recurring timer at the
				// server-dictated cadence; IDENTIFY after the settle delay.
				conn.sendHeartbeat()
				if hb != nil {
					hb.Stop()
				}
				hb = time.NewTicker(conn.heartbeat)
				hbC = hb.C
				identifyC = time.After(c.identifySettle)
			case actionInvalidSession:
				c.log.Warn("session invalidated by gateway", "conn", conn.id)
				go c.reconnect(conn, "invalid session")
				return
			}
		}
	}
}

// readLoop moves raw frames from the socket onto the run loop's queue.
func (conn *connection) readLoop() {
	defer close(conn.frames)
	for {
		data, op, err := wsutil.ReadServerData(conn.sock)
		if err != nil {
			select {
			case <-conn.done:
			default:
				conn.client.log.Warn("gateway read failed", "conn", conn.id, "error", err)
				select {
				case conn.failCh <- err:
				default:
				}
			}
			return
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}
		select {
		case conn.frames <- data:
		case <-conn.done:
			return
		}
	}
}

func (conn *connection) writeLoop() {
	for {
		select {
		case data := <-conn.sendCh:
			if err := wsutil.WriteClientText(conn.sock, data); err != nil {
				conn.client.log.Warn("gateway write failed", "conn", conn.id, "error", err)
				conn.client.teardown(conn, "write failure")
				return
			}
		case <-conn.done:
			return
		}
	}
}

// --- Opcode dispatch ---

type frameAction int

const (
	actionNone frameAction = iota
	actionHello
	actionInvalidSession
)

// handleFrame decodes one raw frame and dispatches its opcode. Decode
// failures drop the frame only; the connection continues.
func (conn *connection) handleFrame(data []byte) frameAction {
	c := conn.client

	payload, err := frame.Decode(data)
	if err != nil {
		c.log.Warn("dropping undecodable frame", "conn", conn.id, "error", err)
		return actionNone
	}
	var env wire.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.log.Warn("dropping malformed envelope", "conn", conn.id, "error", err)
		return actionNone
	}

	switch env.Op {
	case wire.OpHello:
		var hello wire.Hello
		if err := json.Unmarshal(env.D, &hello); err != nil {
			c.log.Warn("dropping malformed HELLO", "conn", conn.id, "error", err)
			return actionNone
		}
		conn.heartbeat = time.Duration(hello.HeartbeatInterval) * time.Millisecond
		c.log.Debug("hello received", "conn", conn.id, "heartbeat", conn.heartbeat)
		return actionHello

	case wire.OpHeartbeat:
		// Server-requested heartbeat: answer immediately.
		conn.sendHeartbeat()

	case wire.OpHeartbeatAck:
		conn.missedAcks = 0

	case wire.OpInvalidSession:
		return actionInvalidSession

	case wire.OpDispatch:
		// Sequence updates first, unconditionally, whenever present.
		if env.S != nil {
			conn.seq, conn.hasSeq = *env.S, true
		}
		conn.dispatch(env.T, env.D)

	default:
		c.log.Debug("ignoring opcode", "conn", conn.id, "op", env.Op)
	}
	return actionNone
}

// dispatch routes a named event to the reducer and surfaces domain events.
func (conn *connection) dispatch(name string, data json.RawMessage) {
	c := conn.client
	switch name {
	case wire.EventReady:
		var ready wire.Ready
		if err := json.Unmarshal(data, &ready); err != nil {
			c.log.Warn("dropping malformed READY", "conn", conn.id, "error", err)
			return
		}
		ev := c.state.applyReady(ready)
		conn.readyOnce.Do(func() { close(conn.readyCh) })
		c.log.Info("session ready", "conn", conn.id,
			"session", ready.SessionID, "guilds", len(ev.Guilds))
		c.emitReady(ev)

	case wire.EventGuildCreate:
		var g wire.Guild
		if err := json.Unmarshal(data, &g); err != nil {
			c.log.Warn("dropping malformed GUILD_CREATE", "conn", conn.id, "error", err)
			return
		}
		c.state.applyGuildCreate(g)

	case wire.EventGuildDelete:
		var g wire.Guild
		if err := json.Unmarshal(data, &g); err != nil {
			return
		}
		c.state.applyGuildDelete(g.ID)

	case wire.EventChannelCreate, wire.EventChannelUpdate:
		var ch wire.Channel
		if err := json.Unmarshal(data, &ch); err != nil {
			c.log.Warn("dropping malformed channel event", "conn", conn.id, "error", err)
			return
		}
		c.state.applyChannel(ch)

	case wire.EventChannelDelete:
		var ch wire.Channel
		if err := json.Unmarshal(data, &ch); err != nil {
			return
		}
		c.state.applyChannelDelete(ch.ID)

	case wire.EventMessageCreate:
		var m wire.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return
		}
		c.emitMessage(messageFromWire(m))

	case wire.EventRelationshipAdd:
		var rel wire.Relationship
		if err := json.Unmarshal(data, &rel); err != nil {
			return
		}
		c.state.applyRelationshipAdd(rel)

	case wire.EventRelationshipRemove:
		var rel wire.Relationship
		if err := json.Unmarshal(data, &rel); err != nil {
			return
		}
		c.state.applyRelationshipRemove(rel.ID)

	default:
		c.log.Debug("unhandled dispatch", "conn", conn.id, "event", name)
	}
}

// --- Outbound ---

func (conn *connection) send(op int, d any) {
	raw, err := json.Marshal(d)
	if err != nil {
		conn.client.log.Warn("marshal outbound payload", "conn", conn.id, "op", op, "error", err)
		return
	}
	env, err := json.Marshal(wire.Envelope{Op: op, D: raw})
	if err != nil {
		return
	}
	select {
	case conn.sendCh <- env:
	case <-conn.done:
	}
}

// sendHeartbeat sends the last known sequence number, or null before the
// first sequenced dispatch.
func (conn *connection) sendHeartbeat() {
	var d any
	if conn.hasSeq {
		d = conn.seq
	}
	conn.send(wire.OpHeartbeat, d)
	conn.missedAcks++
	conn.client.log.Debug("heartbeat sent", "conn", conn.id, "seq", conn.seq)
}

func (conn *connection) sendIdentify() {
	conn.send(wire.OpIdentify, wire.Identify{
		Token:   conn.token,
		Intents: wire.DefaultIntents,
		Properties: wire.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: "vscord",
			Device:  "vscord",
		},
	})
	conn.client.log.Debug("identify sent", "conn", conn.id)
}

// --- Event emission ---

func (c *Client) emitReady(ev ReadyEvent) {
	c.mu.Lock()
	fn := c.onReady
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (c *Client) emitMessage(m Message) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn(m)
	}
}

func (c *Client) emitReconnect(reason string) {
	c.mu.Lock()
	fn := c.onReconnect
	c.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

func chainHandler[T any](existing, additional func(T)) func(T) {
	if existing == nil {
		return additional
	}
	return func(v T) {
		existing(v)
		additional(v)
	}
}
