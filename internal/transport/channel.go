// Package transport owns the client's connection to the relay server: a
// persistent WebSocket that buffers outbound frames until it opens, plus two
// one-shot HTTP delivery paths used outside that connection.
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcsignal/internal/config"
	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/util"
)

var (
	// ErrTransportUnavailable reports that a frame was buffered because the
	// WebSocket has not opened yet. Send recovers from it; it is never
	// surfaced to callers.
	ErrTransportUnavailable = errors.New("relay connection not open yet")
	// ErrChannelClosed reports that a frame was dropped because the channel
	// has been shut down.
	ErrChannelClosed = errors.New("relay channel shut down")
	// ErrPeerUnreachable reports a failed one-shot delivery.
	ErrPeerUnreachable = errors.New("one-shot delivery failed")
)

const (
	writeTimeout    = 10 * time.Second
	deliveryTimeout = 10 * time.Second
)

// Options configures a Channel.
type Options struct {
	Session       config.Session
	RelayHost     string // host[:port] of the relay server
	Secure        bool   // wss:// and https:// instead of ws:// and http://
	RoomServerURL string // base URL of the room server for the secondary path

	// OnMessage receives every decoded inbound signaling message, on the
	// channel's read goroutine.
	OnMessage func(protocol.Message)

	Dialer     *websocket.Dialer // defaults to websocket.DefaultDialer
	HTTPClient *http.Client      // defaults to a client with a 10s timeout
}

// Channel is a single duplex connection to the relay server.
//
// Open never blocks: the WebSocket is dialed in the background, and frames
// sent before it opens are held in FIFO order and written, after the
// registration frame, once it does. There is no reconnection.
type Channel struct {
	session       config.Session
	wsURL         string
	postURL       string
	roomServerURL string
	onMessage     func(protocol.Message)
	httpClient    *http.Client

	ctx    context.Context
	cancel context.CancelFunc

	writer     *writer
	openSignal chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	inflight     sync.WaitGroup
	shutdownOnce sync.Once
}

// Open starts connecting to the relay and returns immediately.
func Open(ctx context.Context, opts Options) *Channel {
	wsScheme, httpScheme := "ws", "http"
	if opts.Secure {
		wsScheme, httpScheme = "wss", "https"
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: deliveryTimeout}
	}
	onMessage := opts.OnMessage
	if onMessage == nil {
		onMessage = func(protocol.Message) {}
	}

	cCtx, cCancel := context.WithCancel(ctx)

	c := &Channel{
		session:       opts.Session,
		wsURL:         wsScheme + "://" + opts.RelayHost + "/ws",
		postURL:       httpScheme + "://" + opts.RelayHost + "/",
		roomServerURL: opts.RoomServerURL,
		onMessage:     onMessage,
		httpClient:    httpClient,
		ctx:           cCtx,
		cancel:        cCancel,
		writer:        newWriter(),
		openSignal:    make(chan struct{}),
	}

	go c.writer.loop(c.openSignal, c.currentConn, c.registerFrame)
	go c.dial(dialer)

	return c
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Shutdown flushes frames already handed to an open connection, closes the
// WebSocket and stops the writer. Idempotent; safe to call before the
// connection ever opened.
func (c *Channel) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.writer.shutdown()

		c.cancel()
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}
		util.LogDebug("relay channel shut down")
	})
}

// Wait blocks until every in-flight one-shot delivery has finished.
func (c *Channel) Wait() {
	c.inflight.Wait()
}

func (c *Channel) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) registerFrame() ([]byte, error) {
	return protocol.RegisterEnvelope(c.session.RoomID, c.session.ClientID)
}

// dial connects the WebSocket, opens the writer gate and runs the read loop.
func (c *Channel) dial(dialer *websocket.Dialer) {
	conn, _, err := dialer.DialContext(c.ctx, c.wsURL, nil)
	if err != nil {
		if c.ctx.Err() == nil {
			util.LogError("WebSocket connection error: %v", err)
		}
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	util.LogInfo("WebSocket connection opened: %s", c.wsURL)
	close(c.openSignal)

	c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				util.LogInfo("WebSocket connection closed")
			} else {
				util.LogError("WebSocket connection error: %v", err)
			}
			return
		}
		util.Stats.AddRecv()
		c.handleFrame(data)
	}
}

// handleFrame decodes a relay frame and forwards the signaling message it
// carries. Malformed or unknown payloads are logged and dropped.
func (c *Channel) handleFrame(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		util.Stats.AddDropped()
		util.LogError("dropping relay frame: %v", err)
		return
	}
	if env.Error != "" {
		util.LogError("relay reported error: %s", env.Error)
	}
	if env.Msg == "" {
		return
	}

	msg, err := protocol.Decode([]byte(env.Msg))
	if err != nil {
		util.Stats.AddDropped()
		util.LogError("dropping signaling message: %v", err)
		return
	}
	util.LogDebug("S->C: %s", env.Msg)
	c.onMessage(msg)
}

// ---------------------------------------------------------------------------
// Persistent path
// ---------------------------------------------------------------------------

// Send relays msg to the other peer over the WebSocket. Frames sent before
// the connection opens are queued; frames sent after Shutdown are dropped.
// Send never blocks on the network.
func (c *Channel) Send(msg protocol.Message) {
	frame, err := protocol.SendEnvelope(msg)
	if err != nil {
		util.LogError("encode %s: %v", msg.Kind(), err)
		return
	}

	switch err := c.writer.enqueue(frame); {
	case err == nil:
		util.LogDebug("C->S: %s", frame)
	case errors.Is(err, ErrTransportUnavailable):
		util.Stats.AddQueued()
		util.LogDebug("pushing %s onto queue: %v", msg.Kind(), err)
	default:
		util.LogWarning("dropping %s: %v", msg.Kind(), err)
	}
}
