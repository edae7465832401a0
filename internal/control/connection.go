// Package control implements the optional administrative supervisory
// layer: a WebSocket coordinator connection, an HTTP start/stop
// callback fallback, and a Redis pub/sub command bus. None of these
// gate publish/play — they are observational and administrative,
// preserving the core engine's "no authentication beyond rejecting
// empty stream keys" Non-goal. Grounded in control_connection.go,
// control_auth.go, rtmp_callback.go, and redis_cmds.go of the teacher.
package control

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	messages "github.com/AgustinSRG/go-simple-rpc-message"
	"github.com/gorilla/websocket"

	"github.com/nodewire-systems/rtmp-relay/internal/logger"
)

const heartbeatInterval = 20 * time.Second
const reconnectDelay = 10 * time.Second
const readDeadline = 60 * time.Second

// pendingRequest tracks a PUBLISH-START round trip awaiting a
// PUBLISH-ACCEPT/PUBLISH-DENY reply.
type pendingRequest struct {
	waiter chan publishResponse
}

type publishResponse struct {
	accepted bool
	streamID string
}

// Connection is a duplex WebSocket link to an external coordinator.
// Zero value is unusable; build one with Dial.
type Connection struct {
	killer Killer

	baseURL string
	secret  string

	mu       sync.Mutex
	conn     *websocket.Conn
	nextReqID uint64
	pending  map[string]*pendingRequest
	closed   bool
}

// Dial starts (and keeps alive, with automatic reconnect) a control
// connection to baseURL + "/ws/control/rtmp". An empty baseURL returns
// nil: the caller runs in stand-alone mode, matching the teacher's
// CONTROL_BASE_URL-unset fallback.
func Dial(baseURL, secret string, killer Killer) *Connection {
	if baseURL == "" {
		return nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		logger.Error(err)
		return nil
	}
	ref, _ := url.Parse("/ws/control/rtmp")

	c := &Connection{
		killer:  killer,
		baseURL: u.ResolveReference(ref).String(),
		secret:  secret,
		pending: make(map[string]*pendingRequest),
	}
	go c.connect()
	go c.heartbeatLoop()
	return c
}

func (c *Connection) connect() {
	c.mu.Lock()
	if c.conn != nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	logger.Info("[WS-CONTROL] connecting to " + c.baseURL)

	headers := http.Header{}
	if token := websocketAuthToken(c.secret); token != "" {
		headers.Set("x-control-auth-token", token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.baseURL, headers)
	if err != nil {
		logger.Warning("[WS-CONTROL] connection error: " + err.Error())
		go c.reconnect()
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
}

func (c *Connection) reconnect() {
	time.Sleep(reconnectDelay)
	c.connect()
}

func (c *Connection) disconnected(err error) {
	c.mu.Lock()
	wasClosed := c.closed
	c.conn = nil
	c.mu.Unlock()

	if err != nil {
		logger.Info("[WS-CONTROL] disconnected: " + err.Error())
	}
	if !wasClosed {
		go c.connect()
	}
}

func (c *Connection) readLoop(conn *websocket.Conn) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			conn.Close()
			c.disconnected(err)
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			c.disconnected(err)
			return
		}
		msg := messages.ParseRPCMessage(string(raw))
		c.handleMessage(&msg)
	}
}

func (c *Connection) handleMessage(msg *messages.RPCMessage) {
	switch msg.Method {
	case "ERROR":
		logger.Warning("[WS-CONTROL] remote error: " + msg.GetParam("Error-Message"))
	case "PUBLISH-ACCEPT":
		c.resolvePending(msg.GetParam("Request-Id"), publishResponse{accepted: true, streamID: msg.GetParam("Stream-Id")})
	case "PUBLISH-DENY":
		c.resolvePending(msg.GetParam("Request-Id"), publishResponse{accepted: false})
	case "STREAM-KILL":
		channel := msg.GetParam("Stream-Channel")
		streamID := msg.GetParam("Stream-Id")
		if streamID == "" || streamID == "*" {
			c.killer.KillPublisher(channel)
		} else {
			c.killer.KillPublisherWithStreamPath(channel, streamID)
		}
	}
}

func (c *Connection) resolvePending(requestID string, res publishResponse) {
	c.mu.Lock()
	req := c.pending[requestID]
	delete(c.pending, requestID)
	c.mu.Unlock()
	if req == nil {
		return
	}
	req.waiter <- res
}

// send serializes and writes msg, returning false if there is no live
// connection.
func (c *Connection) send(msg messages.RPCMessage) bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(msg.Serialize())) == nil
}

func (c *Connection) heartbeatLoop() {
	for {
		time.Sleep(heartbeatInterval)
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.send(messages.RPCMessage{Method: "HEARTBEAT"})
	}
}

func (c *Connection) nextRequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextReqID++
	return time.Now().Format("20060102150405.") + string(rune('0'+c.nextReqID%10))
}

// NotifyPublishStart sends a PUBLISH-START notification and waits up to
// 10 seconds for the coordinator's PUBLISH-ACCEPT/PUBLISH-DENY reply,
// returning the assigned stream id on accept. A deny, a timeout or no
// live connection yields false; the session does not reject the
// publish on false, preserving the core's auth Non-goal.
func (c *Connection) NotifyPublishStart(app, key, ip string) (streamID string, ok bool) {
	if c == nil {
		return "", false
	}
	reqID := c.nextRequestID()

	waiter := make(chan publishResponse, 1)
	c.mu.Lock()
	c.pending[reqID] = &pendingRequest{waiter: waiter}
	c.mu.Unlock()

	sent := c.send(messages.RPCMessage{
		Method: "PUBLISH-START",
		Params: map[string]string{
			"Request-Id":  reqID,
			"Channel":     app,
			"Key":         key,
			"Client-Ip":   ip,
		},
	})
	if !sent {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return "", false
	}

	select {
	case res := <-waiter:
		return res.streamID, res.accepted
	case <-time.After(10 * time.Second):
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return "", false
	}
}

// NotifyPublishEnd sends a fire-and-forget PUBLISH-END notification.
func (c *Connection) NotifyPublishEnd(app, streamID string) {
	if c == nil {
		return
	}
	c.send(messages.RPCMessage{
		Method: "PUBLISH-END",
		Params: map[string]string{
			"Channel":   app,
			"Stream-Id": streamID,
		},
	})
}

// Close marks the connection as intentionally closed so the reconnect
// loop stops retrying.
func (c *Connection) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
