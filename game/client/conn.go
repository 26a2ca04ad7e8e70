package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadlineS = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Conn represents one connected client's WebSocket connection and its
// session-channel subscriptions.
type Conn struct {
	ID        string
	AccountID int64

	WS      *websocket.Conn
	TraceID string
	LastSeq uint64

	SendChan chan []byte
	Done     chan struct{}

	mu        sync.Mutex
	subs      map[string]func() // sessionID → pub/sub unsubscribe
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewConn creates a Conn with its write goroutine started.
func NewConn(id string, accountID int64, ws *websocket.Conn, logger *zap.Logger) *Conn {
	c := &Conn{
		ID:        id,
		AccountID: accountID,
		WS:        ws,
		SendChan:  make(chan []byte, sendChanBuf),
		Done:      make(chan struct{}),
		subs:      make(map[string]func()),
		logger:    logger,
	}
	go c.writePump()
	return c
}

// writePump drains SendChan and writes to the WebSocket connection.
// Sends periodic pings to detect dead connections quickly.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.WS.Close()
	for {
		select {
		case data, ok := <-c.SendChan:
			if !ok {
				return
			}
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.WS.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("ws write error",
					zap.Int64("account_id", c.AccountID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Done:
			_ = c.WS.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and sends it non-blocking. Drops if the channel is
// full or the connection is closed, so one slow client never stalls a
// publish.
func (c *Conn) Send(pkt *Packet) {
	if c.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	c.SendRaw(data)
}

// SendRaw sends raw bytes non-blocking.
func (c *Conn) SendRaw(data []byte) {
	if c.IsClosed() {
		return
	}
	select {
	case c.SendChan <- data:
	case <-c.Done:
	default:
		if !c.IsClosed() {
			c.logger.Warn("send channel full, dropping packet",
				zap.Int64("account_id", c.AccountID))
		}
	}
}

// Close signals the writePump to shut down and cancels every
// session-channel subscription. Safe to call from both the read loop
// and the connection manager; only the first call closes Done.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.Done)
	})
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]func())
	c.mu.Unlock()
	for _, unsub := range subs {
		unsub()
	}
}

// IsClosed reports whether the connection has been closed.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}

// AddSubscription records the unsubscribe function for a session
// channel. An existing subscription to the same session is replaced
// (and its old unsubscribe invoked).
func (c *Conn) AddSubscription(sessionID string, unsub func()) {
	c.mu.Lock()
	old := c.subs[sessionID]
	c.subs[sessionID] = unsub
	c.mu.Unlock()
	if old != nil {
		old()
	}
}

// RemoveSubscription cancels the subscription to one session channel.
// Returns false if there was none.
func (c *Conn) RemoveSubscription(sessionID string) bool {
	c.mu.Lock()
	unsub, ok := c.subs[sessionID]
	delete(c.subs, sessionID)
	c.mu.Unlock()
	if !ok {
		return false
	}
	unsub()
	return true
}

// Subscribed reports whether the connection follows the session.
func (c *Conn) Subscribed(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[sessionID]
	return ok
}

// SetReadDeadline resets the WebSocket read deadline to 60 s from now.
func (c *Conn) SetReadDeadline() {
	_ = c.WS.SetReadDeadline(time.Now().Add(readDeadlineS))
}

// SendHeartbeatPong answers a client-level ping packet.
func (c *Conn) SendHeartbeatPong(clientTS int64) {
	type pongPayload struct {
		ClientTS int64 `json:"client_ts"`
		ServerTS int64 `json:"server_ts"`
	}
	payload, _ := json.Marshal(pongPayload{
		ClientTS: clientTS,
		ServerTS: time.Now().UnixMilli(),
	})
	c.Send(&Packet{Type: "pong", Payload: payload})
}
