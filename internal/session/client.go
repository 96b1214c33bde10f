package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ingestd/marketfeed/internal/broadcast"
)

// sendBufferSize bounds the per-client outbound queue. A client that falls
// behind has frames dropped rather than blocking the writer — the same
// lag-not-block policy the broadcast bus itself applies.
const sendBufferSize = 256

// Client is one subscription-server session: a socket, a private topic
// filter, and a private broadcast subscriber.
type Client struct {
	id      string
	conn    *websocket.Conn
	mgr     *Manager
	sub     *broadcast.Subscriber
	send    chan []byte
	closeCh chan struct{}
	once    sync.Once

	topicsMu sync.RWMutex
	topics   map[string]struct{}
}

func newClient(id string, conn *websocket.Conn, mgr *Manager) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		mgr:     mgr,
		sub:     mgr.bus.Subscribe(),
		send:    make(chan []byte, sendBufferSize),
		closeCh: make(chan struct{}),
		topics:  make(map[string]struct{}),
	}
}

// run drives the three concurrent loops (read, write, broadcast-forward)
// and returns once any one of them ends the session.
func (c *Client) run() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump()
	go c.forwardPump()
	c.readPump()
}

// readPump reads client commands until a read error, close frame, or EOF
// ends the session (spec.md §4.5 termination rule).
func (c *Client) readPump() {
	defer c.close()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		handleCommand(c, raw)
	}
}

// writePump drains send, with a periodic ping keeping the connection alive.
// Any write error ends the session.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

// forwardPump filters live broadcasts against the client's subscribed-topic
// set and forwards the pre-serialized JSON without re-encoding (spec.md
// §4.3). On sustained lag it simply continues — the client is never
// disconnected for falling behind (P6).
func (c *Client) forwardPump() {
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.sub.Wait(c.closeCh)

		for {
			raw, lagged, ok := c.sub.Next()
			if !ok {
				break
			}
			if lagged > 0 {
				c.mgr.log.Debug().Str("client", c.id).Uint64("lagged", lagged).Msg("session fell behind broadcast bus, resynchronizing")
			}
			topic := extractTopic(raw)
			if !c.isSubscribed(topic) {
				continue
			}
			c.enqueue(raw)
		}

		select {
		case <-c.closeCh:
			return
		default:
		}
	}
}

// enqueue drops the frame if the client's outbound queue is full rather
// than blocking the broadcast-forward loop.
func (c *Client) enqueue(raw []byte) {
	select {
	case c.send <- raw:
	default:
		c.mgr.log.Debug().Str("client", c.id).Msg("client send buffer full, dropping frame")
	}
}

func (c *Client) subscribeTopic(topic string) {
	c.topicsMu.Lock()
	c.topics[topic] = struct{}{}
	c.topicsMu.Unlock()
}

func (c *Client) unsubscribeTopic(topic string) {
	c.topicsMu.Lock()
	delete(c.topics, topic)
	c.topicsMu.Unlock()
}

func (c *Client) isSubscribed(topic string) bool {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.closeCh)
		c.mgr.bus.Unsubscribe(c.sub)
		c.conn.Close()
	})
}
