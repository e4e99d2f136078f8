// Package hub fans events out to websocket subscribers. Every connection has
// its own outbound queue drained by one writer goroutine, so a slow or dead
// subscriber can only lose its own connection, never block the engine or
// other subscribers.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/hertz-contrib/websocket"

	"dut-dashboard-service/internal/dashboard/events"
)

// sendBuffer bounds the per-connection outbound queue. A client that falls
// this far behind is disconnected and expected to reconcile on reconnect.
const sendBuffer = 64

// sendGrace is how long a full queue may block a broadcast before the
// connection is declared slow. A healthy writer drains within this; one whose
// write is stuck does not, so a synchronous burst larger than the queue never
// costs a live connection.
const sendGrace = 10 * time.Millisecond

// conn is the subset of *websocket.Conn the hub writes to.
type conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// SubscribeAll subscribes a connection to events for every target.
const SubscribeAll = "all"

// Client is one registered websocket connection.
type Client struct {
	hub  *Hub
	conn conn
	send chan []byte

	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]bool
}

// Hub tracks registered connections and routes events to them.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]bool
}

func New() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// Register adds a connection and starts its writer goroutine. The client has
// no subscriptions until it sends a subscribe message.
func (h *Hub) Register(c conn) *Client {
	client := &Client{
		hub:  h,
		conn: c,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	go client.writePump()
	log.Printf("Hub: new connection. Total connections: %d", count)
	return client
}

// Unregister removes a connection and closes its outbound queue.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	client.shutdown()
	log.Printf("Hub: connection closed. Total connections: %d", count)
}

// Subscribe replaces the client's subscription set. Names may be target names
// or SubscribeAll.
func (h *Hub) Subscribe(client *Client, targets []string) {
	subs := make(map[string]bool, len(targets))
	for _, t := range targets {
		subs[t] = true
	}
	client.mu.Lock()
	client.subs = subs
	client.mu.Unlock()
	log.Printf("Hub: updated subscription: %v", targets)
}

// Broadcast queues the event on every subscribed connection. An empty target
// name addresses every connection holding any subscription. A connection
// whose queue stays full past the grace period is dropped.
func (h *Hub) Broadcast(targetName string, ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Hub: failed to marshal %s event: %v", ev.Type, err)
		return
	}

	h.mu.Lock()
	var dropped []*Client
	for client := range h.clients {
		if !client.wants(targetName) {
			continue
		}
		if !client.offer(payload) {
			dropped = append(dropped, client)
		}
	}
	for _, client := range dropped {
		delete(h.clients, client)
	}
	h.mu.Unlock()

	for _, client := range dropped {
		log.Printf("Hub: dropping slow connection (queue full)")
		client.shutdown()
	}
}

// SendTo queues an event on a single connection.
func (h *Hub) SendTo(client *Client, ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Hub: failed to marshal %s event: %v", ev.Type, err)
		return
	}
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delivered := client.offer(payload)
	if !delivered {
		delete(h.clients, client)
	}
	h.mu.Unlock()

	if !delivered {
		client.shutdown()
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (c *Client) wants(targetName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return false
	}
	if targetName == "" || c.subs[SubscribeAll] {
		return true
	}
	return c.subs[targetName]
}

// offer queues the payload, waiting up to sendGrace for the writer to drain a
// full queue. False means the client is genuinely stuck, not just bursted.
func (c *Client) offer(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
	}
	grace := time.NewTimer(sendGrace)
	defer grace.Stop()
	select {
	case c.send <- payload:
		return true
	case <-grace.C:
		return false
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.send) })
}

// writePump drains the outbound queue onto the connection. A write failure
// unregisters the client; queue close shuts the connection down.
func (c *Client) writePump() {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("Hub: write failed, dropping connection: %v", err)
			c.hub.Unregister(c)
			break
		}
	}
	// Drain anything queued between the failed write and unregistration.
	for range c.send {
	}
	c.conn.Close()
}
