// Package websocket pushes call events to websocket clients. The Hub is a
// telephony.Sink: trackers publish into it and it fans each event out to
// every subscribed client.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"callcore/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventType names a websocket event.
type EventType string

const (
	EventPreciseCallState EventType = "precise_call_state"
	EventNewRinging       EventType = "new_ringing"
	EventCallWaiting      EventType = "call_waiting"
	EventRingback         EventType = "ringback"
	EventVoiceCallStarted EventType = "voice_call_started"
	EventVoiceCallEnded   EventType = "voice_call_ended"
	EventDisconnect       EventType = "disconnect"
	EventPostDialWait     EventType = "post_dial_wait"
)

// TopicAll receives events of every phone. Clients subscribe to a single
// phone with the topic "phone:<id>".
const TopicAll = "all"

// Message is one event as sent to clients.
type Message struct {
	Type      EventType   `json:"type"`
	Phone     string      `json:"phone"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type outbound struct {
	phone string
	data  []byte
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	topics map[string]bool
}

func (c *Client) wants(phone string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[TopicAll] || c.topics["phone:"+phone]
}

// Hub maintains active websocket connections and broadcasts messages.
type Hub struct {
	log        *logrus.Entry
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		log:        logging.For("websocket"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// client. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infof("Client connected. Total clients: %d", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infof("Client disconnected. Total clients: %d", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.phone) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					h.log.Warn("Client too slow, dropping it")
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for every client subscribed to phone. It never
// blocks: when the queue is full the event is dropped.
func (h *Hub) Broadcast(eventType EventType, phone string, data interface{}) {
	msg := Message{
		Type:      eventType,
		Phone:     phone,
		Data:      data,
		Timestamp: time.Now(),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("Error marshaling message")
		return
	}

	select {
	case h.broadcast <- outbound{phone: phone, data: jsonData}:
	default:
		h.log.Warnf("Broadcast queue full, dropping %s", eventType)
	}
}

// ServeHTTP upgrades the request and registers the client. A "phone" query
// parameter limits the initial subscription to that phone.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Upgrade error")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		topics: make(map[string]bool),
	}
	if phone := r.URL.Query().Get("phone"); phone != "" {
		client.topics["phone:"+phone] = true
	} else {
		client.topics[TopicAll] = true
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump handles subscribe and unsubscribe requests until the
// connection closes.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("Read error")
			}
			break
		}

		var subMsg struct {
			Action string `json:"action"`
			Topic  string `json:"topic"`
		}
		if json.Unmarshal(message, &subMsg) != nil {
			continue
		}
		topic := strings.TrimSpace(subMsg.Topic)
		c.mu.Lock()
		switch subMsg.Action {
		case "subscribe":
			if topic != "" {
				c.topics[topic] = true
			}
		case "unsubscribe":
			delete(c.topics, topic)
		}
		c.mu.Unlock()
	}
}

// writePump writes queued messages and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
