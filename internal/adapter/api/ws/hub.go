package ws

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Client represents one connected UI host.
type Client struct {
	Conn *websocket.Conn
	Send chan []byte
}

// Hub fans state snapshots out to every connected UI host. A client that
// cannot keep up is dropped rather than allowed to stall the others.
type Hub struct {
	clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	broadcast  chan []byte

	mutex  sync.RWMutex
	latest []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
	}
}

// Start runs the hub's main loop in a goroutine.
func (h *Hub) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-h.Register:
				h.mutex.Lock()
				h.clients[client] = true
				latest := h.latest
				h.mutex.Unlock()
				// A fresh client gets the current state immediately instead
				// of waiting for the next change.
				if latest != nil {
					select {
					case client.Send <- latest:
					default:
					}
				}
				log.Printf("UI client connected: %s", client.Conn.RemoteAddr())

			case client := <-h.Unregister:
				h.mutex.Lock()
				if _, ok := h.clients[client]; ok {
					delete(h.clients, client)
					close(client.Send)
				}
				h.mutex.Unlock()
				log.Printf("UI client disconnected: %s", client.Conn.RemoteAddr())

			case message := <-h.broadcast:
				h.mutex.Lock()
				h.latest = message
				for client := range h.clients {
					select {
					case client.Send <- message:
					default:
						close(client.Send)
						delete(h.clients, client)
					}
				}
				h.mutex.Unlock()

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Broadcast queues a state snapshot for every connected client. Never blocks
// the caller; under pressure the oldest pending snapshot is superseded anyway
// since each one carries the full state.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
	}
}

// ReadPump drains the connection until it closes. Inbound frames are ignored;
// all commands arrive over the REST surface.
func (c *Client) ReadPump(h *Hub) {
	defer func() {
		h.Unregister <- c
		c.Conn.Close()
	}()

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
	}
}

// WritePump sends queued snapshots to the connection.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("error: %v", err)
			return
		}
	}
}
