package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/skillmesh/trust-engine/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dashboard
	},
}

// Hub bridges the event bus to connected WebSocket dashboards. Every bus
// event is serialised once and fanned out; clients that fall behind are
// disconnected rather than buffered without bound.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run pumps bus events and direct broadcasts to all clients until the
// context is cancelled.
func (h *Hub) Run(ctx context.Context, bus *events.Bus) error {
	sub := bus.Subscribe() // all kinds
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.C():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				log.Printf("[Hub] Failed to marshal event %s: %v", evt.Kind, err)
				continue
			}
			h.writeAll(payload)
		case message := <-h.broadcast:
			h.writeAll(message)
		}
	}
}

func (h *Hub) writeAll(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		// Write deadline keeps one blocked client from hanging the hub
		_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("Websocket write error: %v", err)
			client.Close()
			delete(h.clients, client)
		}
	}
}

// Subscribe handles incoming websocket connections
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()

	log.Printf("New WebSocket client connected. Total clients: %d", total)

	// Greet the client so it can distinguish "connected" from "quiet"
	init, _ := json.Marshal(events.Event{
		Kind:      events.KindConnectionInit,
		Timestamp: time.Now().UnixMilli(),
	})
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, init)

	// Keep-alive read loop: we only push down, but reads detect disconnects
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			remaining := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("WebSocket client disconnected. Total clients: %d", remaining)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast sends raw JSON to all connected clients, bypassing the bus
func (h *Hub) Broadcast(data []byte) {
	h.broadcast <- data
}
