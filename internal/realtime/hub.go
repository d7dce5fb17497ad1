// Package realtime — websocket-канал вставок тикетов. Пушим только создание;
// клиенты по сообщению перезапрашивают список.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	EventTicketCreated = "ticket.created"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Message: то, что уходит подписчику.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// Gauge — число подписчиков (prometheus.Gauge подходит).
type Gauge interface {
	Set(float64)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	mu         sync.Mutex
	gauge      Gauge
	upgrader   websocket.Upgrader
	done       chan struct{}
}

func NewHub(gauge Gauge) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		gauge:      gauge,
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run обслуживает register/unregister/broadcast до отмены ctx.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.setGauge()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.setGauge()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.setGauge()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// медленный клиент, отключаем
					slog.Warn("realtime: subscriber too slow, dropping")
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
			h.setGauge()
		}
	}
}

// Publish ставит сообщение в очередь рассылки; при переполнении сообщение теряется.
func (h *Hub) Publish(eventType string, payload interface{}) {
	body, err := json.Marshal(Message{Type: eventType, Payload: payload, At: time.Now().UTC()})
	if err != nil {
		slog.Warn("realtime: marshal", "error", err)
		return
	}
	select {
	case h.broadcast <- body:
	default:
		slog.Warn("realtime: broadcast queue full, message dropped", "type", eventType)
	}
}

// TicketCreated: хук для сервиса тикетов.
func (h *Hub) TicketCreated(ticket interface{}) {
	h.Publish(EventTicketCreated, ticket)
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS: GET /api/v1/tickets/stream (auth уже проверен middleware).
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("realtime: upgrade", "error", err)
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- cl:
	case <-h.done:
		conn.Close()
		return
	}
	go h.writePump(cl)
	h.readPump(cl)
}

// readPump читает только control-фреймы; входящие сообщения игнорируются.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) setGauge() {
	if h.gauge != nil {
		h.gauge.Set(float64(h.Count()))
	}
}
