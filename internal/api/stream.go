package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/slingshot/internal/events"
)

const streamWriteTimeout = 5 * time.Second

// EventStream fans bus events out to websocket clients as JSON text frames.
type EventStream struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]*sync.Mutex
	upgrader websocket.Upgrader
}

// NewEventStream creates a stream accepting the given origins; an empty
// list or "*" accepts any origin.
func NewEventStream(allowedOrigins []string) *EventStream {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &EventStream{
		clients: make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || allowed["*"] || origin == "" || allowed[origin]
			},
		},
	}
}

// Attach subscribes the stream to every event on bus.
func (es *EventStream) Attach(bus *events.Bus) {
	bus.SubscribeAll("api_stream", es.handle)
}

func (es *EventStream) handle(_ context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	es.broadcast(data)
	return nil
}

// HandleWebSocket upgrades the request and keeps the client registered
// until it disconnects.
func (es *EventStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := es.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	es.mu.Lock()
	es.clients[conn] = &sync.Mutex{}
	es.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	es.remove(conn)
}

func (es *EventStream) remove(conn *websocket.Conn) {
	es.mu.Lock()
	_, ok := es.clients[conn]
	delete(es.clients, conn)
	es.mu.Unlock()
	if ok {
		conn.Close()
	}
}

func (es *EventStream) broadcast(data []byte) {
	es.mu.RLock()
	targets := make(map[*websocket.Conn]*sync.Mutex, len(es.clients))
	for conn, wmu := range es.clients {
		targets[conn] = wmu
	}
	es.mu.RUnlock()

	for conn, wmu := range targets {
		wmu.Lock()
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		err := conn.WriteMessage(websocket.TextMessage, data)
		wmu.Unlock()
		if err != nil {
			es.remove(conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (es *EventStream) ClientCount() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.clients)
}

// Close disconnects every client.
func (es *EventStream) Close() {
	es.mu.Lock()
	conns := es.clients
	es.clients = make(map[*websocket.Conn]*sync.Mutex)
	es.mu.Unlock()
	for conn := range conns {
		conn.Close()
	}
}
