package server

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/quantora/trademetrics/internal/types"
)

type partitionKey struct {
	clientID    string
	magicNumber int64
}

// hub tracks websocket subscribers per partition and fans fresh reports
// out to them.
type hub struct {
	mu          sync.RWMutex
	subscribers map[partitionKey]map[*websocket.Conn]bool
}

func newHub() *hub {
	return &hub{
		subscribers: make(map[partitionKey]map[*websocket.Conn]bool),
	}
}

func (h *hub) subscribe(key partitionKey, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[key] == nil {
		h.subscribers[key] = make(map[*websocket.Conn]bool)
	}

	h.subscribers[key][conn] = true
}

func (h *hub) unsubscribe(key partitionKey, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subscribers[key], conn)

	if len(h.subscribers[key]) == 0 {
		delete(h.subscribers, key)
	}
}

// hasSubscribers lets the append path skip report computation when nobody
// is listening.
func (h *hub) hasSubscribers(key partitionKey) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[key]) > 0
}

// broadcast pushes a report to every subscriber of the partition. Dead
// connections are dropped from the registry.
func (h *hub) broadcast(key partitionKey, report types.MetricsReport) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.subscribers[key] {
		if err := conn.WriteJSON(report); err != nil {
			conn.Close()
			delete(h.subscribers[key], conn)
		}
	}

	if len(h.subscribers[key]) == 0 {
		delete(h.subscribers, key)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, conns := range h.subscribers {
		for conn := range conns {
			conn.Close()
		}

		delete(h.subscribers, key)
	}
}
