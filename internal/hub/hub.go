package hub

import (
	"sync"

	"github.com/reservo/chat-service/internal/config"
	"github.com/reservo/chat-service/internal/domain"
	"github.com/reservo/chat-service/pkg/log"
)

// Hub is the presence registry: it tracks which live connections represent
// which logical users and delivers events to every connection of a target
// user. One Hub is constructed per process and injected wherever emission
// is needed; there is no ambient global.
type Hub struct {
	clients map[string]*Client            // connection id -> client
	users   map[int64]map[string]*Client  // user id -> connection id -> client
	mu      sync.RWMutex
	cfg     config.WebSocketConfig
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		users:   make(map[int64]map[string]*Client),
		cfg:     cfg,
	}
}

// Register admits a freshly connected client. The client is not associated
// with any user until it joins.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldConnID, client.ID).Msg("client registered")
}

// Unregister is the implicit leave: it removes exactly this connection
// from its user's set and closes its send channel. Other connections of
// the same user stay registered.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	if userID, bound := client.Session.BoundUser(); bound {
		if conns, ok := h.users[userID]; ok {
			delete(conns, client.ID)
			if len(conns) == 0 {
				delete(h.users, userID)
			}
		}
	}
	client.closeSend()
	h.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")
}

// Join admits the connection into the user's set. Joining twice with the
// same connection has no additional effect.
func (h *Hub) Join(client *Client, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		// Already torn down; a late join must not resurrect the entry.
		return
	}
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[string]*Client)
	}
	h.users[userID][client.ID] = client

	l := log.L()
	l.Info().Str(log.FieldConnID, client.ID).Int64(log.FieldUserID, userID).Msg("client joined")
}

// EmitToUser delivers payload under event to every connection of userID.
// An offline user is a silent no-op. A connection whose send buffer is
// full is dropped, matching the write-pump's assumption that Send is
// always drained.
func (h *Hub) EmitToUser(userID int64, event string, payload interface{}) error {
	data, err := domain.EncodeEvent(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	for _, client := range h.users[userID] {
		if !client.enqueue(data) {
			go h.Unregister(client)
		}
	}
	h.mu.RUnlock()
	return nil
}

// ConnectionCount reports how many live connections a user has.
func (h *Hub) ConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}
