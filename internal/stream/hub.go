package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans session-change events out to every connected device of a user.
// Events also go through redis pubsub so devices connected to another process
// see them too.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	UserID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(userID string) *Client {
	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userClients, ok := h.clients[client.UserID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	close(client.Send)
}

// Broadcast delivers a payload to the user's local clients and publishes it
// for other processes. Slow clients are skipped rather than blocked on.
func (h *Hub) Broadcast(userID string, payload []byte) {
	h.deliverLocal(userID, payload)

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(userID), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

// deliverLocal holds the read lock across the sends so Unregister cannot
// mutate the client set or close a Send channel mid-iteration. The sends
// never block, so holding the lock here is safe.
func (h *Hub) deliverLocal(userID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "sessions:*:events")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliverLocal(userIDFromChannel(msg.Channel), []byte(msg.Payload))
	}
}

func redisChannel(userID string) string {
	return "sessions:" + userID + ":events"
}

func userIDFromChannel(ch string) string {
	// sessions:{user}:events
	const prefix = "sessions:"
	const suffix = ":events"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
