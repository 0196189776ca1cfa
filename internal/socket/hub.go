package socket

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
)

type Hub struct {
	log      *logger.Logger
	nodeID   string
	mu       sync.RWMutex
	channels map[string]map[uuid.UUID]*Client

	redisPubSub *RedisPubSub
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:      log.With("component", "Hub"),
		nodeID:   uuid.NewString(),
		channels: make(map[string]map[uuid.UUID]*Client),
	}
}

// SetRedisPubSub enables cross-node fan-out.
func (h *Hub) SetRedisPubSub(rp *RedisPubSub) {
	h.redisPubSub = rp
}

// Subscribe registers client on channels. A closed client is ignored.
func (h *Hub) Subscribe(client *Client, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.Closed() {
		h.log.Debug("Ignoring subscription from closed client", "client", client.ID)
		return
	}

	for _, ch := range channels {
		if h.channels[ch] == nil {
			h.channels[ch] = make(map[uuid.UUID]*Client)
		}
		h.channels[ch][client.ID] = client
	}
	h.log.Debug("Client subscribed", "client", client.ID, "channels", channels)
}

func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch, clientsMap := range h.channels {
		if _, ok := clientsMap[client.ID]; ok {
			delete(clientsMap, client.ID)
			if len(clientsMap) == 0 {
				delete(h.channels, ch)
			}
		}
	}
	h.log.Debug("Client unsubscribed from all channels", "client", client.ID)
}

func (h *Hub) UnsubscribeFromChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clientsMap, ok := h.channels[channel]; ok {
		delete(clientsMap, client.ID)
		if len(clientsMap) == 0 {
			delete(h.channels, channel)
		}
	}
}

// SubscriberCount reports how many local clients listen on channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) localBroadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clientsMap, ok := h.channels[msg.Channel]
	if !ok {
		return
	}
	for _, client := range clientsMap {
		if !client.Send(msg) {
			h.log.Warn("Dropping message to client", "client", client.ID, "channel", msg.Channel)
		}
	}
}

// BroadcastGlobal delivers locally and, when Redis is configured, to every other node.
func (h *Hub) BroadcastGlobal(ctx context.Context, msg Message) {
	msg.Origin = h.nodeID
	h.localBroadcast(msg)

	if h.redisPubSub != nil {
		if err := h.redisPubSub.Publish(ctx, msg); err != nil {
			h.log.Warn("Failed to publish to Redis", "error", err)
		}
	}
}

// NotifyUser sends an action to every connection of userID.
func (h *Hub) NotifyUser(ctx context.Context, userID uuid.UUID, action string, payload interface{}) {
	h.BroadcastGlobal(ctx, Message{
		Channel: UserChannel(userID),
		Action:  action,
		Payload: payload,
	})
}
