package ws

import (
	"encoding/json"

	"go.uber.org/zap"

	"chat-server/internal/observability"
)

// Hub delivers outbound frames to registered connections. Every send is
// best effort: an absent user or a full queue drops the frame and never
// unregisters the connection.
type Hub struct {
	registry *Registry
	logger   *zap.Logger
}

func NewHub(registry *Registry, logger *zap.Logger) *Hub {
	return &Hub{registry: registry, logger: logger}
}

func (h *Hub) Registry() *Registry { return h.registry }

// Online returns the usernames currently connected.
func (h *Hub) Online() []string { return h.registry.Snapshot() }

func (h *Hub) encode(payload any) ([]byte, bool) {
	if raw, ok := payload.([]byte); ok {
		return raw, true
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encode outbound frame", zap.Error(err))
		return nil, false
	}
	return data, true
}

func (h *Hub) sendTo(mode string, c *Client, data []byte) bool {
	if !c.Send(data) {
		observability.ObserveDelivery(mode, "dropped")
		h.logger.Debug("outbound frame dropped", zap.String("mode", mode), zap.String("username", c.Username()))
		return false
	}
	observability.ObserveDelivery(mode, "delivered")
	return true
}

// SendTo delivers payload to one specific connection, bound or not.
func (h *Hub) SendTo(c *Client, payload any) bool {
	data, ok := h.encode(payload)
	if !ok {
		return false
	}
	return h.sendTo("direct", c, data)
}

// Unicast delivers payload to username's connection.
func (h *Hub) Unicast(username string, payload any) bool {
	data, ok := h.encode(payload)
	if !ok {
		return false
	}
	c, ok := h.registry.Resolve(username)
	if !ok {
		observability.ObserveDelivery("unicast", "dropped")
		return false
	}
	return h.sendTo("unicast", c, data)
}

// Multicast delivers payload to each distinct online user in usernames and
// returns how many frames were queued.
func (h *Hub) Multicast(usernames []string, payload any) int {
	data, ok := h.encode(payload)
	if !ok {
		return 0
	}
	seen := make(map[string]struct{}, len(usernames))
	delivered := 0
	for _, name := range usernames {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		c, ok := h.registry.Resolve(name)
		if !ok {
			continue
		}
		if h.sendTo("multicast", c, data) {
			delivered++
		}
	}
	return delivered
}

// Broadcast delivers payload to every registered connection. The frame is
// encoded once; one recipient failing does not affect the others.
func (h *Hub) Broadcast(payload any) int {
	data, ok := h.encode(payload)
	if !ok {
		return 0
	}
	delivered := 0
	for _, c := range h.registry.Clients() {
		if h.sendTo("broadcast", c, data) {
			delivered++
		}
	}
	return delivered
}

// ForceDisconnect queues a final payload for username, closes the connection
// and unregisters it. It reports whether a binding was removed.
func (h *Hub) ForceDisconnect(username string, payload any) bool {
	c, ok := h.registry.Resolve(username)
	if !ok {
		return false
	}
	if data, ok := h.encode(payload); ok {
		h.sendTo("direct", c, data)
	}
	c.Close()
	return h.registry.Release(c)
}
