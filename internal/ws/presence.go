package ws

import (
	"fmt"

	"go.uber.org/zap"

	"chat-server/internal/models"
)

const supersededNotice = "Signed in from another connection"

// Presence turns registry transitions into status events. Transitions of one
// username are serialized so its last announced status matches the registry.
type Presence struct {
	hub    *Hub
	users  *keyedMutex[string]
	logger *zap.Logger
}

func NewPresence(hub *Hub, logger *zap.Logger) *Presence {
	return &Presence{hub: hub, users: newKeyedMutex[string](), logger: logger}
}

// Connect sends c the online snapshot, binds it and announces it. An older
// connection for the same user is closed with a system notice; its teardown
// will not announce offline because it no longer owns the binding.
func (p *Presence) Connect(c *Client) {
	unlock := p.users.Lock(c.Username())
	defer unlock()

	online := make([]string, 0)
	for _, name := range p.hub.Online() {
		if name != c.Username() {
			online = append(online, name)
		}
	}
	p.hub.SendTo(c, models.InitialStatusEvent{Type: models.OutInitialStatus, Online: online})

	if prev := p.hub.Registry().Register(c); prev != nil {
		p.logger.Info("connection superseded",
			zap.String("username", c.Username()),
			zap.String("old_conn_id", prev.Info().ConnID),
			zap.String("new_conn_id", c.Info().ConnID))
		p.hub.SendTo(prev, models.SystemEvent{Type: models.OutSystem, Content: supersededNotice})
		prev.Close()
	}
	p.announce(c.Username(), models.StatusOnline)
}

// Disconnect releases c and announces offline when c still owned the binding.
func (p *Presence) Disconnect(c *Client) bool {
	unlock := p.users.Lock(c.Username())
	defer unlock()
	if !p.hub.Registry().Release(c) {
		return false
	}
	p.announce(c.Username(), models.StatusOffline)
	return true
}

// Evict force-disconnects username with a final payload and announces offline.
func (p *Presence) Evict(username string, final any) bool {
	unlock := p.users.Lock(username)
	defer unlock()
	if !p.hub.ForceDisconnect(username, final) {
		return false
	}
	p.announce(username, models.StatusOffline)
	return true
}

func (p *Presence) announce(username, status string) {
	n := p.hub.Broadcast(models.StatusEvent{Type: models.OutStatus, Username: username, Status: status})
	p.logger.Debug(fmt.Sprintf("presence %s", status), zap.String("username", username), zap.Int("recipients", n))
}
