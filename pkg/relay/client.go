package relay

import (
	"sync"
	"sync/atomic"

	"github.com/couriernet/courier/pkg/protocol"
)

// Client is one live transport attached to the relay. It exists from
// transport attach until transport close, whether or not the peer has
// identified yet. The identity binding (userID, sessionID, info) is filled
// in by a successful identify and cleared by logout.
type Client struct {
	ID   uint64
	Conn FrameConn

	mu        sync.RWMutex // Protects userID, sessionID, info
	userID    string
	sessionID string
	info      protocol.PresenceInfo

	// alive is the sweep acknowledgment flag: set on every inbound frame
	// and on pong, cleared by the sweep after pinging. A client that is
	// still false on the next sweep is forcibly closed.
	alive atomic.Bool
}

func (c *Client) markAlive() {
	c.alive.Store(true)
}

// Identified reports whether the client has bound an identity.
func (c *Client) Identified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID != ""
}

// UserID returns the bound identity, "" if not identified.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// SessionID returns the logical client-instance id, "" if not identified.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Info returns the last presence info the client reported about itself.
func (c *Client) Info() protocol.PresenceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

func (c *Client) bindIdentity(userID, sessionID string, info protocol.PresenceInfo) {
	c.mu.Lock()
	c.userID = userID
	c.sessionID = sessionID
	c.info = info
	c.mu.Unlock()
}

func (c *Client) setInfo(info protocol.PresenceInfo) {
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
}

func (c *Client) clearIdentity() {
	c.mu.Lock()
	c.userID = ""
	c.sessionID = ""
	c.info = protocol.PresenceInfo{}
	c.mu.Unlock()
}
