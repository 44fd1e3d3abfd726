package relay

import (
	"sort"
	"time"

	"github.com/couriernet/courier/pkg/protocol"
)

// buildRoster merges persisted users with live connections. Every user that
// has claimed a username appears, defaulting to offline with their stored
// last-seen; live connections overlay as online with their self-reported
// info. The persisted profile picture wins over whatever the client cached.
func (s *Server) buildRoster() ([]protocol.RosterEntry, error) {
	users, err := s.store.ListNamedUsers()
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]protocol.RosterEntry, len(users))
	for _, u := range users {
		byUser[u.UserID] = protocol.RosterEntry{
			UserID:         u.UserID,
			Username:       u.Username,
			DisplayName:    u.DisplayName,
			ProfilePicture: u.ProfilePicture,
			Status:         "offline",
			LastSeen:       u.LastSeen,
		}
	}

	now := time.Now().UnixMilli()
	for _, c := range s.registry.All() {
		userID := c.UserID()
		if userID == "" {
			continue
		}
		info := c.Info()

		entry := protocol.RosterEntry{
			UserID:      userID,
			Username:    info.Username,
			DisplayName: info.DisplayName,
			Status:      "online",
			LastSeen:    now,
		}
		// The stored picture is fresher than the client's cached copy.
		if stored, ok := byUser[userID]; ok && stored.ProfilePicture != nil {
			entry.ProfilePicture = stored.ProfilePicture
		} else {
			entry.ProfilePicture = info.ProfilePicture
		}
		byUser[userID] = entry
	}

	roster := make([]protocol.RosterEntry, 0, len(byUser))
	for _, entry := range byUser {
		roster = append(roster, entry)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].UserID < roster[j].UserID })
	return roster, nil
}

// broadcastRoster pushes the full roster to every attached transport,
// identified or not, so clients on the login screen see presence too.
func (s *Server) broadcastRoster() {
	roster, err := s.buildRoster()
	if err != nil {
		errorLog.Printf("Failed to build roster: %v", err)
		return
	}

	s.broadcastAll(protocol.TypeUserList, &protocol.UserListMessage{
		Type:  protocol.TypeUserList,
		Users: roster,
	})
	s.metrics.RecordBroadcast()
}

// handleBroadcastPresence refreshes the caller's self-reported info and
// rebroadcasts the roster.
func (s *Server) handleBroadcastPresence(c *Client, frame *protocol.Frame) {
	var msg protocol.BroadcastPresenceMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}

	if c.Identified() {
		c.setInfo(msg.Info)
	}
	s.broadcastRoster()
}
