package store

import "database/sql"

// Friend request states. declined may transition back to pending via a
// fresh request; there is no blocked state.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
)

// FriendRequest tracks one ordered (sender, receiver) pair.
type FriendRequest struct {
	SenderID   string
	ReceiverID string
	Status     string
	CreatedAt  int64 // Unix timestamp in milliseconds
	UpdatedAt  int64 // Unix timestamp in milliseconds
}

// UpsertFriendRequest creates a pending request, or resets an existing row
// for the same ordered pair back to pending (re-request after decline).
func (s *Store) UpsertFriendRequest(senderID, receiverID string) error {
	now := nowMillis()
	_, err := s.writeConn.Exec(`
		INSERT INTO FriendRequest (sender_id, receiver_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (sender_id, receiver_id)
		DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`, senderID, receiverID, RequestPending, now, now)
	return err
}

// GetFriendRequest returns the row for an ordered pair, or ErrRequestNotFound.
func (s *Store) GetFriendRequest(senderID, receiverID string) (*FriendRequest, error) {
	row := s.conn.QueryRow(`
		SELECT sender_id, receiver_id, status, created_at, updated_at
		FROM FriendRequest WHERE sender_id = ? AND receiver_id = ?
	`, senderID, receiverID)

	fr := &FriendRequest{}
	err := row.Scan(&fr.SenderID, &fr.ReceiverID, &fr.Status, &fr.CreatedAt, &fr.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return fr, nil
}

// ResolveFriendRequest transitions a pending request to accepted or
// declined. Returns ErrRequestNotFound if no pending row exists for the
// pair, so a stale accept/decline cannot clobber a later state.
func (s *Store) ResolveFriendRequest(senderID, receiverID, status string) error {
	result, err := s.writeConn.Exec(`
		UPDATE FriendRequest SET status = ?, updated_at = ?
		WHERE sender_id = ? AND receiver_id = ? AND status = ?
	`, status, nowMillis(), senderID, receiverID, RequestPending)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// CreateFriendship inserts the friendship in both directions atomically.
// Idempotent: existing rows are left alone, never an error.
func (s *Store) CreateFriendship(userID, friendID string) error {
	tx, err := s.writeConn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := nowMillis()
	if _, err := tx.Exec(`INSERT OR IGNORE INTO Friendship (user_id, friend_id, created_at) VALUES (?, ?, ?)`, userID, friendID, now); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO Friendship (user_id, friend_id, created_at) VALUES (?, ?, ?)`, friendID, userID, now); err != nil {
		return err
	}

	return tx.Commit()
}

// ListFriendIDs returns the ids of all friends of a user.
func (s *Store) ListFriendIDs(userID string) ([]string, error) {
	rows, err := s.conn.Query(`SELECT friend_id FROM Friendship WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListFriends returns all friends of a user enriched with their identity
// records.
func (s *Store) ListFriends(userID string) ([]*User, error) {
	return s.queryUsers(`
		SELECT u.user_id, u.username, u.display_name, u.public_key, u.profile_picture, u.credential_digest, u.last_seen, u.created_at
		FROM Friendship f
		JOIN User u ON u.user_id = f.friend_id
		WHERE f.user_id = ?
		ORDER BY f.created_at ASC
	`, userID)
}

// PendingReceived returns the senders of pending requests addressed to the
// user.
func (s *Store) PendingReceived(userID string) ([]*User, error) {
	return s.queryUsers(`
		SELECT u.user_id, u.username, u.display_name, u.public_key, u.profile_picture, u.credential_digest, u.last_seen, u.created_at
		FROM FriendRequest fr
		JOIN User u ON u.user_id = fr.sender_id
		WHERE fr.receiver_id = ? AND fr.status = 'pending'
		ORDER BY fr.updated_at ASC
	`, userID)
}

// PendingSent returns the receivers of pending requests the user has sent.
func (s *Store) PendingSent(userID string) ([]*User, error) {
	return s.queryUsers(`
		SELECT u.user_id, u.username, u.display_name, u.public_key, u.profile_picture, u.credential_digest, u.last_seen, u.created_at
		FROM FriendRequest fr
		JOIN User u ON u.user_id = fr.receiver_id
		WHERE fr.sender_id = ? AND fr.status = 'pending'
		ORDER BY fr.updated_at ASC
	`, userID)
}

func (s *Store) queryUsers(query string, args ...interface{}) ([]*User, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
