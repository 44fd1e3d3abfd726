package store

import "database/sql"

// Message represents a routed envelope. The payload is an opaque encrypted
// blob; the relay never inspects it.
type Message struct {
	MessageID   string
	SenderID    string
	RecipientID string
	Payload     []byte
	Timestamp   int64 // Unix timestamp in milliseconds
	Delivered   bool
	Read        bool
}

// InsertMessage persists a routed message.
func (s *Store) InsertMessage(m *Message) error {
	_, err := s.writeConn.Exec(`
		INSERT INTO Message (message_id, sender_id, recipient_id, payload, timestamp, delivered, read)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.MessageID, m.SenderID, m.RecipientID, string(m.Payload), m.Timestamp, m.Delivered, m.Read)
	return err
}

// GetMessage returns a message by id, or ErrMessageNotFound.
func (s *Store) GetMessage(messageID string) (*Message, error) {
	row := s.conn.QueryRow(`
		SELECT message_id, sender_id, recipient_id, payload, timestamp, delivered, read
		FROM Message WHERE message_id = ?
	`, messageID)

	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	return m, err
}

func scanMessage(row interface{ Scan(...interface{}) error }) (*Message, error) {
	m := &Message{}
	var payload string
	if err := row.Scan(&m.MessageID, &m.SenderID, &m.RecipientID, &payload, &m.Timestamp, &m.Delivered, &m.Read); err != nil {
		return nil, err
	}
	m.Payload = []byte(payload)
	return m, nil
}

// MarkDelivered sets delivered=1 unconditionally. Idempotent: marking an
// already-delivered or unknown message is a no-op, never an error.
func (s *Store) MarkDelivered(messageID string) error {
	_, err := s.writeConn.Exec(`UPDATE Message SET delivered = 1 WHERE message_id = ?`, messageID)
	return err
}

// MarkRead sets read=1 (and delivered=1; a read message was delivered).
func (s *Store) MarkRead(messageID string) error {
	_, err := s.writeConn.Exec(`UPDATE Message SET read = 1, delivered = 1 WHERE message_id = ?`, messageID)
	return err
}

// UndeliveredFor returns the offline queue for a recipient in ascending
// timestamp order.
func (s *Store) UndeliveredFor(recipientID string) ([]*Message, error) {
	rows, err := s.conn.Query(`
		SELECT message_id, sender_id, recipient_id, payload, timestamp, delivered, read
		FROM Message
		WHERE recipient_id = ? AND delivered = 0
		ORDER BY timestamp ASC
	`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// MarkDeliveredBatch marks a set of flushed queue messages delivered in one
// transaction, so a crash mid-flush cannot leave the batch half-marked.
func (s *Store) MarkDeliveredBatch(messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	tx, err := s.writeConn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE Message SET delivered = 1 WHERE message_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range messageIDs {
		if _, err := stmt.Exec(id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// History returns the full conversation between two identities, both
// directions, in ascending timestamp order.
func (s *Store) History(userID, peerID string) ([]*Message, error) {
	rows, err := s.conn.Query(`
		SELECT message_id, sender_id, recipient_id, payload, timestamp, delivered, read
		FROM Message
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY timestamp ASC
	`, userID, peerID, peerID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
