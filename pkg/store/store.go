package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrUserNotFound indicates no user row matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken indicates a case-insensitive username collision.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrRequestNotFound indicates no pending friend request for the pair.
	ErrRequestNotFound = errors.New("friend request not found")
	// ErrMessageNotFound indicates the message does not exist.
	ErrMessageNotFound = errors.New("message not found")
)

// Store wraps the SQLite database that is the single source of truth for
// users, messages, friend requests and friendships. All writes go through a
// dedicated single-connection pool so row mutations never interleave.
type Store struct {
	conn      *sql.DB // Read connection pool
	writeConn *sql.DB // Dedicated write connection (1 connection)
}

// Open opens the SQLite database at the given path and initializes the
// schema if needed. A failure here is fatal to startup by design: the relay
// never runs without its durable store.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}

	// Dedicated write connection: exactly 1 connection, never recycled, so
	// every row mutation is serialized (single-writer discipline).
	writeConn, err := sql.Open("sqlite", path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}

	writeConn.SetMaxOpenConns(1)
	writeConn.SetMaxIdleConns(1)
	writeConn.SetConnMaxLifetime(0)

	if err := applyPragmas(writeConn); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, err
	}

	s := &Store{conn: conn, writeConn: writeConn}

	if err := s.initSchema(); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// applyPragmas configures a connection pool for concurrent WAL access.
func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes both database connections.
func (s *Store) Close() error {
	s.writeConn.Close()
	return s.conn.Close()
}

// initSchema creates all tables and indexes if they don't exist.
func (s *Store) initSchema() error {
	schema := `
-- User table. user_id is the client-generated opaque identity token and is
-- immutable once created. Username uniqueness is case-insensitive.
CREATE TABLE IF NOT EXISTS User (
	user_id TEXT PRIMARY KEY,
	username TEXT,
	display_name TEXT NOT NULL DEFAULT '',
	public_key TEXT NOT NULL DEFAULT '',
	profile_picture TEXT,
	credential_digest TEXT,
	last_seen INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_user_username
	ON User(username COLLATE NOCASE)
	WHERE username IS NOT NULL AND username != '';

-- Message envelopes. Payloads are opaque encrypted blobs. delivered never
-- transitions back to 0 once set; history is retained indefinitely.
CREATE TABLE IF NOT EXISTS Message (
	message_id TEXT PRIMARY KEY,
	sender_id TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	delivered INTEGER NOT NULL DEFAULT 0,
	read INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_message_queue ON Message(recipient_id, delivered, timestamp);
CREATE INDEX IF NOT EXISTS idx_message_sender ON Message(sender_id, recipient_id, timestamp);

-- At most one friend request row per ordered (sender, receiver) pair. A
-- fresh request after a decline resets the row to pending.
CREATE TABLE IF NOT EXISTS FriendRequest (
	sender_id TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (sender_id, receiver_id)
);

-- Friendships are stored in both directions; acceptance inserts both rows
-- in one transaction.
CREATE TABLE IF NOT EXISTS Friendship (
	user_id TEXT NOT NULL,
	friend_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, friend_id)
);
`
	_, err := s.conn.Exec(schema)
	return err
}

// nowMillis returns current time as Unix timestamp in milliseconds
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
