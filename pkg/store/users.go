package store

import (
	"database/sql"
	"strings"
)

// User represents an identity record.
type User struct {
	UserID           string
	Username         string // "" when the client never claimed one
	DisplayName      string
	PublicKey        string
	ProfilePicture   *string
	CredentialDigest string // "" for accounts without a password
	LastSeen         int64  // Unix timestamp in milliseconds
	CreatedAt        int64  // Unix timestamp in milliseconds
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func nullable(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{Valid: true, String: v}
}

func nullablePtr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{Valid: true, String: *v}
}

// CreateUser inserts a new identity row. Returns ErrUsernameTaken if the
// username collides case-insensitively with an existing one.
func (s *Store) CreateUser(u *User) error {
	now := nowMillis()
	_, err := s.writeConn.Exec(`
		INSERT INTO User (user_id, username, display_name, public_key, profile_picture, credential_digest, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.UserID, nullable(u.Username), u.DisplayName, u.PublicKey, nullablePtr(u.ProfilePicture), nullable(u.CredentialDigest), now, now)

	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return err
	}

	u.LastSeen = now
	u.CreatedAt = now
	return nil
}

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	u := &User{}
	var username, picture, digest sql.NullString
	err := row.Scan(&u.UserID, &username, &u.DisplayName, &u.PublicKey, &picture, &digest, &u.LastSeen, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	u.CredentialDigest = digest.String
	if picture.Valid {
		u.ProfilePicture = &picture.String
	}
	return u, nil
}

const userColumns = `user_id, username, display_name, public_key, profile_picture, credential_digest, last_seen, created_at`

// GetUser returns the identity row for a userId, or ErrUserNotFound.
func (s *Store) GetUser(userID string) (*User, error) {
	row := s.conn.QueryRow(`SELECT `+userColumns+` FROM User WHERE user_id = ?`, userID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	return u, err
}

// GetUserByUsername resolves a username case-insensitively, or returns
// ErrUserNotFound.
func (s *Store) GetUserByUsername(username string) (*User, error) {
	row := s.conn.QueryRow(`SELECT `+userColumns+` FROM User WHERE username = ? COLLATE NOCASE`, username)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	return u, err
}

// ListNamedUsers returns every user that has claimed a username. These are
// the identities that appear on the presence roster.
func (s *Store) ListNamedUsers() ([]*User, error) {
	rows, err := s.conn.Query(`
		SELECT ` + userColumns + `
		FROM User
		WHERE username IS NOT NULL AND username != ''
		ORDER BY username COLLATE NOCASE ASC
	`)
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

// UpdateIdentity refreshes the mutable fields on repeat identification.
// The profile picture is only overwritten when the caller explicitly
// supplied one; absence must not null out an existing picture.
func (s *Store) UpdateIdentity(userID, displayName, publicKey string, profilePicture *string) error {
	var err error
	if profilePicture != nil {
		_, err = s.writeConn.Exec(`
			UPDATE User SET display_name = ?, public_key = ?, profile_picture = ?, last_seen = ?
			WHERE user_id = ?
		`, displayName, publicKey, *profilePicture, nowMillis(), userID)
	} else {
		_, err = s.writeConn.Exec(`
			UPDATE User SET display_name = ?, public_key = ?, last_seen = ?
			WHERE user_id = ?
		`, displayName, publicKey, nowMillis(), userID)
	}
	return err
}

// UpdateLastSeen stamps the user's last-seen time, e.g. on disconnect.
func (s *Store) UpdateLastSeen(userID string) error {
	_, err := s.writeConn.Exec(`UPDATE User SET last_seen = ? WHERE user_id = ?`, nowMillis(), userID)
	return err
}

// UpdateUsername changes the user's unique username. Returns
// ErrUserNotFound for an unknown userId and ErrUsernameTaken on a
// case-insensitive collision.
func (s *Store) UpdateUsername(userID, username string) error {
	result, err := s.writeConn.Exec(`UPDATE User SET username = ? WHERE user_id = ?`, username, userID)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfilePicture stores a new picture reference for the user.
func (s *Store) UpdateProfilePicture(userID, pictureRef string) error {
	result, err := s.writeConn.Exec(`UPDATE User SET profile_picture = ? WHERE user_id = ?`, pictureRef, userID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetCredentialDigest stores the digest produced by the credential
// primitive for a user that signed up through identify.
func (s *Store) SetCredentialDigest(userID, digest string) error {
	_, err := s.writeConn.Exec(`UPDATE User SET credential_digest = ? WHERE user_id = ?`, digest, userID)
	return err
}
