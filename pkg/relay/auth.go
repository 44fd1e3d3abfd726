package relay

import (
	"errors"
	"regexp"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/couriernet/courier/pkg/protocol"
	"github.com/couriernet/courier/pkg/store"
)

// Usernames: 2-14 chars, letters, digits, underscore, dot.
var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.]{2,14}$`)

const maxPasswordLength = 14

// CredentialHasher is the credential primitive: hash on signup, verify on
// login. The relay never stores or compares plaintext.
type CredentialHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// BcryptHasher is the default CredentialHasher.
type BcryptHasher struct{}

func (BcryptHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (BcryptHasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// handleValidateAuth is the pre-flight credential check clients run before
// identifying. Input validation happens before any store lookup.
func (s *Server) handleValidateAuth(c *Client, frame *protocol.Frame) {
	var msg protocol.ValidateAuthMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}

	reply := protocol.AuthValidationMessage{
		Type: protocol.TypeAuthValidation,
		Mode: msg.Mode,
	}

	if !usernameRegex.MatchString(msg.Username) {
		reply.Error = "Invalid username"
		s.send(c, protocol.TypeAuthValidation, &reply)
		return
	}
	if len(msg.Password) > maxPasswordLength {
		reply.Error = "Invalid credentials"
		s.send(c, protocol.TypeAuthValidation, &reply)
		return
	}

	switch msg.Mode {
	case protocol.AuthModeSignup:
		_, err := s.store.GetUserByUsername(msg.Username)
		if err == nil {
			reply.Error = "Username is already taken"
		} else if !errors.Is(err, store.ErrUserNotFound) {
			errorLog.Printf("Client %d: auth lookup failed: %v", c.ID, err)
			reply.Error = "Validation failed"
		} else {
			reply.Success = true
		}

	case protocol.AuthModeLogin:
		if msg.Password == "" {
			reply.Error = "Password required"
			break
		}
		user, err := s.store.GetUserByUsername(msg.Username)
		if errors.Is(err, store.ErrUserNotFound) {
			reply.Error = "User not found"
			break
		}
		if err != nil {
			errorLog.Printf("Client %d: auth lookup failed: %v", c.ID, err)
			reply.Error = "Validation failed"
			break
		}
		if user.CredentialDigest == "" || !s.creds.Verify(msg.Password, user.CredentialDigest) {
			reply.Error = "Invalid credentials"
			break
		}
		reply.Success = true
		reply.UserID = user.UserID

	default:
		reply.Error = "Unknown mode"
	}

	s.send(c, protocol.TypeAuthValidation, &reply)
}

// handleIdentify binds the transport to an identity and brings it online:
// upsert the user row, dedup the session, install in the registry, flush the
// offline queue, acknowledge, and announce.
func (s *Server) handleIdentify(c *Client, frame *protocol.Frame) {
	var msg protocol.IdentifyMessage
	if err := frame.Decode(&msg); err != nil {
		s.dropFrame(c, frame.Type, err)
		return
	}

	// Missing identity fields: no-op without a reply.
	if msg.UserID == "" || msg.PublicKey == "" {
		debugLog.Printf("Client %d: identify without userId/publicKey, ignoring", c.ID)
		return
	}

	// Without a password this is an auto-login from a cached identity. If
	// the claimed username no longer resolves, the cache points at an
	// account we do not know about.
	if msg.Password == nil {
		if _, err := s.store.GetUserByUsername(msg.Info.Username); errors.Is(err, store.ErrUserNotFound) {
			s.send(c, protocol.TypeInvalidSession, &protocol.InvalidSessionMessage{Type: protocol.TypeInvalidSession})
			return
		}
	}

	_, err := s.store.GetUser(msg.UserID)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		if !s.signupUser(c, &msg) {
			return
		}
	case err != nil:
		errorLog.Printf("Client %d: identify lookup for %s failed: %v", c.ID, msg.UserID, err)
		return
	default:
		if err := s.store.UpdateIdentity(msg.UserID, msg.Info.DisplayName, msg.PublicKey, msg.Info.ProfilePicture); err != nil {
			errorLog.Printf("Client %d: identity update for %s failed: %v", c.ID, msg.UserID, err)
		}
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// A client instance that previously identified as someone else must not
	// leave that identity looking online.
	for _, evicted := range s.registry.EvictSession(sessionID, msg.UserID) {
		debugLog.Printf("Client %d: evicted stale session binding for %s", evicted.ID, evicted.UserID())
	}

	c.bindIdentity(msg.UserID, sessionID, msg.Info)

	if old := s.registry.Put(msg.UserID, c); old != nil {
		debugLog.Printf("Client %d: replaced by client %d for %s", old.ID, c.ID, msg.UserID)
		old.Conn.Close()
	}

	s.flushQueued(c, msg.UserID)

	s.send(c, protocol.TypeRegistered, &protocol.RegisteredMessage{
		Type:   protocol.TypeRegistered,
		UserID: msg.UserID,
	})

	s.broadcastRoster()

	s.broadcastIdentified(c, protocol.TypeUserConnected, &protocol.UserConnectedMessage{
		Type:        protocol.TypeUserConnected,
		UserID:      msg.UserID,
		Username:    msg.Info.Username,
		DisplayName: msg.Info.DisplayName,
	})
}

// signupUser inserts the first-sight user row during identify. Reports the
// outcome with a dedicated signal so clients can distinguish account
// creation from plain reconnection. Returns false if identify must abort.
func (s *Server) signupUser(c *Client, msg *protocol.IdentifyMessage) bool {
	user := &store.User{
		UserID:         msg.UserID,
		Username:       msg.Info.Username,
		DisplayName:    msg.Info.DisplayName,
		PublicKey:      msg.PublicKey,
		ProfilePicture: msg.Info.ProfilePicture,
	}

	if msg.Password != nil {
		digest, err := s.creds.Hash(*msg.Password)
		if err != nil {
			errorLog.Printf("Client %d: credential hashing failed: %v", c.ID, err)
			s.send(c, protocol.TypeSignupFailed, &protocol.SignupFailedMessage{
				Type:  protocol.TypeSignupFailed,
				Error: "Signup failed",
			})
			return false
		}
		user.CredentialDigest = digest
	}

	if err := s.store.CreateUser(user); err != nil {
		reason := "Signup failed"
		if errors.Is(err, store.ErrUsernameTaken) {
			reason = "Username is already taken"
		} else {
			errorLog.Printf("Client %d: user insert for %s failed: %v", c.ID, msg.UserID, err)
		}
		s.send(c, protocol.TypeSignupFailed, &protocol.SignupFailedMessage{
			Type:  protocol.TypeSignupFailed,
			Error: reason,
		})
		return false
	}

	s.send(c, protocol.TypeSignupSuccess, &protocol.SignupSuccessMessage{
		Type:   protocol.TypeSignupSuccess,
		UserID: msg.UserID,
	})
	return true
}
