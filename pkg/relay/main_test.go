package relay

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couriernet/courier/pkg/protocol"
	"github.com/couriernet/courier/pkg/store"
)

func TestMain(m *testing.M) {
	// Silence logging during tests
	errorLog = log.New(io.Discard, "", 0)
	debugLog = log.New(io.Discard, "", 0)
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeConn is an in-memory FrameConn that records everything written to it.
// Tests drive handlers directly, so ReadFrame is never used.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	pings  int
	closed bool
}

func (f *fakeConn) ReadFrame() (*protocol.Frame, error) {
	return nil, io.EOF
}

func (f *fakeConn) WriteFrame(v interface{}) error {
	data, err := protocol.EncodeFrame(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Ping() error {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) RemoteAddr() string { return "fake" }

// sentTypes returns the type discriminators of every frame written so far.
func (f *fakeConn) sentTypes(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var types []string
	for _, data := range f.sent {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &env))
		types = append(types, env.Type)
	}
	return types
}

// countType counts frames of one type.
func (f *fakeConn) countType(t *testing.T, frameType string) int {
	t.Helper()
	n := 0
	for _, ft := range f.sentTypes(t) {
		if ft == frameType {
			n++
		}
	}
	return n
}

// lastOfType decodes the most recent frame of the given type into v and
// reports whether one was found.
func (f *fakeConn) lastOfType(t *testing.T, frameType string, v interface{}) bool {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.sent) - 1; i >= 0; i-- {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(f.sent[i], &env))
		if env.Type == frameType {
			require.NoError(t, json.Unmarshal(f.sent[i], v))
			return true
		}
	}
	return false
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

// newTestServer creates a relay around a temp-file store.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return NewServer(st, DefaultConfig())
}

// attach wires a fake transport into the server.
func attach(s *Server) (*Client, *fakeConn) {
	conn := &fakeConn{}
	return s.Attach(conn), conn
}

// frame builds an inbound frame from any message struct.
func frame(t *testing.T, v interface{}) *protocol.Frame {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f, err := protocol.DecodeFrame(data)
	require.NoError(t, err)
	return f
}

// identify runs the full identify path for a client.
func identify(t *testing.T, s *Server, c *Client, userID, sessionID, username string, password *string) {
	t.Helper()
	s.handleIdentify(c, frame(t, map[string]interface{}{
		"type":      protocol.TypeIdentify,
		"userId":    userID,
		"sessionId": sessionID,
		"publicKey": "pk-" + userID,
		"password":  password,
		"info": map[string]interface{}{
			"username":    username,
			"displayName": "The " + username,
		},
	}))
}

func strPtr(s string) *string { return &s }
