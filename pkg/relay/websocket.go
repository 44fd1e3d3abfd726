package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/couriernet/courier/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin checking is the reverse proxy's job; the relay sits behind
	// the externally provided TLS/accept layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// wsConn adapts a gorilla WebSocket connection to FrameConn. One JSON
// object per text message. Liveness uses WebSocket control ping/pong; the
// pong handler reports acknowledgments to the owning client.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // Protects writes to conn
}

func newWSConn(conn *websocket.Conn, onPong func()) *wsConn {
	conn.SetReadLimit(protocol.MaxFrameSize)
	conn.SetPongHandler(func(string) error {
		onPong()
		return nil
	})
	return &wsConn{conn: conn}
}

func (wc *wsConn) ReadFrame() (*protocol.Frame, error) {
	for {
		msgType, data, err := wc.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		// Binary messages are not part of the protocol; skip them.
		if msgType != websocket.TextMessage {
			continue
		}
		return protocol.DecodeFrame(data)
	}
}

func (wc *wsConn) WriteFrame(v interface{}) error {
	data, err := protocol.EncodeFrame(v)
	if err != nil {
		return err
	}

	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return wc.conn.WriteMessage(websocket.TextMessage, data)
}

func (wc *wsConn) Ping() error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (wc *wsConn) Close() error {
	return wc.conn.Close()
}

func (wc *wsConn) RemoteAddr() string {
	return wc.conn.RemoteAddr().String()
}

// HandleWebSocket upgrades an HTTP request and attaches the resulting
// connection to the relay. Mount on the public mux behind TLS.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		errorLog.Printf("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	var client *Client
	conn := newWSConn(ws, func() {
		if client != nil {
			client.markAlive()
		}
	})
	client = s.Attach(conn)
	s.readLoop(client)
}
