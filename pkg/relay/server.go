package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couriernet/courier/pkg/protocol"
	"github.com/couriernet/courier/pkg/store"
)

var (
	errorLog *log.Logger
	debugLog *log.Logger
)

func init() {
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
}

// Server is the relay: it owns the store, the connection registry and every
// attached transport, and runs the background loops.
type Server struct {
	store    *store.Store
	registry *Registry
	config   ServerConfig
	creds    CredentialHasher
	metrics  *Metrics

	// All attached transports, identified or not. The registry only holds
	// identified ones.
	clientsMu    sync.RWMutex
	clients      map[uint64]*Client
	nextClientID atomic.Uint64

	listener   net.Listener
	httpSrv    *http.Server
	metricsSrv *http.Server

	shutdown  chan struct{}
	wg        sync.WaitGroup
	startTime time.Time

	// Connection deltas for periodic reporting
	connectionsSinceReport    atomic.Int64
	disconnectionsSinceReport atomic.Int64
}

// NewServer creates a relay around an open store.
func NewServer(st *store.Store, config ServerConfig) *Server {
	return &Server{
		store:     st,
		registry:  NewRegistry(),
		config:    config,
		creds:     BcryptHasher{},
		metrics:   NewMetrics(),
		clients:   make(map[uint64]*Client),
		shutdown:  make(chan struct{}),
		startTime: time.Now(),
	}
}

// EnableDebugLogging turns on per-frame debug output.
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stdout, "DEBUG: ", log.LstdFlags)
	debugLog.Println("Debug logging enabled")
}

// Metrics exposes the server's metrics instance for mounting /metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start brings up the public WebSocket endpoint, the internal metrics
// endpoint and the background loops.
func (s *Server) Start() error {
	publicMux := http.NewServeMux()
	publicMux.HandleFunc("/ws", s.HandleWebSocket)

	addr := fmt.Sprintf(":%d", s.config.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{Handler: publicMux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("Public WebSocket server listening on %s (/ws)", addr)
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Public HTTP server error: %v", err)
		}
	}()

	// Internal metrics server - never expose publicly!
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", s.metrics.Handler())
	metricsMux.HandleFunc("/health", s.HealthHandler)
	s.metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", s.config.MetricsPort), Handler: metricsMux}

	go func() {
		log.Printf("Metrics server listening on :%d (/metrics, /health) - INTERNAL ONLY", s.config.MetricsPort)
		if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	s.wg.Add(1)
	go s.sweepLoop()

	s.wg.Add(1)
	go s.metricsLoggingLoop()

	return nil
}

// HealthHandler reports liveness for load balancers and monitoring.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	attached := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","uptime_seconds":%d,"connections":%d}`,
		int64(time.Since(s.startTime).Seconds()), attached)
}

// Stop gracefully stops the relay.
func (s *Server) Stop() error {
	log.Println("Graceful shutdown initiated...")

	close(s.shutdown)

	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	if s.metricsSrv != nil {
		s.metricsSrv.Close()
	}

	// Close all attached transports; their read loops unwind and run the
	// normal disconnect path.
	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	log.Printf("Closing %d client connections...", len(clients))
	for _, c := range clients {
		c.Conn.Close()
	}

	log.Println("Waiting for background goroutines to finish...")
	s.wg.Wait()

	log.Println("Graceful shutdown complete")
	return nil
}

// ServeConn attaches a raw stream connection (newline-delimited JSON) and
// blocks until it disconnects. Exists for tooling and tests; production
// clients use the WebSocket endpoint.
func (s *Server) ServeConn(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	client := s.Attach(NewSafeConn(conn))
	s.readLoop(client)
}

// Attach registers a transport with the relay and returns its client. The
// caller owns running readLoop.
func (s *Server) Attach(conn FrameConn) *Client {
	client := &Client{
		ID:   s.nextClientID.Add(1),
		Conn: conn,
	}
	client.markAlive()

	s.clientsMu.Lock()
	s.clients[client.ID] = client
	attached := len(s.clients)
	s.clientsMu.Unlock()

	s.connectionsSinceReport.Add(1)
	s.metrics.RecordConnections(attached)
	debugLog.Printf("Client %d: attached from %s", client.ID, conn.RemoteAddr())

	return client
}

// readLoop reads frames from a client until its transport fails, then runs
// the disconnect path.
func (s *Server) readLoop(c *Client) {
	defer s.disconnect(c)

	for {
		frame, err := c.Conn.ReadFrame()
		if err != nil {
			if isMalformedFrame(err) {
				// The framing layer survives a bad frame (one line, one
				// WebSocket message): drop it and keep the connection.
				s.metrics.RecordFrameDropped()
				errorLog.Printf("Client %d: dropped frame: %v", c.ID, err)
				continue
			}
			if err == io.EOF {
				debugLog.Printf("Client %d: disconnected", c.ID)
			} else {
				debugLog.Printf("Client %d: read error: %v", c.ID, err)
			}
			return
		}

		// Any inbound frame proves the peer is alive.
		c.markAlive()
		s.metrics.RecordFrameReceived(frame.Type)
		debugLog.Printf("Client %d ← RECV %s", c.ID, frame.Type)

		s.handleFrame(c, frame)
	}
}

// isMalformedFrame reports whether a read error came from frame content
// rather than the transport itself.
func isMalformedFrame(err error) bool {
	if errors.Is(err, protocol.ErrMissingType) || errors.Is(err, protocol.ErrFrameTooLarge) {
		return true
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// handleFrame dispatches one inbound frame. Handlers never kill the
// connection on bad input; a frame that cannot be decoded is logged and
// dropped.
func (s *Server) handleFrame(c *Client, frame *protocol.Frame) {
	switch frame.Type {
	case protocol.TypeValidateAuth:
		s.handleValidateAuth(c, frame)
	case protocol.TypeIdentify:
		s.handleIdentify(c, frame)
	case protocol.TypeMessage:
		s.handleSendMessage(c, frame)
	case protocol.TypeBroadcastPresence:
		s.handleBroadcastPresence(c, frame)
	case protocol.TypeGetChatHistory:
		s.handleGetChatHistory(c, frame)
	case protocol.TypeMessageDelivered:
		s.handleMessageDelivered(c, frame)
	case protocol.TypeMessageRead:
		s.handleMessageRead(c, frame)
	case protocol.TypeSendFriendRequest:
		s.handleSendFriendRequest(c, frame)
	case protocol.TypeGetFriendRequests:
		s.handleGetFriendRequests(c)
	case protocol.TypeAcceptFriendRequest:
		s.handleAcceptFriendRequest(c, frame)
	case protocol.TypeDeclineFriendRequest:
		s.handleDeclineFriendRequest(c, frame)
	case protocol.TypeGetFriendsList:
		s.handleGetFriendsList(c)
	case protocol.TypeGetSentFriendReqs:
		s.handleGetSentFriendRequests(c)
	case protocol.TypeUpdateUsername:
		s.handleUpdateUsername(c, frame)
	case protocol.TypeUpdateProfilePicture:
		s.handleUpdateProfilePicture(c, frame)
	case protocol.TypeUserLogout:
		s.handleUserLogout(c)
	case protocol.TypePong:
		// markAlive already ran; nothing else to do.
	default:
		s.metrics.RecordFrameDropped()
		debugLog.Printf("Client %d: unknown frame type %q", c.ID, frame.Type)
	}
}

// disconnect detaches a transport and, if it was identified, takes the
// identity offline: registry removal, last-seen stamp, roster broadcast.
func (s *Server) disconnect(c *Client) {
	c.Conn.Close()

	s.clientsMu.Lock()
	_, present := s.clients[c.ID]
	delete(s.clients, c.ID)
	attached := len(s.clients)
	s.clientsMu.Unlock()

	if !present {
		return
	}

	s.disconnectionsSinceReport.Add(1)
	s.metrics.RecordConnections(attached)

	userID := c.UserID()
	if userID == "" {
		return
	}

	// Only evict the registry entry if it still points at this client; a
	// reconnect may already have replaced it.
	s.registry.Remove(userID, c)

	if err := s.store.UpdateLastSeen(userID); err != nil {
		errorLog.Printf("Client %d: failed to stamp last seen for %s: %v", c.ID, userID, err)
	}

	debugLog.Printf("Client %d: %s went offline", c.ID, userID)
	s.broadcastRoster()
}

// dropFrame logs a frame whose payload failed to decode. Per the error
// taxonomy, no reply is sent.
func (s *Server) dropFrame(c *Client, frameType string, err error) {
	s.metrics.RecordFrameDropped()
	errorLog.Printf("Client %d: dropped %s frame: %v", c.ID, frameType, err)
}

// send writes one outbound message to a client. Fire-and-forget: a failed
// write is logged and the transport is left to the read loop or sweep to
// collect.
func (s *Server) send(c *Client, frameType string, v interface{}) {
	if err := c.Conn.WriteFrame(v); err != nil {
		debugLog.Printf("Client %d: send %s failed: %v", c.ID, frameType, err)
		return
	}
	s.metrics.RecordFrameSent(frameType)
}

// sendToUser delivers to an identity's live client, if reachable.
func (s *Server) sendToUser(userID, frameType string, v interface{}) bool {
	c, ok := s.registry.Get(userID)
	if !ok {
		return false
	}
	s.send(c, frameType, v)
	return true
}

// broadcastAll writes to every attached transport, identified or not.
func (s *Server) broadcastAll(frameType string, v interface{}) {
	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		s.send(c, frameType, v)
	}
}

// broadcastIdentified writes to every identified client except the one to
// skip (usually the originator).
func (s *Server) broadcastIdentified(skip *Client, frameType string, v interface{}) {
	for _, c := range s.registry.All() {
		if c == skip {
			continue
		}
		s.send(c, frameType, v)
	}
}

// sweepLoop runs the liveness sweep. Each tick it closes every transport
// that has not acknowledged since the previous tick, then pings the rest.
// One sweep interval of silence is allowed; two is a dead peer.
func (s *Server) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Server) sweepOnce() {
	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		if !c.alive.Swap(false) {
			debugLog.Printf("Client %d: no liveness ack, closing", c.ID)
			s.metrics.RecordSweepClosed()
			c.Conn.Close()
			continue
		}
		if err := c.Conn.Ping(); err != nil {
			debugLog.Printf("Client %d: ping failed: %v", c.ID, err)
			c.Conn.Close()
		} else {
			s.metrics.RecordFrameSent(protocol.TypePing)
		}
	}
}

// metricsLoggingLoop periodically logs key relay numbers.
func (s *Server) metricsLoggingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.clientsMu.RLock()
			attached := len(s.clients)
			s.clientsMu.RUnlock()
			online := len(s.registry.All())

			connected := s.connectionsSinceReport.Swap(0)
			disconnected := s.disconnectionsSinceReport.Swap(0)

			if connected > 0 || disconnected > 0 || attached > 0 {
				log.Printf("Stats: %d attached (%d identified) | +%d/-%d connections | %d goroutines",
					attached, online, connected, disconnected, runtime.NumGoroutine())
			}
		}
	}
}
