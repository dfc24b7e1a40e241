// Package gateway is the WebSocket bridge transport. The chat platform bridge
// dials modbot, authenticates with a bearer token, announces the directory in
// a hello frame, and then streams events. Sends and reactions flow back over
// the connection that sent the most recent hello.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/metrics"
	"github.com/whisper/modbot/internal/protocol"
	"github.com/whisper/modbot/internal/transport"
)

// ErrNoBridge is returned by Send and React while no bridge has said hello.
var ErrNoBridge = errors.New("gateway: no bridge connected")

// Path is the WebSocket endpoint the bridge dials.
const Path = "/bridge"

// ServerConfig holds tunable parameters for the gateway.
type ServerConfig struct {
	ListenAddr        string        // address to listen on, e.g. ":8090"
	Token             string        // bearer token the bridge must present
	MaxConnections    int           // hard cap on bridge connections
	WriteTimeout      time.Duration // timeout for WebSocket writes
	HeartbeatInterval time.Duration // how often to ping bridges
	HeartbeatTimeout  time.Duration // silence tolerated after a ping
	EventBuffer       int           // events queued ahead of Run
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:        ":8090",
		MaxConnections:    8,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		EventBuffer:       256,
	}
}

// Server accepts bridge connections and implements transport.Transport.
type Server struct {
	config     ServerConfig
	log        logrus.FieldLogger
	conns      *ConnectionManager
	events     chan transport.Event
	httpServer *http.Server
	done       chan struct{}
	closeOnce  sync.Once
	startedAt  time.Time

	mu        sync.RWMutex
	active    string // ID of the connection that sent the latest hello
	directory *transport.Directory
	ready     chan struct{}
	readyOnce sync.Once
}

var _ transport.Transport = (*Server)(nil)

// NewServer creates a gateway with the given configuration.
func NewServer(config ServerConfig, log logrus.FieldLogger) *Server {
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultServerConfig().EventBuffer
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultServerConfig().HeartbeatInterval
	}
	s := &Server{
		config:    config,
		log:       log.WithField("component", "gateway"),
		conns:     NewConnectionManager(),
		events:    make(chan transport.Event, config.EventBuffer),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
		startedAt: time.Now(),
	}
	go s.heartbeat()
	return s
}

// Handler returns the HTTP handler serving the bridge endpoint and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start listens on the configured address and blocks until Close.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", s.config.ListenAddr).Info("listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: http server error: %w", err)
	}
	return nil
}

func (s *Server) authorized(r *http.Request) bool {
	if s.config.Token == "" {
		return true
	}
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(h, prefix)), []byte(s.config.Token)) == 1
}

// handleUpgrade authenticates the bridge and upgrades the request.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.config.MaxConnections > 0 && s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.WithError(err).Warn("upgrade failed")
		return
	}

	c := &Connection{
		ID:        uuid.New().String(),
		Conn:      conn,
		CreatedAt: time.Now(),
	}
	s.conns.Add(c)
	metrics.BridgeConnections.Set(float64(s.conns.Count()))
	s.log.WithFields(logrus.Fields{"conn": c.ID, "remote": r.RemoteAddr, "total": s.conns.Count()}).Info("bridge connected")

	go s.readLoop(c)
}

// handleHealth responds with the gateway's health status as JSON.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Ready       bool   `json:"ready"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Ready:       s.activeConn() != nil,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// readLoop reads frames from c until it fails or the server closes. The read
// deadline is extended on every frame, so a bridge that stops answering pings
// times out.
func (s *Server) readLoop(c *Connection) {
	defer s.removeConnection(c)

	idle := s.config.HeartbeatInterval + s.config.HeartbeatTimeout
	for {
		_ = c.Conn.SetReadDeadline(time.Now().Add(idle))

		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.log.WithField("conn", c.ID).Warn("heartbeat timeout")
			}
			return
		}

		if header.OpCode.IsControl() {
			payload, err := io.ReadAll(reader)
			if err != nil {
				return
			}
			switch header.OpCode {
			case ws.OpClose:
				_ = c.writeFrame(ws.NewCloseFrame(nil))
				return
			case ws.OpPing:
				if err := c.writeFrame(ws.NewPongFrame(payload)); err != nil {
					return
				}
			}
			continue
		}

		data, err := io.ReadAll(reader)
		if err != nil {
			return
		}
		if len(data) == 0 {
			continue
		}
		s.dispatch(c, data)
	}
}

// dispatch handles one text frame from the bridge.
func (s *Server) dispatch(c *Connection, data []byte) {
	log := s.log.WithField("conn", c.ID)

	msgType, msg, err := protocol.Parse(data)
	if err != nil {
		log.WithError(err).Warn("dispatch parse error")
		s.sendError(c, "parse_error", "invalid message format")
		return
	}

	switch m := msg.(type) {
	case protocol.HelloMsg:
		s.mu.Lock()
		s.active = c.ID
		s.directory = m.Directory()
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
		log.WithFields(logrus.Fields{"self": m.Self.Name, "guilds": len(m.Guilds)}).Info("bridge hello")
	case protocol.EventMsg:
		select {
		case s.events <- m.Event():
		case <-s.done:
		}
	case protocol.PingMsg:
		if pong, err := protocol.NewMessage(protocol.TypePong, protocol.PongMsg{}); err == nil {
			_ = c.WriteMessage(pong, s.config.WriteTimeout)
		}
	case protocol.PongMsg:
	case protocol.ErrorMsg:
		log.WithFields(logrus.Fields{"code": m.Code, "message": m.Message}).Warn("bridge reported error")
	default:
		log.WithField("type", msgType).Warn("unsupported message type from bridge")
		s.sendError(c, "unsupported_type", "unsupported message type: "+msgType)
	}
}

func (s *Server) sendError(c *Connection, code, message string) {
	data, err := protocol.NewMessage(protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
	if err != nil {
		return
	}
	_ = c.WriteMessage(data, s.config.WriteTimeout)
}

// removeConnection unregisters c and clears it as the active bridge. It is safe
// to call more than once.
func (s *Server) removeConnection(c *Connection) {
	if !s.conns.Remove(c.ID) {
		return
	}
	s.mu.Lock()
	if s.active == c.ID {
		s.active = ""
	}
	s.mu.Unlock()
	metrics.BridgeConnections.Set(float64(s.conns.Count()))
	s.log.WithFields(logrus.Fields{"conn": c.ID, "total": s.conns.Count()}).Info("bridge disconnected")
}

// heartbeat pings every bridge each interval until Close.
func (s *Server) heartbeat() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			for _, c := range s.conns.All() {
				if err := c.WritePing(); err != nil {
					s.log.WithError(err).WithField("conn", c.ID).Warn("heartbeat ping failed")
					s.removeConnection(c)
				}
			}
		}
	}
}

func (s *Server) activeConn() *Connection {
	s.mu.RLock()
	id := s.active
	s.mu.RUnlock()
	if id == "" {
		return nil
	}
	return s.conns.Get(id)
}

// Hello blocks until a bridge has announced the directory.
func (s *Server) Hello(ctx context.Context) (*transport.Directory, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("gateway: waiting for bridge hello: %w", ctx.Err())
	case <-s.done:
		return nil, fmt.Errorf("gateway: closed")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.directory, nil
}

// Run delivers bridge events to handler until ctx is cancelled or the server
// is closed.
func (s *Server) Run(ctx context.Context, handler transport.Handler) error {
	for {
		select {
		case ev := <-s.events:
			handler(ctx, ev)
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		}
	}
}

func (s *Server) write(msgType string, payload interface{}) error {
	c := s.activeConn()
	if c == nil {
		return ErrNoBridge
	}
	data, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	if err := c.WriteMessage(data, s.config.WriteTimeout); err != nil {
		s.removeConnection(c)
		return fmt.Errorf("gateway: write %s: %w", msgType, err)
	}
	return nil
}

// Send asks the bridge to post text to a channel.
func (s *Server) Send(_ context.Context, channelID, text string) error {
	return s.write(protocol.TypeSend, protocol.SendMsg{ChannelID: channelID, Text: text})
}

// React asks the bridge to attach a marker to a message.
func (s *Server) React(_ context.Context, ref transport.MessageRef, marker transport.Marker) error {
	return s.write(protocol.TypeReact, protocol.ReactMsg{Ref: ref, Marker: marker})
}

// Close stops the HTTP listener and closes every bridge connection.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
				err = fmt.Errorf("gateway: http shutdown: %w", shutdownErr)
			}
		}
		for _, c := range s.conns.All() {
			s.removeConnection(c)
		}
		s.log.Info("gateway closed")
	})
	return err
}
