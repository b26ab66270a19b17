package signaling

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/screenhive/signaling-relay/internal/metrics"
	"github.com/screenhive/signaling-relay/internal/origin"
	"github.com/screenhive/signaling-relay/internal/ratelimit"
)

const wsWriteWait = 1 * time.Second

// ServerConfig wires the WebSocket endpoint to the relay core.
type ServerConfig struct {
	Relay *Relay
	Hub   *Hub

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// AllowedOrigins is the browser Origin allowlist for upgrades. Empty means
	// same-host only; requests without an Origin header are always allowed.
	AllowedOrigins []string

	// IdleTimeout closes connections that produce no reads (messages or pongs)
	// for this long. <= 0 disables the idle deadline.
	IdleTimeout time.Duration

	// PingInterval is how often the server pings each connection. <= 0
	// disables pings.
	PingInterval time.Duration

	// MaxMessageBytes caps a single inbound frame. <= 0 selects a default.
	MaxMessageBytes int64

	// MaxMessagesPerSecond rate-limits inbound frames per connection. <= 0
	// selects a default.
	MaxMessagesPerSecond int
}

// Server is the GET /ws endpoint: it upgrades the connection, assigns it a
// connection id, and pumps inbound frames into the relay until the socket
// closes. Closing the socket, gracefully or not, runs the same disconnect
// cleanup.
type Server struct {
	relay *Relay
	hub   *Hub
	log   *slog.Logger
	m     *metrics.Metrics

	idleTimeout          time.Duration
	pingInterval         time.Duration
	maxMessageBytes      int64
	maxMessagesPerSecond int

	upgrader websocket.Upgrader
}

func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}
	maxRate := cfg.MaxMessagesPerSecond
	if maxRate <= 0 {
		maxRate = 50
	}

	allowed := cfg.AllowedOrigins
	return &Server{
		relay:                cfg.Relay,
		hub:                  cfg.Hub,
		log:                  logger,
		m:                    cfg.Metrics,
		idleTimeout:          cfg.IdleTimeout,
		pingInterval:         cfg.PingInterval,
		maxMessageBytes:      maxBytes,
		maxMessagesPerSecond: maxRate,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				header := r.Header.Get("Origin")
				if header == "" {
					return true
				}
				normalized, ok := origin.Normalize(header)
				return ok && origin.Allowed(normalized, r.Host, allowed)
			},
		},
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.ServeHTTP)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connID := uuid.NewString()

	s.hub.Add(connID, conn)
	s.relay.Connect(connID)
	defer func() {
		s.hub.Remove(connID)
		s.relay.Disconnect(connID)
	}()

	s.resetReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		s.resetReadDeadline(conn)
		return nil
	})

	if s.pingInterval > 0 {
		stopPings := make(chan struct{})
		defer close(stopPings)
		go s.pingLoop(connID, stopPings)
	}

	limiter := ratelimit.NewTokenBucket(nil, int64(s.maxMessagesPerSecond), int64(s.maxMessagesPerSecond))

	for {
		msgType, msgReader, err := conn.NextReader()
		if err != nil {
			if isTimeout(err) {
				writeClose(conn, websocket.CloseNormalClosure, "idle timeout")
			}
			return
		}
		s.resetReadDeadline(conn)

		if msgType != websocket.TextMessage {
			writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}

		if !limiter.Allow(1) {
			s.m.IncDropped(metrics.DropReasonRateLimited)
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		msg, err := readLimited(msgReader, s.maxMessageBytes)
		if err != nil {
			if errors.Is(err, errMessageTooLarge) {
				s.m.IncDropped(metrics.DropReasonOversized)
				writeClose(conn, websocket.CloseMessageTooBig, "message too large")
				return
			}
			writeClose(conn, websocket.CloseInternalServerErr, "failed to read message")
			return
		}

		// Protocol failures are not surfaced to the client: the relay drops the
		// event and the connection stays up.
		if err := s.relay.HandleMessage(connID, msg); err != nil {
			s.log.Debug("dropped inbound event", "conn_id", connID, "err", err)
		}
	}
}

func (s *Server) pingLoop(connID string, stop <-chan struct{}) {
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := s.hub.Ping(connID); err != nil {
				return
			}
		}
	}
}

func (s *Server) resetReadDeadline(conn *websocket.Conn) {
	if s.idleTimeout <= 0 {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var errMessageTooLarge = errors.New("message too large")

func readLimited(r io.Reader, max int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, errMessageTooLarge
	}
	return b, nil
}
