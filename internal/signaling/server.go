package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/auth"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/hub"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/origin"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/protocol"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/ratelimit"
)

type Config struct {
	Hub     *hub.Hub
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Verifier admits connections. Nil admits everyone.
	Verifier auth.Verifier
	AuthMode config.AuthMode

	IdleTimeout          time.Duration
	PingInterval         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueLength      int

	Clock ratelimit.Clock
}

// Server accepts WebSocket connections and feeds their messages to the hub.
type Server struct {
	hub      *hub.Hub
	log      *slog.Logger
	metrics  *metrics.Metrics
	verifier auth.Verifier
	authMode config.AuthMode
	clock    ratelimit.Clock

	idleTimeout          time.Duration
	pingInterval         time.Duration
	maxMessageBytes      int64
	maxMessagesPerSecond int
	sendQueueLength      int

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = config.DefaultWSIdleTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.IdleTimeout {
		cfg.PingInterval = cfg.IdleTimeout / 3
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = config.DefaultMaxMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = config.DefaultMaxMessagesPerSecond
	}
	if cfg.SendQueueLength <= 0 {
		cfg.SendQueueLength = config.DefaultSendQueueLength
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = config.AuthModeNone
	}
	return &Server{
		hub:                  cfg.Hub,
		log:                  cfg.Logger,
		metrics:              cfg.Metrics,
		verifier:             cfg.Verifier,
		authMode:             cfg.AuthMode,
		clock:                cfg.Clock,
		idleTimeout:          cfg.IdleTimeout,
		pingInterval:         cfg.PingInterval,
		maxMessageBytes:      cfg.MaxMessageBytes,
		maxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		sendQueueLength:      cfg.SendQueueLength,
		upgrader: websocket.Upgrader{
			// Origin enforcement happens in the HTTP middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router is satisfied by *http.ServeMux and by the HTTP server's
// origin-checked registration.
type Router interface {
	HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request))
}

func (s *Server) RegisterRoutes(r Router) {
	r.HandleFunc("GET /ws", s.handleWebSocket)
	r.HandleFunc("GET /stream/status", s.handleStreamStatus)
	r.HandleFunc("GET /chat/history", s.handleChatHistory)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(r); err != nil {
		s.metrics.Inc(metrics.ConnectionsRejected)
		s.log.Info("signaling connection rejected", "remote_addr", r.RemoteAddr, "err", err)
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", unauthorizedMessage(err))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		return
	}

	conn := newWSConn(ws, s.sendQueueLength, s.pingInterval)
	s.metrics.Inc(metrics.ConnectionsAccepted)
	log := s.log.With("conn_id", conn.ID())
	log.Debug("signaling connection opened", "remote_addr", r.RemoteAddr, "origin", requestOrigin(r))

	go conn.writePump()
	reason := s.readPump(conn, log)

	s.hub.Disconnect(conn)
	conn.closeWith(websocket.CloseNormalClosure, "")
	<-conn.writerDone

	s.metrics.Inc(metrics.ConnectionsClosed)
	log.Debug("signaling connection closed", "reason", reason)
}

func (s *Server) authorize(r *http.Request) error {
	if s.verifier == nil || s.authMode == config.AuthModeNone {
		return nil
	}
	cred, err := auth.CredentialFromRequest(s.authMode, r)
	if err != nil {
		return err
	}
	return s.verifier.Verify(cred)
}

// readPump reads and dispatches messages until the connection ends and
// returns a short description of why it ended.
func (s *Server) readPump(conn *wsConn, log *slog.Logger) string {
	ws := conn.ws
	ws.SetReadLimit(s.maxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(s.idleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.idleTimeout))
	})

	limiter := ratelimit.NewTokenBucket(s.clock, int64(s.maxMessagesPerSecond), int64(s.maxMessagesPerSecond))

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			switch {
			case isTimeout(err):
				conn.closeWith(websocket.CloseNormalClosure, "idle timeout")
				return "idle timeout"
			case errors.Is(err, websocket.ErrReadLimit):
				s.metrics.Inc(metrics.MessagesInvalid)
				conn.closeWith(websocket.CloseMessageTooBig, "message too large")
				return "message too large"
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return "peer closed"
			default:
				if !conn.Open() {
					return "closed by server"
				}
				return "read error: " + err.Error()
			}
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.idleTimeout))
		s.metrics.Inc(metrics.MessagesReceived)

		// Rate limit after reading so the bytes are consumed; closing with unread
		// data in the socket buffer can turn into a TCP RST that hides the close
		// code from the client.
		if !limiter.Allow(1) {
			s.metrics.Inc(metrics.MessagesRateLimited)
			s.sendError(conn, protocol.ErrCodeRateLimited, "rate limit exceeded")
			conn.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return "rate limited"
		}

		if msgType != websocket.TextMessage {
			s.metrics.Inc(metrics.MessagesInvalid)
			s.sendError(conn, protocol.ErrCodeInvalidMessage, "expected text message")
			continue
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			s.metrics.Inc(metrics.MessagesInvalid)
			log.Debug("invalid signaling message", "err", err)
			s.sendError(conn, protocol.ErrorCode(err), err.Error())
			continue
		}

		s.dispatch(conn, msg, log)
		if !conn.Open() {
			return "closed by server"
		}
	}
}

// dispatch hands msg to the hub. A panicking handler is logged and the
// connection keeps going.
func (s *Server) dispatch(conn *wsConn, msg protocol.Message, log *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			s.metrics.Inc(metrics.HandlerPanics)
			log.Error("panic in signaling handler", "type", msg.Type(), "recover", rec, "stack", string(debug.Stack()))
			s.sendError(conn, protocol.ErrCodeInternal, "internal error")
		}
	}()
	if err := s.hub.Handle(conn, msg); err != nil {
		log.Debug("signaling message not handled", "type", msg.Type(), "err", err)
	}
}

func (s *Server) sendError(conn *wsConn, code, message string) {
	data, err := protocol.Encode(protocol.NewError(code, message))
	if err != nil {
		return
	}
	_ = conn.Send(data)
}

func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Status())
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	msgs, err := s.hub.RecentChat(r.Context(), limit)
	if err != nil {
		s.log.Warn("chat history lookup failed", "err", err)
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "chat history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, protocol.ChatHistory{Type: protocol.TypeChatHistory, Messages: msgs})
}

type httpErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, httpErrorResponse{Code: code, Message: message})
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		return "missing credentials"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid credentials"
	default:
		return "unauthorized"
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// requestOrigin is the normalized Origin header, or empty when absent or
// malformed. It is only used for logging.
func requestOrigin(r *http.Request) string {
	normalized, _, present, ok := origin.FromRequest(r)
	if !present || !ok {
		return ""
	}
	return normalized
}
