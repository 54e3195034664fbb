package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"evgrid/backend/services/ocpp-server/internal/ocpp"
)

// Subprotocol is the only OCPP version served.
const Subprotocol = "ocpp2.0.1"

// Server upgrades HTTP connections to WebSockets for OCPP.
type Server struct {
	ctx          context.Context
	manager      *Manager
	processor    FrameProcessor
	auth         *Authenticator
	opts         ConnectionOptions
	onDisconnect func(stationID string)
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

// NewServer builds ws server. Connections live until ctx ends or the station hangs up;
// onDisconnect runs after a station's current connection is gone and may be nil.
func NewServer(ctx context.Context, manager *Manager, processor FrameProcessor, auth *Authenticator, opts ConnectionOptions, onDisconnect func(string), logger *zap.Logger) *Server {
	return &Server{
		ctx:          ctx,
		manager:      manager,
		processor:    processor,
		auth:         auth,
		opts:         opts,
		onDisconnect: onDisconnect,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{Subprotocol},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS serves /ocpp/{stationID} and /ocpp/ws?station_id=.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.auth.Authenticate(r, stationIDFromRequest(r))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnauthorized) {
			status = http.StatusUnauthorized
			w.Header().Set("WWW-Authenticate", `Basic realm="ocpp"`)
		}
		s.logger.Warn("station rejected", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		http.Error(w, http.StatusText(status), status)
		return
	}

	if !offersSubprotocol(r) {
		s.logger.Warn("station did not offer a supported subprotocol", zap.String("station_id", identity.StationID))
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.String("station_id", identity.StationID), zap.Error(err))
		return
	}

	session := ocpp.MessageContext{StationID: identity.StationID, TenantID: identity.TenantID}
	connection := NewConnection(session, conn, s.processor, s.opts, s.logger, func(c *Connection) {
		if s.manager.Remove(c) && s.onDisconnect != nil {
			s.onDisconnect(c.StationID())
		}
		s.logger.Info("station disconnected", zap.String("station_id", c.StationID()))
	})
	s.manager.Add(connection)

	go connection.Start(s.ctx)
	s.logger.Info("station connected",
		zap.String("station_id", identity.StationID),
		zap.String("tenant_id", identity.TenantID),
		zap.String("subprotocol", conn.Subprotocol()),
	)
}

func offersSubprotocol(r *http.Request) bool {
	for _, p := range websocket.Subprotocols(r) {
		if p == Subprotocol {
			return true
		}
	}
	return false
}

// stationIDFromRequest reads the last path segment after /ocpp/ or the station_id query.
func stationIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("station_id")); id != "" {
		return id
	}
	rest, ok := strings.CutPrefix(r.URL.Path, "/ocpp/")
	if !ok {
		return ""
	}
	rest = strings.Trim(rest, "/")
	if rest == "" || rest == "ws" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}
