package ocppj

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/ocppbridge/core/logger"
	"github.com/kilianp07/ocppbridge/core/monitoring"
	"github.com/kilianp07/ocppbridge/core/registry"
)

// MessageHandler processes one inbound message and returns the answer.
type MessageHandler interface {
	HandleMessage(ctx context.Context, deviceID string, raw []byte) []byte
}

// Server accepts charge point websockets on {path}{chargeBoxId}.
type Server struct {
	cfg      Config
	registry *registry.Registry
	handler  MessageHandler
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewServer creates the endpoint. It does not listen; use ListenAndServe or
// mount the server as an http.Handler.
func NewServer(cfg Config, reg *registry.Registry, h MessageHandler, log logger.Logger) (*Server, error) {
	if reg == nil || h == nil || log == nil {
		return nil, errors.New("ocppj: nil parameter provided to NewServer")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		registry: reg,
		handler:  h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{Subprotocol},
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}, nil
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, s.cfg.Path)
	if id == "" || strings.Contains(id, "/") || !strings.HasPrefix(r.URL.Path, s.cfg.Path) {
		http.Error(w, "charge box id required", http.StatusNotFound)
		return
	}
	if s.cfg.RequireSubprotocol && !offers(r, Subprotocol) {
		http.Error(w, "subprotocol "+Subprotocol+" required", http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", map[string]any{"device_id": id, "error": err.Error()})
		return
	}
	conn := newConn(id, ws, time.Duration(s.cfg.WriteTimeoutSeconds)*time.Second)
	s.registry.Register(id, conn)
	defer func() {
		s.registry.Unregister(id, conn)
		_ = conn.Close()
	}()
	go s.pingLoop(conn)
	s.readLoop(r.Context(), conn)
}

func offers(r *http.Request, proto string) bool {
	for _, p := range websocket.Subprotocols(r) {
		if p == proto {
			return true
		}
	}
	return false
}

// readLoop handles the connection's inbound messages one at a time, which
// keeps per device ordering.
func (s *Server) readLoop(ctx context.Context, c *Conn) {
	pingInterval := time.Duration(s.cfg.PingIntervalSeconds) * time.Second
	pongWait := time.Duration(s.cfg.PongTimeoutSeconds) * time.Second
	c.ws.SetReadLimit(s.cfg.ReadLimitBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})
	for {
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warnw("websocket read error", map[string]any{"device_id": c.id, "error": err.Error()})
			} else {
				s.log.Debugw("websocket closed", map[string]any{"device_id": c.id})
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		if reply := s.handle(ctx, c.id, msg); reply != nil {
			if err := c.Send(ctx, reply); err != nil {
				s.log.Warnw("reply not sent", map[string]any{"device_id": c.id, "error": err.Error()})
				return
			}
		}
	}
}

func (s *Server) handle(ctx context.Context, deviceID string, msg []byte) (reply []byte) {
	var err error
	defer func() {
		if err != nil {
			s.log.Errorf("handler panic for %s: %v", deviceID, err)
		}
	}()
	defer monitoring.RecoverWith(map[string]string{"module": "ocppj", "device_id": deviceID}, &err)
	return s.handler.HandleMessage(ctx, deviceID, msg)
}

func (s *Server) pingLoop(c *Conn) {
	ticker := time.NewTicker(time.Duration(s.cfg.PingIntervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.log.Debugw("ping failed", map[string]any{"device_id": c.id, "error": err.Error()})
				_ = c.Close()
				return
			}
		}
	}
}

// ListenAndServe serves the endpoint on cfg.Addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	srv := &http.Server{Addr: s.cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.registry.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("ocpp server shutdown: %v", err)
		}
	}()
	s.log.Infof("ocpp endpoint listening on %s%s", s.cfg.Addr, s.cfg.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
