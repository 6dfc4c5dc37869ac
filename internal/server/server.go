// Package server exposes the scan session over HTTP: a websocket carrying the telemetry
// protocol at /ws and a JSON snapshot at /api/state.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"flowscan/internal/broadcast"
	"flowscan/internal/config"
	"flowscan/internal/flowscan"
	"flowscan/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
	shutdownWait   = 5 * time.Second
)

// SaveSettingsFunc persists settings accepted from an observer.
type SaveSettingsFunc func(config.Settings) error

// Server connects observers to the session and the hub.
type Server struct {
	session  *session.Session
	hub      *broadcast.Hub
	save     SaveSettingsFunc
	ids      flowscan.IDGenerator
	logger   flowscan.Logger
	upgrader websocket.Upgrader
}

// New creates a Server. save is called with the session held idle before new settings are
// broadcast; a save error rejects the change.
func New(sess *session.Session, hub *broadcast.Hub, save SaveSettingsFunc, ids flowscan.IDGenerator, logger flowscan.Logger) *Server {
	return &Server{
		session: sess,
		hub:     hub,
		save:    save,
		ids:     ids,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /api/state", s.serveState)
	return mux
}

// Serve accepts connections on ln until ctx is cancelled, then detaches every observer
// and shuts the HTTP server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()
	s.logger.Info("telemetry server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

// stateResponse is the body of GET /api/state.
type stateResponse struct {
	Session   session.State   `json:"session"`
	Settings  config.Settings `json:"settings"`
	Observers int             `json:"observers"`
}

func (s *Server) serveState(w http.ResponseWriter, _ *http.Request) {
	resp := stateResponse{
		Session:   s.session.Snapshot(),
		Settings:  s.hub.Settings(),
		Observers: s.hub.Len(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("writing state response", "error", err)
	}
}
