package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"flowscan/internal/broadcast"
	"flowscan/internal/config"
)

// inbound is a frame received from an observer.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	obs := s.hub.Attach(s.ids.New())
	s.logger.Info("observer connected", "observer", obs.ID, "remote", r.RemoteAddr)

	go s.writeLoop(conn, obs)
	s.readLoop(conn, obs)

	s.hub.Detach(obs)
	s.logger.Info("observer disconnected", "observer", obs.ID)
}

// writeLoop is the only writer on conn. It ends when the observer's queue is closed or a
// write fails, and closes the connection, which in turn ends readLoop.
func (s *Server) writeLoop(conn *websocket.Conn, obs *broadcast.Observer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-obs.Messages():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("observer write failed", "observer", obs.ID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn, obs *broadcast.Observer) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("observer read failed", "observer", obs.ID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.hub.Reply(obs, broadcast.Rejected("", fmt.Errorf("malformed frame: %w", err)))
			continue
		}
		s.dispatch(obs, in)
	}
}

// dispatch applies one observer command. Rejections go to the requester only.
func (s *Server) dispatch(obs *broadcast.Observer, in inbound) {
	switch in.Type {
	case broadcast.TypeStartScan:
		if err := s.session.Start(); err != nil {
			s.logger.Info("start rejected", "observer", obs.ID, "error", err)
			s.hub.Reply(obs, broadcast.Rejected(in.Type, err))
		}
	case broadcast.TypeStopScan:
		if err := s.session.Stop(); err != nil {
			s.logger.Info("stop rejected", "observer", obs.ID, "error", err)
			s.hub.Reply(obs, broadcast.Rejected(in.Type, err))
		}
	case broadcast.TypeChangeSettings:
		s.hub.Reply(obs, broadcast.SettingsChanged(s.changeSettings(obs, in.Payload)))
	default:
		s.hub.Reply(obs, broadcast.Rejected(in.Type, errors.New("unknown command")))
	}
}

func (s *Server) changeSettings(obs *broadcast.Observer, payload json.RawMessage) bool {
	var settings config.Settings
	if len(payload) == 0 {
		s.logger.Info("settings change without payload", "observer", obs.ID)
		return false
	}
	if err := json.Unmarshal(payload, &settings); err != nil {
		s.logger.Info("settings change malformed", "observer", obs.ID, "error", err)
		return false
	}

	err := s.session.IfIdle(func() error {
		if err := s.save(settings); err != nil {
			return err
		}
		s.hub.SetConfig(settings)
		return nil
	})
	if err != nil {
		s.logger.Info("settings change rejected", "observer", obs.ID, "error", err)
		return false
	}
	s.logger.Info("settings changed", "observer", obs.ID)
	return true
}
