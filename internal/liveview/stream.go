// Package liveview streams periodic screenshot frames of a session's
// browser over a websocket, so an operator can watch a check run live.
package liveview

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uiwatch/uiwatch/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server pushes screenshot frames for registered sessions.
type Server struct {
	registry *session.Registry
	interval time.Duration
}

// NewServer creates a liveview server emitting one frame per interval.
func NewServer(registry *session.Registry, interval time.Duration) *Server {
	if interval <= 0 {
		interval = time.Second
	}
	return &Server{
		registry: registry,
		interval: interval,
	}
}

// HandleStream upgrades the request and pushes binary PNG frames until the
// client disconnects or the session goes away.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[liveview] failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[liveview] client connected to session %s", sessionID)

	// Drain client messages so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Printf("[liveview] client disconnected from session %s", sessionID)
			return
		case <-ticker.C:
			if _, err := s.registry.Get(sessionID); err != nil {
				log.Printf("[liveview] session %s removed, closing stream", sessionID)
				return
			}
			frame, err := sess.Handle.Screenshot(false)
			if err != nil {
				// Screenshots fail transiently while the page navigates.
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Printf("[liveview] write failed for session %s: %v", sessionID, err)
				return
			}
		}
	}
}
