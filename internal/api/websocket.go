package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tada-core/internal/delivery"
	"tada-core/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingPeriod   = 50 * time.Second
)

// wsCommand is what clients send: subscribe/unsubscribe to a pipeline's
// realtime room.
type wsCommand struct {
	Type       string `json:"type"`
	PipelineID string `json:"pipelineId"`
}

// handleWebSocket upgrades the connection and bridges it onto the
// eventbus. Each connection owns one bus subscriber; subscribe commands
// join the pipeline's room, and everything published there is written
// out as an "event" frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] websocket upgrade error: %v", err)
		return
	}

	sub := s.bus.NewSubscriber(256)
	if sub == nil {
		conn.Close()
		return
	}

	// Subscribe on connect via ?pipelineId=...
	if id := r.URL.Query().Get("pipelineId"); id != "" {
		s.bus.Join(delivery.PipelineRoom(id), sub)
	}

	done := make(chan struct{})
	go s.wsWritePump(conn, sub, done)
	s.wsReadPump(conn, sub)
	close(done)
	s.bus.Drop(sub)
	conn.Close()
}

func (s *Server) wsReadPump(conn *websocket.Conn, sub *eventbus.Subscriber) {
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Type {
		case "subscribe":
			if cmd.PipelineID != "" {
				s.bus.Join(delivery.PipelineRoom(cmd.PipelineID), sub)
			}
		case "unsubscribe":
			if cmd.PipelineID != "" {
				s.bus.Leave(delivery.PipelineRoom(cmd.PipelineID), sub)
			}
		}
	}
}

func (s *Server) wsWritePump(conn *websocket.Conn, sub *eventbus.Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame := map[string]interface{}{
				"type":    "event",
				"room":    msg.Room,
				"payload": msg.Payload,
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
