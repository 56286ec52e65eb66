package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wanghui5801/fleetmon/internal/broadcast"
	"github.com/wanghui5801/fleetmon/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Agents and dashboards connect from arbitrary origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsMessage is the envelope for both directions of the push channel.
// Inbound: {"type":"update","data":<UpdateRequest>}. Outbound:
// {"type":"status_changed","data":<StatusChange>} and
// {"type":"error","data":{"error":...}}.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// handleWS upgrades the connection, subscribes it to the fanout hub,
// and accepts inline agent updates. A disconnect at any point releases
// the observer immediately.
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	obs := h.hub.Subscribe()
	// replies carries responses from the read loop to the single writer.
	replies := make(chan wsMessage, 8)
	done := make(chan struct{})

	go h.wsWriter(conn, obs, replies, done)
	h.wsReader(r, conn, replies, done)

	obs.Close()
	conn.Close()
}

// wsReader consumes inbound frames until the peer goes away. Closing
// done stops the writer.
func (h *Handler) wsReader(r *http.Request, conn *websocket.Conn, replies chan<- wsMessage, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "update" {
			continue
		}
		var req models.UpdateRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.offerReply(replies, wsError("invalid update payload"))
			continue
		}
		if _, err := h.reg.Apply(r.Context(), req); err != nil {
			h.offerReply(replies, wsError(err.Error()))
		}
	}
}

// wsWriter is the only goroutine writing to conn. It merges hub events,
// read-loop replies, and keepalive pings.
func (h *Handler) wsWriter(conn *websocket.Conn, obs *broadcast.Observer, replies <-chan wsMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-obs.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if h.writeMessage(conn, wsMessage{Type: "status_changed", Data: data}) != nil {
				return
			}
		case msg := <-replies:
			if h.writeMessage(conn, msg) != nil {
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

func (h *Handler) writeMessage(conn *websocket.Conn, msg wsMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// offerReply never blocks the read loop on a stalled writer.
func (h *Handler) offerReply(replies chan<- wsMessage, msg wsMessage) {
	select {
	case replies <- msg:
	default:
	}
}

func wsError(msg string) wsMessage {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return wsMessage{Type: "error", Data: data}
}
