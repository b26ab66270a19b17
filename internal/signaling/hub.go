package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const hubWriteWait = 1 * time.Second

// memberLister resolves a room id to the connection ids currently bound to
// it. The room registry implements it.
type memberLister interface {
	MemberIDs(roomID string) []string
}

// Hub tracks live WebSocket connections by connection id and implements
// Transport on top of them.
//
// Room membership is owned by the registry; the hub only resolves ids to
// sockets at emission time, so it can never disagree with the registry about
// who is in a room.
type Hub struct {
	members memberLister
	log     *slog.Logger

	mu    sync.Mutex
	conns map[string]*hubConn
}

type hubConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewHub(members memberLister, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		members: members,
		log:     logger,
		conns:   make(map[string]*hubConn),
	}
}

// Add binds a connection id to an open socket.
func (h *Hub) Add(connID string, conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[connID] = &hubConn{conn: conn}
	h.mu.Unlock()
}

// Remove forgets the connection. Emissions addressed to it afterwards are
// silent no-ops.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	delete(h.conns, connID)
	h.mu.Unlock()
}

// Send emits one event to one connection. Unknown targets and write failures
// are no-ops; a failing socket is torn down by its own read loop.
func (h *Hub) Send(connID string, event EventType, payload any) {
	h.mu.Lock()
	hc := h.conns[connID]
	h.mu.Unlock()
	if hc == nil {
		return
	}

	data, err := json.Marshal(outEnvelope{Event: event, Data: payload})
	if err != nil {
		h.log.Error("failed to encode event", "event", event, "err", err)
		return
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()
	_ = hc.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
	if err := hc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.log.Debug("write failed", "conn_id", connID, "event", event, "err", err)
	}
}

// Broadcast emits one event to every connection currently in the room,
// optionally excluding one connection id.
func (h *Hub) Broadcast(roomID string, event EventType, payload any, excludeConnID string) {
	for _, id := range h.members.MemberIDs(roomID) {
		if id == excludeConnID {
			continue
		}
		h.Send(id, event, payload)
	}
}

// CloseAll tells every tracked connection the server is going away and closes
// it. Each read loop then runs its own disconnect cleanup.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*hubConn, 0, len(h.conns))
	for _, hc := range h.conns {
		conns = append(conns, hc)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, hc := range conns {
		hc.mu.Lock()
		_ = hc.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(hubWriteWait))
		_ = hc.conn.Close()
		hc.mu.Unlock()
	}
}

// Ping sends a control ping; safe concurrently with Send.
func (h *Hub) Ping(connID string) error {
	h.mu.Lock()
	hc := h.conns[connID]
	h.mu.Unlock()
	if hc == nil {
		return nil
	}
	return hc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hubWriteWait))
}
