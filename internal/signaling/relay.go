package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/screenhive/signaling-relay/internal/metrics"
	"github.com/screenhive/signaling-relay/internal/room"
)

// Transport is the emission surface the relay depends on. The WebSocket hub
// implements it in production; tests substitute an in-memory recorder.
//
// Neither method reports delivery failures: sending to a connection id with
// no live connection is a silent no-op.
type Transport interface {
	Send(connID string, event EventType, payload any)
	Broadcast(roomID string, event EventType, payload any, excludeConnID string)
}

// errDropped marks an inbound event that was discarded without any emission
// or state change. Dropping is the protocol's only failure mode; nothing is
// surfaced to the client.
var errDropped = errors.New("signaling: event dropped")

func dropf(reason, format string, args ...any) error {
	return fmt.Errorf("%w (%s): %s", errDropped, reason, fmt.Sprintf(format, args...))
}

// sessionContext is the relay's per-connection state: which room (if any) the
// connection is currently in, and the display name it joined with. All
// authoritative room state lives in the registry.
type sessionContext struct {
	name   string
	roomID string
}

// RelayConfig wires together the runtime dependencies of the relay core.
type RelayConfig struct {
	Registry  *room.Registry
	Transport Transport

	// Logger is optional; slog.Default() is used when nil.
	Logger *slog.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// Relay is the room/session state machine behind every connection. One event
// (inbound message or connection close) is processed to completion before the
// next, so room mutation plus its emissions are atomic with respect to other
// events.
type Relay struct {
	registry  *room.Registry
	transport Transport
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*sessionContext
}

func NewRelay(cfg RelayConfig) *Relay {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		registry:  cfg.Registry,
		transport: cfg.Transport,
		log:       logger,
		metrics:   cfg.Metrics,
		sessions:  make(map[string]*sessionContext),
	}
}

// Connect registers a new connection in the Unjoined state.
func (r *Relay) Connect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[connID] = &sessionContext{}
	r.metrics.ConnOpened()
	r.log.Debug("connection opened", "conn_id", connID)
}

// Disconnect runs the cleanup path for a closed connection. It is the single
// cancellation signal: graceful closes and abrupt network failures both land
// here, and after it returns no further events are processed for the
// connection.
func (r *Relay) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, ok := r.sessions[connID]
	if !ok {
		return
	}
	delete(r.sessions, connID)
	r.metrics.ConnClosed()
	r.log.Debug("connection closed", "conn_id", connID)

	if ctx.roomID == "" {
		return
	}

	roomID := ctx.roomID
	wasSharer, err := r.registry.RemoveMember(roomID, connID)
	if err != nil {
		return
	}
	r.metrics.SetRooms(r.registry.RoomCount())

	// The sharer's departure ends the share for the whole room. Order matters:
	// stopped precedes the membership updates.
	if wasSharer {
		r.transport.Broadcast(roomID, EventStopped, nil, "")
	}
	r.transport.Broadcast(roomID, EventUserLeft, connID, "")
	if roster, ok := r.registry.Members(roomID); ok {
		r.transport.Broadcast(roomID, EventUsersUpdate, roster, "")
	}
}

// HandleMessage interprets one inbound frame from the connection. Malformed
// or out-of-place events are dropped: the returned error describes why but no
// failure is ever emitted to clients.
func (r *Relay) HandleMessage(connID string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, ok := r.sessions[connID]
	if !ok {
		return dropf(metrics.DropReasonNotJoined, "no session for connection %s", connID)
	}

	env, err := parseEnvelope(data)
	if err != nil {
		r.metrics.IncDropped(metrics.DropReasonMalformed)
		return dropf(metrics.DropReasonMalformed, "bad envelope: %v", err)
	}
	r.metrics.IncEvent(string(env.Event))

	switch env.Event {
	case EventJoinRoom:
		err = r.handleJoin(connID, ctx, env.Data)
	case EventRequestScreen:
		err = r.handleRequestScreen(connID, env.Data)
	case EventScreenResponse:
		err = r.handleScreenResponse(connID, ctx, env.Data)
	case EventOffer, EventAnswer:
		err = r.handleSDPRelay(connID, env.Event, env.Data)
	case EventCandidate:
		err = r.handleCandidateRelay(connID, env.Data)
	case EventStopSharing:
		err = r.handleStopSharing(connID, env.Data)
	default:
		r.metrics.IncDropped(metrics.DropReasonUnknownEvent)
		return dropf(metrics.DropReasonUnknownEvent, "event %q", env.Event)
	}

	if err != nil {
		r.log.Debug("event dropped", "conn_id", connID, "event", env.Event, "err", err)
	}
	return err
}

func (r *Relay) handleJoin(connID string, ctx *sessionContext, data json.RawMessage) error {
	var p joinRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.metrics.IncDropped(metrics.DropReasonMalformed)
		return dropf(metrics.DropReasonMalformed, "join-room: %v", err)
	}
	if p.RoomID == "" {
		r.metrics.IncDropped(metrics.DropReasonMissingField)
		return dropf(metrics.DropReasonMissingField, "join-room without roomId")
	}
	if ctx.roomID != "" {
		r.metrics.IncDropped(metrics.DropReasonAlreadyJoined)
		return dropf(metrics.DropReasonAlreadyJoined, "connection already in room %s", ctx.roomID)
	}

	name := p.UserName
	if name == "" {
		name = room.AnonymousName
	}

	roster, err := r.registry.AddMember(p.RoomID, room.Member{ID: connID, Name: name})
	if err != nil {
		r.metrics.IncDropped(metrics.DropReasonRoomFull)
		return dropf(metrics.DropReasonRoomFull, "join-room %s: %v", p.RoomID, err)
	}
	ctx.roomID = p.RoomID
	ctx.name = name
	r.metrics.SetRooms(r.registry.RoomCount())

	r.log.Info("member joined", "conn_id", connID, "room", p.RoomID, "name", name)

	r.transport.Send(connID, EventRoomJoined, roomJoinedPayload{Users: roster})
	r.transport.Broadcast(p.RoomID, EventUserJoined, room.Member{ID: connID, Name: name}, connID)
	r.transport.Broadcast(p.RoomID, EventUsersUpdate, roster, "")
	return nil
}

func (r *Relay) handleRequestScreen(connID string, data json.RawMessage) error {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		r.metrics.IncDropped(metrics.DropReasonMissingField)
		return dropf(metrics.DropReasonMissingField, "request-screen without roomId")
	}

	sharerID, ok := r.registry.SharerID(roomID)
	if !ok {
		r.metrics.IncDropped(metrics.DropReasonNoSuchRoom)
		return dropf(metrics.DropReasonNoSuchRoom, "request-screen for %s", roomID)
	}

	// A predictable failure: somebody already shares. Reject the requester
	// directly instead of bothering the room.
	if sharerID != "" {
		r.transport.Send(connID, EventScreenResponse, screenDecisionPayload{Accept: false})
		return nil
	}

	r.transport.Broadcast(roomID, EventScreenRequest, screenRequestPayload{From: connID}, connID)
	return nil
}

func (r *Relay) handleScreenResponse(connID string, ctx *sessionContext, data json.RawMessage) error {
	var p screenResponsePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.metrics.IncDropped(metrics.DropReasonMalformed)
		return dropf(metrics.DropReasonMalformed, "screen-response: %v", err)
	}
	if ctx.roomID == "" {
		r.metrics.IncDropped(metrics.DropReasonNotJoined)
		return dropf(metrics.DropReasonNotJoined, "screen-response before join")
	}
	if p.To == "" {
		r.metrics.IncDropped(metrics.DropReasonMissingField)
		return dropf(metrics.DropReasonMissingField, "screen-response without target")
	}

	r.transport.Send(p.To, EventScreenResponse, screenDecisionPayload{Accept: p.Accept})

	// A rejection never mutates sharer state. On accept the requester becomes
	// the sharer; SetSharer clears any previous sharer first, so concurrent
	// competing accepts resolve as last-accept-wins.
	if !p.Accept {
		return nil
	}
	if err := r.registry.SetSharer(ctx.roomID, p.To); err != nil {
		// Target already gone; the relayed response is a harmless no-op.
		return nil
	}
	r.log.Info("sharer installed", "room", ctx.roomID, "sharer", p.To, "granted_by", connID)

	if roster, ok := r.registry.Members(ctx.roomID); ok {
		r.transport.Broadcast(ctx.roomID, EventUsersUpdate, roster, "")
	}
	return nil
}

func (r *Relay) handleSDPRelay(connID string, event EventType, data json.RawMessage) error {
	var p sdpPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.metrics.IncDropped(metrics.DropReasonMalformed)
		return dropf(metrics.DropReasonMalformed, "%s: %v", event, err)
	}
	if p.To == "" || p.SDP == nil {
		r.metrics.IncDropped(metrics.DropReasonMissingField)
		return dropf(metrics.DropReasonMissingField, "%s without target or sdp", event)
	}

	r.transport.Send(p.To, event, sdpRelayPayload{From: connID, SDP: p.SDP})
	return nil
}

func (r *Relay) handleCandidateRelay(connID string, data json.RawMessage) error {
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.metrics.IncDropped(metrics.DropReasonMalformed)
		return dropf(metrics.DropReasonMalformed, "candidate: %v", err)
	}
	if p.To == "" || p.Candidate == nil {
		r.metrics.IncDropped(metrics.DropReasonMissingField)
		return dropf(metrics.DropReasonMissingField, "candidate without target or candidate")
	}

	r.transport.Send(p.To, EventCandidate, candidateRelayPayload{From: connID, Candidate: p.Candidate})
	return nil
}

func (r *Relay) handleStopSharing(connID string, data json.RawMessage) error {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		r.metrics.IncDropped(metrics.DropReasonMissingField)
		return dropf(metrics.DropReasonMissingField, "stop-sharing without roomId")
	}

	sharerID, ok := r.registry.SharerID(roomID)
	if !ok {
		r.metrics.IncDropped(metrics.DropReasonNoSuchRoom)
		return dropf(metrics.DropReasonNoSuchRoom, "stop-sharing for %s", roomID)
	}
	if sharerID != connID {
		r.metrics.IncDropped(metrics.DropReasonNotSharer)
		return dropf(metrics.DropReasonNotSharer, "stop-sharing from non-sharer")
	}

	_ = r.registry.ClearSharer(roomID)
	r.log.Info("sharing stopped", "room", roomID, "sharer", connID)

	r.transport.Broadcast(roomID, EventStopped, nil, "")
	if roster, ok := r.registry.Members(roomID); ok {
		r.transport.Broadcast(roomID, EventUsersUpdate, roster, "")
	}
	return nil
}
