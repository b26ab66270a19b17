package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"

	"github.com/screenhive/signaling-relay/internal/room"
)

// EventType names one message kind on the wire. The protocol surface is a
// closed set; anything else is dropped.
type EventType string

const (
	// Client -> relay.
	EventJoinRoom       EventType = "join-room"
	EventRequestScreen  EventType = "request-screen"
	EventScreenResponse EventType = "screen-response"
	EventOffer          EventType = "offer"
	EventAnswer         EventType = "answer"
	EventCandidate      EventType = "candidate"
	EventStopSharing    EventType = "stop-sharing"

	// Relay -> client. EventScreenResponse, EventOffer, EventAnswer and
	// EventCandidate flow in both directions.
	EventRoomJoined    EventType = "room-joined"
	EventUserJoined    EventType = "user-joined"
	EventUsersUpdate   EventType = "users-update"
	EventScreenRequest EventType = "screen-request"
	EventStopped       EventType = "stopped"
	EventUserLeft      EventType = "user-left"
)

// envelope is the frame every event travels in. Data is the event-specific
// payload; events without a payload omit it.
type envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outEnvelope mirrors envelope for outbound marshalling with an arbitrary
// payload value.
type outEnvelope struct {
	Event EventType `json:"event"`
	Data  any       `json:"data,omitempty"`
}

func parseEnvelope(data []byte) (envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return envelope{}, err
	}
	if env.Event == "" {
		return envelope{}, fmt.Errorf("missing event name")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return envelope{}, fmt.Errorf("unexpected trailing data")
	}
	return env, nil
}

// joinRoomPayload is the join-room event body.
type joinRoomPayload struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName,omitempty"`
}

// screenResponsePayload is the inbound screen-response body: a member's
// decision on another connection's share request.
type screenResponsePayload struct {
	To     string `json:"to"`
	Accept bool   `json:"accept"`
}

// sdpPayload is the inbound offer/answer body. The SDP is the browser's own
// RTCSessionDescription JSON shape; the relay forwards it without
// interpreting it.
type sdpPayload struct {
	To  string                     `json:"to"`
	SDP *webrtc.SessionDescription `json:"sdp"`
}

// candidatePayload is the inbound candidate body, carrying the browser's
// RTCIceCandidateInit.
type candidatePayload struct {
	To        string                   `json:"to"`
	Candidate *webrtc.ICECandidateInit `json:"candidate"`
}

// Outbound payload shapes.

type roomJoinedPayload struct {
	Users []room.Member `json:"users"`
}

type screenRequestPayload struct {
	From string `json:"from"`
}

// screenDecisionPayload is the outbound screen-response body. It carries no
// sender: for the target it is a direct reply, and the synthesized rejection
// to a requester likewise needs none.
type screenDecisionPayload struct {
	Accept bool `json:"accept"`
}

type sdpRelayPayload struct {
	From string                     `json:"from"`
	SDP  *webrtc.SessionDescription `json:"sdp"`
}

type candidateRelayPayload struct {
	From      string                   `json:"from"`
	Candidate *webrtc.ICECandidateInit `json:"candidate"`
}
