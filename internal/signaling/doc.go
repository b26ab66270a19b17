// Package signaling implements the control-message relay for peer-to-peer
// screen-share sessions: room membership, single-sharer arbitration, and
// point-to-point forwarding of WebRTC negotiation payloads.
//
// The relay never touches media; it only moves small JSON events between
// connections in the same room.
package signaling
