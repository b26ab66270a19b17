package signaling

import (
	"encoding/json"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		wantEvent EventType
		wantErr   bool
	}{
		{"join with payload", `{"event":"join-room","data":{"roomId":"r1"}}`, EventJoinRoom, false},
		{"event without payload", `{"event":"stop-sharing"}`, EventStopSharing, false},
		{"string payload", `{"event":"request-screen","data":"r1"}`, EventRequestScreen, false},
		{"missing event", `{"data":{"roomId":"r1"}}`, "", true},
		{"unknown envelope field", `{"event":"join-room","extra":1}`, "", true},
		{"trailing data", `{"event":"join-room"}{"event":"join-room"}`, "", true},
		{"not an object", `"join-room"`, "", true},
		{"empty input", ``, "", true},
		{"truncated", `{"event":"join`, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := parseEnvelope([]byte(tc.raw))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseEnvelope(%q) succeeded, want error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEnvelope(%q): %v", tc.raw, err)
			}
			if env.Event != tc.wantEvent {
				t.Errorf("event = %q, want %q", env.Event, tc.wantEvent)
			}
		})
	}
}

func TestParseEnvelope_DataPreservedVerbatim(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"event":"offer","data":{"to":"x","sdp":{"type":"offer","sdp":"v=0"}}}`))
	if err != nil {
		t.Fatalf("parseEnvelope: %v", err)
	}

	var p sdpPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.To != "x" || p.SDP == nil || p.SDP.SDP != "v=0" {
		t.Errorf("payload = %+v", p)
	}
}
