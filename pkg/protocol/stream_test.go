package protocol

import (
	"encoding/json"
	"testing"
)

func TestStreamFrameRoundTrip(t *testing.T) {
	frame := NewStreamFrame()
	frame.Data[7] = []any{1.5, 2.5, 3.5}
	frame.Data[9] = []any{"ready", true}

	encoded, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded StreamFrame
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.TimeMarker != ServerTimeMarker {
		t.Errorf("TimeMarker = %q, want %q", decoded.TimeMarker, ServerTimeMarker)
	}
	if len(decoded.Data) != 2 {
		t.Fatalf("len(Data) = %d, want 2", len(decoded.Data))
	}
	if got := decoded.Data[7]; len(got) != 3 || got[0].(float64) != 1.5 {
		t.Errorf("Data[7] = %v, want [1.5 2.5 3.5]", got)
	}
	if got := decoded.Data[9]; got[0].(string) != "ready" || got[1].(bool) != true {
		t.Errorf("Data[9] = %v, want [ready true]", got)
	}
}

func TestEstimateDelay(t *testing.T) {
	tests := []struct {
		name string
		pong Latency
		now  float64
		want float64
	}{
		{
			// Ping sent at clientTime=100 against serverTime=50, acked at 60,
			// received locally at 110: 60 - 50 - (110-100)/2 = 5.
			name: "typical",
			pong: Latency{ServerTime: 50, ClientTime: 100, ServerAckTime: 60},
			now:  110,
			want: 5,
		},
		{
			name: "zero_delay",
			pong: Latency{ServerTime: 10, ClientTime: 20, ServerAckTime: 10},
			now:  20,
			want: 0,
		},
		{
			name: "clock_skew_negative",
			pong: Latency{ServerTime: 1000, ClientTime: 0, ServerAckTime: 990},
			now:  40,
			want: -30,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EstimateDelay(tc.pong, tc.now); got != tc.want {
				t.Errorf("EstimateDelay() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSocketURL(t *testing.T) {
	got := SocketURL("localhost:3000", false, "lobby", "p1")
	want := "ws://localhost:3000/join-room?playerId=p1&roomName=lobby"
	if got != want {
		t.Errorf("SocketURL() = %q, want %q", got, want)
	}

	secure := SocketURL("example.com", true, "lobby", "p1")
	if secure[:6] != "wss://" {
		t.Errorf("secure SocketURL() = %q, want wss scheme", secure)
	}
}
