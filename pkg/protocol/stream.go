package protocol

// ServerTimeMarker is sent verbatim in every outgoing stream frame; the
// server replaces it with its own send time before relaying the frame, which
// is what makes latency estimation possible without synchronized clocks.
const ServerTimeMarker = "DL_SERVER_SENT_TIME"

// StreamFrame is one tick's worth of streamed values: for each sending entity
// an ordered sequence of opaque values, plus the server-stamped send time.
// Stream frames bypass the reliable batcher and travel as their own websocket
// frame.
type StreamFrame struct {
	Data           map[int][]any `json:"data"`
	ServerSentTime float64       `json:"serverSentTime"`
	TimeMarker     string        `json:"__time__"`
}

// NewStreamFrame returns an empty outgoing frame with the marker set.
func NewStreamFrame() *StreamFrame {
	return &StreamFrame{
		Data:       make(map[int][]any),
		TimeMarker: ServerTimeMarker,
	}
}

// Latency is the ping/pong payload. All times are wall-clock milliseconds;
// server times and client times come from different clocks and are never
// compared directly.
type Latency struct {
	ServerTime    float64 `json:"serverTime"`
	ClientTime    float64 `json:"clientTime"`
	ServerAckTime float64 `json:"serverAckTime"`
}

// EstimateDelay computes the one-way delay estimate from a completed pong
// exchange: round trip minus server-side processing, halved. now is the
// local receive time in milliseconds.
func EstimateDelay(pong Latency, now float64) float64 {
	return pong.ServerAckTime - pong.ServerTime - (now-pong.ClientTime)*0.5
}
