package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for a Client.
type Config struct {
	// ServerAddr is the coordination server host:port.
	// Default: "localhost:3000".
	ServerAddr string

	// Secure selects https/wss instead of http/ws.
	// Default: false.
	Secure bool

	// NamePrefix prefixes the auto-generated participant name used when
	// Connect is called without one.
	// Default: "Player_".
	NamePrefix string

	// Batching

	// BatchInterval is the reliable-message flush interval. The timer runs
	// for the duration of room membership.
	// Default: 50 milliseconds.
	BatchInterval time.Duration

	// BatchLimit is the accumulated encoded size, in bytes, beyond which
	// the pending batch is flushed immediately instead of waiting for the
	// timer.
	// Default: 512.
	BatchLimit int

	// Stream

	// StreamRate is the stream synchronizer tick rate in snapshots per
	// second.
	// Default: 20.
	StreamRate float64

	// StreamDelay is the delay before the first stream tick after joining
	// a room.
	// Default: 100 milliseconds.
	StreamDelay time.Duration

	// StreamDisabled turns off sending and consuming stream snapshots.
	// Events and room management keep working. Streaming is on by
	// default; SetStreamEnabled toggles it at runtime.
	StreamDisabled bool

	// Reconnect policy

	// ReconnectAttempts is the number of automatic reconnect attempts
	// after the room link closes. Once exhausted the session stays
	// disconnected until an explicit new join.
	// Default: 3.
	ReconnectAttempts int

	// ReconnectDelay is the fixed backoff between reconnect attempts.
	// Default: 2 seconds.
	ReconnectDelay time.Duration

	// Timeouts

	// RequestTimeout bounds each one-shot HTTP request.
	// Default: 10 seconds.
	RequestTimeout time.Duration

	// WriteTimeout bounds each websocket write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// DispatchBuffer is the dispatch queue depth.
	// Default: 256.
	DispatchBuffer int

	// Collaborators

	// Logger receives structured logs. Default: slog.Default().
	Logger *slog.Logger

	// Spawner creates and destroys application entities from named
	// templates. If nil, instantiate messages are logged and dropped.
	Spawner Spawner

	// Registerer receives the client's Prometheus metrics.
	// Default: a private registry per client.
	Registerer prometheus.Registerer

	// HTTPClient performs the one-shot requests.
	// Default: a client with RequestTimeout applied.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerAddr:        "localhost:3000",
		NamePrefix:        "Player_",
		BatchInterval:     50 * time.Millisecond,
		BatchLimit:        512,
		StreamRate:        20,
		StreamDelay:       100 * time.Millisecond,
		ReconnectAttempts: 3,
		ReconnectDelay:    2 * time.Second,
		RequestTimeout:    10 * time.Second,
		WriteTimeout:      10 * time.Second,
		DispatchBuffer:    256,
	}
}

// withDefaults fills zero values in from DefaultConfig.
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.ServerAddr == "" {
		out.ServerAddr = def.ServerAddr
	}
	if out.NamePrefix == "" {
		out.NamePrefix = def.NamePrefix
	}
	if out.BatchInterval <= 0 {
		out.BatchInterval = def.BatchInterval
	}
	if out.BatchLimit <= 0 {
		out.BatchLimit = def.BatchLimit
	}
	if out.StreamRate <= 0 {
		out.StreamRate = def.StreamRate
	}
	if out.StreamDelay <= 0 {
		out.StreamDelay = def.StreamDelay
	}
	if out.ReconnectAttempts < 0 {
		out.ReconnectAttempts = 0
	}
	if out.ReconnectDelay <= 0 {
		out.ReconnectDelay = def.ReconnectDelay
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = def.RequestTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = def.WriteTimeout
	}
	if out.DispatchBuffer <= 0 {
		out.DispatchBuffer = def.DispatchBuffer
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}
