package client

import "errors"

// Sentinel errors for session and registry error conditions.
var (
	// ErrNotConnected is returned when an operation requires a participant
	// identifier but the session has not completed its connect handshake.
	ErrNotConnected = errors.New("client: not connected")

	// ErrNotInRoom is returned when leaving a room while not in one.
	ErrNotInRoom = errors.New("client: not in a room")

	// ErrNoConnection is returned when sending without an open room link.
	ErrNoConnection = errors.New("client: no connection")

	// ErrClosed is returned when the client has been shut down.
	ErrClosed = errors.New("client: closed")

	// ErrDuplicateEntity is surfaced when two distinct entities claim the
	// same id. This signals a protocol desync, not a transient condition.
	ErrDuplicateEntity = errors.New("client: duplicate entity id")

	// ErrEntityNotFound is returned when an entity id resolves to nothing.
	ErrEntityNotFound = errors.New("client: entity not found")

	// ErrHandlerNotFound is returned when an event names no registered handler.
	ErrHandlerNotFound = errors.New("client: event handler not found")

	// ErrUnsupportedKind is returned by Register when a schema names an
	// argument kind outside the supported set. This is a configuration
	// error: it indicates a programming mistake, never bad input.
	ErrUnsupportedKind = errors.New("client: unsupported argument kind")

	// ErrNoSpawner is returned when an entity template operation runs
	// without a Spawner configured.
	ErrNoSpawner = errors.New("client: no spawner configured")

	// ErrUnknownTemplate is returned when a spawn names a template the
	// Spawner does not know.
	ErrUnknownTemplate = errors.New("client: unknown entity template")
)
