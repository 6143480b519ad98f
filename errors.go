package gateway

import "errors"

// Sentinel errors of the connection lifecycle. Frame-level decode failures
// never surface here: a bad frame is logged and dropped while the
// connection continues.
var (
	// ErrMissingCredential is returned by Connect when no bearer token has
	// been set. No network I/O is performed.
	ErrMissingCredential = errors.New("gateway: no credential set")

	// ErrHandshakeTimeout is returned by Connect when the Gateway does not
	// deliver READY within the handshake window.
	ErrHandshakeTimeout = errors.New("gateway: handshake timed out waiting for READY")

	// ErrConnection marks a transport-level socket failure before READY.
	// Connect wraps the underlying error together with this sentinel.
	ErrConnection = errors.New("gateway: connection failed")

	// ErrAlreadyConnected is returned by Connect when a connection is open
	// or a handshake is already in flight.
	ErrAlreadyConnected = errors.New("gateway: already connected")

	// ErrConnectionClosed is returned by a pending Connect when Disconnect
	// tears the connection down before READY arrives.
	ErrConnectionClosed = errors.New("gateway: connection closed")
)
