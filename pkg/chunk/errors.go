package chunk

import "github.com/cockroachdb/errors"

var (
	// Registry errors. They reach the remote side as fetch failure text.
	ErrStreamNotFound  = errors.New("stream not registered")
	ErrChunkOutOfRange = errors.New("chunk index out of range")

	// Client errors delivered through callbacks.
	ErrClientClosed     = errors.New("client closed")
	ErrDuplicateFetch   = errors.New("chunk fetch already pending")
	ErrConnectionFailed = errors.New("connection failed")

	// Markers for failures reported by the remote side. The original error
	// travels as text and is wrapped under these.
	ErrFetchFailed = errors.New("chunk fetch failed")
	ErrRPCFailed   = errors.New("rpc failed")

	// ErrServerClosed is returned by Serve after a clean shutdown.
	ErrServerClosed = errors.New("server closed")
)
