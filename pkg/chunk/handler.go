package chunk

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Handler processes rpc and one-way messages arriving on server connections.
// Handlers run on per-message goroutines; blocking is allowed, and ctx is
// canceled when the connection goes away.
type Handler interface {
	// HandleRPC returns the response body. A returned error travels back to
	// the caller as failure text.
	HandleRPC(ctx context.Context, body []byte) ([]byte, error)

	// HandleOneWay consumes a fire-and-forget message.
	HandleOneWay(ctx context.Context, body []byte)
}

// HandlerFuncs adapts plain functions to Handler. A nil RPC rejects requests,
// a nil OneWay drops messages.
type HandlerFuncs struct {
	RPC    func(ctx context.Context, body []byte) ([]byte, error)
	OneWay func(ctx context.Context, body []byte)
}

func (h HandlerFuncs) HandleRPC(ctx context.Context, body []byte) ([]byte, error) {
	if h.RPC == nil {
		return nil, errors.New("no rpc handler registered")
	}
	return h.RPC(ctx, body)
}

func (h HandlerFuncs) HandleOneWay(ctx context.Context, body []byte) {
	if h.OneWay != nil {
		h.OneWay(ctx, body)
	}
}
