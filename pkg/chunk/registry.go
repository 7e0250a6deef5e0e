package chunk

import (
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/shufflekit/chunknet/pkg/chunk/buf"
)

// RangeHint narrows a chunk fetch to a byte range within the chunk. The zero
// value selects the whole chunk.
type RangeHint struct {
	Offset int32 // start offset within the chunk
	Len    int32 // bytes wanted from Offset, <= 0 for the remainder
}

// slice resolves the hint against a chunk of length bytes and returns the
// effective offset and byte count.
func (h RangeHint) slice(length int64) (int64, int64, error) {
	off := int64(h.Offset)
	if off < 0 || off > length {
		return 0, 0, errors.Wrapf(ErrChunkOutOfRange, "offset %d in chunk of %d bytes", off, length)
	}
	n := length - off
	if h.Len > 0 && int64(h.Len) < n {
		n = int64(h.Len)
	}
	return off, n, nil
}

// ChunkProvider produces buffers for the chunks of one registered stream.
// Every call must return a buffer holding a fresh reference; the transport
// releases it once the bytes are on the wire.
type ChunkProvider interface {
	Chunk(chunkIndex int32, hint RangeHint) (buf.Buffer, error)
}

// ProviderFunc adapts a function to ChunkProvider.
type ProviderFunc func(chunkIndex int32, hint RangeHint) (buf.Buffer, error)

// Chunk implements ChunkProvider.
func (f ProviderFunc) Chunk(chunkIndex int32, hint RangeHint) (buf.Buffer, error) {
	return f(chunkIndex, hint)
}

// Registry maps stream ids to chunk providers. Stream ids are issued
// sequentially starting at 1 and never reused.
type Registry struct {
	logger *zap.Logger
	nextID atomic.Int64

	mu      sync.RWMutex
	streams map[int64]ChunkProvider
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger,
		streams: make(map[int64]ChunkProvider),
	}
}

// Register adds a provider and returns its stream id.
func (r *Registry) Register(p ChunkProvider) int64 {
	id := r.nextID.Inc()
	r.mu.Lock()
	r.streams[id] = p
	r.mu.Unlock()

	r.logger.Debug("stream registered", zap.Int64("streamID", id))
	return id
}

// Unregister removes a stream. Buffers already handed out by its provider
// stay valid until released.
func (r *Registry) Unregister(streamID int64) {
	r.mu.Lock()
	delete(r.streams, streamID)
	r.mu.Unlock()

	r.logger.Debug("stream unregistered", zap.Int64("streamID", streamID))
}

// StreamCount returns the number of registered streams.
func (r *Registry) StreamCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// GetChunk resolves one chunk slice from the identified stream.
func (r *Registry) GetChunk(streamID int64, chunkIndex int32, hint RangeHint) (buf.Buffer, error) {
	r.mu.RLock()
	p, ok := r.streams[streamID]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrStreamNotFound, "stream %d", streamID)
	}

	b, err := p.Chunk(chunkIndex, hint)
	if err != nil {
		return nil, errors.Wrapf(err, "stream %d chunk %d", streamID, chunkIndex)
	}
	return b, nil
}
