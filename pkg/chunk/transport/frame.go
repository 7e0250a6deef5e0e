package transport

import (
	"fmt"

	"github.com/shufflekit/chunknet/pkg/chunk/buf"
)

// Protocol constants
const (
	DefaultMaxFrameSize = 16 << 20 // whole frame: type byte plus payload
	DefaultBufferSize   = 64 << 10
)

// frameLenSize is the width of the length prefix preceding every frame.
const frameLenSize = 4

// Fixed field widths per frame type, excluding the type byte.
const (
	chunkFetchRequestLen = 20 // streamID + chunkIndex + offset + len
	chunkFetchHeaderLen  = 16 // streamID + chunkIndex + payload length
	rpcHeaderLen         = 12 // requestID + payload length
	oneWayHeaderLen      = 4  // payload length
)

// Type identifies a frame on the wire.
type Type uint8

// Frame types. The numeric values are the wire encoding.
const (
	TypeChunkFetchRequest Type = 0
	TypeChunkFetchSuccess Type = 1
	TypeChunkFetchFailure Type = 2
	TypeRPCRequest        Type = 3
	TypeRPCResponse       Type = 4
	TypeRPCFailure        Type = 5
	TypeOneWay            Type = 6
	TypeHeartbeat         Type = 7
)

// String returns the frame type name for logs and errors.
func (t Type) String() string {
	switch t {
	case TypeChunkFetchRequest:
		return "ChunkFetchRequest"
	case TypeChunkFetchSuccess:
		return "ChunkFetchSuccess"
	case TypeChunkFetchFailure:
		return "ChunkFetchFailure"
	case TypeRPCRequest:
		return "RPCRequest"
	case TypeRPCResponse:
		return "RPCResponse"
	case TypeRPCFailure:
		return "RPCFailure"
	case TypeOneWay:
		return "OneWay"
	case TypeHeartbeat:
		return "Heartbeat"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Frame is a single protocol message.
type Frame interface {
	Type() Type
}

// StreamChunkSlice identifies one fetchable unit: a chunk of a registered
// stream, optionally narrowed to a byte range within the chunk.
type StreamChunkSlice struct {
	StreamID   int64
	ChunkIndex int32
	Offset     int32 // start offset within the chunk, 0 for the whole chunk
	Len        int32 // bytes wanted from Offset, <= 0 for the remainder
}

// ChunkFetchRequest asks the serving side for one chunk slice.
type ChunkFetchRequest struct {
	Slice StreamChunkSlice
}

func (*ChunkFetchRequest) Type() Type { return TypeChunkFetchRequest }

// ChunkFetchSuccess carries the bytes of a served chunk. A decoded frame owns
// one reference to Body; encoding a frame does not release it.
type ChunkFetchSuccess struct {
	StreamID   int64
	ChunkIndex int32
	Body       buf.Buffer
}

func (*ChunkFetchSuccess) Type() Type { return TypeChunkFetchSuccess }

// ChunkFetchFailure reports why a chunk could not be served.
type ChunkFetchFailure struct {
	StreamID   int64
	ChunkIndex int32
	Error      string
}

func (*ChunkFetchFailure) Type() Type { return TypeChunkFetchFailure }

// RPCRequest carries an opaque body expecting a response with the same
// RequestID.
type RPCRequest struct {
	RequestID int64
	Body      []byte
}

func (*RPCRequest) Type() Type { return TypeRPCRequest }

// RPCResponse answers an RPCRequest.
type RPCResponse struct {
	RequestID int64
	Body      []byte
}

func (*RPCResponse) Type() Type { return TypeRPCResponse }

// RPCFailure reports a failed RPC.
type RPCFailure struct {
	RequestID int64
	Error     string
}

func (*RPCFailure) Type() Type { return TypeRPCFailure }

// OneWay carries a fire-and-forget body. No response is ever sent.
type OneWay struct {
	Body []byte
}

func (*OneWay) Type() Type { return TypeOneWay }

// Heartbeat keeps an idle connection alive. Receivers discard it.
type Heartbeat struct{}

func (*Heartbeat) Type() Type { return TypeHeartbeat }
