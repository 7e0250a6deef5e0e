package transport

import (
	"io"

	"github.com/cockroachdb/errors"

	"github.com/shufflekit/chunknet/pkg/chunk/buf"
)

// Reader decodes frames from a connection.
type Reader struct {
	conn         *meteredConn
	maxFrameSize uint32
}

// NewReader creates a frame reader with the given frame size bound.
func NewReader(conn *meteredConn, maxFrameSize uint32) *Reader {
	return &Reader{conn: conn, maxFrameSize: maxFrameSize}
}

// ReadFrame reads one whole frame. Any returned error poisons the
// connection; the caller must stop reading and close it.
func (r *Reader) ReadFrame() (Frame, error) {
	length, err := readUint32BE(r.conn)
	if err != nil {
		return nil, errors.Wrap(err, "read frame length")
	}
	if length < 1 {
		return nil, errors.Wrapf(ErrMalformedFrame, "frame length %d", length)
	}
	if length > r.maxFrameSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "frame length %d exceeds %d", length, r.maxFrameSize)
	}

	tb, err := r.conn.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "read frame type")
	}
	rest := length - 1

	switch typ := Type(tb); typ {
	case TypeChunkFetchRequest:
		return r.readChunkFetchRequest(rest)
	case TypeChunkFetchSuccess:
		return r.readChunkFetchSuccess(rest)
	case TypeChunkFetchFailure:
		return r.readChunkFetchFailure(rest)
	case TypeRPCRequest, TypeRPCResponse:
		return r.readRPC(typ, rest)
	case TypeRPCFailure:
		return r.readRPCFailure(rest)
	case TypeOneWay:
		return r.readOneWay(rest)
	case TypeHeartbeat:
		if rest != 0 {
			return nil, errors.Wrapf(ErrMalformedFrame, "heartbeat with %d payload bytes", rest)
		}
		return &Heartbeat{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownFrameType, "type %d", tb)
	}
}

func (r *Reader) readChunkFetchRequest(rest uint32) (Frame, error) {
	if rest != chunkFetchRequestLen {
		return nil, errors.Wrapf(ErrMalformedFrame, "chunk fetch request length %d", rest)
	}
	streamID, err := readUint64BE(r.conn)
	if err != nil {
		return nil, errors.Wrap(err, "read stream id")
	}
	chunkIndex, err := readUint32BE(r.conn)
	if err != nil {
		return nil, errors.Wrap(err, "read chunk index")
	}
	offset, err := readUint32BE(r.conn)
	if err != nil {
		return nil, errors.Wrap(err, "read slice offset")
	}
	sliceLen, err := readUint32BE(r.conn)
	if err != nil {
		return nil, errors.Wrap(err, "read slice length")
	}
	return &ChunkFetchRequest{Slice: StreamChunkSlice{
		StreamID:   int64(streamID),
		ChunkIndex: int32(chunkIndex),
		Offset:     int32(offset),
		Len:        int32(sliceLen),
	}}, nil
}

func (r *Reader) readChunkFetchSuccess(rest uint32) (Frame, error) {
	if rest < chunkFetchHeaderLen {
		return nil, errors.Wrapf(ErrMalformedFrame, "chunk fetch success length %d", rest)
	}
	streamID, chunkIndex, bodyLen, err := r.readChunkHeader()
	if err != nil {
		return nil, err
	}
	if bodyLen < 0 || uint32(bodyLen) != rest-chunkFetchHeaderLen {
		return nil, errors.Wrapf(ErrMalformedFrame, "chunk body length %d in frame of %d", bodyLen, rest)
	}

	body := buf.NewPooled(int(bodyLen))
	if _, err := io.ReadFull(r.conn, body.Data()); err != nil {
		body.Release()
		return nil, errors.Wrap(err, "read chunk body")
	}
	return &ChunkFetchSuccess{StreamID: streamID, ChunkIndex: chunkIndex, Body: body}, nil
}

func (r *Reader) readChunkFetchFailure(rest uint32) (Frame, error) {
	if rest < chunkFetchHeaderLen {
		return nil, errors.Wrapf(ErrMalformedFrame, "chunk fetch failure length %d", rest)
	}
	streamID, chunkIndex, errLen, err := r.readChunkHeader()
	if err != nil {
		return nil, err
	}
	if errLen < 0 || uint32(errLen) != rest-chunkFetchHeaderLen {
		return nil, errors.Wrapf(ErrMalformedFrame, "error length %d in frame of %d", errLen, rest)
	}
	reason, err := r.readBytes(int(errLen))
	if err != nil {
		return nil, errors.Wrap(err, "read error text")
	}
	return &ChunkFetchFailure{StreamID: streamID, ChunkIndex: chunkIndex, Error: string(reason)}, nil
}

func (r *Reader) readRPC(typ Type, rest uint32) (Frame, error) {
	requestID, bodyLen, err := r.readRPCHeader(rest)
	if err != nil {
		return nil, err
	}
	body, err := r.readBytes(int(bodyLen))
	if err != nil {
		return nil, errors.Wrap(err, "read rpc body")
	}
	if typ == TypeRPCRequest {
		return &RPCRequest{RequestID: requestID, Body: body}, nil
	}
	return &RPCResponse{RequestID: requestID, Body: body}, nil
}

func (r *Reader) readRPCFailure(rest uint32) (Frame, error) {
	requestID, errLen, err := r.readRPCHeader(rest)
	if err != nil {
		return nil, err
	}
	reason, err := r.readBytes(int(errLen))
	if err != nil {
		return nil, errors.Wrap(err, "read error text")
	}
	return &RPCFailure{RequestID: requestID, Error: string(reason)}, nil
}

func (r *Reader) readOneWay(rest uint32) (Frame, error) {
	if rest < oneWayHeaderLen {
		return nil, errors.Wrapf(ErrMalformedFrame, "one-way length %d", rest)
	}
	n, err := readUint32BE(r.conn)
	if err != nil {
		return nil, errors.Wrap(err, "read payload length")
	}
	bodyLen := int32(n)
	if bodyLen < 0 || uint32(bodyLen) != rest-oneWayHeaderLen {
		return nil, errors.Wrapf(ErrMalformedFrame, "one-way body length %d in frame of %d", bodyLen, rest)
	}
	body, err := r.readBytes(int(bodyLen))
	if err != nil {
		return nil, errors.Wrap(err, "read one-way body")
	}
	return &OneWay{Body: body}, nil
}

// readChunkHeader reads the streamID, chunkIndex and payload length fields
// shared by chunk fetch success and failure frames.
func (r *Reader) readChunkHeader() (int64, int32, int32, error) {
	streamID, err := readUint64BE(r.conn)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "read stream id")
	}
	chunkIndex, err := readUint32BE(r.conn)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "read chunk index")
	}
	n, err := readUint32BE(r.conn)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "read payload length")
	}
	return int64(streamID), int32(chunkIndex), int32(n), nil
}

// readRPCHeader reads and validates the requestID and payload length fields
// shared by the rpc frames.
func (r *Reader) readRPCHeader(rest uint32) (int64, int32, error) {
	if rest < rpcHeaderLen {
		return 0, 0, errors.Wrapf(ErrMalformedFrame, "rpc frame length %d", rest)
	}
	requestID, err := readUint64BE(r.conn)
	if err != nil {
		return 0, 0, errors.Wrap(err, "read request id")
	}
	n, err := readUint32BE(r.conn)
	if err != nil {
		return 0, 0, errors.Wrap(err, "read payload length")
	}
	bodyLen := int32(n)
	if bodyLen < 0 || uint32(bodyLen) != rest-rpcHeaderLen {
		return 0, 0, errors.Wrapf(ErrMalformedFrame, "rpc body length %d in frame of %d", bodyLen, rest)
	}
	return int64(requestID), bodyLen, nil
}

func (r *Reader) readBytes(n int) ([]byte, error) {
	p := make([]byte, n)
	if _, err := io.ReadFull(r.conn, p); err != nil {
		return nil, err
	}
	return p, nil
}
