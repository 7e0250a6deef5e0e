package transport

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Writer encodes frames onto a connection.
type Writer struct {
	conn         *meteredConn
	maxFrameSize uint32
}

// NewWriter creates a frame writer with the given frame size bound.
func NewWriter(conn *meteredConn, maxFrameSize uint32) *Writer {
	return &Writer{conn: conn, maxFrameSize: maxFrameSize}
}

// WriteFrame encodes f and flushes it. An oversize frame is rejected before
// any byte hits the wire, so the connection stays usable after
// ErrFrameTooLarge. Chunk bodies are not released; the caller keeps
// ownership.
func (w *Writer) WriteFrame(f Frame) error {
	switch m := f.(type) {
	case *ChunkFetchRequest:
		return w.writeChunkFetchRequest(m)
	case *ChunkFetchSuccess:
		return w.writeChunkFetchSuccess(m)
	case *ChunkFetchFailure:
		return w.writeChunkFetchFailure(m)
	case *RPCRequest:
		return w.writeRPC(TypeRPCRequest, m.RequestID, m.Body)
	case *RPCResponse:
		return w.writeRPC(TypeRPCResponse, m.RequestID, m.Body)
	case *RPCFailure:
		return w.writeRPCFailure(m)
	case *OneWay:
		return w.writeOneWay(m)
	case *Heartbeat:
		return w.writeHeartbeat()
	default:
		return errors.Wrapf(ErrUnknownFrameType, "%T", f)
	}
}

// frameLength computes the on-wire frame length for a fixed header plus
// payload and checks it against the frame size bound.
func (w *Writer) frameLength(fixed int, payload int64) (uint32, error) {
	n := 1 + int64(fixed) + payload
	if n > int64(w.maxFrameSize) {
		return 0, errors.Wrapf(ErrFrameTooLarge, "frame length %d exceeds %d", n, w.maxFrameSize)
	}
	return uint32(n), nil
}

func (w *Writer) writeChunkFetchRequest(m *ChunkFetchRequest) error {
	var h [frameLenSize + 1 + chunkFetchRequestLen]byte
	binary.BigEndian.PutUint32(h[0:], 1+chunkFetchRequestLen)
	h[4] = byte(TypeChunkFetchRequest)
	binary.BigEndian.PutUint64(h[5:], uint64(m.Slice.StreamID))
	binary.BigEndian.PutUint32(h[13:], uint32(m.Slice.ChunkIndex))
	binary.BigEndian.PutUint32(h[17:], uint32(m.Slice.Offset))
	binary.BigEndian.PutUint32(h[21:], uint32(m.Slice.Len))
	if _, err := w.conn.Write(h[:]); err != nil {
		return errors.Wrap(err, "write chunk fetch request")
	}
	return w.conn.Flush()
}

func (w *Writer) writeChunkFetchSuccess(m *ChunkFetchSuccess) error {
	size := m.Body.Size()
	length, err := w.frameLength(chunkFetchHeaderLen, size)
	if err != nil {
		return err
	}

	var h [frameLenSize + 1 + chunkFetchHeaderLen]byte
	binary.BigEndian.PutUint32(h[0:], length)
	h[4] = byte(TypeChunkFetchSuccess)
	binary.BigEndian.PutUint64(h[5:], uint64(m.StreamID))
	binary.BigEndian.PutUint32(h[13:], uint32(m.ChunkIndex))
	binary.BigEndian.PutUint32(h[17:], uint32(size))
	if _, err := w.conn.Write(h[:]); err != nil {
		return errors.Wrap(err, "write chunk fetch success")
	}

	n, err := w.conn.writeDirect(m.Body)
	if err != nil {
		return errors.Wrap(err, "write chunk body")
	}
	if n != size {
		return errors.Newf("chunk body wrote %d of %d bytes", n, size)
	}
	return w.conn.Flush()
}

func (w *Writer) writeChunkFetchFailure(m *ChunkFetchFailure) error {
	reason := []byte(m.Error)
	length, err := w.frameLength(chunkFetchHeaderLen, int64(len(reason)))
	if err != nil {
		return err
	}

	var h [frameLenSize + 1 + chunkFetchHeaderLen]byte
	binary.BigEndian.PutUint32(h[0:], length)
	h[4] = byte(TypeChunkFetchFailure)
	binary.BigEndian.PutUint64(h[5:], uint64(m.StreamID))
	binary.BigEndian.PutUint32(h[13:], uint32(m.ChunkIndex))
	binary.BigEndian.PutUint32(h[17:], uint32(len(reason)))
	if _, err := w.conn.Write(h[:]); err != nil {
		return errors.Wrap(err, "write chunk fetch failure")
	}
	if _, err := w.conn.Write(reason); err != nil {
		return errors.Wrap(err, "write error text")
	}
	return w.conn.Flush()
}

func (w *Writer) writeRPC(typ Type, requestID int64, body []byte) error {
	length, err := w.frameLength(rpcHeaderLen, int64(len(body)))
	if err != nil {
		return err
	}

	var h [frameLenSize + 1 + rpcHeaderLen]byte
	binary.BigEndian.PutUint32(h[0:], length)
	h[4] = byte(typ)
	binary.BigEndian.PutUint64(h[5:], uint64(requestID))
	binary.BigEndian.PutUint32(h[13:], uint32(len(body)))
	if _, err := w.conn.Write(h[:]); err != nil {
		return errors.Wrapf(err, "write %s header", typ)
	}
	if _, err := w.conn.Write(body); err != nil {
		return errors.Wrapf(err, "write %s body", typ)
	}
	return w.conn.Flush()
}

func (w *Writer) writeRPCFailure(m *RPCFailure) error {
	reason := []byte(m.Error)
	length, err := w.frameLength(rpcHeaderLen, int64(len(reason)))
	if err != nil {
		return err
	}

	var h [frameLenSize + 1 + rpcHeaderLen]byte
	binary.BigEndian.PutUint32(h[0:], length)
	h[4] = byte(TypeRPCFailure)
	binary.BigEndian.PutUint64(h[5:], uint64(m.RequestID))
	binary.BigEndian.PutUint32(h[13:], uint32(len(reason)))
	if _, err := w.conn.Write(h[:]); err != nil {
		return errors.Wrap(err, "write rpc failure")
	}
	if _, err := w.conn.Write(reason); err != nil {
		return errors.Wrap(err, "write error text")
	}
	return w.conn.Flush()
}

func (w *Writer) writeOneWay(m *OneWay) error {
	length, err := w.frameLength(oneWayHeaderLen, int64(len(m.Body)))
	if err != nil {
		return err
	}

	var h [frameLenSize + 1 + oneWayHeaderLen]byte
	binary.BigEndian.PutUint32(h[0:], length)
	h[4] = byte(TypeOneWay)
	binary.BigEndian.PutUint32(h[5:], uint32(len(m.Body)))
	if _, err := w.conn.Write(h[:]); err != nil {
		return errors.Wrap(err, "write one-way header")
	}
	if _, err := w.conn.Write(m.Body); err != nil {
		return errors.Wrap(err, "write one-way body")
	}
	return w.conn.Flush()
}

func (w *Writer) writeHeartbeat() error {
	var h [frameLenSize + 1]byte
	binary.BigEndian.PutUint32(h[0:], 1)
	h[4] = byte(TypeHeartbeat)
	if _, err := w.conn.Write(h[:]); err != nil {
		return errors.Wrap(err, "write heartbeat")
	}
	return w.conn.Flush()
}
