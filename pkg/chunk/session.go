package chunk

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shufflekit/chunknet/pkg/chunk/transport"
)

// session serves one accepted connection. The read loop hands every request
// to its own goroutine so a slow chunk cannot stall the connection, and
// responses go out in completion order through the shared writer.
type session struct {
	srv    *Server
	conn   *transport.Conn
	logger *zap.Logger

	wmu sync.Mutex // serializes frame writes

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func newSession(srv *Server, nc net.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		srv:  srv,
		conn: transport.NewConn(nc, srv.cfg.MaxFrameSize, srv.cfg.ReadBufferSize, srv.cfg.WriteBufferSize),
		logger: srv.logger.With(
			zap.String("session", uuid.NewString()),
			zap.String("remote", nc.RemoteAddr().String()),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// run reads frames until the connection dies.
func (s *session) run() {
	defer func() {
		_ = s.close()
		s.srv.untrack(s)
	}()

	s.logger.Info("client connected")

	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				s.logger.Info("client disconnected")
			default:
				s.logger.Warn("read failed", zap.Error(err))
			}
			return
		}
		s.handleFrame(f)
	}
}

func (s *session) handleFrame(f transport.Frame) {
	switch m := f.(type) {
	case *transport.ChunkFetchRequest:
		go s.handleFetch(m.Slice)

	case *transport.RPCRequest:
		go s.handleRPC(m.RequestID, m.Body)

	case *transport.OneWay:
		go s.srv.handler.HandleOneWay(s.ctx, m.Body)

	case *transport.Heartbeat:
		s.logger.Debug("heartbeat")

	default:
		s.logger.Warn("dropping unexpected frame", zap.Stringer("type", f.Type()))
	}
}

// handleFetch resolves one chunk and writes the response. The chunk buffer is
// released once the writer is done with it.
func (s *session) handleFetch(slice transport.StreamChunkSlice) {
	b, err := s.srv.registry.GetChunk(slice.StreamID, slice.ChunkIndex, RangeHint{Offset: slice.Offset, Len: slice.Len})
	if err != nil {
		s.logger.Warn("chunk fetch failed",
			zap.Int64("streamID", slice.StreamID),
			zap.Int32("chunkIndex", slice.ChunkIndex),
			zap.Error(err))
		s.writeResponse(&transport.ChunkFetchFailure{
			StreamID:   slice.StreamID,
			ChunkIndex: slice.ChunkIndex,
			Error:      err.Error(),
		})
		return
	}

	size := b.Size()
	werr := s.writeFrame(&transport.ChunkFetchSuccess{
		StreamID:   slice.StreamID,
		ChunkIndex: slice.ChunkIndex,
		Body:       b,
	})
	b.Release()
	if werr == nil {
		return
	}

	if errors.Is(werr, transport.ErrFrameTooLarge) {
		// Rejected before any byte hit the wire; the connection is intact.
		s.logger.Warn("chunk exceeds max frame size",
			zap.Int64("streamID", slice.StreamID),
			zap.Int32("chunkIndex", slice.ChunkIndex),
			zap.Int64("size", size),
			zap.Error(werr))
		s.writeResponse(&transport.ChunkFetchFailure{
			StreamID:   slice.StreamID,
			ChunkIndex: slice.ChunkIndex,
			Error:      werr.Error(),
		})
		return
	}
	s.fail(werr)
}

func (s *session) handleRPC(requestID int64, body []byte) {
	resp, err := s.srv.handler.HandleRPC(s.ctx, body)
	if err != nil {
		s.writeResponse(&transport.RPCFailure{RequestID: requestID, Error: err.Error()})
		return
	}
	s.writeResponse(&transport.RPCResponse{RequestID: requestID, Body: resp})
}

// writeResponse writes f and tears the session down when the write fails.
func (s *session) writeResponse(f transport.Frame) {
	if err := s.writeFrame(f); err != nil {
		s.fail(err)
	}
}

func (s *session) writeFrame(f transport.Frame) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteFrame(f)
}

func (s *session) fail(err error) {
	s.logger.Warn("write failed", zap.Error(err))
	_ = s.close()
}

// close is idempotent. The first call cancels the session context and closes
// the connection, which unblocks the read loop.
func (s *session) close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.conn.Close()
		s.logger.Info("session closed",
			zap.Uint64("bytesRead", s.conn.BytesRead()),
			zap.Uint64("bytesWritten", s.conn.BytesWritten()))
	})
	return s.closeErr
}
