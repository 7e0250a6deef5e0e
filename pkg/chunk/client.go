package chunk

import (
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/shufflekit/chunknet/pkg/chunk/transport"
)

// fetchKey identifies one in-flight chunk fetch.
type fetchKey struct {
	streamID   int64
	chunkIndex int32
}

type pendingFetch struct {
	cb     ChunkCallback
	sentAt time.Time
}

type pendingRPC struct {
	cb     RPCCallback
	sentAt time.Time
}

// Client is the fetching side of a chunk connection. Request methods are safe
// for concurrent use; outcomes arrive through callbacks on the client's
// single delivery goroutine. When the connection dies, every pending request
// fails exactly once.
type Client struct {
	conn   *transport.Conn
	logger *zap.Logger

	wmu sync.Mutex // serializes frame writes

	mu       sync.Mutex // guards the pending tables and closed state
	fetches  map[fetchKey]*pendingFetch
	rpcs     map[int64]*pendingRPC
	closed   bool
	closeErr error

	requestID  atomic.Int64
	userClosed atomic.Bool
	done       chan struct{}
}

// Dial connects to addr and starts the delivery loop.
func Dial(addr string, cfg Config, logger *zap.Logger) (*Client, error) {
	nc, err := net.DialTimeout("tcp", addr, cfg.connectTimeout())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return NewClient(nc, cfg, logger), nil
}

// NewClient wraps an established connection and starts the delivery loop.
// A nil logger disables logging.
func NewClient(nc net.Conn, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		conn:    transport.NewConn(nc, cfg.MaxFrameSize, cfg.ReadBufferSize, cfg.WriteBufferSize),
		logger:  logger.With(zap.String("remote", nc.RemoteAddr().String())),
		fetches: make(map[fetchKey]*pendingFetch),
		rpcs:    make(map[int64]*pendingRPC),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	if hb := cfg.heartbeatInterval(); hb > 0 {
		go c.heartbeatLoop(hb)
	}
	return c
}

// FetchChunk requests one chunk slice. The outcome is always delivered
// through cb, never as a return value; a request that cannot even be sent
// fails the callback on the calling goroutine. At most one fetch per
// (streamID, chunkIndex) may be in flight.
func (c *Client) FetchChunk(streamID int64, chunkIndex int32, hint RangeHint, cb ChunkCallback) {
	key := fetchKey{streamID: streamID, chunkIndex: chunkIndex}

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		cb.OnFailure(chunkIndex, err)
		return
	}
	if _, ok := c.fetches[key]; ok {
		c.mu.Unlock()
		cb.OnFailure(chunkIndex, errors.Wrapf(ErrDuplicateFetch, "stream %d chunk %d", streamID, chunkIndex))
		return
	}
	c.fetches[key] = &pendingFetch{cb: cb, sentAt: time.Now()}
	c.mu.Unlock()

	req := &transport.ChunkFetchRequest{Slice: transport.StreamChunkSlice{
		StreamID:   streamID,
		ChunkIndex: chunkIndex,
		Offset:     hint.Offset,
		Len:        hint.Len,
	}}
	if err := c.writeFrame(req); err != nil {
		// The entry may already be gone when the read loop failed everything
		// concurrently; only the goroutine that removes it reports.
		if c.takeFetch(key) != nil {
			cb.OnFailure(chunkIndex, errors.Wrap(err, "send chunk fetch request"))
		}
	}
}

// SendRPC sends an opaque request body and delivers the paired response
// through cb.
func (c *Client) SendRPC(body []byte, cb RPCCallback) {
	id := c.requestID.Inc()

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		cb.OnFailure(err)
		return
	}
	c.rpcs[id] = &pendingRPC{cb: cb, sentAt: time.Now()}
	c.mu.Unlock()

	if err := c.writeFrame(&transport.RPCRequest{RequestID: id, Body: body}); err != nil {
		if c.takeRPC(id) != nil {
			cb.OnFailure(errors.Wrap(err, "send rpc request"))
		}
	}
}

// SendOneWay sends a message that expects no response.
func (c *Client) SendOneWay(body []byte) error {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	return c.writeFrame(&transport.OneWay{Body: body})
}

// Stats returns the total bytes read and written on the connection.
func (c *Client) Stats() (bytesRead, bytesWritten uint64) {
	return c.conn.BytesRead(), c.conn.BytesWritten()
}

// Close tears the connection down. Pending requests fail with
// ErrClientClosed; Close does not wait for their callbacks to run.
func (c *Client) Close() error {
	c.userClosed.Store(true)
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			c.failAll(err)
			return
		}
		c.handleFrame(f)
	}
}

func (c *Client) handleFrame(f transport.Frame) {
	switch m := f.(type) {
	case *transport.ChunkFetchSuccess:
		p := c.takeFetch(fetchKey{streamID: m.StreamID, chunkIndex: m.ChunkIndex})
		if p == nil {
			c.logger.Warn("dropping chunk fetch success with no pending request",
				zap.Int64("streamID", m.StreamID),
				zap.Int32("chunkIndex", m.ChunkIndex))
			m.Body.Release()
			return
		}
		p.cb.OnSuccess(m.ChunkIndex, m.Body)

	case *transport.ChunkFetchFailure:
		p := c.takeFetch(fetchKey{streamID: m.StreamID, chunkIndex: m.ChunkIndex})
		if p == nil {
			c.logger.Warn("dropping chunk fetch failure with no pending request",
				zap.Int64("streamID", m.StreamID),
				zap.Int32("chunkIndex", m.ChunkIndex))
			return
		}
		p.cb.OnFailure(m.ChunkIndex, errors.Mark(errors.Newf("remote: %s", m.Error), ErrFetchFailed))

	case *transport.RPCResponse:
		p := c.takeRPC(m.RequestID)
		if p == nil {
			c.logger.Warn("dropping rpc response with no pending request",
				zap.Int64("requestID", m.RequestID))
			return
		}
		p.cb.OnSuccess(m.Body)

	case *transport.RPCFailure:
		p := c.takeRPC(m.RequestID)
		if p == nil {
			c.logger.Warn("dropping rpc failure with no pending request",
				zap.Int64("requestID", m.RequestID))
			return
		}
		p.cb.OnFailure(errors.Mark(errors.Newf("remote: %s", m.Error), ErrRPCFailed))

	case *transport.Heartbeat:
		// idle keepalive, nothing to deliver

	default:
		c.logger.Warn("dropping unexpected frame", zap.Stringer("type", f.Type()))
	}
}

// failAll marks the client closed and fails every pending request exactly
// once. Later requests fail immediately with the stored error.
func (c *Client) failAll(cause error) {
	failErr := errors.Mark(errors.Wrap(cause, "connection failed"), ErrConnectionFailed)
	if c.userClosed.Load() {
		failErr = ErrClientClosed
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = failErr
	fetches := c.fetches
	rpcs := c.rpcs
	c.fetches = nil
	c.rpcs = nil
	c.mu.Unlock()

	c.logger.Info("connection closed",
		zap.Uint64("bytesRead", c.conn.BytesRead()),
		zap.Uint64("bytesWritten", c.conn.BytesWritten()),
		zap.Int("pendingFetches", len(fetches)),
		zap.Int("pendingRPCs", len(rpcs)),
		zap.Error(cause))

	for key, p := range fetches {
		c.logger.Warn("failing pending chunk fetch",
			zap.Int64("streamID", key.streamID),
			zap.Int32("chunkIndex", key.chunkIndex),
			zap.Duration("elapsed", time.Since(p.sentAt)))
		p.cb.OnFailure(key.chunkIndex, failErr)
	}
	for id, p := range rpcs {
		c.logger.Warn("failing pending rpc",
			zap.Int64("requestID", id),
			zap.Duration("elapsed", time.Since(p.sentAt)))
		p.cb.OnFailure(failErr)
	}
	close(c.done)
}

// takeFetch removes and returns the pending fetch for key, nil when absent.
func (c *Client) takeFetch(key fetchKey) *pendingFetch {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.fetches[key]
	if !ok {
		return nil
	}
	delete(c.fetches, key)
	return p
}

// takeRPC removes and returns the pending rpc for id, nil when absent.
func (c *Client) takeRPC(id int64) *pendingRPC {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.rpcs[id]
	if !ok {
		return nil
	}
	delete(c.rpcs, id)
	return p
}

func (c *Client) writeFrame(f transport.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteFrame(f)
}

func (c *Client) heartbeatLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.writeFrame(&transport.Heartbeat{}); err != nil {
				c.logger.Debug("heartbeat write failed", zap.Error(err))
				return
			}
		}
	}
}
