package transport

import (
	"net"
)

// Conn is a framed protocol endpoint over a single network connection.
// ReadFrame and WriteFrame are each safe for one goroutine at a time;
// concurrent writers must serialize externally.
type Conn struct {
	netConn net.Conn
	conn    *meteredConn
	reader  *Reader
	writer  *Writer
}

// NewConn wraps nc with buffering, byte metering and the frame codecs.
// maxFrameSize bounds frames in both directions; zero falls back to
// DefaultMaxFrameSize, non-positive buffer sizes to DefaultBufferSize.
func NewConn(nc net.Conn, maxFrameSize uint32, readSize, writeSize int) *Conn {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	if readSize <= 0 {
		readSize = DefaultBufferSize
	}
	if writeSize <= 0 {
		writeSize = DefaultBufferSize
	}

	mc := newMeteredConn(nc, readSize, writeSize)
	return &Conn{
		netConn: nc,
		conn:    mc,
		reader:  NewReader(mc, maxFrameSize),
		writer:  NewWriter(mc, maxFrameSize),
	}
}

// ReadFrame reads the next frame.
func (c *Conn) ReadFrame() (Frame, error) {
	return c.reader.ReadFrame()
}

// WriteFrame writes a frame with automatic flush.
func (c *Conn) WriteFrame(f Frame) error {
	return c.writer.WriteFrame(f)
}

// BytesRead returns the total number of bytes read from the connection.
func (c *Conn) BytesRead() uint64 {
	return c.conn.BytesRead()
}

// BytesWritten returns the total number of bytes written to the connection.
func (c *Conn) BytesWritten() uint64 {
	return c.conn.BytesWritten()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.netConn.Close()
}
