package transport

import (
	"bufio"
	"io"

	"go.uber.org/atomic"
)

// meteredConn buffers a connection and meters all bytes read and written.
// Counters are atomic so stats can be read while the loops are running.
type meteredConn struct {
	*bufio.ReadWriter
	raw          io.ReadWriter
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// newMeteredConn creates a new metered connection
func newMeteredConn(rw io.ReadWriter, readSize, writeSize int) *meteredConn {
	return &meteredConn{
		ReadWriter: bufio.NewReadWriter(
			bufio.NewReaderSize(rw, readSize),
			bufio.NewWriterSize(rw, writeSize),
		),
		raw: rw,
	}
}

// Read reads data into p and meters the bytes read
func (mc *meteredConn) Read(p []byte) (int, error) {
	n, err := mc.Reader.Read(p)
	if n > 0 {
		mc.bytesRead.Add(uint64(n))
	}
	return n, err
}

// ReadByte reads a single byte and meters it
func (mc *meteredConn) ReadByte() (byte, error) {
	b, err := mc.Reader.ReadByte()
	if err == nil {
		mc.bytesRead.Add(1)
	}
	return b, err
}

// Write writes data from p and meters the bytes written
func (mc *meteredConn) Write(p []byte) (int, error) {
	n, err := mc.Writer.Write(p)
	if n > 0 {
		mc.bytesWritten.Add(uint64(n))
	}
	return n, err
}

// WriteByte writes a single byte and meters it
func (mc *meteredConn) WriteByte(c byte) error {
	err := mc.Writer.WriteByte(c)
	if err == nil {
		mc.bytesWritten.Add(1)
	}
	return err
}

// Flush flushes the write buffer
func (mc *meteredConn) Flush() error {
	return mc.Writer.Flush()
}

// writeDirect flushes buffered output and streams src straight to the
// underlying connection. File-backed payloads skip the write buffer this way
// and can ride the kernel copy path.
func (mc *meteredConn) writeDirect(src io.WriterTo) (int64, error) {
	if err := mc.Writer.Flush(); err != nil {
		return 0, err
	}
	n, err := src.WriteTo(mc.raw)
	if n > 0 {
		mc.bytesWritten.Add(uint64(n))
	}
	return n, err
}

// BytesRead returns the total number of bytes read
func (mc *meteredConn) BytesRead() uint64 {
	return mc.bytesRead.Load()
}

// BytesWritten returns the total number of bytes written
func (mc *meteredConn) BytesWritten() uint64 {
	return mc.bytesWritten.Load()
}
