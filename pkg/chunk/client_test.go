package chunk

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shufflekit/chunknet/pkg/chunk/buf"
	"github.com/shufflekit/chunknet/pkg/chunk/transport"
)

// testPeer is the remote end of a piped client connection. Frames the client
// sends arrive on in; tests answer through write.
type testPeer struct {
	t    *testing.T
	raw  net.Conn
	conn *transport.Conn
	in   chan transport.Frame
}

func newClientPeer(t *testing.T, cfg Config) (*Client, *testPeer) {
	t.Helper()
	clientEnd, peerEnd := net.Pipe()

	peer := &testPeer{
		t:    t,
		raw:  peerEnd,
		conn: transport.NewConn(peerEnd, cfg.MaxFrameSize, cfg.ReadBufferSize, cfg.WriteBufferSize),
		in:   make(chan transport.Frame, 16),
	}
	go func() {
		defer close(peer.in)
		for {
			f, err := peer.conn.ReadFrame()
			if err != nil {
				return
			}
			peer.in <- f
		}
	}()

	client := NewClient(clientEnd, cfg, nil)
	t.Cleanup(func() {
		_ = client.Close()
		_ = peerEnd.Close()
	})
	return client, peer
}

// expect waits for the next frame from the client and checks its type.
func (p *testPeer) expect(typ transport.Type) transport.Frame {
	p.t.Helper()
	select {
	case f, ok := <-p.in:
		require.True(p.t, ok, "peer connection closed while waiting for %s", typ)
		require.Equal(p.t, typ, f.Type())
		return f
	case <-time.After(5 * time.Second):
		p.t.Fatalf("timed out waiting for %s", typ)
		return nil
	}
}

func (p *testPeer) write(f transport.Frame) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteFrame(f))
}

type fetchOutcome struct {
	chunkIndex int32
	data       []byte
	err        error
}

// recordChunk copies delivered bodies, releases them, and reports on ch.
func recordChunk(ch chan fetchOutcome) ChunkCallback {
	return ChunkCallbackFuncs{
		Success: func(chunkIndex int32, buffer buf.Buffer) {
			data, err := buffer.Bytes()
			cp := append([]byte(nil), data...)
			buffer.Release()
			ch <- fetchOutcome{chunkIndex: chunkIndex, data: cp, err: err}
		},
		Failure: func(chunkIndex int32, err error) {
			ch <- fetchOutcome{chunkIndex: chunkIndex, err: err}
		},
	}
}

type rpcOutcome struct {
	body []byte
	err  error
}

func recordRPC(ch chan rpcOutcome) RPCCallback {
	return RPCCallbackFuncs{
		Success: func(body []byte) {
			ch <- rpcOutcome{body: append([]byte(nil), body...)}
		},
		Failure: func(err error) {
			ch <- rpcOutcome{err: err}
		},
	}
}

func waitFetch(t *testing.T, ch <-chan fetchOutcome) fetchOutcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fetch outcome")
		return fetchOutcome{}
	}
}

func waitRPC(t *testing.T, ch <-chan rpcOutcome) rpcOutcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rpc outcome")
		return rpcOutcome{}
	}
}

func TestClientFetchSuccess(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())
	ch := make(chan fetchOutcome, 1)

	client.FetchChunk(7, 3, RangeHint{Offset: 100, Len: 50}, recordChunk(ch))

	req := peer.expect(transport.TypeChunkFetchRequest).(*transport.ChunkFetchRequest)
	assert.Equal(t, transport.StreamChunkSlice{StreamID: 7, ChunkIndex: 3, Offset: 100, Len: 50}, req.Slice)

	peer.write(&transport.ChunkFetchSuccess{StreamID: 7, ChunkIndex: 3, Body: buf.NewMemory([]byte("chunk payload"))})

	o := waitFetch(t, ch)
	require.NoError(t, o.err)
	assert.Equal(t, int32(3), o.chunkIndex)
	assert.Equal(t, []byte("chunk payload"), o.data)
}

func TestClientFetchRemoteFailure(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())
	ch := make(chan fetchOutcome, 1)

	client.FetchChunk(7, 3, RangeHint{}, recordChunk(ch))
	peer.expect(transport.TypeChunkFetchRequest)
	peer.write(&transport.ChunkFetchFailure{StreamID: 7, ChunkIndex: 3, Error: "chunk 3 is gone"})

	o := waitFetch(t, ch)
	assert.ErrorIs(t, o.err, ErrFetchFailed)
	assert.ErrorContains(t, o.err, "chunk 3 is gone")
}

func TestClientDuplicateFetch(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())
	first := make(chan fetchOutcome, 1)
	second := make(chan fetchOutcome, 1)

	client.FetchChunk(1, 0, RangeHint{}, recordChunk(first))
	peer.expect(transport.TypeChunkFetchRequest)

	// Same slice while the first is still in flight fails immediately.
	client.FetchChunk(1, 0, RangeHint{}, recordChunk(second))
	o := waitFetch(t, second)
	assert.ErrorIs(t, o.err, ErrDuplicateFetch)

	peer.write(&transport.ChunkFetchSuccess{StreamID: 1, ChunkIndex: 0, Body: buf.NewMemory([]byte("a"))})
	o = waitFetch(t, first)
	require.NoError(t, o.err)

	// Completion frees the slice for a new fetch.
	retry := make(chan fetchOutcome, 1)
	client.FetchChunk(1, 0, RangeHint{}, recordChunk(retry))
	peer.expect(transport.TypeChunkFetchRequest)
	peer.write(&transport.ChunkFetchSuccess{StreamID: 1, ChunkIndex: 0, Body: buf.NewMemory([]byte("b"))})
	o = waitFetch(t, retry)
	require.NoError(t, o.err)
	assert.Equal(t, []byte("b"), o.data)
}

func TestClientUnsolicitedResponsesDropped(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())

	peer.write(&transport.ChunkFetchSuccess{StreamID: 9, ChunkIndex: 9, Body: buf.NewMemory([]byte("orphan"))})
	peer.write(&transport.RPCFailure{RequestID: 42, Error: "orphan"})

	// The connection survives and serves a normal fetch afterwards.
	ch := make(chan fetchOutcome, 1)
	client.FetchChunk(1, 0, RangeHint{}, recordChunk(ch))
	peer.expect(transport.TypeChunkFetchRequest)
	peer.write(&transport.ChunkFetchSuccess{StreamID: 1, ChunkIndex: 0, Body: buf.NewMemory([]byte("ok"))})

	o := waitFetch(t, ch)
	require.NoError(t, o.err)
	assert.Equal(t, []byte("ok"), o.data)
	assert.Empty(t, ch)
}

func TestClientConnectionDropFailsAllPending(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())
	fetches := make(chan fetchOutcome, 2)
	rpcs := make(chan rpcOutcome, 1)

	client.FetchChunk(1, 0, RangeHint{}, recordChunk(fetches))
	client.FetchChunk(1, 1, RangeHint{}, recordChunk(fetches))
	client.SendRPC([]byte("ping"), recordRPC(rpcs))
	peer.expect(transport.TypeChunkFetchRequest)
	peer.expect(transport.TypeChunkFetchRequest)
	peer.expect(transport.TypeRPCRequest)

	require.NoError(t, peer.raw.Close())

	for i := 0; i < 2; i++ {
		o := waitFetch(t, fetches)
		assert.ErrorIs(t, o.err, ErrConnectionFailed)
	}
	ro := waitRPC(t, rpcs)
	assert.ErrorIs(t, ro.err, ErrConnectionFailed)

	// Later requests fail immediately with the stored error.
	late := make(chan fetchOutcome, 1)
	client.FetchChunk(2, 0, RangeHint{}, recordChunk(late))
	o := waitFetch(t, late)
	assert.ErrorIs(t, o.err, ErrConnectionFailed)

	assert.ErrorIs(t, client.SendOneWay([]byte("x")), ErrConnectionFailed)
}

func TestClientCloseFailsPending(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())
	ch := make(chan fetchOutcome, 1)

	client.FetchChunk(1, 0, RangeHint{}, recordChunk(ch))
	peer.expect(transport.TypeChunkFetchRequest)

	require.NoError(t, client.Close())

	o := waitFetch(t, ch)
	assert.ErrorIs(t, o.err, ErrClientClosed)

	rpcCh := make(chan rpcOutcome, 1)
	client.SendRPC([]byte("late"), recordRPC(rpcCh))
	ro := waitRPC(t, rpcCh)
	assert.ErrorIs(t, ro.err, ErrClientClosed)
}

func TestClientGarbageFromPeerFailsPending(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())
	ch := make(chan fetchOutcome, 1)

	client.FetchChunk(1, 0, RangeHint{}, recordChunk(ch))
	peer.expect(transport.TypeChunkFetchRequest)

	// A frame length past the limit poisons the connection.
	_, err := peer.raw.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)

	o := waitFetch(t, ch)
	assert.ErrorIs(t, o.err, ErrConnectionFailed)
	assert.ErrorIs(t, o.err, transport.ErrFrameTooLarge)
}

func TestClientRPCRoundTrip(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())
	ch := make(chan rpcOutcome, 1)

	client.SendRPC([]byte("ping"), recordRPC(ch))
	req := peer.expect(transport.TypeRPCRequest).(*transport.RPCRequest)
	assert.Equal(t, int64(1), req.RequestID)
	assert.Equal(t, []byte("ping"), req.Body)

	peer.write(&transport.RPCResponse{RequestID: req.RequestID, Body: []byte("pong")})
	o := waitRPC(t, ch)
	require.NoError(t, o.err)
	assert.Equal(t, []byte("pong"), o.body)

	// Request ids are issued sequentially.
	client.SendRPC([]byte("again"), recordRPC(ch))
	req = peer.expect(transport.TypeRPCRequest).(*transport.RPCRequest)
	assert.Equal(t, int64(2), req.RequestID)
	peer.write(&transport.RPCResponse{RequestID: req.RequestID})
	o = waitRPC(t, ch)
	require.NoError(t, o.err)
}

func TestClientRPCRemoteFailure(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())
	ch := make(chan rpcOutcome, 1)

	client.SendRPC([]byte("ping"), recordRPC(ch))
	req := peer.expect(transport.TypeRPCRequest).(*transport.RPCRequest)
	peer.write(&transport.RPCFailure{RequestID: req.RequestID, Error: "handler exploded"})

	o := waitRPC(t, ch)
	assert.ErrorIs(t, o.err, ErrRPCFailed)
	assert.ErrorContains(t, o.err, "handler exploded")
}

func TestClientSendOneWay(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())

	require.NoError(t, client.SendOneWay([]byte("fire and forget")))
	msg := peer.expect(transport.TypeOneWay).(*transport.OneWay)
	assert.Equal(t, []byte("fire and forget"), msg.Body)
}

func TestClientHeartbeat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatIntervalMs = 10

	_, peer := newClientPeer(t, cfg)
	peer.expect(transport.TypeHeartbeat)
}

func TestClientStats(t *testing.T) {
	client, peer := newClientPeer(t, DefaultConfig())
	ch := make(chan fetchOutcome, 1)

	client.FetchChunk(1, 0, RangeHint{}, recordChunk(ch))
	peer.expect(transport.TypeChunkFetchRequest)
	peer.write(&transport.ChunkFetchSuccess{StreamID: 1, ChunkIndex: 0, Body: buf.NewMemory([]byte("stats"))})
	waitFetch(t, ch)

	bytesRead, bytesWritten := client.Stats()
	assert.NotZero(t, bytesRead)
	assert.NotZero(t, bytesWritten)
}
