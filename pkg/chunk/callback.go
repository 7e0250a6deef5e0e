package chunk

import "github.com/shufflekit/chunknet/pkg/chunk/buf"

// ChunkCallback receives the terminal outcome of one chunk fetch. Exactly one
// of the methods fires. Callbacks run on the client's delivery goroutine, so
// slow work should be handed off to keep other responses moving.
type ChunkCallback interface {
	// OnSuccess delivers the fetched chunk. The callback owns one reference
	// to buffer and must release it.
	OnSuccess(chunkIndex int32, buffer buf.Buffer)

	// OnFailure delivers the error that ended the fetch.
	OnFailure(chunkIndex int32, err error)
}

// ChunkCallbackFuncs adapts plain functions to ChunkCallback. A nil Success
// releases the buffer immediately; a nil Failure drops the error.
type ChunkCallbackFuncs struct {
	Success func(chunkIndex int32, buffer buf.Buffer)
	Failure func(chunkIndex int32, err error)
}

func (c ChunkCallbackFuncs) OnSuccess(chunkIndex int32, buffer buf.Buffer) {
	if c.Success == nil {
		buffer.Release()
		return
	}
	c.Success(chunkIndex, buffer)
}

func (c ChunkCallbackFuncs) OnFailure(chunkIndex int32, err error) {
	if c.Failure != nil {
		c.Failure(chunkIndex, err)
	}
}

// RPCCallback receives the terminal outcome of one rpc.
type RPCCallback interface {
	OnSuccess(body []byte)
	OnFailure(err error)
}

// RPCCallbackFuncs adapts plain functions to RPCCallback.
type RPCCallbackFuncs struct {
	Success func(body []byte)
	Failure func(err error)
}

func (c RPCCallbackFuncs) OnSuccess(body []byte) {
	if c.Success != nil {
		c.Success(body)
	}
}

func (c RPCCallbackFuncs) OnFailure(err error) {
	if c.Failure != nil {
		c.Failure(err)
	}
}
