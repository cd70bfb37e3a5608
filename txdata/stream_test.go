package txdata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	dataRoot      []byte
	offset, size  int64
}

func (f *fakeChain) GetDataRoot(ctx context.Context, txID []byte) ([]byte, error) { return f.dataRoot, nil }
func (f *fakeChain) GetOffsetAndSize(ctx context.Context, txID []byte) (int64, int64, error) {
	return f.offset, f.size, nil
}

// fakeChunks serves fixed-size chunks out of a byte buffer, recording the
// absolute and relative offsets it was asked for in request order -- used
// to assert strict sequential ordering (spec.md §4.5).
type fakeChunks struct {
	payload   []byte
	chunkSize int64
	requests  []ChunkRequest
}

func (f *fakeChunks) GetChunk(ctx context.Context, req ChunkRequest) ([]byte, error) {
	f.requests = append(f.requests, req)
	var end = req.RelativeOffset + f.chunkSize
	if end > int64(len(f.payload)) {
		end = int64(len(f.payload))
	}
	if req.RelativeOffset >= int64(len(f.payload)) {
		return nil, nil
	}
	return f.payload[req.RelativeOffset:end], nil
}

func TestGetTxDataStreamLengthMatchesSize(t *testing.T) {
	var payload = bytes.Repeat([]byte("ab"), 100) // 200 bytes
	var chunks = &fakeChunks{payload: payload, chunkSize: 17}
	var chain = &fakeChain{dataRoot: []byte("root"), offset: 999, size: int64(len(payload))}

	var asm = New(chain, chunks)
	var data, err = asm.GetTxData(context.Background(), []byte("tx"))
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), data.Size)

	var got, rerr = io.ReadAll(data.Stream)
	require.NoError(t, rerr)
	require.Equal(t, payload, got)
	require.EqualValues(t, len(payload), len(got))
}

func TestGetTxDataRequestsChunksInStrictOrder(t *testing.T) {
	var payload = bytes.Repeat([]byte("x"), 50)
	var chunks = &fakeChunks{payload: payload, chunkSize: 9}
	var chain = &fakeChain{dataRoot: []byte("root"), offset: 1000, size: int64(len(payload))}

	var asm = New(chain, chunks)
	var data, err = asm.GetTxData(context.Background(), []byte("tx"))
	require.NoError(t, err)

	var _, rerr = io.ReadAll(data.Stream)
	require.NoError(t, rerr)

	var wantStart = chain.offset - chain.size + 1
	for i, req := range chunks.requests {
		require.Equal(t, int64(i)*9, req.RelativeOffset)
		require.Equal(t, wantStart+int64(i)*9, req.AbsoluteOffset)
	}
}

type erroringChunks struct{ calls int32 }

func (e *erroringChunks) GetChunk(ctx context.Context, req ChunkRequest) ([]byte, error) {
	atomic.AddInt32(&e.calls, 1)
	return nil, errors.New("network unavailable")
}

func TestGetTxDataFetchFailureDestroysStream(t *testing.T) {
	var chain = &fakeChain{dataRoot: []byte("root"), offset: 100, size: 10}
	var asm = New(chain, &erroringChunks{})
	var data, err = asm.GetTxData(context.Background(), []byte("tx"))
	require.NoError(t, err)

	var buf = make([]byte, 4)
	var _, rerr = data.Stream.Read(buf)
	require.Error(t, rerr)
}

type failingChainSource struct{}

func (failingChainSource) GetDataRoot(ctx context.Context, txID []byte) ([]byte, error) {
	return nil, errors.New("chain lookup failed")
}
func (failingChainSource) GetOffsetAndSize(ctx context.Context, txID []byte) (int64, int64, error) {
	return 0, 0, nil
}

func TestGetTxDataChainLookupFailurePropagates(t *testing.T) {
	var asm = New(failingChainSource{}, &fakeChunks{})
	var _, err = asm.GetTxData(context.Background(), []byte("tx"))
	require.Error(t, err)
}
