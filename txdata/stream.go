// Package txdata implements the streaming transaction-data assembler of
// spec.md §4.5: getTxData concurrently resolves a transaction's data root
// and (offset, size), then streams its payload by pulling sequential
// chunks through a read-through cache keyed by (dataRoot, relativeOffset).
//
// The chunk fetcher's network protocol is out of scope (spec.md §1); only
// its interface -- ChunkSource -- is consumed here, matching the teacher's
// practice of depending on narrow interfaces (e.g. fragment.Store) owned by
// the caller rather than reaching into a concrete transport.
package txdata

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ChainSource resolves the two chain-side facts getTxData needs about a
// transaction: its content data root, and its (offset, size) within the
// weave. Implementations typically delegate to a coreindex.Index.
type ChainSource interface {
	GetDataRoot(ctx context.Context, txID []byte) ([]byte, error)
	GetOffsetAndSize(ctx context.Context, txID []byte) (offset int64, size int64, err error)
}

// ChunkRequest identifies one chunk of a transaction's payload, spec.md
// §4.5: txSize and dataRoot are content-addressed (shared by every request
// against the same transaction), relativeOffset is the cache key's second
// half, and absoluteOffset is the tx-instance-specific weave position the
// underlying source actually fetches by.
type ChunkRequest struct {
	TxSize         int64
	AbsoluteOffset int64
	DataRoot       []byte
	RelativeOffset int64
}

// ChunkSource fetches one chunk of transaction payload by absolute weave
// offset. It is the network-facing collaborator spec.md §1 places out of
// scope; only this interface is consumed.
type ChunkSource interface {
	GetChunk(ctx context.Context, req ChunkRequest) ([]byte, error)
}

// Data is the result of GetTxData: an ordered byte stream of the
// transaction's payload, and its total size (spec.md §4.5, "getTxData(txId)
// returns {stream, size}").
type Data struct {
	Stream io.ReadCloser
	Size   int64
}

// Assembler resolves and streams transaction payloads, per spec.md §4.5.
type Assembler struct {
	chain  ChainSource
	chunks ChunkSource
}

// New builds an Assembler over chain (resolving data root/offset/size) and
// chunks (fetching payload chunks, typically a *Cache wrapping the
// network-facing chunk fetcher).
func New(chain ChainSource, chunks ChunkSource) *Assembler {
	return &Assembler{chain: chain, chunks: chunks}
}

// GetTxData implements spec.md §4.5: it concurrently fetches the
// transaction's data_root and (offset, size), derives startOffset =
// offset - size + 1, and returns a stream whose Read pulls the next chunk
// only after the previous one has been fully delivered -- "ordering is
// strict: chunk N+1 is requested only after chunk N is pushed".
func (a *Assembler) GetTxData(ctx context.Context, txID []byte) (Data, error) {
	var dataRoot []byte
	var offset, size int64

	var g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dataRoot, err = a.chain.GetDataRoot(gctx, txID)
		return err
	})
	g.Go(func() error {
		var err error
		offset, size, err = a.chain.GetOffsetAndSize(gctx, txID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Data{}, errors.WithMessage(err, "resolving transaction data root/offset/size")
	}

	var startOffset = offset - size + 1
	return Data{
		Stream: &chunkStream{
			ctx: ctx, chunks: a.chunks,
			dataRoot: dataRoot, txSize: size, startOffset: startOffset,
		},
		Size: size,
	}, nil
}

// chunkStream is the io.ReadCloser spec.md §4.5 describes: each Read call
// that drains the current buffer pulls exactly one more chunk, identified
// by the bytes already delivered (bytesRead), until bytesRead >= txSize.
// A fetch failure destroys the stream with the underlying error, per
// spec.md §4.5 ("Any fetch failure destroys the stream with the underlying
// error").
type chunkStream struct {
	ctx    context.Context
	chunks ChunkSource

	dataRoot    []byte
	txSize      int64
	startOffset int64

	bytesRead int64
	buf       []byte
	err       error
}

func (s *chunkStream) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	for len(s.buf) == 0 {
		if s.bytesRead >= s.txSize {
			return 0, io.EOF
		}
		var chunk, err = s.chunks.GetChunk(s.ctx, ChunkRequest{
			TxSize:         s.txSize,
			AbsoluteOffset: s.startOffset + s.bytesRead,
			DataRoot:       s.dataRoot,
			RelativeOffset: s.bytesRead,
		})
		if err != nil {
			s.err = errors.WithMessage(err, "fetching transaction chunk")
			return 0, s.err
		}
		s.bytesRead += int64(len(chunk))
		s.buf = chunk
		if len(chunk) == 0 {
			// A well-behaved source never returns an empty chunk before
			// bytesRead reaches txSize; guard against spinning forever.
			s.err = errors.New("txdata: chunk source returned an empty chunk")
			return 0, s.err
		}
	}
	var n = copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *chunkStream) Close() error { return nil }
