package blockio

import (
	"encoding/binary"
	"fmt"

	"github.com/seec-team/seectrace/internal/traceformat"
)

// threadHeaderExtra is the number of extra bytes a ThreadEventStream's block
// header carries beyond the common 9-byte header: the owning thread's ID.
const threadHeaderExtra = 4

// ThreadEventStream is a per-thread OutputBlockStream whose blocks
// additionally record the owning thread's ID immediately after the common
// block header, so a reader walking the block chain can attribute each
// ThreadEvents block without cross-referencing anything else.
type ThreadEventStream struct {
	inner    *OutputBlockStream
	threadID uint32
}

// NewThreadEventStream returns a stream for threadID, reserving blocks of
// blockSize (or DefaultBlockSize if blockSize <= 0) from alloc.
func NewThreadEventStream(alloc *Allocator, threadID uint32, blockSize int64) *ThreadEventStream {
	stream := NewOutputBlockStream(alloc, traceformat.BlockThreadEvents, blockSize)
	stream.onAcquire = func(b *OutputBlock) error {
		var idBuf [threadHeaderExtra]byte
		binary.LittleEndian.PutUint32(idBuf[:], threadID)
		if _, err := b.Write(idBuf[:]); err != nil {
			return fmt.Errorf("blockio: write thread id header: %w", err)
		}
		return nil
	}
	return &ThreadEventStream{inner: stream, threadID: threadID}
}

// ThreadID returns the stream's owning thread ID.
func (s *ThreadEventStream) ThreadID() uint32 { return s.threadID }

// Append writes an already-encoded event record to the stream.
func (s *ThreadEventStream) Append(buf []byte) (WriteRecord, error) {
	return s.inner.Append(buf)
}

// Rewrite overwrites a previously appended record in place, used to
// back-patch a FunctionStart record once its end offset is known.
func (s *ThreadEventStream) Rewrite(rec WriteRecord, buf []byte) error {
	return s.inner.Rewrite(rec, buf)
}

// Close finalizes the stream's block chain.
func (s *ThreadEventStream) Close() error {
	return s.inner.Close()
}
