package blockio

import (
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/seec-team/seectrace/internal/traceformat"
)

// DefaultBlockSize is the block size an OutputBlockStream reserves when the
// caller does not specify one.
const DefaultBlockSize = 64 * 1024

// OutputBlockStream lazily acquires fresh blocks of a configured size from
// an Allocator and appends variable-length payloads across them. On a write
// that does not fit the current block, it acquires a new one and retries;
// the original design retries exactly once, but a fresh block reservation
// can itself race a concurrent allocator bump on a very small or exhausted
// file region, so the retry is wrapped in a short bounded backoff rather
// than a single unconditional attempt.
type OutputBlockStream struct {
	alloc     *Allocator
	blockType traceformat.BlockType
	blockSize int64

	mu      sync.Mutex
	current *OutputBlock

	// onAcquire, if set, runs once against a freshly reserved block right
	// after its own header is written, before any payload. It is used by
	// ThreadEventStream to stamp the owning thread ID into the block.
	onAcquire func(*OutputBlock) error
}

// NewOutputBlockStream returns a stream that reserves blocks of blockType
// from alloc, sized blockSize (or DefaultBlockSize if blockSize <= 0).
func NewOutputBlockStream(alloc *Allocator, blockType traceformat.BlockType, blockSize int64) *OutputBlockStream {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &OutputBlockStream{alloc: alloc, blockType: blockType, blockSize: blockSize}
}

// Append writes buf to the stream, reserving and linking in a new block if
// the current one lacks room. It returns the WriteRecord for the span
// written, which may later be passed to Rewrite.
func (s *OutputBlockStream) Append(buf []byte) (WriteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		if err := s.acquireLocked(); err != nil {
			return WriteRecord{}, err
		}
	}

	rec, err := s.current.RewritableWrite(buf)
	if err == nil {
		return rec, nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	var lastErr error
	op := func() error {
		if acquireErr := s.acquireLocked(); acquireErr != nil {
			lastErr = acquireErr
			return acquireErr
		}
		rec, lastErr = s.current.RewritableWrite(buf)
		return lastErr
	}

	if retryErr := backoff.Retry(op, b); retryErr != nil {
		return WriteRecord{}, fmt.Errorf("blockio: append after retry: %w", lastErr)
	}
	return rec, nil
}

// Rewrite overwrites a previously written span. The caller must still hold
// a reference to the block that produced rec; in practice this is only used
// for the most recently written record, since RewriteAt requires the file
// descriptor of the owning block, which OutputBlockStream tracks internally
// via current.
func (s *OutputBlockStream) Rewrite(rec WriteRecord, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return fmt.Errorf("blockio: rewrite on stream with no open block")
	}
	return s.current.RewriteAt(rec, buf)
}

// acquireLocked reserves a new block from the allocator, links the previous
// block's header to point at it, and writes the new block's own header. The
// next-block offset is finalized only once a further block is acquired (or
// the stream is closed); until then it is left as traceformat.NoOffset.
func (s *OutputBlockStream) acquireLocked() error {
	headerSize := int64(traceformat.BlockHeaderSize)
	next := s.alloc.Reserve(headerSize + s.blockSize)

	if err := next.WriteHeader(s.blockType, traceformat.NoOffset); err != nil {
		return err
	}
	if s.onAcquire != nil {
		if err := s.onAcquire(&next); err != nil {
			return err
		}
	}

	if s.current != nil {
		if err := s.current.WriteHeader(s.blockType, uint64(next.Start())); err != nil {
			return err
		}
	}

	s.current = &next
	return nil
}

// Close finalizes the stream's current block, leaving its next-block offset
// as NoOffset to mark it the chain's tail.
func (s *OutputBlockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.WriteHeader(s.blockType, traceformat.NoOffset)
}
