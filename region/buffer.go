package region

import (
	cerrors "github.com/cockroachdb/errors"
)

// Buffer is a Region over an ordinary in-process byte slice. There is no
// persistent media behind it, so the durability hints in MemFlags are
// accepted and ignored. It is primarily useful for tests and for running
// mover-based code against volatile memory.
type Buffer struct {
	data []byte
}

var _ Region = (*Buffer)(nil)

// NewBuffer creates a Buffer region of the requested size in bytes.
func NewBuffer(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, cerrors.Newf("buffer region size must be positive, not %d", size)
	}

	return &Buffer{data: make([]byte, size)}, nil
}

// Bytes exposes the region's backing memory.
func (b *Buffer) Bytes() []byte { return b.data }

// Size returns the region size in bytes.
func (b *Buffer) Size() int { return len(b.data) }

func (b *Buffer) MemcpyFn() CopyFunc { return volatileCopy }

func (b *Buffer) MemmoveFn() CopyFunc { return volatileCopy }

// volatileCopy serves both the memcpy and memmove slots: the builtin copy
// has memmove semantics, which also satisfies memcpy's weaker
// non-overlapping contract.
func volatileCopy(dest, src []byte, flags MemFlags) {
	copy(dest, src)
}
