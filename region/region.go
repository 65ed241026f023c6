// Package region provides the memory-region surface consumed by the data
// mover: a Region hands out the durable copy primitives appropriate for the
// memory backing it. Two implementations are included, a heap-backed Buffer
// for volatile use and tests, and a file-backed Map for persistent memory.
package region

// CopyFunc copies len(src) bytes from src into dest and makes the write
// durable according to flags. Implementations select the copy strategy for
// the memory backing the region; callers must ensure len(dest) >= len(src).
type CopyFunc func(dest, src []byte, flags MemFlags)

// Region is a mapped memory region that can provide durable copy primitives.
// The copy function returned by MemcpyFn requires that dest and src do not
// overlap; the one returned by MemmoveFn relocates bytes correctly even when
// they do.
type Region interface {
	MemcpyFn() CopyFunc
	MemmoveFn() CopyFunc
}
