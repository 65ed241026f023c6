//go:build unix

package region

import (
	"fmt"
	"os"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/pmemkit/pmover/memutils"
)

// Map is a Region backed by a file mapped into the process with mmap. Copies
// issued through its copy functions are made durable with msync, which is
// the portable stand-in for the non-temporal store + drain sequence a
// DAX-capable platform would use.
type Map struct {
	file     *os.File
	data     []byte
	pageSize uint
}

var _ Region = (*Map)(nil)

// OpenMap opens (creating if necessary) the file at path, sizes it to size
// bytes, and maps it read-write into the process.
func OpenMap(path string, size int) (*Map, error) {
	if size <= 0 {
		return nil, cerrors.Newf("mapped region size must be positive, not %d", size)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, cerrors.Wrapf(err, "opening region file %s", path)
	}

	if err = file.Truncate(int64(size)); err != nil {
		_ = file.Close()
		return nil, cerrors.Wrapf(err, "sizing region file %s to %d bytes", path, size)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, cerrors.Wrapf(err, "mapping region file %s", path)
	}

	return &Map{
		file:     file,
		data:     data,
		pageSize: uint(os.Getpagesize()),
	}, nil
}

// Bytes exposes the mapped memory. Slices taken from it remain valid until
// Close.
func (m *Map) Bytes() []byte { return m.data }

// Size returns the mapping size in bytes.
func (m *Map) Size() int { return len(m.data) }

// Persist flushes length bytes of the mapping starting at offset to the
// backing media.
func (m *Map) Persist(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(m.data) {
		return cerrors.Newf("persist range [%d, %d) outside mapping of %d bytes", offset, offset+length, len(m.data))
	}
	if length == 0 {
		return nil
	}

	// msync demands a page-aligned start address; round the end up to a page
	// boundary too, without running past the mapping.
	start := memutils.AlignDown(offset, m.pageSize)
	end := memutils.AlignUp(offset+length, m.pageSize)
	if end > len(m.data) {
		end = len(m.data)
	}
	return unix.Msync(m.data[start:end], unix.MS_SYNC)
}

// Close unmaps the region and closes the backing file. Slices previously
// returned from Bytes must not be touched afterwards.
func (m *Map) Close() error {
	var firstErr error
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = cerrors.Wrap(err, "unmapping region")
		}
		m.data = nil
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil && firstErr == nil {
			firstErr = cerrors.Wrap(err, "closing region file")
		}
		m.file = nil
	}
	return firstErr
}

func (m *Map) MemcpyFn() CopyFunc { return m.durableCopy }

func (m *Map) MemmoveFn() CopyFunc { return m.durableCopy }

// durableCopy serves both the memcpy and memmove slots: the builtin copy has
// memmove semantics, which also satisfies memcpy's weaker non-overlapping
// contract. MemNoFlush skips the msync; MemNoDrain has no msync-level
// equivalent and is accepted without effect.
func (m *Map) durableCopy(dest, src []byte, flags MemFlags) {
	n := copy(dest, src)
	if n == 0 || flags&MemNoFlush != 0 {
		return
	}

	offset, ok := m.offsetOf(dest[:n])
	if !ok {
		// Destination lives outside this mapping; there is no persistent
		// media behind it to flush.
		return
	}

	if err := m.Persist(offset, n); err != nil {
		panic(fmt.Sprintf("failed to persist %d bytes at offset %d: %+v", n, offset, err))
	}
}

// offsetOf locates buf within the mapping, or reports false if buf is not a
// subslice of it.
func (m *Map) offsetOf(buf []byte) (int, bool) {
	if len(m.data) == 0 || len(buf) == 0 {
		return 0, false
	}

	base := uintptr(unsafe.Pointer(&m.data[0]))
	ptr := uintptr(unsafe.Pointer(&buf[0]))
	if ptr < base || ptr+uintptr(len(buf)) > base+uintptr(len(m.data)) {
		return 0, false
	}

	return int(ptr - base), true
}
