//go:build unix

package region_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmemkit/pmover/region"
)

func TestOpenMapValidation(t *testing.T) {
	_, err := region.OpenMap(filepath.Join(t.TempDir(), "pool"), 0)
	require.Error(t, err)

	_, err = region.OpenMap(filepath.Join(t.TempDir(), "missing", "pool"), 4096)
	require.Error(t, err)
}

func TestMapDurableCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool")
	m, err := region.OpenMap(path, 8192)
	require.NoError(t, err)
	require.Equal(t, 8192, m.Size())

	src := make([]byte, 4096)
	for i := range src {
		src[i] = byte(i % 251)
	}

	m.MemcpyFn()(m.Bytes()[4096:], src, region.MemNonTemporal)
	require.Equal(t, src, m.Bytes()[4096:])

	require.NoError(t, m.Close())

	// The copy must have reached the backing file.
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, src, contents[4096:])
}

func TestMapPersistRange(t *testing.T) {
	m, err := region.OpenMap(filepath.Join(t.TempDir(), "pool"), 4096)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, m.Close())
	}()

	copy(m.Bytes()[100:], []byte("durable"))
	require.NoError(t, m.Persist(100, 7))
	require.NoError(t, m.Persist(0, 0))

	require.Error(t, m.Persist(-1, 10))
	require.Error(t, m.Persist(4090, 100))
}

func TestMapPersistUnalignedTail(t *testing.T) {
	// A mapping that is not a page multiple: the flushed range's end rounds
	// up to a page boundary but must never run past the mapping.
	m, err := region.OpenMap(filepath.Join(t.TempDir(), "pool"), 1000)
	require.NoError(t, err)

	copy(m.Bytes()[990:], []byte("tail"))
	require.NoError(t, m.Persist(990, 10))
	require.NoError(t, m.Close())
}

func TestMapCopyOutsideMapping(t *testing.T) {
	m, err := region.OpenMap(filepath.Join(t.TempDir(), "pool"), 4096)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, m.Close())
	}()

	// Destination on the heap: the copy happens, there is just nothing to
	// persist.
	dest := make([]byte, 16)
	m.MemcpyFn()(dest, m.Bytes()[:16], region.MemNonTemporal)
	require.Equal(t, m.Bytes()[:16], dest)
}
