package mover

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/pmemkit/pmover/region"
	"github.com/pmemkit/pmover/vdm"
)

// CopyAsync produces a future that durably copies len(src) bytes from src
// into dest through the mover bound to this region. The buffers must not
// overlap. The synchronous backend ignores flags beyond validating them and
// always applies the non-temporal hint.
func (m *DataMover) CopyAsync(dest, src []byte, flags region.MemFlags) (*vdm.Future, error) {
	if err := flags.Validate(); err != nil {
		return nil, cerrors.Wrap(err, "creating copy future")
	}
	return vdm.Memcpy(m, dest, src, flags)
}

// MoveAsync is CopyAsync for overlapping buffers: the produced future
// relocates bytes with sequential byte-relocation semantics.
func (m *DataMover) MoveAsync(dest, src []byte, flags region.MemFlags) (*vdm.Future, error) {
	if err := flags.Validate(); err != nil {
		return nil, cerrors.Wrap(err, "creating move future")
	}
	return vdm.Memmove(m, dest, src, flags)
}
