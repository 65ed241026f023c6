// Package mover provides the default virtual data mover: a backend that
// performs durable copy and move operations on the calling goroutine,
// immediately, while exposing them through the same future protocol that
// offload backends use. Callers driving a future cannot tell whether the
// transfer was performed in place or handed to an engine, except that this
// backend's futures are always complete by the time the first poll returns.
package mover

import (
	"fmt"
	"sync/atomic"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"

	"github.com/pmemkit/pmover/membuf"
	"github.com/pmemkit/pmover/region"
	"github.com/pmemkit/pmover/vdm"
)

// Options contains optional settings when creating a DataMover. The zero
// value is fully usable.
type Options struct {
	// MaxOperations caps the number of concurrently outstanding operations.
	// 0 means the operation arena grows without bound.
	MaxOperations int
	// ChunkOperations is the number of operation slots carved from each
	// backing chunk of the arena. Must be a power of two; 0 takes the arena
	// default.
	ChunkOperations int
}

// syncOperation is the per-operation state of the synchronous backend. The
// completion flag is the single synchronization point between the goroutine
// that ran OperationStart and any goroutine later checking or deleting the
// operation: it is published with a release store and observed with an
// acquire load, so an observed completion guarantees the transferred bytes
// are visible.
type syncOperation struct {
	complete uint32
}

// DataMover is the synchronous mover backend, bound to one region for the
// durable copy primitives and owning one operation arena. It must outlive
// every operation it has created.
type DataMover struct {
	logger *slog.Logger
	region region.Region
	ops    *membuf.Arena[syncOperation]
}

var _ vdm.Mover = (*DataMover)(nil)

// New creates a synchronous data mover bound to r.
//
// logger - may be nil, in which case slog.Default() is used
//
// r - the region whose copy primitives the mover will use
//
// options - optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, r region.Region, options Options) (*DataMover, error) {
	if r == nil {
		return nil, cerrors.New("a data mover requires a region to copy into")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mover := &DataMover{
		logger: logger,
		region: r,
	}

	ops, err := membuf.New[syncOperation](mover, membuf.Options{
		ChunkSlots: options.ChunkOperations,
		MaxSlots:   options.MaxOperations,
		Logger:     logger,
	})
	if err != nil {
		return nil, cerrors.Wrap(err, "creating operation arena")
	}
	mover.ops = ops

	return mover, nil
}

// Delete destroys the mover's operation arena and releases the mover.
// Deleting a mover while operations are still outstanding is a contract
// violation, enforced by the arena.
func (m *DataMover) Delete() {
	m.ops.Destroy()
	m.region = nil
}

// OutstandingOperations returns the number of operations created and not yet
// deleted.
func (m *DataMover) OutstandingOperations() int {
	return m.ops.Outstanding()
}

// OperationNew obtains a slot for one operation's state. The slot arrives
// zeroed, so the completion flag starts false without an atomic store: the
// slot is not visible to any other goroutine yet.
func (m *DataMover) OperationNew(kind vdm.OperationKind) (vdm.OperationHandle, error) {
	slot, err := m.ops.Alloc()
	if err != nil {
		return nil, cerrors.Wrapf(err, "allocating state for a %s operation", kind)
	}
	return slot, nil
}

// OperationStart performs the requested transfer on the calling goroutine
// using the bound region's durable primitives, then publishes completion
// with a release store. The notifier always reports NotifierNone: drivers
// poll OperationCheck, which for this backend reports completion on the
// first call after OperationStart returns.
func (m *DataMover) OperationStart(handle vdm.OperationHandle, op *vdm.Operation, notifier *vdm.Notifier) error {
	slot := handle.(*membuf.Slot[syncOperation])
	if notifier != nil {
		notifier.Used = vdm.NotifierNone
	}

	// Backend callbacks receive only the operation state; the owning mover
	// (and through it the region) is recovered from the slot.
	owner := slot.Owner().(*DataMover)

	dest := op.Dest[:op.Length]
	src := op.Src[:op.Length]
	flags := op.Flags | region.MemNonTemporal

	switch op.Kind {
	case vdm.OperationMemcpy:
		owner.region.MemcpyFn()(dest, src, flags)
	case vdm.OperationMemmove:
		owner.region.MemmoveFn()(dest, src, flags)
	default:
		panic(fmt.Sprintf("unsupported operation kind %d", op.Kind))
	}

	m.logger.Debug("operation performed",
		slog.String("kind", op.Kind.String()),
		slog.Int("length", op.Length))

	atomic.StoreUint32(&slot.Value().complete, 1)
	return nil
}

// OperationCheck reports FutureComplete if and only if the completion flag
// has been set. The atomic load has acquire semantics, pairing with the
// release store in OperationStart.
func (m *DataMover) OperationCheck(handle vdm.OperationHandle) vdm.FutureState {
	slot := handle.(*membuf.Slot[syncOperation])
	if atomic.LoadUint32(&slot.Value().complete) != 0 {
		return vdm.FutureComplete
	}
	return vdm.FutureIdle
}

// OperationDelete builds the output descriptor for a completed operation and
// returns its slot to the arena. Deleting an operation whose completion has
// not been observed is a contract violation.
func (m *DataMover) OperationDelete(handle vdm.OperationHandle, op *vdm.Operation) vdm.OperationOutput {
	slot := handle.(*membuf.Slot[syncOperation])
	if atomic.LoadUint32(&slot.Value().complete) == 0 {
		panic("deleting an operation that has not completed")
	}

	output := vdm.OperationOutput{Result: vdm.ResultSuccess}
	switch op.Kind {
	case vdm.OperationMemcpy:
		output.Kind = vdm.OperationMemcpy
		output.Dest = op.Dest
	case vdm.OperationMemmove:
		output.Kind = vdm.OperationMemmove
		output.Dest = op.Dest
	default:
		panic(fmt.Sprintf("unsupported operation kind %d", op.Kind))
	}

	m.ops.Free(slot)
	return output
}

// BuildStatsString writes a JSON description of the mover's operation arena
// into writer.
func (m *DataMover) BuildStatsString(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	arenaObj := obj.Name("OperationArena").Object()
	m.ops.ArenaJsonData(arenaObj)
	arenaObj.End()
}
