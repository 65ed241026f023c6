package vdm

import (
	"github.com/pmemkit/pmover/region"
)

// Operation describes one durable copy or move. It is the value passed
// through the protocol from the future handle to the backend; the backend
// does not retain it past the call it was passed to.
type Operation struct {
	Kind OperationKind
	// Dest receives Length bytes; it must be at least Length long.
	Dest []byte
	// Src supplies Length bytes; it must be at least Length long.
	Src []byte
	// Length is the number of bytes to transfer.
	Length int
	// Flags are forwarded to the region's copy primitive.
	Flags region.MemFlags
}

// OperationOutput is produced by OperationDelete once an operation has been
// observed complete. It is never mutated after creation.
type OperationOutput struct {
	Kind   OperationKind
	Result Result
	// Dest echoes back the destination of a copy or move.
	Dest []byte
}

// OperationHandle is the backend-defined state of one in-flight operation,
// produced by OperationNew and owned by the backend's allocator. Drivers
// treat it as opaque.
type OperationHandle any

// Mover is the virtual data mover vtable. One future protocol, multiple
// interchangeable execution strategies: implementations differ in where the
// transfer runs, not in how drivers interact with it.
type Mover interface {
	// OperationNew allocates and initializes operation state for the given
	// kind. Allocator exhaustion is returned as a recoverable error.
	OperationNew(kind OperationKind) (OperationHandle, error)
	// OperationStart begins execution. The synchronous backend performs the
	// entire transfer before returning; asynchronous backends return
	// immediately. If notifier is non-nil the backend records how completion
	// will be reported.
	OperationStart(handle OperationHandle, op *Operation, notifier *Notifier) error
	// OperationCheck reports FutureComplete if and only if the completion
	// flag has been observably set, with acquire semantics: once complete is
	// observed, the transferred bytes are visible to the caller.
	OperationCheck(handle OperationHandle) FutureState
	// OperationDelete finalizes a completed operation and releases its
	// state. It is only valid after OperationCheck has observed completion,
	// and exactly once per OperationNew.
	OperationDelete(handle OperationHandle, op *Operation) OperationOutput
}
