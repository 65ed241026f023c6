// Package vdm defines the virtual data mover protocol: the operation vtable
// every mover backend implements and the future handle callers drive to
// completion. The synchronous backend in the mover package performs the
// whole transfer inside OperationStart; offload backends return from
// OperationStart immediately and publish completion later through
// OperationCheck or a notifier.
package vdm

// OperationKind selects the durable memory operation a mover performs. The
// set is closed per backend family; passing a kind a backend does not
// implement to OperationStart or OperationDelete is a contract violation and
// panics.
type OperationKind int32

const (
	// OperationMemcpy copies between non-overlapping buffers.
	OperationMemcpy OperationKind = iota + 1
	// OperationMemmove relocates bytes correctly even when the buffers
	// overlap.
	OperationMemmove
)

var operationKindMapping = map[OperationKind]string{
	OperationMemcpy:  "OperationMemcpy",
	OperationMemmove: "OperationMemmove",
}

func (k OperationKind) String() string {
	if name, ok := operationKindMapping[k]; ok {
		return name
	}
	return "UnknownOperationKind"
}

// Result is the outcome code carried by an OperationOutput.
type Result int32

const (
	ResultSuccess Result = iota
	ResultOutOfMemory
)

var resultMapping = map[Result]string{
	ResultSuccess:     "ResultSuccess",
	ResultOutOfMemory: "ResultOutOfMemory",
}

func (r Result) String() string {
	if name, ok := resultMapping[r]; ok {
		return name
	}
	return "UnknownResult"
}

// FutureState is the observable state of an in-flight operation.
type FutureState int32

const (
	// FutureIdle means the operation has not been observed to complete.
	FutureIdle FutureState = iota
	// FutureRunning means the operation was started but has not completed.
	// Synchronous backends never surface this state because OperationStart
	// does not return until the work is done.
	FutureRunning
	// FutureComplete means the completion flag was observed set; all memory
	// effects of the transfer are visible to the observing goroutine.
	FutureComplete
)

var futureStateMapping = map[FutureState]string{
	FutureIdle:     "FutureIdle",
	FutureRunning:  "FutureRunning",
	FutureComplete: "FutureComplete",
}

func (s FutureState) String() string {
	if name, ok := futureStateMapping[s]; ok {
		return name
	}
	return "UnknownFutureState"
}

// NotifierType identifies how a backend signals completion. The set is
// closed; backends that cannot signal report NotifierNone and the driver
// must poll OperationCheck.
type NotifierType int32

const (
	// NotifierNone means no signaling mechanism is available; poll.
	NotifierNone NotifierType = iota
	// NotifierWaker means the backend will invoke a wake callback.
	NotifierWaker
	// NotifierPoller means the backend exposes a memory location the driver
	// can spin on.
	NotifierPoller
)

// Notifier is the output parameter of OperationStart telling the driver how
// completion will be reported.
type Notifier struct {
	Used NotifierType
}
