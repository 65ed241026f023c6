package vdm

import (
	"context"
	"fmt"
	"runtime"

	cerrors "github.com/cockroachdb/errors"

	"github.com/pmemkit/pmover/region"
)

type futurePhase int32

const (
	phaseCreated futurePhase = iota
	phaseRunning
	phaseComplete
)

// Future is the caller-facing handle over one in-flight operation. It is a
// view over the mover's protocol operations, not shared state: a Future must
// be driven by one goroutine at a time.
type Future struct {
	mover    Mover
	handle   OperationHandle
	op       Operation
	notifier Notifier
	phase    futurePhase
	output   OperationOutput
}

// Memcpy allocates operation state on the mover and returns a copy future
// transferring len(src) bytes. The buffers must not overlap. Allocator
// exhaustion is returned as an error; no state is left live.
func Memcpy(mover Mover, dest, src []byte, flags region.MemFlags) (*Future, error) {
	return newFuture(mover, OperationMemcpy, dest, src, flags)
}

// Memmove is Memcpy for overlapping buffers: the transfer has sequential
// byte-relocation semantics.
func Memmove(mover Mover, dest, src []byte, flags region.MemFlags) (*Future, error) {
	return newFuture(mover, OperationMemmove, dest, src, flags)
}

func newFuture(mover Mover, kind OperationKind, dest, src []byte, flags region.MemFlags) (*Future, error) {
	if len(dest) < len(src) {
		return nil, cerrors.Newf("destination holds %d bytes but %d are being transferred", len(dest), len(src))
	}

	handle, err := mover.OperationNew(kind)
	if err != nil {
		return nil, cerrors.Wrapf(err, "creating %s operation", kind)
	}

	return &Future{
		mover:  mover,
		handle: handle,
		op: Operation{
			Kind:   kind,
			Dest:   dest,
			Src:    src,
			Length: len(src),
			Flags:  flags,
		},
	}, nil
}

// Poll advances the future's state machine one step: the first call starts
// the operation, subsequent calls check for completion, and the call that
// observes completion finalizes the operation and captures its output. Poll
// never blocks beyond what the backend's OperationStart does.
func (f *Future) Poll() (FutureState, error) {
	switch f.phase {
	case phaseCreated:
		if err := f.mover.OperationStart(f.handle, &f.op, &f.notifier); err != nil {
			return FutureIdle, cerrors.Wrapf(err, "starting %s operation", f.op.Kind)
		}
		f.phase = phaseRunning
		fallthrough
	case phaseRunning:
		if f.mover.OperationCheck(f.handle) != FutureComplete {
			return FutureRunning, nil
		}
		f.output = f.mover.OperationDelete(f.handle, &f.op)
		f.phase = phaseComplete
		return FutureComplete, nil
	case phaseComplete:
		return FutureComplete, nil
	}

	panic(fmt.Sprintf("future in impossible phase %d", f.phase))
}

// Await drives the future until it completes and returns its output. The
// context is consulted between polls only; a synchronous backend's transfer
// cannot be interrupted once started.
func (f *Future) Await(ctx context.Context) (OperationOutput, error) {
	for {
		state, err := f.Poll()
		if err != nil {
			return OperationOutput{}, err
		}
		if state == FutureComplete {
			return f.output, nil
		}

		select {
		case <-ctx.Done():
			return OperationOutput{}, cerrors.Wrap(ctx.Err(), "awaiting operation")
		default:
		}
		runtime.Gosched()
	}
}

// Notifier reports how the backend signals completion. It is meaningful only
// once Poll has been called at least once.
func (f *Future) Notifier() Notifier { return f.notifier }

// Output returns the operation's output descriptor. Calling it before the
// future has been driven to completion is a contract violation.
func (f *Future) Output() OperationOutput {
	if f.phase != phaseComplete {
		panic("future output requested before completion")
	}
	return f.output
}
