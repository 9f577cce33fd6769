package circular_buffer_go

import (
	"errors"
	"fmt"
	"io"
)

// CircularBufferInterface defines the public API for the circular buffer.
//
// The buffer stores bytes in a caller-supplied slice. The read and write
// cursors are offsets into that slice and always stay in [0, capacity); the
// occupancy count tells a full buffer apart from an empty one, since both
// have readIndex == writeIndex.
//
// Notes on semantics:
//   - Push and Pop are all-or-nothing. A rejected call leaves the count and
//     both cursors untouched.
//   - Peek reads a window relative to the read cursor without consuming it.
//   - IsEmpty, IsFull, GetCapacity, GetCount and GetFreeSpace never take the
//     lock. Under concurrent use they are snapshots, and "not empty" does not
//     promise that a following Pop succeeds.
//
// Push, Pop, Peek and Clear are safe for concurrent use only when a
// LockProvider with Acquire and Release was configured.
type CircularBufferInterface interface {
	Initialize(storage []byte, opts ...Option) error
	Clear() error
	Push(p []byte) error
	Pop(p []byte) error
	Peek(dst []byte, offset int, n int) error
	IsEmpty() bool
	IsFull() bool
	GetCapacity() int
	GetCount() int
	GetFreeSpace() int
	Stats() StatsSnapshot
}

var _ CircularBufferInterface = &CircularBuffer{}
var _ io.Writer = &CircularBuffer{}
var _ io.Reader = &CircularBuffer{}
var _ io.ReaderAt = &CircularBuffer{}

var (
	// ErrInvalidArgument reports a malformed call: nil buffer, empty slice,
	// uninitialized buffer or a peek window outside the buffered data.
	ErrInvalidArgument = errors.New("ringbuffer: invalid argument")

	// ErrOverflow reports a push that does not fit in the free space.
	ErrOverflow = errors.New("ringbuffer: overflow")

	// ErrUnderflow reports a pop asking for more bytes than are buffered.
	ErrUnderflow = errors.New("ringbuffer: underflow")

	// ErrEmpty reports a pop from a buffer holding no data.
	ErrEmpty = errors.New("ringbuffer: empty")

	// ErrLock reports a failing lock callback.
	ErrLock = errors.New("ringbuffer: lock failure")
)

// OpError describes a failed buffer operation. It wraps one of the sentinel
// errors above and, when a callback or registry failed, the underlying cause.
type OpError struct {
	Op        string
	Requested int
	Available int
	Err       error
	Cause     error
}

func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.Requested > 0 {
		msg += fmt.Sprintf(" (requested %d, available %d)", e.Requested, e.Available)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Result is the discrete status of an operation.
type Result int

const (
	ResultOK Result = iota
	ResultInvalidArgument
	ResultOverflow
	ResultUnderflow
	ResultEmpty
	ResultLockError
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultInvalidArgument:
		return "invalid argument"
	case ResultOverflow:
		return "overflow"
	case ResultUnderflow:
		return "underflow"
	case ResultEmpty:
		return "empty"
	case ResultLockError:
		return "lock error"
	default:
		return "unknown"
	}
}

// ResultOf maps an error returned by the buffer to its Result. Errors that do
// not come from the buffer map to ResultInvalidArgument.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrLock):
		return ResultLockError
	case errors.Is(err, ErrOverflow):
		return ResultOverflow
	case errors.Is(err, ErrUnderflow):
		return ResultUnderflow
	case errors.Is(err, ErrEmpty):
		return ResultEmpty
	default:
		return ResultInvalidArgument
	}
}

// LockHandle is the opaque value produced by LockProvider.Init. The buffer
// stores it and hands it back to Acquire and Release without inspecting it.
type LockHandle any

// LockProvider is the caller-supplied mutual exclusion capability. Every
// field is optional; a nil Acquire or Release is simply not called.
type LockProvider struct {
	Init    func() (LockHandle, error)
	Acquire func(LockHandle) error
	Release func(LockHandle) error
}

func (p LockProvider) configured() bool {
	return p.Init != nil || p.Acquire != nil || p.Release != nil
}

// LockFailurePolicy decides what happens when Init or Acquire fails.
type LockFailurePolicy int

const (
	// LockFailAbort rejects the operation with ErrLock before any mutation.
	LockFailAbort LockFailurePolicy = iota

	// LockFailIgnore logs the failure and carries on unsynchronized.
	LockFailIgnore
)

func (p LockFailurePolicy) String() string {
	switch p {
	case LockFailAbort:
		return "abort"
	case LockFailIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}
