package circular_buffer_go

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// CircularBuffer is a fixed-capacity FIFO of bytes over caller-owned storage.
//
// The zero value is not ready for use; call Initialize (or use New) first.
// A CircularBuffer must not be copied after Initialize.
type CircularBuffer struct {
	data     []byte
	capacity int

	readIndex  int // next byte to pop
	writeIndex int // next free slot
	count      atomic.Int64

	name    string
	locks   LockProvider
	handle  LockHandle
	policy  LockFailurePolicy
	logger  zerolog.Logger
	stats   Statistics
	metrics *bufferMetrics
}

// New allocates a CircularBuffer and initializes it over storage.
func New(storage []byte, opts ...Option) (*CircularBuffer, error) {
	buffer := &CircularBuffer{}
	if err := buffer.Initialize(storage, opts...); err != nil {
		return nil, err
	}
	return buffer, nil
}

func invalidArgument(op string, requested int) error {
	return &OpError{Op: op, Err: ErrInvalidArgument, Requested: requested}
}

// Initialize binds the buffer to storage and resets it. The buffer borrows
// storage and never reallocates it; the caller keeps ownership. Calling
// Initialize again discards anything buffered and calls LockProvider.Init
// again.
func (buffer *CircularBuffer) Initialize(storage []byte, opts ...Option) error {
	if buffer == nil || len(storage) == 0 {
		return invalidArgument("initialize", 0)
	}

	o := applyOptions(opts...)

	// A buffer re-initialized under the same name on the same registry keeps
	// its collectors. Any other holder of that name is a different buffer.
	var metrics *bufferMetrics
	fresh := false
	if o.registerer != nil {
		if buffer.metrics.registeredOn(o.registerer, o.name) {
			metrics = buffer.metrics
		} else {
			m, err := newBufferMetrics(o.registerer, o.name)
			if err != nil {
				return &OpError{Op: "initialize", Err: ErrInvalidArgument, Cause: err}
			}
			metrics = m
			fresh = true
		}
	}

	var handle LockHandle
	var initErr error
	if o.locks.Init != nil {
		handle, initErr = o.locks.Init()
		if initErr != nil {
			if o.policy == LockFailAbort {
				o.logger.Error().Err(initErr).Str("buffer", o.name).Msg("lock init failed")
				buffer.stats.lockErrors.Add(1)
				if fresh {
					metrics.unregister()
				} else if metrics != nil {
					metrics.lockErrors.Inc()
				}
				return &OpError{Op: "initialize", Err: ErrLock, Cause: initErr}
			}
			o.logger.Warn().Err(initErr).Str("buffer", o.name).Msg("lock init failed, continuing without a lock handle")
			handle = nil
		}
	}

	if buffer.metrics != nil && buffer.metrics != metrics {
		buffer.metrics.unregister()
	}

	buffer.data = storage
	buffer.capacity = len(storage)
	buffer.readIndex = 0
	buffer.writeIndex = 0
	buffer.count.Store(0)

	buffer.name = o.name
	buffer.locks = o.locks
	buffer.handle = handle
	buffer.policy = o.policy
	buffer.logger = o.logger
	buffer.metrics = metrics

	buffer.stats.Reset()
	if initErr != nil {
		buffer.stats.lockErrors.Add(1)
		if metrics != nil {
			metrics.lockErrors.Inc()
		}
	}
	if metrics != nil {
		metrics.reset(buffer.capacity)
	}

	buffer.logger.Debug().
		Str("buffer", buffer.name).
		Int("capacity", buffer.capacity).
		Bool("locked", buffer.locks.configured()).
		Stringer("lock_failure_policy", buffer.policy).
		Msg("buffer initialized")

	return nil
}

// lock runs the Acquire callback. held reports whether Release must be
// called afterwards.
func (buffer *CircularBuffer) lock(op string) (held bool, err error) {
	if buffer.locks.Acquire == nil {
		return true, nil
	}

	if err := buffer.locks.Acquire(buffer.handle); err != nil {
		buffer.stats.lockErrors.Add(1)
		if buffer.metrics != nil {
			buffer.metrics.lockErrors.Inc()
		}

		if buffer.policy == LockFailAbort {
			buffer.logger.Debug().Err(err).Str("buffer", buffer.name).Str("op", op).Msg("lock acquire failed")
			return false, &OpError{Op: op, Err: ErrLock, Cause: err}
		}

		buffer.logger.Warn().Err(err).Str("buffer", buffer.name).Str("op", op).Msg("lock acquire failed, proceeding unsynchronized")
		return false, nil
	}

	return true, nil
}

func (buffer *CircularBuffer) unlock(op string, held bool) {
	if !held || buffer.locks.Release == nil {
		return
	}

	if err := buffer.locks.Release(buffer.handle); err != nil {
		buffer.stats.lockErrors.Add(1)
		if buffer.metrics != nil {
			buffer.metrics.lockErrors.Inc()
		}
		buffer.logger.Error().Err(err).Str("buffer", buffer.name).Str("op", op).Msg("lock release failed")
	}
}

// reject counts and logs a refused operation.
func (buffer *CircularBuffer) reject(e *OpError) error {
	switch e.Err {
	case ErrOverflow:
		buffer.stats.overflows.Add(1)
		if buffer.metrics != nil {
			buffer.metrics.overflows.Inc()
		}
	case ErrUnderflow:
		buffer.stats.underflows.Add(1)
		if buffer.metrics != nil {
			buffer.metrics.underflows.Inc()
		}
	case ErrEmpty:
		buffer.stats.empties.Add(1)
		if buffer.metrics != nil {
			buffer.metrics.empties.Inc()
		}
	}

	buffer.logger.Debug().
		Str("buffer", buffer.name).
		Str("op", e.Op).
		Int("requested", e.Requested).
		Int("available", e.Available).
		Msg(e.Err.Error())

	return e
}

// copyIn writes src starting at storage offset start, splitting the copy in
// two when it runs past the end of storage. Returns the offset following the
// last byte written.
func (buffer *CircularBuffer) copyIn(start int, src []byte) int {
	firstPart := buffer.capacity - start
	if len(src) > firstPart {
		copy(buffer.data[start:], src[:firstPart])
		return copy(buffer.data, src[firstPart:])
	}

	copy(buffer.data[start:], src)
	return (start + len(src)) % buffer.capacity
}

// copyOut is the read counterpart of copyIn.
func (buffer *CircularBuffer) copyOut(start int, dst []byte) int {
	firstPart := buffer.capacity - start
	if len(dst) > firstPart {
		copy(dst, buffer.data[start:])
		return copy(dst[firstPart:], buffer.data[:len(dst)-firstPart])
	}

	copy(dst, buffer.data[start:start+len(dst)])
	return (start + len(dst)) % buffer.capacity
}

// Clear drops all buffered data. Storage contents and the lock handle are
// left alone.
func (buffer *CircularBuffer) Clear() error {
	if buffer == nil {
		return invalidArgument("clear", 0)
	}

	held, err := buffer.lock("clear")
	if err != nil {
		return err
	}
	defer buffer.unlock("clear", held)

	buffer.readIndex = 0
	buffer.writeIndex = 0
	buffer.count.Store(0)

	if buffer.metrics != nil {
		buffer.metrics.occupancy.Set(0)
	}

	buffer.logger.Debug().Str("buffer", buffer.name).Msg("buffer cleared")

	return nil
}

// Push appends all of p or nothing.
func (buffer *CircularBuffer) Push(p []byte) error {
	if buffer == nil || len(p) == 0 || buffer.capacity == 0 {
		return invalidArgument("push", len(p))
	}

	requestedSize := len(p)

	// Can never fit; no need to take the lock.
	if requestedSize > buffer.capacity {
		return buffer.reject(&OpError{Op: "push", Err: ErrOverflow, Requested: requestedSize, Available: buffer.GetFreeSpace()})
	}

	held, err := buffer.lock("push")
	if err != nil {
		return err
	}
	defer buffer.unlock("push", held)

	// Free space may have shrunk while waiting for the lock.
	count := int(buffer.count.Load())
	if count+requestedSize > buffer.capacity {
		return buffer.reject(&OpError{Op: "push", Err: ErrOverflow, Requested: requestedSize, Available: buffer.capacity - count})
	}

	buffer.writeIndex = buffer.copyIn(buffer.writeIndex, p)
	newCount := buffer.count.Add(int64(requestedSize))

	buffer.stats.pushes.Add(1)
	buffer.stats.pushedBytes.Add(int64(requestedSize))
	buffer.stats.observeCount(newCount)
	if buffer.metrics != nil {
		buffer.metrics.recordPush(requestedSize, int(newCount))
	}

	return nil
}

// Pop fills p completely with the oldest buffered bytes, or fails without
// consuming anything.
func (buffer *CircularBuffer) Pop(p []byte) error {
	_, err := buffer.pop("pop", p, false)
	return err
}

func (buffer *CircularBuffer) pop(op string, p []byte, partial bool) (int, error) {
	if buffer == nil || len(p) == 0 || buffer.capacity == 0 {
		return 0, invalidArgument(op, len(p))
	}

	if buffer.count.Load() == 0 {
		return 0, buffer.reject(&OpError{Op: op, Err: ErrEmpty, Requested: len(p)})
	}

	held, err := buffer.lock(op)
	if err != nil {
		return 0, err
	}
	defer buffer.unlock(op, held)

	count := int(buffer.count.Load())
	readSize := len(p)
	if count < readSize {
		if !partial {
			return 0, buffer.reject(&OpError{Op: op, Err: ErrUnderflow, Requested: readSize, Available: count})
		}
		readSize = count
	}

	// Drained by someone else between the fast path and the lock.
	if readSize == 0 {
		return 0, buffer.reject(&OpError{Op: op, Err: ErrEmpty, Requested: len(p)})
	}

	buffer.readIndex = buffer.copyOut(buffer.readIndex, p[:readSize])
	newCount := buffer.count.Add(-int64(readSize))

	buffer.stats.pops.Add(1)
	buffer.stats.poppedBytes.Add(int64(readSize))
	if buffer.metrics != nil {
		buffer.metrics.recordPop(readSize, int(newCount))
	}

	return readSize, nil
}

// Peek copies n bytes starting offset bytes past the read cursor into dst
// without consuming them. The window must lie inside the buffered data and
// dst must hold at least n bytes.
func (buffer *CircularBuffer) Peek(dst []byte, offset int, n int) error {
	_, err := buffer.peek("peek", dst, offset, n, false)
	return err
}

func (buffer *CircularBuffer) peek(op string, dst []byte, offset int, n int, partial bool) (int, error) {
	if buffer == nil || buffer.capacity == 0 || n <= 0 || offset < 0 || len(dst) < n {
		return 0, invalidArgument(op, n)
	}

	held, err := buffer.lock(op)
	if err != nil {
		return 0, err
	}
	defer buffer.unlock(op, held)

	count := int(buffer.count.Load())
	available := 0
	if offset < count {
		available = count - offset
	}

	if n > available {
		if !partial {
			return 0, buffer.reject(&OpError{Op: op, Err: ErrInvalidArgument, Requested: n, Available: available})
		}
		if available == 0 {
			return 0, nil
		}
		n = available
	}

	buffer.copyOut((buffer.readIndex+offset)%buffer.capacity, dst[:n])

	buffer.stats.peeks.Add(1)
	if buffer.metrics != nil {
		buffer.metrics.peeks.Inc()
	}

	return n, nil
}

// Write pushes p as a single unit. It implements io.Writer: either all of p
// is written or none of it and the error says why.
func (buffer *CircularBuffer) Write(p []byte) (n int, err error) {
	if buffer != nil && len(p) == 0 {
		return 0, nil
	}

	if err := buffer.Push(p); err != nil {
		return 0, err
	}

	return len(p), nil
}

// Read pops up to len(p) bytes. It returns io.EOF when nothing is buffered.
func (buffer *CircularBuffer) Read(p []byte) (n int, err error) {
	if buffer != nil && len(p) == 0 {
		return 0, nil
	}

	n, err = buffer.pop("read", p, true)
	if errors.Is(err, ErrEmpty) {
		return 0, io.EOF
	}

	return n, err
}

// ReadAt peeks at up to len(p) bytes starting off bytes past the read cursor.
// Fewer bytes than requested are reported with io.EOF, as io.ReaderAt asks.
func (buffer *CircularBuffer) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, invalidArgument("readat", len(p))
	}

	if buffer != nil && len(p) == 0 {
		return 0, nil
	}

	if buffer != nil && buffer.capacity > 0 && off >= int64(buffer.capacity) {
		return 0, io.EOF
	}

	n, err = buffer.peek("readat", p, int(off), len(p), true)
	if err != nil {
		return n, err
	}

	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// IsEmpty reports whether the buffer holds no data.
func (buffer *CircularBuffer) IsEmpty() bool {
	return buffer.GetCount() == 0
}

// IsFull reports whether the buffer has no free space left.
func (buffer *CircularBuffer) IsFull() bool {
	capacity := buffer.GetCapacity()
	return capacity > 0 && buffer.GetCount() == capacity
}

// GetCapacity returns the size of the backing storage.
func (buffer *CircularBuffer) GetCapacity() int {
	if buffer == nil {
		return 0
	}
	return buffer.capacity
}

// GetCount returns the number of buffered bytes.
func (buffer *CircularBuffer) GetCount() int {
	if buffer == nil {
		return 0
	}
	return int(buffer.count.Load())
}

// GetFreeSpace returns how many bytes can be pushed before the buffer is full.
func (buffer *CircularBuffer) GetFreeSpace() int {
	return buffer.GetCapacity() - buffer.GetCount()
}

// Name returns the name used in logs and metric labels.
func (buffer *CircularBuffer) Name() string {
	if buffer == nil {
		return ""
	}
	return buffer.name
}

// Stats returns a snapshot of the buffer's operation counters.
func (buffer *CircularBuffer) Stats() StatsSnapshot {
	if buffer == nil {
		return StatsSnapshot{}
	}
	return buffer.stats.Snapshot()
}
