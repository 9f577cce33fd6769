// Package lock provides ready-made LockProvider values for CircularBuffer.
//
// Each provider creates its own lock in Init, so two buffers built from the
// same provider never share a lock. Use FromLocker to share one explicitly.
package lock

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	cb "github.com/sushydev/circular_buffer_go"
)

var (
	// ErrBadHandle is returned when a handle of the wrong type reaches
	// Acquire or Release.
	ErrBadHandle = errors.New("lock: unexpected handle type")

	// ErrTimeout is returned by a Semaphore that could not be taken in time.
	ErrTimeout = errors.New("lock: acquire timed out")

	// ErrNotHeld is returned when releasing a lock that is not held.
	ErrNotHeld = errors.New("lock: release of unheld lock")
)

// Mutex returns a provider backed by a fresh sync.Mutex per buffer.
func Mutex() cb.LockProvider {
	return cb.LockProvider{
		Init: func() (cb.LockHandle, error) {
			return &sync.Mutex{}, nil
		},
		Acquire: func(h cb.LockHandle) error {
			mu, ok := h.(*sync.Mutex)
			if !ok {
				return ErrBadHandle
			}
			mu.Lock()
			return nil
		},
		Release: func(h cb.LockHandle) error {
			mu, ok := h.(*sync.Mutex)
			if !ok {
				return ErrBadHandle
			}
			mu.Unlock()
			return nil
		},
	}
}

// FromLocker wraps an existing sync.Locker. Buffers configured with the same
// locker serialize against each other.
func FromLocker(l sync.Locker) cb.LockProvider {
	return cb.LockProvider{
		Init: func() (cb.LockHandle, error) {
			if l == nil {
				return nil, ErrBadHandle
			}
			return l, nil
		},
		Acquire: func(h cb.LockHandle) error {
			locker, ok := h.(sync.Locker)
			if !ok {
				return ErrBadHandle
			}
			locker.Lock()
			return nil
		},
		Release: func(h cb.LockHandle) error {
			locker, ok := h.(sync.Locker)
			if !ok {
				return ErrBadHandle
			}
			locker.Unlock()
			return nil
		},
	}
}

// spinLock is a cooperative lock: waiters yield the processor instead of
// parking.
type spinLock struct {
	state atomic.Bool
}

// Spin returns a provider backed by a cooperative spin lock.
func Spin() cb.LockProvider {
	return cb.LockProvider{
		Init: func() (cb.LockHandle, error) {
			return &spinLock{}, nil
		},
		Acquire: func(h cb.LockHandle) error {
			s, ok := h.(*spinLock)
			if !ok {
				return ErrBadHandle
			}
			for !s.state.CompareAndSwap(false, true) {
				runtime.Gosched()
			}
			return nil
		},
		Release: func(h cb.LockHandle) error {
			s, ok := h.(*spinLock)
			if !ok {
				return ErrBadHandle
			}
			if !s.state.CompareAndSwap(true, false) {
				return ErrNotHeld
			}
			return nil
		},
	}
}

// semaphore is a binary semaphore with a bounded wait, the shape of an RTOS
// mutex taken with a tick timeout.
type semaphore struct {
	slot    chan struct{}
	timeout time.Duration
}

// Semaphore returns a provider whose Acquire gives up with ErrTimeout after
// timeout. A timeout of zero or less waits forever.
func Semaphore(timeout time.Duration) cb.LockProvider {
	return cb.LockProvider{
		Init: func() (cb.LockHandle, error) {
			return &semaphore{slot: make(chan struct{}, 1), timeout: timeout}, nil
		},
		Acquire: func(h cb.LockHandle) error {
			s, ok := h.(*semaphore)
			if !ok {
				return ErrBadHandle
			}
			if s.timeout <= 0 {
				s.slot <- struct{}{}
				return nil
			}

			timer := time.NewTimer(s.timeout)
			defer timer.Stop()

			select {
			case s.slot <- struct{}{}:
				return nil
			case <-timer.C:
				return ErrTimeout
			}
		},
		Release: func(h cb.LockHandle) error {
			s, ok := h.(*semaphore)
			if !ok {
				return ErrBadHandle
			}
			select {
			case <-s.slot:
				return nil
			default:
				return ErrNotHeld
			}
		},
	}
}
