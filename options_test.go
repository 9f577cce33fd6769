package circular_buffer_go

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLock counts callback invocations and can be told to fail.
type recordingLock struct {
	inits, acquires, releases int
	held                      bool

	failInit, failAcquire, failRelease error
}

func (r *recordingLock) provider() LockProvider {
	return LockProvider{
		Init: func() (LockHandle, error) {
			r.inits++
			if r.failInit != nil {
				return nil, r.failInit
			}
			return r, nil
		},
		Acquire: func(h LockHandle) error {
			r.acquires++
			if r.failAcquire != nil {
				return r.failAcquire
			}
			r.held = true
			return nil
		},
		Release: func(h LockHandle) error {
			r.releases++
			r.held = false
			return r.failRelease
		},
	}
}

func TestLockCallbacks(t *testing.T) {
	t.Run("Init Once Per Initialize", func(t *testing.T) {
		rec := &recordingLock{}
		buffer := newTestBuffer(t, 8, WithLock(rec.provider()))

		assert.Equal(t, 1, rec.inits)
		assert.Same(t, rec, buffer.handle)

		require.NoError(t, buffer.Initialize(make([]byte, 8), WithLock(rec.provider())))
		assert.Equal(t, 2, rec.inits)
	})

	t.Run("Acquire And Release Are Paired", func(t *testing.T) {
		rec := &recordingLock{}
		buffer := newTestBuffer(t, 8, WithLock(rec.provider()))

		require.NoError(t, buffer.Push([]byte("abcd")))
		require.NoError(t, buffer.Peek(make([]byte, 2), 1, 2))
		require.NoError(t, buffer.Pop(make([]byte, 4)))
		require.NoError(t, buffer.Clear())

		assert.Equal(t, 4, rec.acquires)
		assert.Equal(t, 4, rec.releases)
		assert.False(t, rec.held)
	})

	t.Run("Rejected Under Lock Still Releases", func(t *testing.T) {
		rec := &recordingLock{}
		buffer := newTestBuffer(t, 8, WithLock(rec.provider()))
		require.NoError(t, buffer.Push([]byte("abcdef")))

		assert.ErrorIs(t, buffer.Push([]byte("xyz")), ErrOverflow)
		assert.ErrorIs(t, buffer.Pop(make([]byte, 7)), ErrUnderflow)

		assert.Equal(t, rec.acquires, rec.releases)
		assert.False(t, rec.held)
	})

	t.Run("Fast Paths Skip The Lock", func(t *testing.T) {
		rec := &recordingLock{}
		buffer := newTestBuffer(t, 8, WithLock(rec.provider()))

		assert.ErrorIs(t, buffer.Push(make([]byte, 9)), ErrOverflow)
		assert.ErrorIs(t, buffer.Pop(make([]byte, 1)), ErrEmpty)
		buffer.IsEmpty()
		buffer.IsFull()
		buffer.GetCount()

		assert.Equal(t, 0, rec.acquires)
	})

	t.Run("Acquire Failure Aborts", func(t *testing.T) {
		rec := &recordingLock{}
		buffer := newTestBuffer(t, 8, WithLock(rec.provider()))
		require.NoError(t, buffer.Push([]byte("ab")))

		cause := errors.New("mutex timeout")
		rec.failAcquire = cause

		err := buffer.Push([]byte("cd"))
		assert.ErrorIs(t, err, ErrLock)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, ResultLockError, ResultOf(err))

		assert.ErrorIs(t, buffer.Pop(make([]byte, 1)), ErrLock)
		assert.ErrorIs(t, buffer.Peek(make([]byte, 1), 0, 1), ErrLock)
		assert.ErrorIs(t, buffer.Clear(), ErrLock)

		assert.Equal(t, 2, buffer.GetCount())
		assert.Equal(t, 2, buffer.writeIndex)
		assert.Equal(t, 0, buffer.readIndex)
		assert.Equal(t, 1, rec.releases)
		assert.Equal(t, int64(4), buffer.Stats().LockErrors)
	})

	t.Run("Acquire Failure Ignored", func(t *testing.T) {
		rec := &recordingLock{}
		var logs bytes.Buffer
		buffer := newTestBuffer(t, 8,
			WithLock(rec.provider()),
			WithLockFailurePolicy(LockFailIgnore),
			WithLogger(zerolog.New(&logs)),
			WithName("ignored"),
		)

		rec.failAcquire = errors.New("mutex timeout")

		require.NoError(t, buffer.Push([]byte("cd")))
		assert.Equal(t, 2, buffer.GetCount())

		// Not acquired, so not released.
		assert.Equal(t, 0, rec.releases)
		assert.Equal(t, int64(1), buffer.Stats().LockErrors)
		assert.Contains(t, logs.String(), "proceeding unsynchronized")
		assert.Contains(t, logs.String(), `"buffer":"ignored"`)
	})

	t.Run("Init Failure Aborts", func(t *testing.T) {
		rec := &recordingLock{failInit: errors.New("no mutex left")}
		var buffer CircularBuffer

		err := buffer.Initialize(make([]byte, 8), WithLock(rec.provider()))
		assert.ErrorIs(t, err, ErrLock)
		assert.Equal(t, 0, buffer.GetCapacity())
	})

	t.Run("Init Failure Ignored", func(t *testing.T) {
		rec := &recordingLock{failInit: errors.New("no mutex left")}
		var buffer CircularBuffer

		err := buffer.Initialize(make([]byte, 8),
			WithLock(rec.provider()),
			WithLockFailurePolicy(LockFailIgnore),
		)
		require.NoError(t, err)
		assert.Nil(t, buffer.handle)
		assert.Equal(t, int64(1), buffer.Stats().LockErrors)

		require.NoError(t, buffer.Push([]byte{1}))
		assert.Equal(t, 1, rec.acquires)
	})

	t.Run("Release Failure Is Not Returned", func(t *testing.T) {
		rec := &recordingLock{failRelease: errors.New("not owner")}
		buffer := newTestBuffer(t, 8, WithLock(rec.provider()))

		require.NoError(t, buffer.Push([]byte{1, 2}))
		assert.Equal(t, 2, buffer.GetCount())
		assert.Equal(t, int64(1), buffer.Stats().LockErrors)
	})

	t.Run("Partial Provider", func(t *testing.T) {
		releases := 0
		buffer := newTestBuffer(t, 8, WithLock(LockProvider{
			Release: func(LockHandle) error {
				releases++
				return nil
			},
		}))

		require.NoError(t, buffer.Push([]byte{1}))
		assert.Equal(t, 1, releases)
	})
}

func TestOptions(t *testing.T) {
	opts := applyOptions()
	assert.Equal(t, LockFailAbort, opts.policy)
	assert.NotEmpty(t, opts.name)
	assert.Nil(t, opts.registerer)

	opts = applyOptions(WithName("uart0"), WithMetrics(nil), nil)
	assert.Equal(t, "uart0", opts.name)
	assert.Nil(t, opts.registerer)

	assert.NotEqual(t, applyOptions().name, applyOptions().name)
	assert.Equal(t, "ignore", LockFailIgnore.String())
}
