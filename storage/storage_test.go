package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cb "github.com/sushydev/circular_buffer_go"
	"github.com/sushydev/circular_buffer_go/storage"
)

func TestHeap(t *testing.T) {
	region, err := storage.Heap(64)
	require.NoError(t, err)

	assert.Equal(t, 64, region.Len())
	assert.False(t, region.Mapped())
	require.NoError(t, region.Close())
	assert.Nil(t, region.Bytes())
	assert.ErrorIs(t, region.Close(), storage.ErrClosed)
}

func TestAllocate(t *testing.T) {
	region, err := storage.Allocate(4096)
	require.NoError(t, err)
	defer region.Close()

	assert.Equal(t, 4096, region.Len())

	// Usable whether mapped or not.
	data := region.Bytes()
	data[0] = 0xAA
	data[4095] = 0x55
	assert.Equal(t, byte(0xAA), data[0])
	assert.Equal(t, byte(0x55), data[4095])
}

func TestInvalidSize(t *testing.T) {
	_, err := storage.Heap(0)
	assert.Error(t, err)

	_, err = storage.Allocate(-1)
	assert.Error(t, err)
}

func TestBufferOverRegion(t *testing.T) {
	region, err := storage.Allocate(128)
	require.NoError(t, err)
	defer region.Close()

	buffer, err := cb.New(region.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 128, buffer.GetCapacity())

	require.NoError(t, buffer.Push([]byte("borrowed memory")))

	out := make([]byte, 8)
	require.NoError(t, buffer.Pop(out))
	assert.Equal(t, "borrowed", string(out))

	// The buffer writes straight into the region.
	assert.Equal(t, "borrowed memory", string(region.Bytes()[:15]))
}
