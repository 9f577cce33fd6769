package circular_buffer_go_test

import (
	"runtime"
	"sync"
	"testing"

	cb "github.com/sushydev/circular_buffer_go"
	"github.com/sushydev/circular_buffer_go/lock"
)

func producer(buffer *cb.CircularBuffer, iterations int, data []byte, wg *sync.WaitGroup, totalBytes *int) {
	defer wg.Done()

	for i := 0; i < iterations; {
		if err := buffer.Push(data); err != nil {
			runtime.Gosched()
			continue
		}

		*totalBytes += len(data)
		i++
	}
}

func consumer(buffer *cb.CircularBuffer, iterations int, dataSize int, wg *sync.WaitGroup, totalBytes *int) {
	defer wg.Done()

	p := make([]byte, dataSize)

	for i := 0; i < iterations; {
		if err := buffer.Pop(p); err != nil {
			runtime.Gosched()
			continue
		}

		*totalBytes += dataSize
		i++
	}
}

func benchmarkProducerConsumer(b *testing.B, locks cb.LockProvider) {
	const dataSize = 1024
	const bufferSize = 1 << 20

	buffer, err := cb.New(make([]byte, bufferSize), cb.WithLock(locks))
	if err != nil {
		b.Fatal(err)
	}

	data := make([]byte, dataSize)
	var wg sync.WaitGroup
	var bytesWritten, bytesRead int

	b.SetBytes(dataSize)
	b.ResetTimer()

	wg.Add(2)
	go producer(buffer, b.N, data, &wg, &bytesWritten)
	go consumer(buffer, b.N, dataSize, &wg, &bytesRead)
	wg.Wait()

	b.StopTimer()
	if bytesWritten != bytesRead {
		b.Fatalf("wrote %d bytes, read %d", bytesWritten, bytesRead)
	}
}

func BenchmarkMutex(b *testing.B) {
	benchmarkProducerConsumer(b, lock.Mutex())
}

func BenchmarkSpin(b *testing.B) {
	benchmarkProducerConsumer(b, lock.Spin())
}

func BenchmarkSemaphore(b *testing.B) {
	benchmarkProducerConsumer(b, lock.Semaphore(0))
}

func BenchmarkPushPopUnlocked(b *testing.B) {
	buffer, err := cb.New(make([]byte, 4096))
	if err != nil {
		b.Fatal(err)
	}

	data := make([]byte, 100)
	out := make([]byte, 100)

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := buffer.Push(data); err != nil {
			b.Fatal(err)
		}
		if err := buffer.Pop(out); err != nil {
			b.Fatal(err)
		}
	}
}
