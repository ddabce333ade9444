package verify

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool_ZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	if pool == nil {
		t.Fatal("Expected non-nil WorkerPool")
	}
	if pool.workers <= 0 {
		t.Errorf("Expected worker count to default to NumCPU, got %d", pool.workers)
	}
}

func TestWorkerPool_Submit(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Close()

	var counter int
	var mu sync.Mutex

	for i := 0; i < 5; i++ {
		pool.Submit(func() {
			time.Sleep(time.Millisecond)
			mu.Lock()
			counter++
			mu.Unlock()
		})
	}

	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	if counter != 5 {
		t.Errorf("Expected counter to be 5, got %d", counter)
	}
}

func TestWorkerPool_StartOnce(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	pool.Start()
	defer pool.Close()

	var ran atomic.Int32
	pool.Submit(func() { ran.Add(1) })
	pool.Wait()

	if ran.Load() != 1 {
		t.Errorf("Expected job to run once, ran %d times", ran.Load())
	}
}

func TestWorkerPool_TrySubmitFullQueue(t *testing.T) {
	pool := NewWorkerPool(1)
	// not started: nothing drains the queue
	accepted := 0
	for i := 0; i < 10; i++ {
		if pool.TrySubmit(func() {}) {
			accepted++
		}
	}
	if accepted != 4 {
		t.Errorf("Expected 4 jobs to fit the queue, got %d", accepted)
	}

	pool.Start()
	pool.Wait()
	pool.Close()
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	pool.Close()
	pool.Close()

	if pool.Submit(func() {}) {
		t.Error("Expected Submit to fail after Close")
	}
	if pool.TrySubmit(func() {}) {
		t.Error("Expected TrySubmit to fail after Close")
	}
	pool.Wait()
}
