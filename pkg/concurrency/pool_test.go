package concurrency

import (
	"sync/atomic"
	"testing"

	"algoengine/internal/logging"
)

func TestWorkerPoolSubmitAndWaitRunsTask(t *testing.T) {
	wp := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 2, MaxCapacity: 8}, logging.Nop())
	defer wp.Stop()

	var ran int32
	wp.SubmitAndWait(func() { atomic.StoreInt32(&ran, 1) })

	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("expected task to have run before SubmitAndWait returned")
	}
}

func TestWorkerPoolNonBlockingRejectsWhenFull(t *testing.T) {
	wp := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 1, MaxCapacity: 1, NonBlocking: true}, logging.Nop())
	defer wp.Stop()

	block := make(chan struct{})
	_ = wp.Submit(func() { <-block })

	// One slot occupied by the blocked task above, capacity 1: further
	// submissions should eventually report the pool full.
	var sawFull bool
	for i := 0; i < 10; i++ {
		if err := wp.Submit(func() {}); err != nil {
			sawFull = true
			break
		}
	}
	close(block)
	if !sawFull {
		t.Fatal("expected at least one submission to report the pool full")
	}
}
