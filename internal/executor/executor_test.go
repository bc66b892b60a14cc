package executor

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorRunsTasksInSubmissionOrder(t *testing.T) {
	e := New()
	defer e.Shutdown()

	var order []int
	ran := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		if ok := e.Submit(func() {
			order = append(order, i)
			if i == 4 {
				close(ran)
			}
		}); !ok {
			t.Fatalf("expected submit %d to be accepted", i)
		}
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for queued tasks to run")
	}

	for i, got := range order {
		if got != i {
			t.Fatalf("expected task %d at position %d, got %d", i, i, got)
		}
	}
}

func TestExecutorSerializesConcurrentSubmitters(t *testing.T) {
	e := New()
	defer e.Shutdown()

	running := atomic.Int32{}
	overlaps := atomic.Int32{}
	doneCount := atomic.Int32{}
	allDone := make(chan struct{})

	const tasks = 20
	for i := 0; i < tasks; i++ {
		go e.Submit(func() {
			if running.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
			if doneCount.Add(1) == tasks {
				close(allDone)
			}
		})
	}

	select {
	case <-allDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for concurrent tasks to drain")
	}

	if got := overlaps.Load(); got != 0 {
		t.Fatalf("expected no overlapping task execution, got %d overlaps", got)
	}
}

func TestExecutorRejectsSubmitAfterShutdown(t *testing.T) {
	e := New()
	e.Shutdown()

	if ok := e.Submit(func() { t.Error("task ran after shutdown") }); ok {
		t.Fatalf("expected submit after shutdown to be rejected")
	}
}

func TestExecutorShutdownIsIdempotent(t *testing.T) {
	e := New()
	e.Shutdown()
	e.Shutdown()
}

func TestNilExecutorIsSafe(t *testing.T) {
	var e *Executor
	if ok := e.Submit(func() {}); ok {
		t.Fatalf("expected nil executor to reject submissions")
	}
	e.Shutdown()
}
