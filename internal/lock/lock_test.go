package lock

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutexMap_LockUnlock(t *testing.T) {
	m := NewMutexMap()

	m.Lock("task:1:101")
	m.Unlock("task:1:101")

	// Should be able to lock again
	m.Lock("task:1:101")
	m.Unlock("task:1:101")

	assert.Equal(t, 0, m.Len())
}

func TestMutexMap_DifferentKeys(t *testing.T) {
	m := NewMutexMap()

	done := make(chan struct{})

	m.Lock("task:1:101")
	go func() {
		// another task must not wait on task 101
		m.Lock("task:1:102")
		m.Unlock("task:1:102")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	m.Unlock("task:1:101")
}

func TestMutexMap_Concurrent(t *testing.T) {
	m := NewMutexMap()
	var counter int64
	var inside int32

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Do("shared", func() error {
				if atomic.AddInt32(&inside, 1) != 1 {
					t.Error("two holders inside the critical section")
				}
				counter++
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), counter)
	assert.Equal(t, 0, m.Len())
}

func TestMutexMap_DoReturnsError(t *testing.T) {
	m := NewMutexMap()
	want := errors.New("boom")
	assert.ErrorIs(t, m.Do("k", func() error { return want }), want)
	assert.Equal(t, 0, m.Len())
}

func TestMutexMap_UnlockUnknownPanics(t *testing.T) {
	m := NewMutexMap()
	assert.Panics(t, func() { m.Unlock("missing") })
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "task:3:101", TaskKey(3, "101"))
	assert.Equal(t, "sprint:3", SprintKey(3))
}
