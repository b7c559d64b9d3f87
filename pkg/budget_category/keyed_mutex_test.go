package budget_category

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	t.Run("should serialize holders of the same key", func(t *testing.T) {
		locks := newKeyedMutex()
		key := NewKey("sb-1", "Rent", firstWeek)
		var inside, maxInside int32

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := locks.Lock(key)
				defer unlock()
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInside)
		assert.Empty(t, locks.locks)
	})

	t.Run("should not block different keys", func(t *testing.T) {
		locks := newKeyedMutex()
		unlockRent := locks.Lock(NewKey("sb-1", "Rent", firstWeek))
		defer unlockRent()

		done := make(chan struct{})
		go func() {
			unlock := locks.Lock(NewKey("sb-1", "Groceries", firstWeek))
			unlock()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock of another key was blocked")
		}
	})

	t.Run("should lock overlapping key sets without deadlock", func(t *testing.T) {
		locks := newKeyedMutex()
		a := NewKey("sb-1", "Rent", firstWeek)
		b := NewKey("sb-1", "Groceries", firstWeek)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				locks.LockAll([]Key{a, b, a})()
			}()
			go func() {
				defer wg.Done()
				locks.LockAll([]Key{b, a})()
			}()
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("deadlock")
		}
	})
}
