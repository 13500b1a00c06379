// ABOUTME: Tests for the fixed-capacity dedup window.
// ABOUTME: Validates duplicate rejection, oldest-first eviction, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_AdmitNew(t *testing.T) {
	w := NewWindow(100)

	assert.True(t, w.Admit("evt-1"), "first sighting should be admitted")
	assert.True(t, w.Contains("evt-1"))
}

func TestWindow_RejectDuplicate(t *testing.T) {
	w := NewWindow(100)

	assert.True(t, w.Admit("evt-1"))
	assert.False(t, w.Admit("evt-1"), "second sighting should be rejected")
	assert.Equal(t, 1, w.Len())
}

func TestWindow_EvictsOldestFirst(t *testing.T) {
	w := NewWindow(3)

	w.Admit("a")
	w.Admit("b")
	w.Admit("c")
	w.Admit("d") // evicts "a"

	assert.False(t, w.Contains("a"), "oldest ID should be evicted")
	assert.True(t, w.Contains("b"))
	assert.True(t, w.Contains("c"))
	assert.True(t, w.Contains("d"))
	assert.Equal(t, 3, w.Len())
}

func TestWindow_EvictedIDIsNewAgain(t *testing.T) {
	w := NewWindow(2)

	w.Admit("a")
	w.Admit("b")
	w.Admit("c") // evicts "a"

	assert.True(t, w.Admit("a"), "evicted ID should be treated as brand-new")
}

func TestWindow_NeverExceedsCapacity(t *testing.T) {
	w := NewWindow(DefaultCapacity)

	for i := 0; i < DefaultCapacity+1; i++ {
		assert.True(t, w.Admit(fmt.Sprintf("evt-%d", i)))
	}

	assert.Equal(t, DefaultCapacity, w.Len())
	assert.False(t, w.Contains("evt-0"), "first ID should be gone after 501 admissions")
	assert.True(t, w.Admit("evt-0"), "redelivering the evicted first ID counts as new")
}

func TestWindow_ZeroCapacityFallsBack(t *testing.T) {
	w := NewWindow(0)

	w.Admit("evt-1")
	assert.True(t, w.Contains("evt-1"))
}

func TestWindow_AdmitAtomicUnderContention(t *testing.T) {
	w := NewWindow(1000)

	const numGoroutines = 100
	var admitted int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if w.Admit("contested") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted, "exactly one goroutine should admit the contested ID")
}

func TestWindow_ConcurrentMixedKeys(t *testing.T) {
	w := NewWindow(500)

	const numGoroutines = 50
	const opsPerGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				key := fmt.Sprintf("evt-%d-%d", id, j)
				w.Admit(key)
				w.Contains(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, w.Len(), 500, "window must stay within capacity under load")
}
