package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	q := New[string](0)
	assert.True(t, q.IsEmpty())

	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	assert.Equal(t, 2, q.Len())

	v, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestCapacity(t *testing.T) {
	q := New[int](2)
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	assert.ErrorIs(t, q.Enqueue(3), ErrFull)

	_, _ = q.Dequeue()
	assert.NoError(t, q.Enqueue(3))
	assert.Equal(t, []int{2, 3}, q.Drain())
	assert.True(t, q.IsEmpty())
}

func TestReadySignal(t *testing.T) {
	q := New[int](0)
	select {
	case <-q.Ready():
		t.Fatal("ready before enqueue")
	default:
	}

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))

	select {
	case <-q.Ready():
	default:
		t.Fatal("expected ready signal")
	}
	// signals coalesce
	select {
	case <-q.Ready():
		t.Fatal("signal should coalesce")
	default:
	}
	assert.Equal(t, []int{1, 2}, q.Drain())
}

func TestConcurrentEnqueue(t *testing.T) {
	q := New[int](0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = q.Enqueue(n)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, q.Len())
}
