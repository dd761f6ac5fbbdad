package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arrayd/internal/frame"
)

func vec(vals ...float64) frame.Array {
	return frame.Array{Rows: 1, Cols: uint32(len(vals)), DType: frame.Float64, Data: vals}
}

func TestStore_SetGet(t *testing.T) {
	s := New()

	_, ok := s.Get("x")
	assert.False(t, ok)

	s.Set("x", vec(1, 2))
	got, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, got.Data)
}

func TestStore_LastWriteWins(t *testing.T) {
	s := New()
	s.Set("x", vec(1))
	s.Set("x", vec(2, 3))

	got, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, []float64{2, 3}, got.Data)
	assert.Equal(t, 1, s.Len())
}

func TestStore_NamesSorted(t *testing.T) {
	s := New()
	s.Set("b", vec(1))
	s.Set("a", vec(1))
	s.Set("c", vec(1))

	assert.Equal(t, []string{"a", "b", "c"}, s.Names())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := New()
	s.Set("a", vec(1))

	snap := s.Snapshot()
	s.Set("b", vec(2))

	assert.Len(t, snap, 1)
	assert.Equal(t, 2, s.Len())
}

func TestStore_Observe(t *testing.T) {
	s := New()
	var seen []string
	s.Observe(func(name string, arr frame.Array) {
		seen = append(seen, fmt.Sprintf("%s:%d", name, arr.Len()))
	})

	s.Set("a", vec(1, 2, 3))
	s.Set("b", vec())

	assert.Equal(t, []string{"a:3", "b:0"}, seen)
}

// TestStore_ConcurrentReaders exercises the single-writer,
// many-reader pattern of the listener under the race detector.
func TestStore_ConcurrentReaders(t *testing.T) {
	s := New()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Set("x", vec(float64(i)))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if arr, ok := s.Get("x"); ok {
					assert.Equal(t, 1, arr.Len())
				}
				_ = s.Names()
			}
		}()
	}
	wg.Wait()

	got, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, 499.0, got.Data[0])
}
