package cmap

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{8, 8},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := NewWithShards[int](tt.input)
			if len(m.shards) != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d",
					tt.input, len(m.shards), tt.expected)
			}
		})
	}
}

func TestSetGetDelete(t *testing.T) {
	m := New[int]()

	m.Set("key1", 100)
	m.Set("key2", 200)

	if v, ok := m.Get("key1"); !ok || v != 100 {
		t.Errorf("Get(key1) = (%d, %v), want (100, true)", v, ok)
	}

	m.Delete("key1")
	if _, ok := m.Get("key1"); ok {
		t.Error("Get(key1) after Delete should miss")
	}

	if v, ok := m.Pop("key2"); !ok || v != 200 {
		t.Errorf("Pop(key2) = (%d, %v), want (200, true)", v, ok)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestGetOrCreate_Once(t *testing.T) {
	m := New[*int]()
	var calls atomic.Int32
	var wg sync.WaitGroup

	results := make([]*int, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.GetOrCreate("https://api.example/events", func() *int {
				calls.Add(1)
				v := 42
				return &v
			})
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("create called %d times, want 1", calls.Load())
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("GetOrCreate returned different instances for one key")
		}
	}
}

func TestRangeAndValues(t *testing.T) {
	m := New[int]()
	for i := 0; i < 100; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}

	sum := 0
	m.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	if sum != 4950 {
		t.Errorf("Range sum = %d, want 4950", sum)
	}

	visited := 0
	m.Range(func(string, int) bool {
		visited++
		return visited < 5
	})
	if visited != 5 {
		t.Errorf("Range early stop visited %d, want 5", visited)
	}

	if got := len(m.Values()); got != 100 {
		t.Errorf("len(Values()) = %d, want 100", got)
	}
}

func TestDrain(t *testing.T) {
	m := New[string]()
	m.Set("a", "1")
	m.Set("b", "2")

	if got := len(m.Drain()); got != 2 {
		t.Errorf("Drain() returned %d values, want 2", got)
	}
	if m.Count() != 0 {
		t.Errorf("Count() after Drain = %d", m.Count())
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup

	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				key := fmt.Sprintf("%d-%d", base, j)
				m.Set(key, j)
				m.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if m.Count() != 20*500 {
		t.Errorf("Count() = %d, want %d", m.Count(), 20*500)
	}
}
